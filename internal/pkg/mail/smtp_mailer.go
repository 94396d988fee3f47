package mail

import (
	"fmt"
	"net/smtp"

	"github.com/globalnexus/streamvault/app/models"
	"github.com/globalnexus/streamvault/internal/pkg/env"
	"github.com/gofiber/fiber/v2/log"
)

// Enabled reports whether SMTP delivery is configured.
func Enabled() bool {
	return env.GetEnv("SMTP_HOST", "") != ""
}

// SendMail sends an HTML email via SMTP
func SendMail(to string, subject string, body string) error {
	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "587")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "")

	if sender == "" {
		sender = "no-reply@streamvault.local"
		log.Warnf("[Mail] SMTP_SENDER not set, using default sender: %s", sender)
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	err := smtp.SendMail(addr, auth, sender, []string{to}, msg)
	if err != nil {
		log.Errorf("[Mail] send to %s failed: %v", to, err)
	} else {
		log.Infof("[Mail] sent to %s via %s", to, addr)
	}
	return err
}

// SendWelcome greets a freshly registered account. Best effort, callers
// fire it in a goroutine.
func SendWelcome(user *models.User) {
	if !Enabled() {
		return
	}
	body := fmt.Sprintf(
		"<h2>Welcome to StreamVault, %s!</h2>"+
			"<p>Your account is ready. Pick a plan and start watching.</p>",
		user.Name,
	)
	_ = SendMail(user.Email, "Welcome to StreamVault", body)
}

// SendPaymentReceipt confirms a settled subscription payment.
func SendPaymentReceipt(user *models.User, intent *models.PaymentIntent) {
	if !Enabled() {
		return
	}
	body := fmt.Sprintf(
		"<h2>Payment received</h2>"+
			"<p>Hi %s, we received your payment of %d %s (reference %s).</p>"+
			"<p>Your subscription is now active. Enjoy!</p>",
		user.Name, intent.AmountMinor, intent.Currency, intent.MerchantReference,
	)
	_ = SendMail(user.Email, "StreamVault payment confirmation", body)
}
