package payment

import "github.com/globalnexus/streamvault/app/models"

// Outcome is the user-facing classification of an intent's state.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeTimeout Outcome = "timeout"
)

// Notification is what the UI shows for an intent. Timeout is deliberately
// not worded as a failure: the customer may have actually paid and the
// confirmation simply never arrived in the window.
type Notification struct {
	Outcome      Outcome `json:"outcome"`
	Message      string  `json:"message"`
	RedirectPath string  `json:"redirect_path,omitempty"`
	Retryable    bool    `json:"retryable"`
}

// Notify maps an intent status to its user-facing outcome.
func Notify(status string) Notification {
	switch status {
	case models.IntentStatusSettled:
		return Notification{
			Outcome:      OutcomeSuccess,
			Message:      "Payment successful. Your subscription is now active.",
			RedirectPath: "/payment/success",
		}
	case models.IntentStatusFailed:
		return Notification{
			Outcome:   OutcomeFailed,
			Message:   "Payment failed or was rejected. Please try again.",
			Retryable: true,
		}
	case models.IntentStatusExpired:
		return Notification{
			Outcome:   OutcomeTimeout,
			Message:   "Payment verification timed out. If you completed the payment, check your transaction history or contact support before retrying.",
			Retryable: true,
		}
	default:
		return Notification{
			Outcome: OutcomePending,
			Message: "Waiting for payment confirmation.",
		}
	}
}
