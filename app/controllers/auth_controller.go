package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/globalnexus/streamvault/app/models"
	"github.com/globalnexus/streamvault/app/repository"
	"github.com/globalnexus/streamvault/internal/pkg/hcaptcha"
	"github.com/globalnexus/streamvault/internal/pkg/mail"
	"github.com/globalnexus/streamvault/internal/pkg/session"
)

type registerRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Phone        string `json:"phone"`
	CaptchaToken string `json:"captcha_token"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleAuthRegister creates a new account and logs it in.
func HandleAuthRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}

	if hcaptcha.Enabled() {
		if ok, err := hcaptcha.Verify(req.CaptchaToken); !ok {
			log.Warnf("[Auth] captcha rejected for %s: %v", req.Email, err)
			return jsonError(c, fiber.StatusUnprocessableEntity, "captcha_failed", "captcha verification failed")
		}
	}

	user, err := models.CreateUser(req.Name, req.Email, req.Password)
	if err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}
	user.Phone = req.Phone

	userRepo := repository.GetGlobalRepositories().User
	if _, err := userRepo.GetByEmail(req.Email); err == nil {
		return jsonError(c, fiber.StatusConflict, "email_taken", "an account with this email already exists")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "something went wrong")
	}

	if err := userRepo.Create(user); err != nil {
		log.Errorf("[Auth] creating user %s: %v", req.Email, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal", "something went wrong")
	}

	if err := establishSession(c, user); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "session could not be created")
	}

	go mail.SendWelcome(user)

	return c.Status(fiber.StatusCreated).JSON(user)
}

// HandleAuthLogin authenticates email + password.
func HandleAuthLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}

	// The same answer for a missing account and a wrong password.
	user, err := repository.GetGlobalRepositories().User.GetByEmail(req.Email)
	if err != nil || !user.CheckPassword(req.Password) {
		return jsonError(c, fiber.StatusUnauthorized, "invalid_credentials", "email or password is incorrect")
	}
	if !user.IsActive() {
		return jsonError(c, fiber.StatusForbidden, "account_disabled", "this account is disabled")
	}

	if err := establishSession(c, user); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "session could not be created")
	}

	ipv4, ipv6 := GetClientIP(c)
	log.Infof("[Auth] user %d logged in from %s %s", user.ID, ipv4, ipv6)

	return c.JSON(user)
}

// HandleAuthLogout destroys the current session.
func HandleAuthLogout(c *fiber.Ctx) error {
	sess, err := session.GetSessionStore().Get(c)
	if err == nil {
		_ = sess.Destroy()
	}
	c.Locals(FROM_PROTECTED, false)
	return c.JSON(fiber.Map{"ok": true})
}

func establishSession(c *fiber.Ctx, user *models.User) error {
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return err
	}

	sess.Set(AUTH_KEY, true)
	sess.Set(USER_ID, user.ID)
	sess.Set(USER_NAME, user.Name)
	sess.Set(USER_IS_ADMIN, user.Role == models.ROLE_ADMIN)
	if err := sess.Save(); err != nil {
		return err
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := repository.GetGlobalRepositories().User.Update(user); err != nil {
		log.Warnf("[Auth] updating last login for user %d: %v", user.ID, err)
	}
	return nil
}
