package controllers

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/globalnexus/streamvault/app/models"
	"github.com/globalnexus/streamvault/internal/pkg/database"
	"github.com/globalnexus/streamvault/internal/pkg/entitlements"
	"github.com/globalnexus/streamvault/internal/pkg/payment"
	"github.com/globalnexus/streamvault/internal/pkg/plans"
	"github.com/globalnexus/streamvault/internal/pkg/usercontext"
	"github.com/globalnexus/streamvault/internal/pkg/utils"
)

type submitPaymentRequest struct {
	PlanID      string `json:"plan_id" validate:"required"`
	Provider    string `json:"provider" validate:"required,oneof=pesapal relworx"`
	PhoneNumber string `json:"phone_number"`
}

// HandleListPlans serves the static plan catalog.
func HandleListPlans(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"plans":    plans.All(),
		"currency": plans.Currency,
	})
}

// HandleSubmitPayment opens a payment for a subscription plan.
func HandleSubmitPayment(c *fiber.Ctx) error {
	var req submitPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "invalid request body")
	}
	if err := validator.New().Struct(req); err != nil {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	}

	user, err := currentUser(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
	}

	phone := req.PhoneNumber
	if phone == "" {
		phone = user.Phone
	}
	first, last := splitName(user.Name)
	customer := payment.Customer{
		Email:     user.Email,
		FirstName: first,
		LastName:  last,
		Phone:     phone,
	}

	intent, err := payment.GetReconciler().SubmitPayment(c.Context(), user, req.PlanID, req.Provider, customer)
	if err != nil {
		var rejected *payment.GatewayRejectedError
		switch {
		case errors.Is(err, payment.ErrPlanNotFound):
			return jsonError(c, fiber.StatusUnprocessableEntity, "plan_not_found", "unknown subscription plan")
		case errors.Is(err, payment.ErrUnknownProvider):
			return jsonError(c, fiber.StatusUnprocessableEntity, "unknown_provider", "unknown payment provider")
		case errors.As(err, &rejected):
			return jsonError(c, fiber.StatusUnprocessableEntity, "payment_rejected", rejected.Message)
		case errors.Is(err, payment.ErrGatewayUnavailable):
			return jsonError(c, fiber.StatusServiceUnavailable, "gateway_unavailable", "the payment provider is unreachable, try again shortly")
		default:
			log.Errorf("[Payments] submit for user %d: %v", user.ID, err)
			return jsonError(c, fiber.StatusInternalServerError, "internal", "payment could not be started")
		}
	}

	return c.Status(fiber.StatusCreated).JSON(paymentIntentResponse(intent, payment.Notify(intent.Status)))
}

// HandleIntentStatus serves the state of one payment intent for the paying
// user's status page.
func HandleIntentStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	intent, note, err := payment.GetReconciler().IntentStatus(c.Context(), id)
	if errors.Is(err, payment.ErrIntentNotFound) && strings.HasPrefix(id, payment.ReferencePrefix) {
		// The result page may only hold the merchant reference echoed by
		// the provider callback.
		intent, note, err = payment.GetReconciler().IntentByReference(c.Context(), id)
	}
	if errors.Is(err, payment.ErrIntentNotFound) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "payment not found")
	}
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not load payment")
	}

	// Only the paying user or an admin may see an intent.
	if intent.UserID != usercontext.GetUserID(c) && !usercontext.IsAdmin(c) {
		return jsonError(c, fiber.StatusNotFound, "not_found", "payment not found")
	}

	return c.JSON(paymentIntentResponse(intent, note))
}

// HandlePaymentHistory lists the current user's payments, newest first.
func HandlePaymentHistory(c *fiber.Ctx) error {
	intents, err := payment.GetReconciler().History(usercontext.GetUserID(c), 50)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not load payment history")
	}
	return c.JSON(fiber.Map{"payments": intents})
}

// HandleMe serves the current user's profile together with their
// entitlement state.
func HandleMe(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "login required")
	}

	ent, err := entitlements.NewStore(database.GetDB()).Current(user.ID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal", "could not load subscription")
	}

	return c.JSON(fiber.Map{
		"user":         user,
		"avatar_url":   utils.GetGravatarURL(user.Email, 200),
		"subscription": ent,
	})
}

func paymentIntentResponse(intent *models.PaymentIntent, note payment.Notification) fiber.Map {
	resp := fiber.Map{
		"intent_id":          intent.IntentID,
		"status":             intent.Status,
		"plan_id":            intent.PlanID,
		"provider":           intent.Provider,
		"amount":             intent.AmountMinor,
		"currency":           intent.Currency,
		"merchant_reference": intent.MerchantReference,
		"outcome":            note.Outcome,
		"message":            note.Message,
		"retryable":          note.Retryable,
	}
	if intent.RedirectURL != "" {
		resp["redirect_url"] = intent.RedirectURL
	}
	if note.RedirectPath != "" {
		resp["redirect_path"] = note.RedirectPath
	}
	if intent.FailureReason != "" {
		resp["failure_reason"] = intent.FailureReason
	}
	return resp
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
