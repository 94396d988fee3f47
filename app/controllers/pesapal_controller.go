package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/globalnexus/streamvault/internal/pkg/constants"
	"github.com/globalnexus/streamvault/internal/pkg/payment"
)

// HandlePesapalIPN receives Pesapal's instant payment notification. The
// notification only says "something changed"; the authoritative status is
// re-queried at the provider before any state moves. Pesapal requires the
// echoed body below and treats anything but status 200 as a delivery
// failure to retry.
func HandlePesapalIPN(c *fiber.Ctx) error {
	trackingID := c.Query("OrderTrackingId")
	merchantReference := c.Query("OrderMerchantReference")
	notificationType := c.Query("OrderNotificationType")

	respond := func(status int) error {
		return c.JSON(fiber.Map{
			"orderNotificationType":  notificationType,
			"orderTrackingId":        trackingID,
			"orderMerchantReference": merchantReference,
			"status":                 status,
		})
	}

	if merchantReference == "" || trackingID == "" {
		log.Warnf("[Pesapal] IPN missing parameters: tracking=%q reference=%q", trackingID, merchantReference)
		return respond(500)
	}

	if _, err := payment.GetReconciler().ConfirmFromWebhook(c.Context(), merchantReference); err != nil {
		if errors.Is(err, payment.ErrIntentNotFound) {
			// Not ours; acknowledge so Pesapal stops retrying.
			log.Warnf("[Pesapal] IPN for unknown reference %s", merchantReference)
			return respond(200)
		}
		log.Errorf("[Pesapal] IPN for %s: %v", merchantReference, err)
		return respond(500)
	}

	return respond(200)
}

// HandlePesapalCallback is where the hosted checkout sends the customer's
// browser after payment. It confirms the intent and forwards to the result
// page, which polls GET /api/v1/payments/:id for the outcome.
func HandlePesapalCallback(c *fiber.Ctx) error {
	merchantReference := c.Query("OrderMerchantReference")
	if merchantReference == "" {
		return c.Redirect(constants.HomeRoute, fiber.StatusSeeOther)
	}

	intent, err := payment.GetReconciler().ConfirmFromWebhook(c.Context(), merchantReference)
	if err != nil {
		log.Warnf("[Pesapal] callback for %s: %v", merchantReference, err)
		return c.Redirect(constants.PaymentResultRoute, fiber.StatusSeeOther)
	}

	return c.Redirect(constants.PaymentResultRoute+"?intent="+intent.IntentID, fiber.StatusSeeOther)
}
