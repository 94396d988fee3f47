package middleware

import (
	icuser "github.com/globalnexus/streamvault/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

// RequireSubscription gates playback routes behind an active subscription.
// Anonymous users get 401, logged-in users without an unexpired entitlement
// get 403 so the client can route them to the plan picker.
func RequireSubscription(c *fiber.Ctx) error {
	if !icuser.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	if !icuser.IsSubscribed(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "subscription_required",
			"message": "an active subscription is required to watch",
		})
	}
	return c.Next()
}
