package middleware

import (
	"strings"

	"github.com/globalnexus/streamvault/app/controllers"
	"github.com/globalnexus/streamvault/internal/pkg/database"
	"github.com/globalnexus/streamvault/internal/pkg/entitlements"
	"github.com/globalnexus/streamvault/internal/pkg/session"
	"github.com/globalnexus/streamvault/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

// UserContextMiddleware sets up the complete user context for every request
// This centralizes user session handling and eliminates code duplication
func UserContextMiddleware(c *fiber.Ctx) error {
	// Avoid interfering with Goth/Fiber session handling on OAuth routes.
	// Goth uses its own fiber session store and relies on per-request locals.
	// We skip our app session on /auth/* to prevent cross-store collisions.
	if strings.HasPrefix(c.Path(), "/auth/") {
		return c.Next()
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		return anonymous(c)
	}

	userID := sess.Get(controllers.USER_ID)
	if userID == nil {
		return anonymous(c)
	}

	username := session.GetSessionValue(c, controllers.USER_NAME)
	isAdmin := sess.Get(controllers.USER_IS_ADMIN)

	// Entitlement comes from the database on every request so a settlement
	// takes effect without a re-login.
	subscribed := false
	plan := ""
	if db := database.GetDB(); db != nil {
		if ent, err := entitlements.NewStore(db).Current(userID.(uint)); err == nil && ent.IsActive {
			subscribed = true
			plan = ent.PlanID
		}
	}

	userCtx := usercontext.UserContext{
		UserID:       userID.(uint),
		Username:     username,
		IsLoggedIn:   true,
		IsAdmin:      isAdmin != nil && isAdmin.(bool),
		IsSubscribed: subscribed,
		Plan:         plan,
	}
	c.Locals("USER_CONTEXT", userCtx)

	// Legacy compatibility - keep existing Locals for backward compatibility
	c.Locals(controllers.FROM_PROTECTED, true)
	c.Locals(controllers.USER_NAME, username)
	c.Locals(controllers.USER_ID, userID.(uint))
	c.Locals(controllers.USER_IS_ADMIN, userCtx.IsAdmin)

	return c.Next()
}

func anonymous(c *fiber.Ctx) error {
	c.Locals("USER_CONTEXT", usercontext.UserContext{
		IsLoggedIn: false,
		IsAdmin:    false,
	})
	c.Locals(controllers.FROM_PROTECTED, false)
	c.Locals(controllers.USER_IS_ADMIN, false)
	return c.Next()
}
