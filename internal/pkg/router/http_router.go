package router

import (
	"github.com/globalnexus/streamvault/app/controllers"
	"github.com/globalnexus/streamvault/internal/pkg/middleware"
	"github.com/globalnexus/streamvault/internal/pkg/oauth"
	"github.com/globalnexus/streamvault/internal/pkg/session"

	"github.com/gofiber/fiber/v2"
	gothfiber "github.com/shareed2k/goth_fiber"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// init oauth providers
	oauth.Setup()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	// Social OAuth
	app.Get("/auth/:provider", gothfiber.BeginAuthHandler)
	app.Get("/auth/:provider/callback", controllers.HandleOAuthCallback)

	// Payment provider endpoints. The IPN is server-to-server; the
	// callback is the customer's browser returning from hosted checkout.
	app.Get("/api/pesapal/ipn", controllers.HandlePesapalIPN)
	app.Get("/api/pesapal/callback", controllers.HandlePesapalCallback)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
