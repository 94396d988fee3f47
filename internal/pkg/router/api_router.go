package router

import (
	"github.com/globalnexus/streamvault/app/controllers"
	"github.com/globalnexus/streamvault/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// Auth
	v1.Post("/auth/register", controllers.HandleAuthRegister)
	v1.Post("/auth/login", controllers.HandleAuthLogin)
	v1.Post("/auth/logout", controllers.HandleAuthLogout)

	// Storefront
	v1.Get("/home", controllers.HandleHomeFeed)
	v1.Get("/plans", controllers.HandleListPlans)
	v1.Get("/movies", controllers.HandleListMovies)
	v1.Get("/movies/:id", controllers.HandleGetMovie)
	v1.Get("/series", controllers.HandleListSeries)
	v1.Get("/series/:id", controllers.HandleGetSeries)
	v1.Get("/series/:id/seasons/:season", controllers.HandleListSeason)

	// Playback, gated on an active subscription
	v1.Get("/watch/:type/:id", middleware.RequireSubscription, controllers.HandleWatch)

	// Payments
	v1.Post("/payments", middleware.RequireAPISessionAuth, controllers.HandleSubmitPayment)
	v1.Get("/payments", middleware.RequireAPISessionAuth, controllers.HandlePaymentHistory)
	v1.Get("/payments/:id", middleware.RequireAPISessionAuth, controllers.HandleIntentStatus)

	// Profile
	v1.Get("/me", middleware.RequireAPISessionAuth, controllers.HandleMe)

	// Admin
	admin := v1.Group("/admin", middleware.RequireAPIAdmin)
	admin.Get("/users", controllers.HandleAdminListUsers)
	admin.Post("/uploads", controllers.HandleAdminPresignUpload)
	admin.Post("/movies", controllers.HandleAdminCreateMovie)
	admin.Put("/movies/:id", controllers.HandleAdminUpdateMovie)
	admin.Delete("/movies/:id", controllers.HandleAdminDeleteMovie)
	admin.Post("/series", controllers.HandleAdminCreateSeries)
	admin.Put("/series/:id", controllers.HandleAdminUpdateSeries)
	admin.Delete("/series/:id", controllers.HandleAdminDeleteSeries)
	admin.Post("/episodes", controllers.HandleAdminCreateEpisode)
	admin.Put("/episodes/:id", controllers.HandleAdminUpdateEpisode)
	admin.Delete("/episodes/:id", controllers.HandleAdminDeleteEpisode)
	admin.Post("/hero-images", controllers.HandleAdminCreateHeroImage)
	admin.Delete("/hero-images/:id", controllers.HandleAdminDeleteHeroImage)
	admin.Post("/adverts", controllers.HandleAdminCreateAdvert)
	admin.Delete("/adverts/:id", controllers.HandleAdminDeleteAdvert)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
