package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/favicon"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/globalnexus/streamvault/app/repository"
	"github.com/globalnexus/streamvault/internal/pkg/cache"
	"github.com/globalnexus/streamvault/internal/pkg/database"
	"github.com/globalnexus/streamvault/internal/pkg/env"
	"github.com/globalnexus/streamvault/internal/pkg/media"
	"github.com/globalnexus/streamvault/internal/pkg/metrics/counter"
	"github.com/globalnexus/streamvault/internal/pkg/payment"
	"github.com/globalnexus/streamvault/internal/pkg/plans"
	"github.com/globalnexus/streamvault/internal/pkg/router"
)

func main() {
	app := NewApplication()

	// Drain the settlement poll loops before the process exits so no
	// intent is left mid-transition.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		payment.GetReconciler().Shutdown()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()

	if err := plans.Validate(); err != nil {
		log.Fatalf("plan catalog is invalid: %v", err)
	}

	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	if err := media.Setup(); err != nil {
		log.Printf("media storage unavailable: %v", err)
	}
	payment.SetupReconciler(database.GetDB())

	// Periodically drain pending view counters from Redis to MySQL.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if err := counter.FlushAll(); err != nil {
				log.Printf("flushing view counters: %v", err)
			}
		}
	}()

	// Find the project root from either the repo root or cmd/streamvault
	basePaths := []string{
		"./",
		"../../",
	}
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}
	if basePath == "" {
		panic("Could not find project root directory")
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024,
	})

	// ignore and cache favicon
	app.Use(favicon.New(favicon.Config{
		File:         basePath + "public/assets/icons/favicon.ico",
		URL:          "/favicon.ico",
		CacheControl: "public, max-age=604800",
	}))

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// static files
	app.Static("/", basePath+"public/assets", fiber.Static{
		CacheDuration: 15 * time.Second,
		Compress:      true,
	})

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	return app
}
