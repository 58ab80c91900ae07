package server

import (
	"relay/pkg/metrics"
	"relay/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// NewApp builds the fiber app shared by the producer and the gateway, with
// /health and /metrics already mounted.
func NewApp(name, corsOrigins string) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               name,
		ReduceMemoryUsage:     true,
		DisableStartupMessage: true,
	})

	app.Use(middleware.Metrics)
	app.Use(recover.New())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))
	app.Use(cors.New(middleware.CORSConfig(corsOrigins)))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": name})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	return app
}
