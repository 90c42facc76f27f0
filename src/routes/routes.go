package routes

import (
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"auction-lab/src/handlers"
	"auction-lab/src/middleware"
)

func SetupRoutes(app *fiber.App, h *handlers.Handler, gate *middleware.ExperimentGate) {
	rateLimitDisabled := os.Getenv("RATE_LIMIT_DISABLED") == "1"

	maxRequests := 100
	if envMax := os.Getenv("RATE_LIMIT_MAX"); envMax != "" {
		if parsed, err := strconv.Atoi(envMax); err == nil && parsed > 0 {
			maxRequests = parsed
		}
	}

	windowDuration := time.Second
	if envWindow := os.Getenv("RATE_LIMIT_WINDOW"); envWindow != "" {
		if parsed, err := time.ParseDuration(envWindow); err == nil && parsed > 0 {
			windowDuration = parsed
		}
	}

	app.Use(gate.Middleware())
	app.Use(middleware.RequestLogger())

	api := app.Group("/api/v1")

	if !rateLimitDisabled {
		rateLimiter := middleware.NewRateLimiter(maxRequests, windowDuration)
		api.Use(rateLimiter.Middleware())
	}

	api.Post("/session/join", h.Join)
	api.Post("/session/leave", h.Leave)
	api.Get("/session/:username", h.JoinStatus)

	api.Post("/orders", h.SubmitOrder)
	api.Delete("/orders/:id", h.CancelOrder)

	api.Get("/markets/:id", h.MarketStatus)
	api.Get("/markets/:id/book", h.Snapshot)

	api.Post("/admin/pause", func(c *fiber.Ctx) error {
		gate.SetPaused(true)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"paused": true})
	})
	api.Post("/admin/resume", func(c *fiber.Ctx) error {
		gate.SetPaused(false)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"paused": false})
	})

	app.Use("/ws", handlers.UpgradeGuard)
	app.Get("/ws/:marketId/:traderId", h.ParticipantSocket())

	app.Get("/health", h.HealthCheck)
	app.Get("/metrics", h.Metrics)
}
