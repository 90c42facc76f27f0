package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"auction-lab/src/config"
	"auction-lab/src/handlers"
	"auction-lab/src/logger"
	"auction-lab/src/middleware"
	"auction-lab/src/registry"
	"auction-lab/src/routes"
	"auction-lab/src/session"
	"auction-lab/src/treatment"
)

func main() {
	logger.Init()

	log.Info().Msg("Initializing experiment market server")

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("Configuration invalid")
	}

	// process-owned state: nothing below lives in package globals
	reg := registry.New()
	treatments := treatment.NewManager(cfg.Treatments)
	sessions := session.NewManager(*cfg, treatments, reg)
	handler := handlers.NewHandler(sessions, reg, cfg)

	maxInFlight := int64(0)
	if envMax := os.Getenv("MAX_CONCURRENT_REQUESTS"); envMax != "" {
		if parsed, perr := strconv.ParseInt(envMax, 10, 64); perr == nil && parsed > 0 {
			maxInFlight = parsed
		}
	}
	gate := middleware.NewExperimentGate(maxInFlight)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			log.Error().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("status", code).
				Str("error", err.Error()).
				Msg("Request error")

			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	routes.SetupRoutes(app, handler, gate)

	port := ":" + cfg.Server.Port
	if envPort := os.Getenv("PORT"); envPort != "" {
		port = ":" + envPort
	}

	serverError := make(chan error, 1)

	go func() {
		if err := app.Listen(port); err != nil {
			// edge case: ignore shutdown errors, only report real failures
			if err.Error() != "server is shutting down" {
				serverError <- err
			}
		}
	}()

	select {
	case err := <-serverError:
		log.Fatal().
			Err(err).
			Str("port", port).
			Str("hint", "Port may be already in use. Try: PORT=3000 go run main.go").
			Msg("Server failed to start")
	default:
		log.Info().
			Str("port", port).
			Msg("Experiment market server started")

		log.Info().
			Strs("endpoints", []string{
				"POST   /api/v1/session/join",
				"POST   /api/v1/session/leave",
				"GET    /api/v1/session/:username",
				"POST   /api/v1/orders",
				"DELETE /api/v1/orders/:id",
				"GET    /api/v1/markets/:id",
				"GET    /api/v1/markets/:id/book",
				"GET    /ws/:marketId/:traderId",
				"GET    /health",
				"GET    /metrics",
			}).
			Msg("API endpoints registered")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	log.Info().Msg("Received shutdown signal, shutting down...")

	// stop markets and agent loops before the listener goes away
	for _, mgr := range reg.List() {
		mgr.Cleanup()
	}

	shutdownTimeout := 10 * time.Second
	if envTimeout := os.Getenv("SHUTDOWN_TIMEOUT"); envTimeout != "" {
		if parsed, perr := time.ParseDuration(envTimeout); perr == nil && parsed > 0 {
			shutdownTimeout = parsed
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		// edge case: timeout during shutdown is acceptable
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().
				Dur("timeout", shutdownTimeout).
				Msg("Timeout exceeded, shutting down...")
		} else {
			log.Error().
				Err(err).
				Msg("Error during shutdown")
		}
	} else {
		log.Info().Msg("Shutdown complete")
	}

	logger.Close()
}
