package middleware

import (
	"strings"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// ExperimentGate lets an operator pause participant intake without touching
// running markets: while paused, join requests get 503 and everything else
// (order flow for already-seated participants included) keeps working.
type ExperimentGate struct {
	paused           atomic.Bool
	maxInFlight      int64
	inFlightRequests atomic.Int64
}

func NewExperimentGate(maxInFlight int64) *ExperimentGate {
	return &ExperimentGate{maxInFlight: maxInFlight}
}

func (g *ExperimentGate) SetPaused(paused bool) {
	g.paused.Store(paused)
	if paused {
		log.Warn().Msg("Participant intake paused")
	} else {
		log.Info().Msg("Participant intake resumed")
	}
}

func (g *ExperimentGate) IsPaused() bool {
	return g.paused.Load()
}

func (g *ExperimentGate) InFlight() int64 {
	return g.inFlightRequests.Load()
}

func (g *ExperimentGate) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// edge case: health check always available
		if c.Path() == "/health" {
			return c.Next()
		}

		if g.paused.Load() && strings.HasSuffix(c.Path(), "/session/join") {
			log.Warn().
				Str("path", c.Path()).
				Str("ip", c.IP()).
				Msg("Join rejected: intake paused")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":   "Service unavailable",
				"message": "Participant intake is paused. Please try again later.",
			})
		}

		// edge case: shed load when an in-flight cap is configured
		if g.maxInFlight > 0 {
			if g.inFlightRequests.Load() >= g.maxInFlight {
				log.Warn().
					Str("path", c.Path()).
					Int64("max_in_flight", g.maxInFlight).
					Msg("Request rejected: server overload")
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error":   "Service unavailable",
					"message": "The service is currently overloaded. Please try again later.",
				})
			}
		}

		g.inFlightRequests.Add(1)
		defer g.inFlightRequests.Add(-1)

		return c.Next()
	}
}
