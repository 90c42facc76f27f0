package middleware

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// RateLimiter is a fixed-window per-client counter. Participants poll the
// waiting status and push orders interactively; the limiter only has to
// stop floods, not shape traffic.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	counters    map[string]int
	mu          sync.Mutex
}

func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		counters:    make(map[string]int),
	}
}

func (rl *RateLimiter) windowKey(clientIP string, now time.Time) string {
	windowNumber := now.UnixNano() / int64(rl.window)
	return fmt.Sprintf("%s_%d", clientIP, windowNumber)
}

func (rl *RateLimiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := rl.windowKey(clientIP, time.Now())

	count, exists := rl.counters[key]
	if !exists {
		// edge case: drop this client's stale windows when a new one opens
		prefix := clientIP + "_"
		for k := range rl.counters {
			if k != key && strings.HasPrefix(k, prefix) {
				delete(rl.counters, k)
			}
		}
		rl.counters[key] = 1
		return true
	}

	if count >= rl.maxRequests {
		return false
	}
	rl.counters[key] = count + 1
	return true
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientIP := c.IP()

		if !rl.Allow(clientIP) {
			log.Warn().
				Str("client_ip", clientIP).
				Str("path", c.Path()).
				Int("max_requests", rl.maxRequests).
				Msg("Rate limit exceeded")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "Rate limit exceeded",
				"message": "Too many requests. Please try again later.",
			})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.maxRequests))
		c.Set("X-RateLimit-Window", rl.window.String())

		return c.Next()
	}
}
