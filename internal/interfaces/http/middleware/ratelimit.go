package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter is an in-memory fixed-window limiter. One instance
// covers one class of traffic; the server holds it for its lifetime.
type RateLimiter struct {
	mu          sync.Mutex
	clients     map[string]*client
	limit       int
	window      time.Duration
	cleanupTick time.Duration
}

type client struct {
	tokens    int
	lastReset time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients:     make(map[string]*client),
		limit:       limit,
		window:      window,
		cleanupTick: window * 2,
	}
	go rl.cleanup()
	return rl
}

// cleanup drops clients idle for two windows so the map does not grow
// with every IP that ever connected.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.cleanupTick)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for key, c := range rl.clients {
			if now.Sub(c.lastReset) > rl.window*2 {
				delete(rl.clients, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Allow consumes one token for the key, refilling when the window has
// rolled over.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	c, exists := rl.clients[key]

	if !exists {
		rl.clients[key] = &client{
			tokens:    rl.limit - 1,
			lastReset: now,
		}
		return true
	}

	if now.Sub(c.lastReset) >= rl.window {
		c.tokens = rl.limit - 1
		c.lastReset = now
		return true
	}

	if c.tokens > 0 {
		c.tokens--
		return true
	}
	return false
}

// Remaining reports the tokens left for the key without consuming one.
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, exists := rl.clients[key]
	if !exists {
		return rl.limit
	}
	if time.Since(c.lastReset) >= rl.window {
		return rl.limit
	}
	return c.tokens
}

// clientKey scopes the limit to the authenticated user when there is
// one, so agents behind a shared office NAT do not starve each other.
func clientKey(c *gin.Context) string {
	key := c.ClientIP()
	if userID := GetJWTUserID(c); userID != "" {
		key = userID + ":" + key
	}
	return key
}

// RateLimit limits general API traffic per user or IP.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := clientKey(c)

		if !limiter.Allow(key) {
			tooManyRequests(c, "RATE_LIMIT_EXCEEDED", "Too many requests. Please try again later.")
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(key)))

		c.Next()
	}
}

// RateLimitByKey limits on a caller-supplied key, for example a
// terminal or API client identifier.
func RateLimitByKey(limiter *RateLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(keyFunc(c)) {
			tooManyRequests(c, "RATE_LIMIT_EXCEEDED", "Too many requests. Please try again later.")
			return
		}
		c.Next()
	}
}

// AuthRateLimit throttles credential endpoints per IP. Keys carry an
// auth prefix so login attempts never draw down the general limit.
func AuthRateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "auth:" + c.ClientIP()

		if !limiter.Allow(key) {
			c.Header("Retry-After", strconv.Itoa(int(limiter.window.Seconds())))
			tooManyRequests(c, "AUTH_RATE_LIMIT_EXCEEDED", "Too many authentication attempts. Please try again later.")
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(key)))

		c.Next()
	}
}

func tooManyRequests(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
