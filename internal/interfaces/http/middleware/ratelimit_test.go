package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func postLogin(router *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter(t *testing.T) {
	t.Run("allows up to the limit then blocks", func(t *testing.T) {
		limiter := NewRateLimiter(3, time.Minute)

		for i := 0; i < 3; i++ {
			assert.True(t, limiter.Allow("agent-1"), "request %d should pass", i+1)
		}
		assert.False(t, limiter.Allow("agent-1"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		limiter := NewRateLimiter(2, time.Minute)

		limiter.Allow("agent-a")
		limiter.Allow("agent-a")
		assert.False(t, limiter.Allow("agent-a"))
		assert.True(t, limiter.Allow("agent-b"))
	})

	t.Run("window reset refills tokens", func(t *testing.T) {
		limiter := NewRateLimiter(2, 50*time.Millisecond)

		limiter.Allow("agent-1")
		limiter.Allow("agent-1")
		assert.False(t, limiter.Allow("agent-1"))

		time.Sleep(60 * time.Millisecond)
		assert.True(t, limiter.Allow("agent-1"))
	})

	t.Run("remaining counts down", func(t *testing.T) {
		limiter := NewRateLimiter(5, time.Minute)

		assert.Equal(t, 5, limiter.Remaining("agent-1"))
		limiter.Allow("agent-1")
		limiter.Allow("agent-1")
		assert.Equal(t, 3, limiter.Remaining("agent-1"))
	})

	t.Run("concurrent callers never exceed the limit", func(t *testing.T) {
		limiter := NewRateLimiter(100, time.Minute)

		var wg sync.WaitGroup
		var mu sync.Mutex
		allowed := 0
		for i := 0; i < 150; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if limiter.Allow("shared-terminal") {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 100, allowed)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	newRouter := func(limiter *RateLimiter) *gin.Engine {
		router := gin.New()
		router.Use(RateLimit(limiter))
		router.GET("/api/v1/billing/invoices", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})
		return router
	}

	listInvoices := func(router *gin.Engine) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/billing/invoices", nil))
		return w
	}

	t.Run("passes within limit, 429 beyond", func(t *testing.T) {
		router := newRouter(NewRateLimiter(2, time.Minute))

		assert.Equal(t, http.StatusOK, listInvoices(router).Code)
		assert.Equal(t, http.StatusOK, listInvoices(router).Code)

		blocked := listInvoices(router)
		assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
		assert.Contains(t, blocked.Body.String(), "RATE_LIMIT_EXCEEDED")
	})

	t.Run("authenticated users are limited per user, not per IP", func(t *testing.T) {
		limiter := NewRateLimiter(1, time.Minute)
		currentUser := "agent-1"

		router := gin.New()
		router.Use(func(c *gin.Context) {
			c.Set(JWTUserIDKey, currentUser)
			c.Next()
		})
		router.Use(RateLimit(limiter))
		router.GET("/api/v1/billing/invoices", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})

		assert.Equal(t, http.StatusOK, listInvoices(router).Code)
		assert.Equal(t, http.StatusTooManyRequests, listInvoices(router).Code)

		// Same IP, different account
		currentUser = "agent-2"
		assert.Equal(t, http.StatusOK, listInvoices(router).Code)
	})
}

func TestRateLimitByKey(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)

	router := gin.New()
	router.Use(RateLimitByKey(limiter, func(c *gin.Context) string {
		return c.GetHeader("X-Terminal-ID")
	}))
	router.GET("/api/v1/billing/payments", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	request := func(terminal string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/payments", nil)
		req.Header.Set("X-Terminal-ID", terminal)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, request("desk-1").Code)
	assert.Equal(t, http.StatusTooManyRequests, request("desk-1").Code)
	assert.Equal(t, http.StatusOK, request("desk-2").Code)
}

func TestAuthRateLimit(t *testing.T) {
	newRouter := func(limiter *RateLimiter) *gin.Engine {
		router := gin.New()
		router.Use(AuthRateLimit(limiter))
		router.POST("/api/v1/auth/login", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"success": true})
		})
		return router
	}

	t.Run("blocks with auth specific error and headers", func(t *testing.T) {
		router := newRouter(NewRateLimiter(1, time.Minute))

		first := postLogin(router, "192.168.1.100:12345")
		assert.Equal(t, http.StatusOK, first.Code)
		assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

		blocked := postLogin(router, "192.168.1.100:12345")
		assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
		assert.Contains(t, blocked.Body.String(), "AUTH_RATE_LIMIT_EXCEEDED")
		assert.Contains(t, blocked.Body.String(), "Too many authentication attempts")
		assert.Equal(t, "60", blocked.Header().Get("Retry-After"))
	})

	t.Run("limits are per IP", func(t *testing.T) {
		router := newRouter(NewRateLimiter(2, time.Minute))

		assert.Equal(t, http.StatusOK, postLogin(router, "192.168.1.1:12345").Code)
		assert.Equal(t, http.StatusOK, postLogin(router, "192.168.1.1:12345").Code)
		assert.Equal(t, http.StatusTooManyRequests, postLogin(router, "192.168.1.1:12345").Code)

		assert.Equal(t, http.StatusOK, postLogin(router, "192.168.1.2:12345").Code)
	})

	t.Run("auth limiter does not consume the global limiter", func(t *testing.T) {
		globalLimiter := NewRateLimiter(100, time.Minute)
		authLimiter := NewRateLimiter(1, time.Minute)

		router := gin.New()
		authGroup := router.Group("/api/v1/auth")
		authGroup.Use(AuthRateLimit(authLimiter))
		authGroup.POST("/login", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"success": true})
		})
		router.Use(RateLimit(globalLimiter))
		router.GET("/api/v1/billing/invoices", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"data": "invoices"})
		})

		assert.Equal(t, http.StatusOK, postLogin(router, "192.168.1.100:12345").Code)
		assert.Equal(t, http.StatusTooManyRequests, postLogin(router, "192.168.1.100:12345").Code)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/invoices", nil)
		req.RemoteAddr = "192.168.1.100:12345"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
