package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupCommonRouter(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw)
	r.GET("/api/v1/billing/invoices", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"invoices": []string{}})
	})
	return r
}

func TestRequestID_Generated(t *testing.T) {
	r := setupCommonRouter(RequestID())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/billing/invoices", nil))

	id := w.Header().Get("X-Request-ID")
	require.NotEmpty(t, id)
	assert.Len(t, id, 32)
}

func TestRequestID_InboundHeaderKept(t *testing.T) {
	r := setupCommonRouter(RequestID())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/invoices", nil)
	req.Header.Set("X-Request-ID", "frontend-7741")
	r.ServeHTTP(w, req)

	assert.Equal(t, "frontend-7741", w.Header().Get("X-Request-ID"))
}

func TestRequestID_AvailableInContext(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())

	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = c.GetString("request_id")
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
}

func TestSecure_Headers(t *testing.T) {
	r := setupCommonRouter(Secure())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/billing/invoices", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'self'")
	assert.Contains(t, w.Header().Get("Permissions-Policy"), "camera=()")
	// HSTS stays off until TLS is configured
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestSecure_HSTSWhenEnabled(t *testing.T) {
	cfg := DefaultSecurityConfig()
	cfg.HSTSEnabled = true
	r := setupCommonRouter(SecureWithConfig(cfg))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/billing/invoices", nil))

	hsts := w.Header().Get("Strict-Transport-Security")
	assert.Contains(t, hsts, "max-age=31536000")
	assert.Contains(t, hsts, "includeSubDomains")
}

func TestCORS_AllowedOrigin(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://portal.tripdesk.example"}
	r := setupCommonRouter(CORSWithConfig(cfg))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/invoices", nil)
	req.Header.Set("Origin", "https://portal.tripdesk.example")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://portal.tripdesk.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Request-ID")
}

func TestCORS_DisallowedOriginGetsNoHeaders(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://portal.tripdesk.example"}
	r := setupCommonRouter(CORSWithConfig(cfg))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/invoices", nil)
	req.Header.Set("Origin", "https://evil.example")
	r.ServeHTTP(w, req)

	// The request is still served; the browser enforces the missing header
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_EmptyWhitelistClosed(t *testing.T) {
	r := setupCommonRouter(CORSWithConfig(DefaultCORSConfig()))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/invoices", nil)
	req.Header.Set("Origin", "https://portal.tripdesk.example")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Wildcard(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"*"}
	r := setupCommonRouter(CORSWithConfig(cfg))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/invoices", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	r.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	// Credentials are never combined with a wildcard origin
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_PreflightAllowed(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://portal.tripdesk.example"}
	r := setupCommonRouter(CORSWithConfig(cfg))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/billing/invoices", nil)
	req.Header.Set("Origin", "https://portal.tripdesk.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://portal.tripdesk.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Equal(t, "43200", w.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_PreflightUnknownOriginStill204(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://portal.tripdesk.example"}
	r := setupCommonRouter(CORSWithConfig(cfg))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/billing/invoices", nil)
	req.Header.Set("Origin", "https://evil.example")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
