package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Request IDs from untrusted headers are capped at this length.
const MaxRequestIDLength = 128

// TracingConfig controls the request tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "tripdesk-backend",
		Enabled:     true,
	}
}

// Tracing starts a span per request with the default configuration.
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig starts an otelgin server span per request, named
// "METHOD route_pattern". Identity attributes are attached later by
// TracingAttributeInjector, which must sit behind the auth middleware.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return otelgin.Middleware(cfg.ServiceName)
}

// TracingAttributeInjector tags the request span with request_id and, once
// authentication has run, the caller's user_id.
func TracingAttributeInjector() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			if requestID := requestIDFrom(c); requestID != "" {
				span.SetAttributes(attribute.String("request_id", requestID))
			}
			if userID := userIDFrom(c); userID != "" {
				span.SetAttributes(attribute.String("user_id", userID))
			}
		}
		c.Next()
	}
}

// SpanErrorMarker sets error status on the request span for 4xx and 5xx
// responses. It belongs after the tracing middleware in the chain.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		statusCode := c.Writer.Status()
		if statusCode < http.StatusBadRequest {
			return
		}

		message := http.StatusText(statusCode)
		if message == "" {
			message = "Client Error"
		}
		span.SetStatus(codes.Error, message)
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
	}
}

func requestIDFrom(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok && id != "" {
			return id
		}
	}

	headerID := c.GetHeader("X-Request-ID")
	if len(headerID) > MaxRequestIDLength {
		return headerID[:MaxRequestIDLength]
	}
	return headerID
}

func userIDFrom(c *gin.Context) string {
	if userID, exists := c.Get(JWTUserIDKey); exists {
		if id, ok := userID.(string); ok && id != "" {
			return id
		}
	}
	return ""
}
