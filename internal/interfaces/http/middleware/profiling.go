// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tripdesk/backend/internal/infrastructure/telemetry"
)

// ProfilingConfig controls which requests get pprof labels attached.
type ProfilingConfig struct {
	Enabled bool
	// Exact paths to leave unlabeled, health probes mostly.
	SkipPaths []string
	// Prefixes to leave unlabeled.
	SkipPathPrefixes []string
}

// DefaultProfilingConfig labels everything except probes and docs.
func DefaultProfilingConfig() ProfilingConfig {
	return ProfilingConfig{
		Enabled: true,
		SkipPaths: []string{
			"/health",
			"/healthz",
			"/ready",
			"/metrics",
		},
		SkipPathPrefixes: []string{
			"/swagger",
			"/api-docs",
		},
	}
}

// Profiling attaches Pyroscope labels to each request with the default
// configuration.
func Profiling() gin.HandlerFunc {
	return ProfilingWithConfig(DefaultProfilingConfig())
}

// ProfilingWithConfig runs the rest of the chain under pprof labels for
// the request's method, route pattern and controller. The route pattern
// keeps cardinality low: /api/v1/billing/invoices/:id is one label no
// matter how many invoices exist.
func ProfilingWithConfig(cfg ProfilingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path

		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath {
				c.Next()
				return
			}
		}
		for _, prefix := range cfg.SkipPathPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		labels := profilingLabels(c)
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

func profilingLabels(c *gin.Context) map[string]string {
	labels := make(map[string]string, 3)

	if method := c.Request.Method; method != "" {
		labels[telemetry.ProfilingLabelMethod] = method
	}

	route := c.FullPath()
	if route != "" {
		labels[telemetry.ProfilingLabelRoute] = route
	}

	if controller := controllerFromRoute(route); controller != "" {
		labels[telemetry.ProfilingLabelController] = controller
	}

	return labels
}

// controllerFromRoute picks the resource segment out of a route
// pattern: /api/v1/billing/invoices/:id yields "billing".
func controllerFromRoute(route string) string {
	if route == "" {
		return ""
	}

	parts := strings.Split(route, "/")
	for i, part := range parts {
		if part == "" || part == "api" || isVersionSegment(part) {
			continue
		}
		if strings.HasPrefix(part, ":") || strings.HasPrefix(part, "{") {
			continue
		}
		if i+1 < len(parts) && (strings.HasPrefix(parts[i+1], ":") || strings.HasPrefix(parts[i+1], "{")) {
			return part
		}
		return part
	}

	return ""
}

func isVersionSegment(segment string) bool {
	if len(segment) < 2 {
		return false
	}
	if segment[0] != 'v' && segment[0] != 'V' {
		return false
	}
	for i := 1; i < len(segment); i++ {
		if segment[i] < '0' || segment[i] > '9' {
			return false
		}
	}
	return true
}
