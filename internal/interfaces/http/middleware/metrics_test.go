package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// meteredRouter wires the metrics middleware over a manual reader so
// tests can assert on exactly what was recorded.
func meteredRouter(t *testing.T) (*gin.Engine, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	router := gin.New()
	router.Use(HTTPMetricsWithMeter(provider.Meter("http.server"), true))
	return router, reader
}

func collectedMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) *metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func requestCount(t *testing.T, reader *sdkmetric.ManualReader) (int64, []metricdata.DataPoint[int64]) {
	t.Helper()

	m := collectedMetric(t, reader, "http_server_request_total")
	require.NotNil(t, m, "request counter not recorded")
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total, sum.DataPoints
}

func TestHTTPMetrics_NoopWhenUnconfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  HTTPMetricsConfig
	}{
		{"disabled", HTTPMetricsConfig{Enabled: false}},
		{"nil meter provider", HTTPMetricsConfig{Enabled: true, MeterProvider: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(HTTPMetrics(tt.cfg))
			router.GET("/api/v1/billing/invoices", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"data": "invoices"})
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/billing/invoices", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestHTTPMetrics_CountsRequests(t *testing.T) {
	router, reader := meteredRouter(t)
	router.GET("/api/v1/billing/invoices", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": "invoices"})
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/billing/invoices", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	total, points := requestCount(t, reader)
	assert.Equal(t, int64(3), total)
	require.Len(t, points, 1)
}

func TestHTTPMetrics_SplitsByStatusAndMethod(t *testing.T) {
	router, reader := meteredRouter(t)
	router.GET("/api/v1/billing/invoices/:id", func(c *gin.Context) {
		if c.Param("id") == "missing" {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})
	router.POST("/api/v1/billing/invoices", func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"number": "INV-202608-00001"})
	})

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/billing/invoices/inv-1"},
		{http.MethodGet, "/api/v1/billing/invoices/missing"},
		{http.MethodPost, "/api/v1/billing/invoices"},
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(r.method, r.path, nil))
	}

	total, points := requestCount(t, reader)
	assert.Equal(t, int64(3), total)
	// One series per method/route/status combination
	assert.Len(t, points, 3)
}

func TestHTTPMetrics_RoutePatternKeepsCardinalityDown(t *testing.T) {
	router, reader := meteredRouter(t)
	router.GET("/api/v1/billing/invoices/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})

	for _, id := range []string{"inv-1", "inv-2", "inv-3", "inv-4"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/billing/invoices/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	total, points := requestCount(t, reader)
	assert.Equal(t, int64(4), total)
	require.Len(t, points, 1)

	route, found := points[0].Attributes.Value("http.route")
	require.True(t, found, "http.route attribute missing")
	assert.Equal(t, "/api/v1/billing/invoices/:id", route.AsString())
}

func TestHTTPMetrics_RecordsDuration(t *testing.T) {
	router, reader := meteredRouter(t)
	router.GET("/api/v1/billing/reports", func(c *gin.Context) {
		time.Sleep(50 * time.Millisecond)
		c.JSON(http.StatusOK, gin.H{"data": "report"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/billing/reports", nil))
	require.Equal(t, http.StatusOK, w.Code)

	m := collectedMetric(t, reader, "http_server_request_duration_seconds")
	require.NotNil(t, m)
	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Greater(t, hist.DataPoints[0].Sum, 0.05)
}

func TestHTTPMetrics_RecordsBodySizes(t *testing.T) {
	router, reader := meteredRouter(t)
	router.POST("/api/v1/billing/payments", func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"receipt": "RCP-202608-00004"})
	})

	body := strings.NewReader(`{"invoice_id":"inv-1","amount":"150.00","method":"BANK_TRANSFER"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/payments", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	for _, name := range []string{"http_server_request_size_bytes", "http_server_response_size_bytes"} {
		m := collectedMetric(t, reader, name)
		require.NotNil(t, m, name)
		hist, ok := m.Data.(metricdata.Histogram[float64])
		require.True(t, ok)
		require.Len(t, hist.DataPoints, 1)
		assert.Greater(t, hist.DataPoints[0].Sum, float64(0), name)
	}
}

func TestHTTPMetrics_ActiveRequestsReturnToZero(t *testing.T) {
	router, reader := meteredRouter(t)
	router.GET("/api/v1/billing/invoices", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": "invoices"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/billing/invoices", nil))
	require.Equal(t, http.StatusOK, w.Code)

	m := collectedMetric(t, reader, "http_server_active_requests")
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(0), sum.DataPoints[0].Value)
}

func TestHTTPMetrics_UnmatchedRouteFallsBackToUnknown(t *testing.T) {
	router, reader := meteredRouter(t)
	router.GET("/api/v1/billing/invoices", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": "invoices"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/no/such/route", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	_, points := requestCount(t, reader)
	require.Len(t, points, 1)
	route, found := points[0].Attributes.Value("http.route")
	require.True(t, found)
	assert.Equal(t, "unknown", route.AsString())
}

func TestDefaultHTTPMetricsConfig(t *testing.T) {
	cfg := DefaultHTTPMetricsConfig()

	assert.Equal(t, "tripdesk-backend", cfg.ServiceName)
	assert.True(t, cfg.Enabled)
	assert.Nil(t, cfg.MeterProvider)
}
