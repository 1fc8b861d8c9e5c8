package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func loggedRequest(t *testing.T, status int, target string) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)

	r := gin.New()
	r.Use(GinMiddleware(zap.New(core)))
	r.GET("/api/v1/billing/invoices", func(c *gin.Context) {
		c.Status(status)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return logs
}

func TestGinMiddleware_LogsRequestFields(t *testing.T) {
	logs := loggedRequest(t, http.StatusOK, "/api/v1/billing/invoices?status=ISSUED")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "HTTP Request", entry.Message)
	assert.Equal(t, zapcore.InfoLevel, entry.Level)

	fields := entry.ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/api/v1/billing/invoices", fields["path"])
	assert.Equal(t, int64(http.StatusOK), fields["status"])
	assert.Equal(t, "status=ISSUED", fields["query"])
	assert.Contains(t, fields, "latency")
	assert.Contains(t, fields, "client_ip")
}

func TestGinMiddleware_ClientErrorLogsWarn(t *testing.T) {
	logs := loggedRequest(t, http.StatusNotFound, "/api/v1/billing/invoices")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
}

func TestGinMiddleware_ServerErrorLogsError(t *testing.T) {
	logs := loggedRequest(t, http.StatusInternalServerError, "/api/v1/billing/invoices")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)
}

func TestGinMiddleware_CarriesRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("request_id", "req-billing-42")
		c.Next()
	})
	r.Use(GinMiddleware(zap.New(core)))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-billing-42", logs.All()[0].ContextMap()["request_id"])
}

func TestRecovery_LogsPanicAndAnswers500(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	r := gin.New()
	r.Use(Recovery(zap.New(core)))
	r.POST("/api/v1/billing/payments", func(c *gin.Context) {
		panic("ledger unavailable")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/billing/payments", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "Panic recovered", entry.Message)
	assert.Equal(t, "/api/v1/billing/payments", entry.ContextMap()["path"])
}

func TestGetGinLogger_SetByMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	r := gin.New()
	r.Use(GinMiddleware(zap.New(core)))
	r.GET("/ping", func(c *gin.Context) {
		GetGinLogger(c).Info("from handler")
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	messages := []string{}
	for _, e := range logs.All() {
		messages = append(messages, e.Message)
	}
	assert.Contains(t, messages, "from handler")
}

func TestGetGinLogger_Unset(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	log := GetGinLogger(c)
	require.NotNil(t, log)
	assert.NotPanics(t, func() { log.Info("noop") })
}
