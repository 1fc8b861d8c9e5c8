package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func okHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func perform(engine *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestNewRouter_Defaults(t *testing.T) {
	r := NewRouter(gin.New())

	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)
}

func TestRouter_APIVersionPrefix(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v2"))

	billing := NewDomainGroup("billing", "/billing")
	billing.GET("/invoices", okHandler)
	r.Register(billing)
	r.Setup()

	assert.Equal(t, http.StatusOK, perform(engine, http.MethodGet, "/api/v2/billing/invoices").Code)
	assert.Equal(t, http.StatusNotFound, perform(engine, http.MethodGet, "/api/v1/billing/invoices").Code)
}

func TestDomainGroup_RegistersAllMethods(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	billing := NewDomainGroup("billing", "/billing")
	billing.GET("/invoices", okHandler)
	billing.POST("/invoices", okHandler)
	billing.PUT("/invoices/:id", okHandler)
	billing.DELETE("/invoices/:id", okHandler)
	r.Register(billing)
	r.Setup()

	assert.Equal(t, http.StatusOK, perform(engine, http.MethodGet, "/api/v1/billing/invoices").Code)
	assert.Equal(t, http.StatusOK, perform(engine, http.MethodPost, "/api/v1/billing/invoices").Code)
	assert.Equal(t, http.StatusOK, perform(engine, http.MethodPut, "/api/v1/billing/invoices/42").Code)
	assert.Equal(t, http.StatusOK, perform(engine, http.MethodDelete, "/api/v1/billing/invoices/42").Code)
}

func TestDomainGroup_Middleware(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	var order []string
	billing := NewDomainGroup("billing", "/billing")
	billing.Use(func(c *gin.Context) {
		order = append(order, "middleware")
		c.Next()
	})
	billing.GET("/invoices", func(c *gin.Context) {
		order = append(order, "handler")
		c.Status(http.StatusOK)
	})
	r.Register(billing)
	r.Setup()

	assert.Equal(t, http.StatusOK, perform(engine, http.MethodGet, "/api/v1/billing/invoices").Code)
	assert.Equal(t, []string{"middleware", "handler"}, order)
}

func TestRouter_MultipleDomains(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	billing := NewDomainGroup("billing", "/billing")
	billing.GET("/invoices", okHandler)
	system := NewDomainGroup("system", "/system")
	system.GET("/health", okHandler)
	r.Register(billing).Register(system)
	r.Setup()

	assert.Equal(t, http.StatusOK, perform(engine, http.MethodGet, "/api/v1/billing/invoices").Code)
	assert.Equal(t, http.StatusOK, perform(engine, http.MethodGet, "/api/v1/system/health").Code)
}

func TestDomainGroup_Chaining(t *testing.T) {
	billing := NewDomainGroup("billing", "/billing").
		GET("/quotations", okHandler).
		POST("/quotations", okHandler)

	assert.Len(t, billing.routes, 2)
}
