package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripdesk/backend/internal/domain/shared"
	"github.com/tripdesk/backend/internal/interfaces/http/dto"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setJWTContext marks the request as authenticated without going
// through the token middleware.
func setJWTContext(c *gin.Context, userID uuid.UUID) {
	c.Set("jwt_user_id", userID.String())
}

func handlerContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*gin.Context)
		want  string
	}{
		{"from context", func(c *gin.Context) {
			c.Set(RequestIDKey, "ctx-request-id")
		}, "ctx-request-id"},
		{"from header when context empty", func(c *gin.Context) {
			c.Request.Header.Set(RequestIDKey, "header-request-id")
		}, "header-request-id"},
		{"empty when not set", func(c *gin.Context) {}, ""},
		{"context wins over header", func(c *gin.Context) {
			c.Set(RequestIDKey, "ctx-id")
			c.Request.Header.Set(RequestIDKey, "header-id")
		}, "ctx-id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := handlerContext()
			tt.setup(c)
			assert.Equal(t, tt.want, getRequestID(c))
		})
	}
}

func TestGetUserID(t *testing.T) {
	t.Run("from authenticated context", func(t *testing.T) {
		c, _ := handlerContext()
		agent := uuid.New()
		setJWTContext(c, agent)

		got, err := getUserID(c)
		require.NoError(t, err)
		assert.Equal(t, agent, got)
	})

	t.Run("falls back to header", func(t *testing.T) {
		c, _ := handlerContext()
		agent := uuid.New()
		c.Request.Header.Set("X-User-ID", agent.String())

		got, err := getUserID(c)
		require.NoError(t, err)
		assert.Equal(t, agent, got)
	})

	t.Run("error without identity", func(t *testing.T) {
		c, _ := handlerContext()
		_, err := getUserID(c)
		assert.Error(t, err)
	})

	t.Run("error on malformed identity", func(t *testing.T) {
		c, _ := handlerContext()
		c.Set("jwt_user_id", "not-a-uuid")
		_, err := getUserID(c)
		assert.Error(t, err)
	})
}

func TestActorID(t *testing.T) {
	c, _ := handlerContext()
	assert.Nil(t, actorID(c))

	agent := uuid.New()
	setJWTContext(c, agent)
	got := actorID(c)
	require.NotNil(t, got)
	assert.Equal(t, agent, *got)
}

func TestBaseHandlerSuccessResponses(t *testing.T) {
	h := &BaseHandler{}

	t.Run("Success", func(t *testing.T) {
		c, w := handlerContext()
		h.Success(c, map[string]string{"invoice_number": "INV-202608-00001"})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, decodeResponse(t, w).Success)
	})

	t.Run("SuccessWithMeta", func(t *testing.T) {
		c, w := handlerContext()
		h.SuccessWithMeta(c, []string{"INV-202608-00001", "INV-202608-00002"}, 42, 1, 20)

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		assert.True(t, resp.Success)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, int64(42), resp.Meta.Total)
	})

	t.Run("Created", func(t *testing.T) {
		c, w := handlerContext()
		h.Created(c, map[string]string{"credit_note_number": "CN-202608-00001"})

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.True(t, decodeResponse(t, w).Success)
	})

	t.Run("NoContent", func(t *testing.T) {
		c, w := handlerContext()
		h.NoContent(c)
		c.Writer.WriteHeaderNow()

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.Bytes())
	})
}

func TestBaseHandlerErrorMethods(t *testing.T) {
	tests := []struct {
		name       string
		call       func(*BaseHandler, *gin.Context)
		wantStatus int
		wantCode   string
	}{
		{"BadRequest", func(h *BaseHandler, c *gin.Context) {
			h.BadRequest(c, "Amount must be positive")
		}, http.StatusBadRequest, dto.ErrCodeBadRequest},
		{"NotFound", func(h *BaseHandler, c *gin.Context) {
			h.NotFound(c, "Invoice not found")
		}, http.StatusNotFound, dto.ErrCodeNotFound},
		{"Unauthorized", func(h *BaseHandler, c *gin.Context) {
			h.Unauthorized(c, "Not authenticated")
		}, http.StatusUnauthorized, dto.ErrCodeUnauthorized},
		{"Forbidden", func(h *BaseHandler, c *gin.Context) {
			h.Forbidden(c, "Access denied")
		}, http.StatusForbidden, dto.ErrCodeForbidden},
		{"Conflict", func(h *BaseHandler, c *gin.Context) {
			h.Conflict(c, "Invoice was modified concurrently")
		}, http.StatusConflict, dto.ErrCodeConflict},
		{"InternalError", func(h *BaseHandler, c *gin.Context) {
			h.InternalError(c, "Server error")
		}, http.StatusInternalServerError, dto.ErrCodeInternal},
		{"TooManyRequests", func(h *BaseHandler, c *gin.Context) {
			h.TooManyRequests(c, "Rate limit exceeded")
		}, http.StatusTooManyRequests, dto.ErrCodeRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			c, w := handlerContext()

			tt.call(h, c)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestBaseHandlerErrorCarriesRequestID(t *testing.T) {
	h := &BaseHandler{}
	c, w := handlerContext()
	c.Set(RequestIDKey, "req-billing-123")

	h.BadRequest(c, "Amount must be positive")

	assert.Equal(t, "req-billing-123", decodeResponse(t, w).Error.RequestID)
}

func TestBaseHandlerErrorWithCode(t *testing.T) {
	h := &BaseHandler{}
	c, w := handlerContext()

	h.ErrorWithCode(c, dto.ErrCodeExceedsOutstanding, "Payment exceeds outstanding balance")

	// Business rule violations map to 422
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, dto.ErrCodeExceedsOutstanding, decodeResponse(t, w).Error.Code)
}

func TestBaseHandlerUnprocessableEntity(t *testing.T) {
	h := &BaseHandler{}
	c, w := handlerContext()

	h.UnprocessableEntity(c, dto.ErrCodeBusinessRule, "Quotation already converted")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, dto.ErrCodeBusinessRule, decodeResponse(t, w).Error.Code)
}

func TestBaseHandlerValidationError(t *testing.T) {
	h := &BaseHandler{}
	c, w := handlerContext()
	c.Set(RequestIDKey, "req-val-456")

	h.ValidationError(c, []dto.ValidationDetail{
		{Field: "currency", Message: "Must be a three letter code"},
		{Field: "due_date", Message: "Required"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "req-val-456", resp.Error.RequestID)
	assert.Len(t, resp.Error.Details, 2)
}

func TestBaseHandlerBindingError(t *testing.T) {
	h := &BaseHandler{}

	t.Run("validator errors get per-field details", func(t *testing.T) {
		type createInvoiceBody struct {
			Currency string `json:"currency" binding:"required,len=3"`
		}

		c, w := handlerContext()
		c.Request = httptest.NewRequest(http.MethodPost, "/invoices",
			strings.NewReader(`{"currency":"EURO"}`))
		c.Request.Header.Set("Content-Type", "application/json")

		var body createInvoiceBody
		err := c.ShouldBindJSON(&body)
		require.Error(t, err)

		h.BindingError(c, err)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		assert.NotEmpty(t, resp.Error.Details)
	})

	t.Run("malformed JSON falls back to the raw message", func(t *testing.T) {
		c, w := handlerContext()
		c.Request = httptest.NewRequest(http.MethodPost, "/invoices",
			strings.NewReader(`{"currency":`))
		c.Request.Header.Set("Content-Type", "application/json")

		var body struct {
			Currency string `json:"currency"`
		}
		err := c.ShouldBindJSON(&body)
		require.Error(t, err)

		h.BindingError(c, err)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeBadRequest, decodeResponse(t, w).Error.Code)
	})
}

func TestBaseHandlerHandleDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", shared.ErrNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"already exists", shared.ErrAlreadyExists, http.StatusConflict, dto.ErrCodeAlreadyExists},
		{"invalid input", shared.ErrInvalidInput, http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"unauthorized", shared.ErrUnauthorized, http.StatusUnauthorized, dto.ErrCodeUnauthorized},
		{"forbidden", shared.ErrForbidden, http.StatusForbidden, dto.ErrCodeForbidden},
		{"invalid state", shared.ErrInvalidState, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
		{"concurrency conflict", shared.ErrConcurrencyConflict, http.StatusConflict, dto.ErrCodeConcurrencyConflict},
		{
			"overpayment rejected",
			shared.NewDomainError("EXCEEDS_OUTSTANDING", "Payment exceeds outstanding balance"),
			http.StatusUnprocessableEntity,
			dto.ErrCodeExceedsOutstanding,
		},
		{
			"credit note awaiting approval",
			shared.NewDomainError("APPROVAL_REQUIRED", "Credit note requires approval"),
			http.StatusUnprocessableEntity,
			dto.ErrCodeApprovalRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			c, w := handlerContext()

			h.HandleDomainError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}

	t.Run("carries the request id", func(t *testing.T) {
		h := &BaseHandler{}
		c, w := handlerContext()
		c.Set(RequestIDKey, "req-domain-err")

		h.HandleDomainError(c, shared.ErrNotFound)

		assert.Equal(t, "req-domain-err", decodeResponse(t, w).Error.RequestID)
	})

	t.Run("unknown errors become internal", func(t *testing.T) {
		h := &BaseHandler{}
		c, w := handlerContext()

		h.HandleDomainError(c, assert.AnError)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeInternal, resp.Error.Code)
		assert.Equal(t, "An unexpected error occurred", resp.Error.Message)
	})
}

func TestBaseHandlerHandleError(t *testing.T) {
	h := &BaseHandler{}

	t.Run("nil writes nothing", func(t *testing.T) {
		c, w := handlerContext()
		h.HandleError(c, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Body.Bytes())
	})

	t.Run("domain error", func(t *testing.T) {
		c, w := handlerContext()
		h.HandleError(c, shared.ErrNotFound)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("wrapped domain error", func(t *testing.T) {
		c, w := handlerContext()
		h.HandleError(c, fmt.Errorf("loading invoice: %w", shared.ErrNotFound))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeNotFound, decodeResponse(t, w).Error.Code)
	})

	t.Run("standard error becomes internal", func(t *testing.T) {
		c, w := handlerContext()
		h.HandleError(c, assert.AnError)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
