package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
	// ErrCodeValidationRange is used when a value is out of range
	ErrCodeValidationRange = "ERR_VALIDATION_RANGE"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when authentication is required but missing/invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeForbidden is used when the user lacks permission
	ErrCodeForbidden = "ERR_FORBIDDEN"
	// ErrCodeTokenExpired is used when the auth token has expired
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	// ErrCodeTokenInvalid is used when the auth token is invalid
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeConcurrencyConflict is used when optimistic locking fails
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	// ErrCodeAlreadyProcessed is used when a one-shot operation was already performed
	ErrCodeAlreadyProcessed = "ERR_ALREADY_PROCESSED"
)

// Business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeInvalidTransition is used when a document cannot move to the requested status
	ErrCodeInvalidTransition = "ERR_INVALID_TRANSITION"
	// ErrCodeBusinessRule is used for generic business rule violations
	ErrCodeBusinessRule = "ERR_BUSINESS_RULE"
	// ErrCodeExceedsOutstanding is used when a payment or credit exceeds the invoice balance
	ErrCodeExceedsOutstanding = "ERR_EXCEEDS_OUTSTANDING"
	// ErrCodeApprovalRequired is used when an operation needs a pending approval first
	ErrCodeApprovalRequired = "ERR_APPROVAL_REQUIRED"
	// ErrCodeInvalidAmount is used when a monetary amount fails validation
	ErrCodeInvalidAmount = "ERR_INVALID_AMOUNT"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
)

// Rate limiting error codes
const (
	// ErrCodeRateLimited is used when rate limit is exceeded
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
	// ErrCodeTooManyRequests is an alias for rate limiting
	ErrCodeTooManyRequests = "ERR_TOO_MANY_REQUESTS"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,
	ErrCodeValidationRange:    http.StatusBadRequest,

	// Auth errors
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	// Resource errors
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeAlreadyProcessed:    http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState:       http.StatusUnprocessableEntity,
	ErrCodeInvalidTransition:  http.StatusUnprocessableEntity,
	ErrCodeBusinessRule:       http.StatusUnprocessableEntity,
	ErrCodeExceedsOutstanding: http.StatusUnprocessableEntity,
	ErrCodeApprovalRequired:   http.StatusUnprocessableEntity,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:    http.StatusBadRequest,
	ErrCodeInvalidInput:  http.StatusBadRequest,
	ErrCodeInvalidJSON:   http.StatusBadRequest,
	ErrCodeInvalidAmount: http.StatusBadRequest,

	// Rate limiting -> 429 Too Many Requests
	ErrCodeRateLimited:     http.StatusTooManyRequests,
	ErrCodeTooManyRequests: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to the standardized
// ERR_ prefixed codes used on the wire
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":                 ErrCodeNotFound,
	"ALREADY_EXISTS":            ErrCodeAlreadyExists,
	"ALREADY_CONVERTED":         ErrCodeAlreadyProcessed,
	"ALREADY_PROCESSED":         ErrCodeAlreadyProcessed,
	"INVALID_INPUT":             ErrCodeInvalidInput,
	"INVALID_STATE":             ErrCodeInvalidState,
	"INVALID_TRANSITION":        ErrCodeInvalidTransition,
	"INVALID_AMOUNT":            ErrCodeInvalidAmount,
	"DISCOUNT_EXCEEDS_SUBTOTAL": ErrCodeInvalidAmount,
	"EXCEEDS_OUTSTANDING":       ErrCodeExceedsOutstanding,
	"APPROVAL_REQUIRED":         ErrCodeApprovalRequired,
	"UNAUTHORIZED":              ErrCodeUnauthorized,
	"FORBIDDEN":                 ErrCodeForbidden,
	"CONCURRENCY_CONFLICT":      ErrCodeConcurrencyConflict,
	"OPTIMISTIC_LOCK_ERROR":     ErrCodeConcurrencyConflict,
	"VALIDATION_ERROR":          ErrCodeValidation,
	"BAD_REQUEST":               ErrCodeBadRequest,
	"INTERNAL_ERROR":            ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the standardized format
// If the code is already in the new format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := DomainErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
