package dto

import "net/http"

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation and input error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	// ErrCodeInvalidMovement is used when a movement violates the sign or
	// reference rules of the ledger
	ErrCodeInvalidMovement = "ERR_INVALID_MOVEMENT"
	// ErrCodeOutOfRange is used when a monetary or quantity value is out of range
	ErrCodeOutOfRange = "ERR_OUT_OF_RANGE"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when tenant identification is missing/invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeForbidden is used when elevated approval is missing or invalid
	ErrCodeForbidden = "ERR_FORBIDDEN"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeConcurrencyConflict is used when a compare-and-swap loses the race
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	// ErrCodeTerminalState is used when an operation targets a terminal entity
	ErrCodeTerminalState = "ERR_TERMINAL_STATE"
	// ErrCodeAlreadyReversed is used when a ledger set was already reversed
	ErrCodeAlreadyReversed = "ERR_ALREADY_REVERSED"
)

// Business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeInsufficientStock is used when derived stock cannot cover a sale
	ErrCodeInsufficientStock = "ERR_INSUFFICIENT_STOCK"
)

// Infrastructure error codes
const (
	// ErrCodeStorage is used when the storage layer fails
	ErrCodeStorage = "ERR_STORAGE"
	// ErrCodeRateLimited is used when rate limit is exceeded
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation and input errors -> 400 Bad Request
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeInvalidMovement: http.StatusBadRequest,
	ErrCodeOutOfRange:      http.StatusBadRequest,

	// Auth errors
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	// Resource errors
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeTerminalState:       http.StatusConflict,
	ErrCodeAlreadyReversed:     http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState:      http.StatusUnprocessableEntity,
	ErrCodeInsufficientStock: http.StatusUnprocessableEntity,

	// Infrastructure
	ErrCodeStorage:     http.StatusInternalServerError,
	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to the wire error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":            ErrCodeNotFound,
	"ALREADY_EXISTS":       ErrCodeAlreadyExists,
	"CONCURRENCY_CONFLICT": ErrCodeConcurrencyConflict,
	"TERMINAL_STATE":       ErrCodeTerminalState,
	"ALREADY_REVERSED":     ErrCodeAlreadyReversed,
	"INVALID_MOVEMENT":     ErrCodeInvalidMovement,
	"OUT_OF_RANGE":         ErrCodeOutOfRange,
	"INVALID_STATE":        ErrCodeInvalidState,
	"INSUFFICIENT_STOCK":   ErrCodeInsufficientStock,
	"VALIDATION_ERROR":     ErrCodeValidation,
	"STORAGE_ERROR":        ErrCodeStorage,
	"BAD_REQUEST":          ErrCodeBadRequest,
	"INTERNAL_ERROR":       ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the wire format.
// Unknown codes pass through unchanged.
func NormalizeErrorCode(code string) string {
	if wireCode, ok := DomainErrorCodeMapping[code]; ok {
		return wireCode
	}
	return code
}
