package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("VALIDATION_ERROR", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrInsufficientStock   = NewDomainError("INSUFFICIENT_STOCK", "Insufficient stock available")

	// Ledger errors
	ErrInvalidMovement = NewDomainError("INVALID_MOVEMENT", "Movement is invalid")
	ErrAlreadyReversed = NewDomainError("ALREADY_REVERSED", "Transaction movements have already been reversed")

	// Lifecycle errors
	ErrTerminalState = NewDomainError("TERMINAL_STATE", "Unit is in a terminal state and cannot transition")

	// Calculation errors
	ErrOutOfRange = NewDomainError("OUT_OF_RANGE", "Value is out of the permitted range")

	// Storage errors are retryable by the caller with the same idempotency key
	ErrStorage = NewDomainError("STORAGE_ERROR", "Durable write failed")
)

// IsCode reports whether err is a DomainError carrying the given code.
func IsCode(err error, code string) bool {
	de, ok := err.(*DomainError)
	return ok && de.Code == code
}
