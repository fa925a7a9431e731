package dto

import "net/http"

// Error codes produced by the HTTP layer itself. Domain errors keep the
// code they were raised with.
const (
	ErrCodeInternal     = "INTERNAL_ERROR"
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeTooLarge     = "REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// Missing resources -> 404
	"ENROLLMENT_NOT_FOUND": http.StatusNotFound,
	"PROGRAM_NOT_FOUND":    http.StatusNotFound,
	ErrCodeNotFound:        http.StatusNotFound,

	// Ledger rules -> 422
	"ENROLLMENT_INACTIVE":  http.StatusUnprocessableEntity,
	"INSUFFICIENT_BALANCE": http.StatusUnprocessableEntity,
	"PROGRAM_INACTIVE":     http.StatusUnprocessableEntity,
	"INVALID_STATE":        http.StatusUnprocessableEntity,

	// Bad input -> 400
	"INVALID_AMOUNT":     http.StatusBadRequest,
	"INVALID_IDENTIFIER": http.StatusBadRequest,
	"INVALID_INPUT":      http.StatusBadRequest,
	"INVALID_PROGRAM":    http.StatusBadRequest,
	ErrCodeValidation:    http.StatusBadRequest,
	ErrCodeBadRequest:    http.StatusBadRequest,

	// Conflicts -> 409
	"CONCURRENCY_CONFLICT": http.StatusConflict,
	"ALREADY_EXISTS":       http.StatusConflict,

	"STORAGE_UNAVAILABLE":   http.StatusServiceUnavailable,
	"TRANSACTION_IMMUTABLE": http.StatusInternalServerError,
	ErrCodeInternal:         http.StatusInternalServerError,
	ErrCodeUnauthorized:     http.StatusUnauthorized,
	ErrCodeTooLarge:         http.StatusRequestEntityTooLarge,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
