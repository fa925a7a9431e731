package loyalty

import "github.com/loyalty/backend/internal/domain/shared"

// Ledger error kinds. Each carries a stable code that the HTTP layer maps to
// a status; errors.Is matches on the code.
var (
	ErrEnrollmentNotFound   = shared.NewDomainError("ENROLLMENT_NOT_FOUND", "Enrollment not found")
	ErrEnrollmentInactive   = shared.NewDomainError("ENROLLMENT_INACTIVE", "Enrollment is not active")
	ErrInsufficientBalance  = shared.ErrInsufficientBalance
	ErrInvalidAmount        = shared.NewDomainError("INVALID_AMOUNT", "Amount is not valid for this program")
	ErrConcurrencyConflict  = shared.ErrConcurrencyConflict
	ErrStorageUnavailable   = shared.ErrStorageUnavailable
	ErrProgramNotFound      = shared.NewDomainError("PROGRAM_NOT_FOUND", "Loyalty program not found")
	ErrProgramInactive      = shared.NewDomainError("PROGRAM_INACTIVE", "Loyalty program is disabled")
	ErrInvalidProgram       = shared.NewDomainError("INVALID_PROGRAM", "Loyalty program definition is not valid")
	ErrInvalidIdentifier    = shared.NewDomainError("INVALID_IDENTIFIER", "Customer identifier is not valid")
	ErrTransactionImmutable = shared.NewDomainError("TRANSACTION_IMMUTABLE", "Ledger transactions cannot be modified or deleted")
	ErrInvalidTransition    = shared.NewDomainError("INVALID_STATE", "Enrollment status transition is not allowed")
)
