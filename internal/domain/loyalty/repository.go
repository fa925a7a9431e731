package loyalty

import (
	"context"

	"github.com/google/uuid"
)

// ProgramRepository persists loyalty programs. Programs are never deleted.
type ProgramRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Program, error)
	FindAll(ctx context.Context, tenantID uuid.UUID, activeOnly bool) ([]Program, error)
	Create(ctx context.Context, program *Program) error
	SaveWithLock(ctx context.Context, program *Program) error
}

// EnrollmentRepository persists enrollments keyed by
// (tenant, customer identifier, program). Enrollments are never deleted.
type EnrollmentRepository interface {
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*Enrollment, error)
	// FindByIDForUpdate reads the row and holds a write lock on it until the
	// surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Enrollment, error)
	FindByKey(ctx context.Context, tenantID uuid.UUID, identifier string, programID uuid.UUID) (*Enrollment, error)
	FindByIdentifier(ctx context.Context, tenantID uuid.UUID, identifier string) ([]Enrollment, error)
	// Create inserts a new enrollment. Returns shared.ErrAlreadyExists when
	// the (tenant, identifier, program) key is taken.
	Create(ctx context.Context, enrollment *Enrollment) error
	// SaveWithLock updates the row only if its stored version is
	// enrollment.Version-1, otherwise returns shared.ErrConcurrencyConflict.
	SaveWithLock(ctx context.Context, enrollment *Enrollment) error
}

// TransactionRepository is the append-only ledger. It deliberately has no
// update or delete operations.
type TransactionRepository interface {
	// Append stores a new entry. A duplicate (enrollment, sequence) is a
	// shared.ErrConcurrencyConflict.
	Append(ctx context.Context, tx *Transaction) error
	FindByIdempotencyKey(ctx context.Context, enrollmentID uuid.UUID, key string) (*Transaction, error)
	// ListByEnrollment returns up to limit entries with sequence below
	// beforeSequence, newest first. beforeSequence <= 0 starts at the latest.
	ListByEnrollment(ctx context.Context, enrollmentID uuid.UUID, beforeSequence int64, limit int) ([]Transaction, error)
	// ListAll returns every entry of an enrollment, oldest first.
	ListAll(ctx context.Context, enrollmentID uuid.UUID) ([]Transaction, error)
	CountByEnrollment(ctx context.Context, enrollmentID uuid.UUID) (int64, error)
}
