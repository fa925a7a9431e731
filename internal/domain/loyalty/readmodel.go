package loyalty

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ActivityEntry is a ledger entry joined with its enrollment and program
type ActivityEntry struct {
	TransactionID      uuid.UUID
	EnrollmentID       uuid.UUID
	Sequence           int64
	Kind               TransactionKind
	ChangeAmount       decimal.Decimal
	NewProgress        decimal.Decimal
	Description        string
	CreatedAt          time.Time
	CustomerIdentifier string
	ProgramID          uuid.UUID
	ProgramName        string
	ProgramType        ProgramType
	RewardDescription  string
}

// CustomerStats summarises one customer across every program of an owner
type CustomerStats struct {
	TotalEnrollments  int64
	ActiveEnrollments int64
	LastActivityAt    *time.Time
}

// ReadModel provides the aggregate queries behind the merchant dashboard.
// Implementations only read.
type ReadModel interface {
	// EnrollmentTimesSince returns the creation time of every enrollment created at or after since
	EnrollmentTimesSince(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]time.Time, error)
	// RecentActivity returns the latest entries, newest first
	RecentActivity(ctx context.Context, tenantID uuid.UUID, limit int) ([]ActivityEntry, error)
	CountCustomers(ctx context.Context, tenantID uuid.UUID) (int64, error)
	CountActivePrograms(ctx context.Context, tenantID uuid.UUID) (int64, error)
	CustomerStats(ctx context.Context, tenantID uuid.UUID, identifier string) (CustomerStats, error)
}
