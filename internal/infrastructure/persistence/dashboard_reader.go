package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormDashboardReader implements loyalty.ReadModel using GORM
type GormDashboardReader struct {
	db *gorm.DB
}

// NewGormDashboardReader creates a new GormDashboardReader
func NewGormDashboardReader(db *gorm.DB) *GormDashboardReader {
	return &GormDashboardReader{db: db}
}

var _ loyalty.ReadModel = (*GormDashboardReader)(nil)

// EnrollmentTimesSince returns creation times; bucketing happens in the
// caller so the calendar day follows the configured timezone on every driver.
func (r *GormDashboardReader) EnrollmentTimesSince(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]time.Time, error) {
	var rows []models.LoyaltyEnrollmentModel
	err := r.db.WithContext(ctx).
		Select("id", "created_at").
		Where("owner_id = ? AND created_at >= ?", tenantID, since).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storageError(err)
	}
	times := make([]time.Time, len(rows))
	for i := range rows {
		times[i] = rows[i].CreatedAt
	}
	return times, nil
}

// activityRow is the scan target of the recent activity join
type activityRow struct {
	TransactionID      uuid.UUID
	EnrollmentID       uuid.UUID
	Sequence           int64
	Kind               string
	ChangeAmount       decimal.Decimal
	NewProgress        decimal.Decimal
	Description        string
	CreatedAt          time.Time
	CustomerIdentifier string
	ProgramID          uuid.UUID
	ProgramName        string
	ProgramType        string
	RewardDescription  string
}

// RecentActivity returns the owner's latest ledger entries, newest first
func (r *GormDashboardReader) RecentActivity(ctx context.Context, tenantID uuid.UUID, limit int) ([]loyalty.ActivityEntry, error) {
	var rows []activityRow
	err := r.db.WithContext(ctx).
		Table("loyalty_transactions AS t").
		Select(`t.id AS transaction_id, t.enrollment_id, t.sequence, t.kind,
			t.change_amount, t.new_progress, t.description, t.created_at,
			e.customer_identifier, e.program_id,
			p.name AS program_name, p.type AS program_type, p.reward_description`).
		Joins("JOIN loyalty_enrollments AS e ON e.id = t.enrollment_id").
		Joins("JOIN loyalty_programs AS p ON p.id = e.program_id").
		Where("t.owner_id = ?", tenantID).
		Order("t.created_at DESC, t.sequence DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, storageError(err)
	}

	entries := make([]loyalty.ActivityEntry, len(rows))
	for i, row := range rows {
		entries[i] = loyalty.ActivityEntry{
			TransactionID:      row.TransactionID,
			EnrollmentID:       row.EnrollmentID,
			Sequence:           row.Sequence,
			Kind:               loyalty.TransactionKind(row.Kind),
			ChangeAmount:       row.ChangeAmount,
			NewProgress:        row.NewProgress,
			Description:        row.Description,
			CreatedAt:          row.CreatedAt,
			CustomerIdentifier: row.CustomerIdentifier,
			ProgramID:          row.ProgramID,
			ProgramName:        row.ProgramName,
			ProgramType:        loyalty.ProgramType(row.ProgramType),
			RewardDescription:  row.RewardDescription,
		}
	}
	return entries, nil
}

// CountCustomers counts distinct customer identifiers enrolled with the owner
func (r *GormDashboardReader) CountCustomers(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LoyaltyEnrollmentModel{}).
		Where("owner_id = ?", tenantID).
		Distinct("customer_identifier").
		Count(&count).Error
	if err != nil {
		return 0, storageError(err)
	}
	return count, nil
}

// CountActivePrograms counts the owner's enabled programs
func (r *GormDashboardReader) CountActivePrograms(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LoyaltyProgramModel{}).
		Where("owner_id = ? AND active = ?", tenantID, true).
		Count(&count).Error
	if err != nil {
		return 0, storageError(err)
	}
	return count, nil
}

// CustomerStats summarises the enrollments of one normalised identifier
func (r *GormDashboardReader) CustomerStats(ctx context.Context, tenantID uuid.UUID, identifier string) (loyalty.CustomerStats, error) {
	var stats loyalty.CustomerStats
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Model(&models.LoyaltyEnrollmentModel{}).
			Where("owner_id = ? AND customer_identifier = ?", tenantID, identifier)
	}

	if err := base().Count(&stats.TotalEnrollments).Error; err != nil {
		return stats, storageError(err)
	}
	if stats.TotalEnrollments == 0 {
		return stats, nil
	}
	err := base().
		Where("status = ?", string(loyalty.EnrollmentStatusActive)).
		Count(&stats.ActiveEnrollments).Error
	if err != nil {
		return stats, storageError(err)
	}

	var latest models.LoyaltyEnrollmentModel
	err = base().
		Where("last_activity_at IS NOT NULL").
		Order("last_activity_at DESC").
		First(&latest).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return stats, storageError(err)
	default:
		stats.LastActivityAt = latest.LastActivityAt
	}
	return stats, nil
}
