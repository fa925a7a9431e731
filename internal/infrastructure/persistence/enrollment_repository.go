package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormEnrollmentRepository implements loyalty.EnrollmentRepository using GORM
type GormEnrollmentRepository struct {
	db *gorm.DB
}

// NewGormEnrollmentRepository creates a new GormEnrollmentRepository
func NewGormEnrollmentRepository(db *gorm.DB) *GormEnrollmentRepository {
	return &GormEnrollmentRepository{db: db}
}

var _ loyalty.EnrollmentRepository = (*GormEnrollmentRepository)(nil)

// FindByID finds an enrollment owned by tenantID
func (r *GormEnrollmentRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*loyalty.Enrollment, error) {
	return r.first(conn(ctx, r.db).Where("owner_id = ? AND id = ?", tenantID, id))
}

// FindByIDForUpdate reads the enrollment with SELECT ... FOR UPDATE. It only
// locks when called inside WithinTransaction.
func (r *GormEnrollmentRepository) FindByIDForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*loyalty.Enrollment, error) {
	return r.first(conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ? AND id = ?", tenantID, id))
}

// FindByKey finds the enrollment of identifier in programID
func (r *GormEnrollmentRepository) FindByKey(ctx context.Context, tenantID uuid.UUID, identifier string, programID uuid.UUID) (*loyalty.Enrollment, error) {
	return r.first(conn(ctx, r.db).
		Where("owner_id = ? AND customer_identifier = ? AND program_id = ?", tenantID, identifier, programID))
}

// FindByIdentifier lists every enrollment of identifier, oldest first
func (r *GormEnrollmentRepository) FindByIdentifier(ctx context.Context, tenantID uuid.UUID, identifier string) ([]loyalty.Enrollment, error) {
	var rows []models.LoyaltyEnrollmentModel
	err := conn(ctx, r.db).
		Where("owner_id = ? AND customer_identifier = ?", tenantID, identifier).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storageError(err)
	}

	enrollments := make([]loyalty.Enrollment, len(rows))
	for i := range rows {
		enrollments[i] = *rows[i].ToDomain()
	}
	return enrollments, nil
}

// Create inserts a new enrollment
func (r *GormEnrollmentRepository) Create(ctx context.Context, enrollment *loyalty.Enrollment) error {
	model := models.LoyaltyEnrollmentModelFromDomain(enrollment)
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists.WithMessage("customer is already enrolled in this program")
		}
		return storageError(err)
	}
	return nil
}

// SaveWithLock writes the cached balance and status with an optimistic
// version check. A map is used so zero balances and false flags are written.
func (r *GormEnrollmentRepository) SaveWithLock(ctx context.Context, enrollment *loyalty.Enrollment) error {
	result := conn(ctx, r.db).
		Model(&models.LoyaltyEnrollmentModel{}).
		Where("id = ? AND owner_id = ? AND version = ?", enrollment.ID, enrollment.TenantID, enrollment.Version-1).
		Updates(map[string]any{
			"current_progress":    enrollment.CurrentProgress,
			"status":              string(enrollment.Status),
			"redemption_eligible": enrollment.RedemptionEligible,
			"transaction_count":   enrollment.TransactionCount,
			"last_activity_at":    enrollment.LastActivityAt,
			"version":             enrollment.Version,
			"updated_at":          enrollment.UpdatedAt,
		})
	if result.Error != nil {
		return storageError(result.Error)
	}
	if result.RowsAffected == 0 {
		return loyalty.ErrConcurrencyConflict
	}
	return nil
}

func (r *GormEnrollmentRepository) first(query *gorm.DB) (*loyalty.Enrollment, error) {
	var model models.LoyaltyEnrollmentModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, loyalty.ErrEnrollmentNotFound
		}
		return nil, storageError(err)
	}
	return model.ToDomain(), nil
}
