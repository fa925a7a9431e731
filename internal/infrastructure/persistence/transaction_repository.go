package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormTransactionRepository implements loyalty.TransactionRepository using
// GORM. It only ever inserts and reads.
type GormTransactionRepository struct {
	db *gorm.DB
}

// NewGormTransactionRepository creates a new GormTransactionRepository
func NewGormTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

var _ loyalty.TransactionRepository = (*GormTransactionRepository)(nil)

// Append inserts a ledger entry
func (r *GormTransactionRepository) Append(ctx context.Context, tx *loyalty.Transaction) error {
	model := models.LoyaltyTransactionModelFromDomain(tx)
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return loyalty.ErrConcurrencyConflict.Wrap(err)
		}
		return storageError(err)
	}
	return nil
}

// FindByIdempotencyKey returns the entry recorded under key
func (r *GormTransactionRepository) FindByIdempotencyKey(ctx context.Context, enrollmentID uuid.UUID, key string) (*loyalty.Transaction, error) {
	var model models.LoyaltyTransactionModel
	err := conn(ctx, r.db).
		Where("enrollment_id = ? AND idempotency_key = ?", enrollmentID, key).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, storageError(err)
	}
	return model.ToDomain(), nil
}

// ListByEnrollment returns a newest-first page of entries
func (r *GormTransactionRepository) ListByEnrollment(ctx context.Context, enrollmentID uuid.UUID, beforeSequence int64, limit int) ([]loyalty.Transaction, error) {
	query := conn(ctx, r.db).Where("enrollment_id = ?", enrollmentID)
	if beforeSequence > 0 {
		query = query.Where("sequence < ?", beforeSequence)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.LoyaltyTransactionModel
	if err := query.Order("sequence DESC").Find(&rows).Error; err != nil {
		return nil, storageError(err)
	}
	return toTransactions(rows), nil
}

// ListAll returns the full ledger of an enrollment, oldest first
func (r *GormTransactionRepository) ListAll(ctx context.Context, enrollmentID uuid.UUID) ([]loyalty.Transaction, error) {
	var rows []models.LoyaltyTransactionModel
	err := conn(ctx, r.db).
		Where("enrollment_id = ?", enrollmentID).
		Order("sequence ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storageError(err)
	}
	return toTransactions(rows), nil
}

// CountByEnrollment counts the stored entries of an enrollment
func (r *GormTransactionRepository) CountByEnrollment(ctx context.Context, enrollmentID uuid.UUID) (int64, error) {
	var count int64
	err := conn(ctx, r.db).
		Model(&models.LoyaltyTransactionModel{}).
		Where("enrollment_id = ?", enrollmentID).
		Count(&count).Error
	if err != nil {
		return 0, storageError(err)
	}
	return count, nil
}

func toTransactions(rows []models.LoyaltyTransactionModel) []loyalty.Transaction {
	txs := make([]loyalty.Transaction, len(rows))
	for i := range rows {
		txs[i] = *rows[i].ToDomain()
	}
	return txs
}
