package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormProgramRepository implements loyalty.ProgramRepository using GORM
type GormProgramRepository struct {
	db *gorm.DB
}

// NewGormProgramRepository creates a new GormProgramRepository
func NewGormProgramRepository(db *gorm.DB) *GormProgramRepository {
	return &GormProgramRepository{db: db}
}

var _ loyalty.ProgramRepository = (*GormProgramRepository)(nil)

// FindByID finds a program owned by tenantID
func (r *GormProgramRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*loyalty.Program, error) {
	var model models.LoyaltyProgramModel
	err := conn(ctx, r.db).
		Where("owner_id = ? AND id = ?", tenantID, id).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, loyalty.ErrProgramNotFound
		}
		return nil, storageError(err)
	}
	return model.ToDomain(), nil
}

// FindAll lists the tenant's programs by name
func (r *GormProgramRepository) FindAll(ctx context.Context, tenantID uuid.UUID, activeOnly bool) ([]loyalty.Program, error) {
	query := conn(ctx, r.db).Where("owner_id = ?", tenantID)
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var rows []models.LoyaltyProgramModel
	if err := query.Order("name ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, storageError(err)
	}

	programs := make([]loyalty.Program, len(rows))
	for i := range rows {
		programs[i] = *rows[i].ToDomain()
	}
	return programs, nil
}

// Create inserts a new program
func (r *GormProgramRepository) Create(ctx context.Context, program *loyalty.Program) error {
	model := models.LoyaltyProgramModelFromDomain(program)
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		return storageError(err)
	}
	return nil
}

// SaveWithLock writes the mutable program fields with an optimistic version check
func (r *GormProgramRepository) SaveWithLock(ctx context.Context, program *loyalty.Program) error {
	result := conn(ctx, r.db).
		Model(&models.LoyaltyProgramModel{}).
		Where("id = ? AND owner_id = ? AND version = ?", program.ID, program.TenantID, program.Version-1).
		Updates(map[string]any{
			"reward_description": program.RewardDescription,
			"active":             program.Active,
			"version":            program.Version,
			"updated_at":         program.UpdatedAt,
		})
	if result.Error != nil {
		return storageError(result.Error)
	}
	if result.RowsAffected == 0 {
		return loyalty.ErrConcurrencyConflict
	}
	return nil
}
