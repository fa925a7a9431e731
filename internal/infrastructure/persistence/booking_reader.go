package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/booking"
	"github.com/loyalty/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormBookingReader implements booking.Reader against the scheduling tables
type GormBookingReader struct {
	db *gorm.DB
}

// NewGormBookingReader creates a new GormBookingReader
func NewGormBookingReader(db *gorm.DB) *GormBookingReader {
	return &GormBookingReader{db: db}
}

var _ booking.Reader = (*GormBookingReader)(nil)

func (r *GormBookingReader) between(ctx context.Context, tenantID uuid.UUID, from, to time.Time) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.BookingRecord{}).
		Where("owner_id = ? AND starts_at >= ? AND starts_at < ? AND status <> ?",
			tenantID, from, to, models.BookingStatusCancelled)
}

// ListBetween returns bookings starting in [from, to), earliest first
func (r *GormBookingReader) ListBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]booking.Booking, error) {
	var rows []models.BookingRecord
	if err := r.between(ctx, tenantID, from, to).Order("starts_at ASC").Find(&rows).Error; err != nil {
		return nil, storageError(err)
	}
	bookings := make([]booking.Booking, len(rows))
	for i := range rows {
		bookings[i] = rows[i].ToDomain()
	}
	return bookings, nil
}

// CountBetween counts bookings starting in [from, to)
func (r *GormBookingReader) CountBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (int64, error) {
	var count int64
	if err := r.between(ctx, tenantID, from, to).Count(&count).Error; err != nil {
		return 0, storageError(err)
	}
	return count, nil
}

// OccupiedSlots returns the start of every booking in [from, to)
func (r *GormBookingReader) OccupiedSlots(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	var rows []models.BookingRecord
	err := r.between(ctx, tenantID, from, to).
		Select("id", "starts_at").
		Order("starts_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storageError(err)
	}
	slots := make([]time.Time, len(rows))
	for i := range rows {
		slots[i] = rows[i].StartsAt
	}
	return slots, nil
}

// CountServices counts the merchant's active services
func (r *GormBookingReader) CountServices(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ServiceRecord{}).
		Where("owner_id = ? AND active = ?", tenantID, true).
		Count(&count).Error
	if err != nil {
		return 0, storageError(err)
	}
	return count, nil
}
