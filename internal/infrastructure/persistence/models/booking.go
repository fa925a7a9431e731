package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/booking"
)

// BookingStatusCancelled marks bookings excluded from every dashboard view
const BookingStatusCancelled = "cancelled"

// BookingRecord maps the scheduling subsystem's bookings table. It is read only.
type BookingRecord struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID     uuid.UUID `gorm:"column:owner_id;type:uuid;not null;index:idx_bookings_owner_starts,priority:1"`
	CustomerName string    `gorm:"type:varchar(200);not null"`
	ServiceName  string    `gorm:"type:varchar(200);not null"`
	StartsAt     time.Time `gorm:"not null;index:idx_bookings_owner_starts,priority:2"`
	EndsAt       time.Time `gorm:"not null"`
	Status       string    `gorm:"type:varchar(20);not null"`
}

// TableName returns the table name for GORM
func (BookingRecord) TableName() string {
	return "bookings"
}

// ToDomain converts the record to a booking.Booking
func (m *BookingRecord) ToDomain() booking.Booking {
	return booking.Booking{
		ID:           m.ID,
		CustomerName: m.CustomerName,
		ServiceName:  m.ServiceName,
		StartsAt:     m.StartsAt,
		EndsAt:       m.EndsAt,
		Status:       m.Status,
	}
}

// ServiceRecord maps the services offered by a merchant
type ServiceRecord struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID uuid.UUID `gorm:"column:owner_id;type:uuid;not null;index"`
	Name     string    `gorm:"type:varchar(200);not null"`
	Active   bool      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ServiceRecord) TableName() string {
	return "services"
}
