// Package booking describes the read-only view the loyalty dashboard has of
// the scheduling subsystem. The tables behind it are owned and written by
// that subsystem.
package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Booking is a scheduled appointment as seen by the dashboard
type Booking struct {
	ID           uuid.UUID
	CustomerName string
	ServiceName  string
	StartsAt     time.Time
	EndsAt       time.Time
	Status       string
}

// Reader exposes "today's bookings" and "occupied slots for a date".
// Implementations must never write.
type Reader interface {
	// ListBetween returns non-cancelled bookings starting in [from, to), earliest first
	ListBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]Booking, error)
	CountBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (int64, error)
	// OccupiedSlots returns the start time of every non-cancelled booking in [from, to)
	OccupiedSlots(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]time.Time, error)
	CountServices(ctx context.Context, tenantID uuid.UUID) (int64, error)
}
