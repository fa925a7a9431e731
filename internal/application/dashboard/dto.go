package dashboard

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DailyCount is the number of enrollments created on one local calendar day
type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// ActivityResponse is a ledger entry joined with its enrollment and program
type ActivityResponse struct {
	TransactionID      uuid.UUID       `json:"transaction_id"`
	EnrollmentID       uuid.UUID       `json:"enrollment_id"`
	Sequence           int64           `json:"sequence"`
	Kind               string          `json:"kind"`
	ChangeAmount       decimal.Decimal `json:"change_amount"`
	NewProgress        decimal.Decimal `json:"new_progress"`
	DisplayChange      string          `json:"display_change"`
	DisplayBalance     string          `json:"display_balance"`
	Description        string          `json:"description"`
	CreatedAt          time.Time       `json:"created_at"`
	CustomerIdentifier string          `json:"customer_identifier"`
	ProgramID          uuid.UUID       `json:"program_id"`
	ProgramName        string          `json:"program_name"`
	ProgramType        string          `json:"program_type"`
	RewardDescription  string          `json:"reward_description"`
}

// MerchantSummary is a point-in-time snapshot; it may lag the ledger by the cache TTL
type MerchantSummary struct {
	TotalCustomers     int64     `json:"total_customers"`
	ActivePrograms     int64     `json:"active_programs"`
	TodayBookingsCount int64     `json:"today_bookings_count"`
	ServiceCount       int64     `json:"service_count"`
	GeneratedAt        time.Time `json:"generated_at"`
}

// CustomerSummary summarises one customer across programs
type CustomerSummary struct {
	CustomerIdentifier string     `json:"customer_identifier"`
	TotalEnrollments   int64      `json:"total_enrollments"`
	ActiveEnrollments  int64      `json:"active_enrollments"`
	LastActivityAt     *time.Time `json:"last_activity_at"`
}

// BookingResponse is a booking as shown on the dashboard
type BookingResponse struct {
	ID           uuid.UUID `json:"id"`
	CustomerName string    `json:"customer_name"`
	ServiceName  string    `json:"service_name"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	Status       string    `json:"status"`
}

// TodayBookings lists the bookings of the current local day
type TodayBookings struct {
	Date          string            `json:"date"`
	Bookings      []BookingResponse `json:"bookings"`
	OccupiedSlots []string          `json:"occupied_slots"`
}
