// Package dashboard derives the merchant dashboard views from the ledger and
// the booking collaborator. Nothing here writes.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/booking"
	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/infrastructure/logger"
	"github.com/loyalty/backend/internal/infrastructure/telemetry"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	// TrailingDays is the width of the daily enrollment window, today included
	TrailingDays = 7
	// DefaultRecentLimit applies when a caller asks for no particular size
	DefaultRecentLimit = 10
	// MaxRecentLimit caps the recent activity view
	MaxRecentLimit = 100

	dayLayout = "2006-01-02"
)

// SummaryCache stores merchant summaries between requests
type SummaryCache interface {
	Get(ctx context.Context, key string) (MerchantSummary, bool, error)
	Set(ctx context.Context, key string, value MerchantSummary) error
}

// BreakerSettings tunes the circuit breaker in front of the booking collaborator
type BreakerSettings struct {
	Timeout      time.Duration
	MaxRequests  uint32
	FailureLimit uint32
}

// ServiceConfig holds the collaborators of Service
type ServiceConfig struct {
	ReadModel   loyalty.ReadModel
	Bookings    booking.Reader
	Cache       SummaryCache // optional
	Breaker     BreakerSettings
	Location    *time.Location
	RecentLimit int
	Logger      *zap.Logger
	Clock       func() time.Time
}

// Service is the read-model aggregator behind the merchant dashboard
type Service struct {
	readModel   loyalty.ReadModel
	bookings    booking.Reader
	cache       SummaryCache
	breaker     *gobreaker.CircuitBreaker
	loc         *time.Location
	recentLimit int
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a new dashboard Service
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		readModel:   cfg.ReadModel,
		bookings:    cfg.Bookings,
		cache:       cfg.Cache,
		loc:         cfg.Location,
		recentLimit: cfg.RecentLimit,
		logger:      cfg.Logger,
		now:         cfg.Clock,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.recentLimit <= 0 || s.recentLimit > MaxRecentLimit {
		s.recentLimit = DefaultRecentLimit
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}

	failureLimit := cfg.Breaker.FailureLimit
	if failureLimit == 0 {
		failureLimit = 5
	}
	timeout := cfg.Breaker.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRequests := cfg.Breaker.MaxRequests
	if maxRequests == 0 {
		maxRequests = 1
	}
	log := s.logger
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "booking-reader",
		MaxRequests: maxRequests,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureLimit
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return s
}

// DailyEnrollments counts new enrollments per calendar day over the trailing
// week, oldest day first. Days without enrollments are present with zero.
func (s *Service) DailyEnrollments(ctx context.Context, tenantID uuid.UUID) ([]DailyCount, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "dashboard", "daily_enrollments", telemetry.AttrTenantID.String(tenantID.String()))
	defer span.End()

	today := startOfDay(s.now(), s.loc)
	first := today.AddDate(0, 0, -(TrailingDays - 1))

	times, err := s.readModel.EnrollmentTimesSince(ctx, tenantID, first)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	out := make([]DailyCount, TrailingDays)
	index := make(map[string]int, TrailingDays)
	for i := range out {
		day := first.AddDate(0, 0, i).Format(dayLayout)
		out[i] = DailyCount{Date: day}
		index[day] = i
	}
	for _, t := range times {
		if i, ok := index[t.In(s.loc).Format(dayLayout)]; ok {
			out[i].Count++
		}
	}
	return out, nil
}

// RecentActivity returns the tenant's latest ledger entries, newest first.
// limit <= 0 uses the configured default; it is capped at MaxRecentLimit.
func (s *Service) RecentActivity(ctx context.Context, tenantID uuid.UUID, limit int) ([]ActivityResponse, error) {
	if limit <= 0 {
		limit = s.recentLimit
	}
	limit = min(limit, MaxRecentLimit)

	entries, err := s.readModel.RecentActivity(ctx, tenantID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ActivityResponse, len(entries))
	for i := range entries {
		out[i] = toActivityResponse(&entries[i])
	}
	return out, nil
}

// MerchantSummary returns the headline counts of a merchant. Results may be
// served from cache for the configured TTL.
func (s *Service) MerchantSummary(ctx context.Context, tenantID uuid.UUID) (*MerchantSummary, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "dashboard", "merchant_summary", telemetry.AttrTenantID.String(tenantID.String()))
	defer span.End()

	key := summaryCacheKey(tenantID, s.now().In(s.loc))
	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			logger.WithLogger(ctx, s.logger).Warn("Summary cache read failed", zap.Error(err))
		} else if ok {
			return &cached, nil
		}
	}

	summary, err := s.computeSummary(ctx, tenantID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, *summary); err != nil {
			logger.WithLogger(ctx, s.logger).Warn("Summary cache write failed", zap.Error(err))
		}
	}
	return summary, nil
}

func (s *Service) computeSummary(ctx context.Context, tenantID uuid.UUID) (*MerchantSummary, error) {
	customers, err := s.readModel.CountCustomers(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	programs, err := s.readModel.CountActivePrograms(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	from, to := s.todayRange()
	bookings, err := guarded(s, func() (int64, error) {
		return s.bookings.CountBetween(ctx, tenantID, from, to)
	})
	if err != nil {
		return nil, err
	}
	services, err := guarded(s, func() (int64, error) {
		return s.bookings.CountServices(ctx, tenantID)
	})
	if err != nil {
		return nil, err
	}

	return &MerchantSummary{
		TotalCustomers:     customers,
		ActivePrograms:     programs,
		TodayBookingsCount: bookings,
		ServiceCount:       services,
		GeneratedAt:        s.now().UTC(),
	}, nil
}

// CustomerSummary summarises one customer across all of the merchant's programs
func (s *Service) CustomerSummary(ctx context.Context, tenantID uuid.UUID, raw string) (*CustomerSummary, error) {
	identifier, _, err := loyalty.NormalizeIdentifier(raw)
	if err != nil {
		return nil, err
	}
	stats, err := s.readModel.CustomerStats(ctx, tenantID, identifier)
	if err != nil {
		return nil, err
	}
	return &CustomerSummary{
		CustomerIdentifier: identifier,
		TotalEnrollments:   stats.TotalEnrollments,
		ActiveEnrollments:  stats.ActiveEnrollments,
		LastActivityAt:     stats.LastActivityAt,
	}, nil
}

// TodayBookings lists today's bookings and the slots they occupy
func (s *Service) TodayBookings(ctx context.Context, tenantID uuid.UUID) (*TodayBookings, error) {
	from, to := s.todayRange()
	list, err := guarded(s, func() ([]booking.Booking, error) {
		return s.bookings.ListBetween(ctx, tenantID, from, to)
	})
	if err != nil {
		return nil, err
	}
	slots, err := guarded(s, func() ([]time.Time, error) {
		return s.bookings.OccupiedSlots(ctx, tenantID, from, to)
	})
	if err != nil {
		return nil, err
	}

	out := &TodayBookings{
		Date:          from.Format(dayLayout),
		Bookings:      make([]BookingResponse, len(list)),
		OccupiedSlots: make([]string, len(slots)),
	}
	for i, b := range list {
		out.Bookings[i] = BookingResponse{
			ID:           b.ID,
			CustomerName: b.CustomerName,
			ServiceName:  b.ServiceName,
			StartsAt:     b.StartsAt,
			EndsAt:       b.EndsAt,
			Status:       b.Status,
		}
	}
	for i, slot := range slots {
		out.OccupiedSlots[i] = slot.In(s.loc).Format("15:04")
	}
	return out, nil
}

// guarded calls the booking collaborator through the circuit breaker. An
// open breaker and collaborator failures both read as STORAGE_UNAVAILABLE.
func guarded[T any](s *Service, fn func() (T, error)) (T, error) {
	var zero T
	result, err := s.breaker.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, shared.ErrStorageUnavailable.WithMessage("booking service is unavailable").Wrap(err)
		}
		if _, ok := shared.AsDomainError(err); ok {
			return zero, err
		}
		return zero, shared.ErrStorageUnavailable.Wrap(fmt.Errorf("booking reader: %w", err))
	}
	return result.(T), nil
}

func (s *Service) todayRange() (time.Time, time.Time) {
	from := startOfDay(s.now(), s.loc)
	return from, from.AddDate(0, 0, 1)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// summaryCacheKey changes with the local day so today's booking count never
// carries over to tomorrow
func summaryCacheKey(tenantID uuid.UUID, localNow time.Time) string {
	return tenantID.String() + ":" + localNow.Format(dayLayout)
}

func toActivityResponse(e *loyalty.ActivityEntry) ActivityResponse {
	p := loyalty.Program{Type: e.ProgramType}
	return ActivityResponse{
		TransactionID:      e.TransactionID,
		EnrollmentID:       e.EnrollmentID,
		Sequence:           e.Sequence,
		Kind:               string(e.Kind),
		ChangeAmount:       e.ChangeAmount,
		NewProgress:        e.NewProgress,
		DisplayChange:      p.FormatChange(e.ChangeAmount),
		DisplayBalance:     p.FormatAmount(e.NewProgress),
		Description:        e.Description,
		CreatedAt:          e.CreatedAt,
		CustomerIdentifier: e.CustomerIdentifier,
		ProgramID:          e.ProgramID,
		ProgramName:        e.ProgramName,
		ProgramType:        string(e.ProgramType),
		RewardDescription:  e.RewardDescription,
	}
}
