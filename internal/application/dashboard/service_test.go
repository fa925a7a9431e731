package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/booking"
	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/infrastructure/cache"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockReadModel is a mock implementation of loyalty.ReadModel
type MockReadModel struct {
	mock.Mock
}

func (m *MockReadModel) EnrollmentTimesSince(ctx context.Context, tenantID uuid.UUID, since time.Time) ([]time.Time, error) {
	args := m.Called(ctx, tenantID, since)
	return args.Get(0).([]time.Time), args.Error(1)
}

func (m *MockReadModel) RecentActivity(ctx context.Context, tenantID uuid.UUID, limit int) ([]loyalty.ActivityEntry, error) {
	args := m.Called(ctx, tenantID, limit)
	return args.Get(0).([]loyalty.ActivityEntry), args.Error(1)
}

func (m *MockReadModel) CountCustomers(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockReadModel) CountActivePrograms(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockReadModel) CustomerStats(ctx context.Context, tenantID uuid.UUID, identifier string) (loyalty.CustomerStats, error) {
	args := m.Called(ctx, tenantID, identifier)
	return args.Get(0).(loyalty.CustomerStats), args.Error(1)
}

// MockBookingReader is a mock implementation of booking.Reader
type MockBookingReader struct {
	mock.Mock
}

func (m *MockBookingReader) ListBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]booking.Booking, error) {
	args := m.Called(ctx, tenantID, from, to)
	return args.Get(0).([]booking.Booking), args.Error(1)
}

func (m *MockBookingReader) CountBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (int64, error) {
	args := m.Called(ctx, tenantID, from, to)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBookingReader) OccupiedSlots(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	args := m.Called(ctx, tenantID, from, to)
	return args.Get(0).([]time.Time), args.Error(1)
}

func (m *MockBookingReader) CountServices(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

var saoPaulo = time.FixedZone("BRT", -3*60*60)

// 2024-03-10 01:30 UTC is still 2024-03-09 in São Paulo
var testNow = time.Date(2024, 3, 10, 1, 30, 0, 0, time.UTC)

func newTestService(readModel *MockReadModel, bookings *MockBookingReader, summaryCache SummaryCache) *Service {
	return NewService(ServiceConfig{
		ReadModel: readModel,
		Bookings:  bookings,
		Cache:     summaryCache,
		Breaker:   BreakerSettings{FailureLimit: 2, Timeout: time.Minute},
		Location:  saoPaulo,
		Logger:    zap.NewNop(),
		Clock:     func() time.Time { return testNow },
	})
}

func TestService_DailyEnrollments(t *testing.T) {
	tenantID := uuid.New()
	readModel := new(MockReadModel)
	firstDay := time.Date(2024, 3, 3, 0, 0, 0, 0, saoPaulo)
	readModel.On("EnrollmentTimesSince", mock.Anything, tenantID, mock.MatchedBy(firstDay.Equal)).Return([]time.Time{
		time.Date(2024, 3, 3, 3, 0, 0, 0, time.UTC),  // 03-03 00:00 local
		time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC), // 03-05
		time.Date(2024, 3, 5, 20, 0, 0, 0, time.UTC), // 03-05
		time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC), // 03-09 22:00 local
	}, nil)
	svc := newTestService(readModel, new(MockBookingReader), nil)

	days, err := svc.DailyEnrollments(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, days, TrailingDays)
	assert.Equal(t, DailyCount{Date: "2024-03-03", Count: 1}, days[0])
	assert.Equal(t, DailyCount{Date: "2024-03-04", Count: 0}, days[1])
	assert.Equal(t, DailyCount{Date: "2024-03-05", Count: 2}, days[2])
	assert.Equal(t, DailyCount{Date: "2024-03-09", Count: 1}, days[6])
	readModel.AssertExpectations(t)
}

func TestService_DailyEnrollments_Error(t *testing.T) {
	readModel := new(MockReadModel)
	readModel.On("EnrollmentTimesSince", mock.Anything, mock.Anything, mock.Anything).
		Return([]time.Time(nil), shared.ErrStorageUnavailable)
	svc := newTestService(readModel, new(MockBookingReader), nil)

	_, err := svc.DailyEnrollments(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrStorageUnavailable)
}

func TestService_RecentActivity(t *testing.T) {
	tenantID := uuid.New()
	entries := []loyalty.ActivityEntry{
		{
			Sequence:     2,
			Kind:         loyalty.TransactionKindRedemption,
			ChangeAmount: decimal.RequireFromString("-10"),
			NewProgress:  decimal.RequireFromString("5.5"),
			ProgramType:  loyalty.ProgramTypeCashback,
		},
		{
			Sequence:     7,
			Kind:         loyalty.TransactionKindAccrual,
			ChangeAmount: decimal.NewFromInt(1),
			NewProgress:  decimal.NewFromInt(7),
			ProgramType:  loyalty.ProgramTypeStamps,
		},
	}

	tests := []struct {
		name      string
		requested int
		queried   int
	}{
		{"default", 0, DefaultRecentLimit},
		{"explicit", 25, 25},
		{"capped", 1000, MaxRecentLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readModel := new(MockReadModel)
			readModel.On("RecentActivity", mock.Anything, tenantID, tt.queried).Return(entries, nil)
			svc := newTestService(readModel, new(MockBookingReader), nil)

			got, err := svc.RecentActivity(context.Background(), tenantID, tt.requested)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "-10.00", got[0].DisplayChange)
			assert.Equal(t, "5.50", got[0].DisplayBalance)
			assert.Equal(t, "+1", got[1].DisplayChange)
			assert.Equal(t, "7", got[1].DisplayBalance)
			readModel.AssertExpectations(t)
		})
	}
}

func TestService_MerchantSummary(t *testing.T) {
	tenantID := uuid.New()
	dayStart := time.Date(2024, 3, 9, 0, 0, 0, 0, saoPaulo)

	readModel := new(MockReadModel)
	readModel.On("CountCustomers", mock.Anything, tenantID).Return(int64(42), nil).Once()
	readModel.On("CountActivePrograms", mock.Anything, tenantID).Return(int64(3), nil).Once()
	bookings := new(MockBookingReader)
	bookings.On("CountBetween", mock.Anything, tenantID, mock.MatchedBy(dayStart.Equal), mock.MatchedBy(dayStart.AddDate(0, 0, 1).Equal)).
		Return(int64(5), nil).Once()
	bookings.On("CountServices", mock.Anything, tenantID).Return(int64(8), nil).Once()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	summaryCache := cache.NewJSONCache[MerchantSummary](client, "dashboard:summary:", 30*time.Second)

	svc := newTestService(readModel, bookings, summaryCache)

	first, err := svc.MerchantSummary(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), first.TotalCustomers)
	assert.Equal(t, int64(3), first.ActivePrograms)
	assert.Equal(t, int64(5), first.TodayBookingsCount)
	assert.Equal(t, int64(8), first.ServiceCount)

	// Served from cache: the mocks only allow one call each
	second, err := svc.MerchantSummary(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, first.TotalCustomers, second.TotalCustomers)
	assert.True(t, first.GeneratedAt.Equal(second.GeneratedAt))
	assert.True(t, mr.Exists("dashboard:summary:"+tenantID.String()+":2024-03-09"))

	mr.FastForward(31 * time.Second)
	assert.False(t, mr.Exists("dashboard:summary:"+tenantID.String()+":2024-03-09"))
	readModel.AssertExpectations(t)
	bookings.AssertExpectations(t)
}

func TestService_MerchantSummary_CacheDown(t *testing.T) {
	tenantID := uuid.New()
	readModel := new(MockReadModel)
	readModel.On("CountCustomers", mock.Anything, tenantID).Return(int64(1), nil)
	readModel.On("CountActivePrograms", mock.Anything, tenantID).Return(int64(1), nil)
	bookings := new(MockBookingReader)
	bookings.On("CountBetween", mock.Anything, tenantID, mock.Anything, mock.Anything).Return(int64(0), nil)
	bookings.On("CountServices", mock.Anything, tenantID).Return(int64(2), nil)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	svc := newTestService(readModel, bookings, cache.NewJSONCache[MerchantSummary](client, "s:", time.Minute))
	summary, err := svc.MerchantSummary(context.Background(), tenantID)
	require.NoError(t, err, "an unreachable cache only costs a recomputation")
	assert.Equal(t, int64(2), summary.ServiceCount)
}

func TestService_BookingBreakerOpens(t *testing.T) {
	tenantID := uuid.New()
	readModel := new(MockReadModel)
	readModel.On("CountCustomers", mock.Anything, tenantID).Return(int64(1), nil)
	readModel.On("CountActivePrograms", mock.Anything, tenantID).Return(int64(1), nil)
	bookings := new(MockBookingReader)
	bookings.On("CountBetween", mock.Anything, tenantID, mock.Anything, mock.Anything).
		Return(int64(0), errors.New("connection refused"))
	svc := newTestService(readModel, bookings, nil)

	for range 2 {
		_, err := svc.MerchantSummary(context.Background(), tenantID)
		assert.ErrorIs(t, err, shared.ErrStorageUnavailable)
	}
	bookings.AssertNumberOfCalls(t, "CountBetween", 2)

	// Tripped: the collaborator is no longer called
	_, err := svc.MerchantSummary(context.Background(), tenantID)
	assert.ErrorIs(t, err, shared.ErrStorageUnavailable)
	bookings.AssertNumberOfCalls(t, "CountBetween", 2)
}

func TestService_CustomerSummary(t *testing.T) {
	tenantID := uuid.New()
	last := time.Date(2024, 3, 8, 15, 0, 0, 0, time.UTC)
	readModel := new(MockReadModel)
	readModel.On("CustomerStats", mock.Anything, tenantID, "ana@example.com").Return(loyalty.CustomerStats{
		TotalEnrollments:  3,
		ActiveEnrollments: 2,
		LastActivityAt:    &last,
	}, nil)
	svc := newTestService(readModel, new(MockBookingReader), nil)

	got, err := svc.CustomerSummary(context.Background(), tenantID, " ANA@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", got.CustomerIdentifier)
	assert.Equal(t, int64(3), got.TotalEnrollments)
	assert.Equal(t, int64(2), got.ActiveEnrollments)
	assert.Equal(t, &last, got.LastActivityAt)

	_, err = svc.CustomerSummary(context.Background(), tenantID, "")
	assert.ErrorIs(t, err, loyalty.ErrInvalidIdentifier)
}

func TestService_TodayBookings(t *testing.T) {
	tenantID := uuid.New()
	start := time.Date(2024, 3, 9, 13, 0, 0, 0, time.UTC)
	bookings := new(MockBookingReader)
	bookings.On("ListBetween", mock.Anything, tenantID, mock.Anything, mock.Anything).Return([]booking.Booking{
		{ID: uuid.New(), CustomerName: "Ana", ServiceName: "Corte", StartsAt: start, EndsAt: start.Add(time.Hour), Status: "confirmed"},
	}, nil)
	bookings.On("OccupiedSlots", mock.Anything, tenantID, mock.Anything, mock.Anything).Return([]time.Time{start}, nil)
	svc := newTestService(new(MockReadModel), bookings, nil)

	got, err := svc.TodayBookings(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09", got.Date)
	require.Len(t, got.Bookings, 1)
	assert.Equal(t, "Corte", got.Bookings[0].ServiceName)
	assert.Equal(t, []string{"10:00"}, got.OccupiedSlots)
}
