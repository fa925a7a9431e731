package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	dashboardapp "github.com/loyalty/backend/internal/application/dashboard"
	loyaltyapp "github.com/loyalty/backend/internal/application/loyalty"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/interfaces/http/dto"
	"github.com/loyalty/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// MockProgramService is a mock implementation of ProgramService
type MockProgramService struct {
	mock.Mock
}

func (m *MockProgramService) Create(ctx context.Context, tenantID uuid.UUID, req loyaltyapp.CreateProgramRequest) (*loyaltyapp.ProgramResponse, error) {
	args := m.Called(ctx, tenantID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyaltyapp.ProgramResponse), args.Error(1)
}

func (m *MockProgramService) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*loyaltyapp.ProgramResponse, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyaltyapp.ProgramResponse), args.Error(1)
}

func (m *MockProgramService) List(ctx context.Context, tenantID uuid.UUID, activeOnly bool) ([]loyaltyapp.ProgramResponse, error) {
	args := m.Called(ctx, tenantID, activeOnly)
	return args.Get(0).([]loyaltyapp.ProgramResponse), args.Error(1)
}

func (m *MockProgramService) UpdateRewardDescription(ctx context.Context, tenantID, id uuid.UUID, req loyaltyapp.UpdateProgramRequest) (*loyaltyapp.ProgramResponse, error) {
	args := m.Called(ctx, tenantID, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyaltyapp.ProgramResponse), args.Error(1)
}

func (m *MockProgramService) Disable(ctx context.Context, tenantID, id uuid.UUID) (*loyaltyapp.ProgramResponse, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyaltyapp.ProgramResponse), args.Error(1)
}

func (m *MockProgramService) Enable(ctx context.Context, tenantID, id uuid.UUID) (*loyaltyapp.ProgramResponse, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyaltyapp.ProgramResponse), args.Error(1)
}

// MockLedgerService is a mock implementation of LedgerService
type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) EnsureEnrollment(ctx context.Context, input loyaltyapp.EnsureEnrollmentInput) (*loyaltyapp.EnrollmentResponse, bool, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*loyaltyapp.EnrollmentResponse), args.Bool(1), args.Error(2)
}

func (m *MockLedgerService) Accrue(ctx context.Context, input loyaltyapp.AccrueInput) (*loyaltyapp.TransactionResponse, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyaltyapp.TransactionResponse), args.Error(1)
}

func (m *MockLedgerService) AccruePurchase(ctx context.Context, input loyaltyapp.PurchaseInput) (*loyaltyapp.TransactionResponse, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyaltyapp.TransactionResponse), args.Error(1)
}

func (m *MockLedgerService) Redeem(ctx context.Context, input loyaltyapp.RedeemInput) (*loyaltyapp.TransactionResponse, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyaltyapp.TransactionResponse), args.Error(1)
}

func (m *MockLedgerService) Expire(ctx context.Context, tenantID, enrollmentID uuid.UUID) (*loyaltyapp.EnrollmentResponse, error) {
	args := m.Called(ctx, tenantID, enrollmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyaltyapp.EnrollmentResponse), args.Error(1)
}

func (m *MockLedgerService) Reactivate(ctx context.Context, tenantID, enrollmentID uuid.UUID) (*loyaltyapp.EnrollmentResponse, error) {
	args := m.Called(ctx, tenantID, enrollmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyaltyapp.EnrollmentResponse), args.Error(1)
}

func (m *MockLedgerService) GetBalance(ctx context.Context, tenantID, enrollmentID uuid.UUID) (*loyaltyapp.BalanceResponse, error) {
	args := m.Called(ctx, tenantID, enrollmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyaltyapp.BalanceResponse), args.Error(1)
}

func (m *MockLedgerService) ListHistory(ctx context.Context, tenantID, enrollmentID uuid.UUID, page, pageSize int) (*shared.Paginated[loyaltyapp.TransactionResponse], error) {
	args := m.Called(ctx, tenantID, enrollmentID, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.Paginated[loyaltyapp.TransactionResponse]), args.Error(1)
}

func (m *MockLedgerService) Audit(ctx context.Context, tenantID, enrollmentID uuid.UUID) (*loyaltyapp.AuditResponse, error) {
	args := m.Called(ctx, tenantID, enrollmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loyaltyapp.AuditResponse), args.Error(1)
}

// MockIdentityResolver is a mock implementation of IdentityResolver
type MockIdentityResolver struct {
	mock.Mock
}

func (m *MockIdentityResolver) Resolve(ctx context.Context, tenantID uuid.UUID, raw string) ([]loyaltyapp.ResolvedEnrollment, error) {
	args := m.Called(ctx, tenantID, raw)
	return args.Get(0).([]loyaltyapp.ResolvedEnrollment), args.Error(1)
}

func (m *MockIdentityResolver) Classify(raw string) loyaltyapp.IdentifierClassification {
	return m.Called(raw).Get(0).(loyaltyapp.IdentifierClassification)
}

// MockDashboardService is a mock implementation of DashboardService
type MockDashboardService struct {
	mock.Mock
}

func (m *MockDashboardService) DailyEnrollments(ctx context.Context, tenantID uuid.UUID) ([]dashboardapp.DailyCount, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).([]dashboardapp.DailyCount), args.Error(1)
}

func (m *MockDashboardService) RecentActivity(ctx context.Context, tenantID uuid.UUID, limit int) ([]dashboardapp.ActivityResponse, error) {
	args := m.Called(ctx, tenantID, limit)
	return args.Get(0).([]dashboardapp.ActivityResponse), args.Error(1)
}

func (m *MockDashboardService) MerchantSummary(ctx context.Context, tenantID uuid.UUID) (*dashboardapp.MerchantSummary, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dashboardapp.MerchantSummary), args.Error(1)
}

func (m *MockDashboardService) CustomerSummary(ctx context.Context, tenantID uuid.UUID, raw string) (*dashboardapp.CustomerSummary, error) {
	args := m.Called(ctx, tenantID, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dashboardapp.CustomerSummary), args.Error(1)
}

func (m *MockDashboardService) TodayBookings(ctx context.Context, tenantID uuid.UUID) (*dashboardapp.TodayBookings, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dashboardapp.TodayBookings), args.Error(1)
}

// withTenant stands in for the auth middleware
func withTenant(tenantID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.TenantIDKey, tenantID)
		c.Next()
	}
}

func newTestRouter(tenantID uuid.UUID) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID())
	if tenantID != uuid.Nil {
		router.Use(withTenant(tenantID))
	}
	return router
}

func perform(router http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// envelope decodes a response whose data is T
type envelope[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data"`
	Error   *dto.ErrorInfo `json:"error"`
	Meta    *dto.Meta      `json:"meta"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}
