package handler

import (
	"context"

	"github.com/google/uuid"
	dashboardapp "github.com/loyalty/backend/internal/application/dashboard"
	loyaltyapp "github.com/loyalty/backend/internal/application/loyalty"
	"github.com/loyalty/backend/internal/domain/shared"
)

// ProgramService is the program catalogue as used by the HTTP layer
type ProgramService interface {
	Create(ctx context.Context, tenantID uuid.UUID, req loyaltyapp.CreateProgramRequest) (*loyaltyapp.ProgramResponse, error)
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*loyaltyapp.ProgramResponse, error)
	List(ctx context.Context, tenantID uuid.UUID, activeOnly bool) ([]loyaltyapp.ProgramResponse, error)
	UpdateRewardDescription(ctx context.Context, tenantID, id uuid.UUID, req loyaltyapp.UpdateProgramRequest) (*loyaltyapp.ProgramResponse, error)
	Disable(ctx context.Context, tenantID, id uuid.UUID) (*loyaltyapp.ProgramResponse, error)
	Enable(ctx context.Context, tenantID, id uuid.UUID) (*loyaltyapp.ProgramResponse, error)
}

// LedgerService is the ledger engine as used by the HTTP layer
type LedgerService interface {
	EnsureEnrollment(ctx context.Context, input loyaltyapp.EnsureEnrollmentInput) (*loyaltyapp.EnrollmentResponse, bool, error)
	Accrue(ctx context.Context, input loyaltyapp.AccrueInput) (*loyaltyapp.TransactionResponse, error)
	AccruePurchase(ctx context.Context, input loyaltyapp.PurchaseInput) (*loyaltyapp.TransactionResponse, error)
	Redeem(ctx context.Context, input loyaltyapp.RedeemInput) (*loyaltyapp.TransactionResponse, error)
	Expire(ctx context.Context, tenantID, enrollmentID uuid.UUID) (*loyaltyapp.EnrollmentResponse, error)
	Reactivate(ctx context.Context, tenantID, enrollmentID uuid.UUID) (*loyaltyapp.EnrollmentResponse, error)
	GetBalance(ctx context.Context, tenantID, enrollmentID uuid.UUID) (*loyaltyapp.BalanceResponse, error)
	ListHistory(ctx context.Context, tenantID, enrollmentID uuid.UUID, page, pageSize int) (*shared.Paginated[loyaltyapp.TransactionResponse], error)
	Audit(ctx context.Context, tenantID, enrollmentID uuid.UUID) (*loyaltyapp.AuditResponse, error)
}

var (
	_ ProgramService   = (*loyaltyapp.ProgramService)(nil)
	_ LedgerService    = (*loyaltyapp.LedgerService)(nil)
	_ IdentityResolver = (*loyaltyapp.IdentityResolver)(nil)
	_ DashboardService = (*dashboardapp.Service)(nil)
)
