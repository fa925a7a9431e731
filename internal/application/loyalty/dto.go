package loyalty

import (
	"time"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/shopspring/decimal"
)

// =============================================================================
// Program DTOs
// =============================================================================

// CreateProgramRequest represents a request to create a loyalty program
type CreateProgramRequest struct {
	Name              string           `json:"name" binding:"required,min=1,max=100"`
	Type              string           `json:"type" binding:"required,oneof=stamps points cashback"`
	Goal              *decimal.Decimal `json:"goal"`
	CashbackRate      *decimal.Decimal `json:"cashback_rate"`
	RewardDescription string           `json:"reward_description" binding:"required,min=1,max=255"`
	InitialBalance    *decimal.Decimal `json:"initial_balance"`
	OneShot           bool             `json:"one_shot"`
}

// UpdateProgramRequest represents a request to change a program's descriptive fields
type UpdateProgramRequest struct {
	RewardDescription string `json:"reward_description" binding:"required,min=1,max=255"`
}

// ProgramResponse represents a loyalty program in API responses
type ProgramResponse struct {
	ID                uuid.UUID        `json:"id"`
	OwnerID           uuid.UUID        `json:"owner_id"`
	Name              string           `json:"name"`
	Type              string           `json:"type"`
	Goal              *decimal.Decimal `json:"goal,omitempty"`
	CashbackRate      *decimal.Decimal `json:"cashback_rate,omitempty"`
	RewardDescription string           `json:"reward_description"`
	InitialBalance    decimal.Decimal  `json:"initial_balance"`
	OneShot           bool             `json:"one_shot"`
	Active            bool             `json:"active"`
	Version           int              `json:"version"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// ToProgramResponse converts a domain Program to ProgramResponse
func ToProgramResponse(p *loyalty.Program) ProgramResponse {
	resp := ProgramResponse{
		ID:                p.ID,
		OwnerID:           p.TenantID,
		Name:              p.Name,
		Type:              string(p.Type),
		Goal:              p.Goal,
		RewardDescription: p.RewardDescription,
		InitialBalance:    p.InitialBalance,
		OneShot:           p.OneShot,
		Active:            p.Active,
		Version:           p.Version,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
	if p.Type == loyalty.ProgramTypeCashback {
		rate := p.CashbackRate
		resp.CashbackRate = &rate
	}
	return resp
}

// ToProgramResponses converts a slice of programs
func ToProgramResponses(programs []loyalty.Program) []ProgramResponse {
	out := make([]ProgramResponse, len(programs))
	for i := range programs {
		out[i] = ToProgramResponse(&programs[i])
	}
	return out
}

// =============================================================================
// Enrollment DTOs
// =============================================================================

// EnsureEnrollmentRequest represents a request to enroll a customer, or
// fetch the existing enrollment
type EnsureEnrollmentRequest struct {
	CustomerIdentifier string    `json:"customer_identifier" binding:"required,min=1,max=255"`
	ProgramID          uuid.UUID `json:"program_id" binding:"required"`
}

// EnrollmentResponse represents an enrollment in API responses
type EnrollmentResponse struct {
	ID                 uuid.UUID       `json:"id"`
	OwnerID            uuid.UUID       `json:"owner_id"`
	CustomerIdentifier string          `json:"customer_identifier"`
	ProgramID          uuid.UUID       `json:"program_id"`
	ProgramType        string          `json:"program_type"`
	CurrentProgress    decimal.Decimal `json:"current_progress"`
	DisplayBalance     string          `json:"display_balance"`
	Status             string          `json:"status"`
	RedemptionEligible bool            `json:"redemption_eligible"`
	TransactionCount   int64           `json:"transaction_count"`
	LastActivityAt     *time.Time      `json:"last_activity_at,omitempty"`
	Version            int             `json:"version"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// ToEnrollmentResponse converts an enrollment, formatting the balance in the program's unit
func ToEnrollmentResponse(e *loyalty.Enrollment, p *loyalty.Program) EnrollmentResponse {
	return EnrollmentResponse{
		ID:                 e.ID,
		OwnerID:            e.TenantID,
		CustomerIdentifier: e.CustomerIdentifier,
		ProgramID:          e.ProgramID,
		ProgramType:        string(p.Type),
		CurrentProgress:    e.CurrentProgress,
		DisplayBalance:     p.FormatAmount(e.CurrentProgress),
		Status:             string(e.Status),
		RedemptionEligible: e.RedemptionEligible,
		TransactionCount:   e.TransactionCount,
		LastActivityAt:     e.LastActivityAt,
		Version:            e.Version,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
}

// ResolvedEnrollment is an enrollment found by identifier, with its program
type ResolvedEnrollment struct {
	EnrollmentResponse
	Program ProgramResponse `json:"program"`
}

// BalanceResponse is the cached balance of an enrollment
type BalanceResponse struct {
	EnrollmentID       uuid.UUID        `json:"enrollment_id"`
	ProgramType        string           `json:"program_type"`
	CurrentProgress    decimal.Decimal  `json:"current_progress"`
	DisplayBalance     string           `json:"display_balance"`
	Goal               *decimal.Decimal `json:"goal,omitempty"`
	Status             string           `json:"status"`
	RedemptionEligible bool             `json:"redemption_eligible"`
	TransactionCount   int64            `json:"transaction_count"`
	LastActivityAt     *time.Time       `json:"last_activity_at,omitempty"`
}

// ToBalanceResponse builds a BalanceResponse
func ToBalanceResponse(e *loyalty.Enrollment, p *loyalty.Program) BalanceResponse {
	return BalanceResponse{
		EnrollmentID:       e.ID,
		ProgramType:        string(p.Type),
		CurrentProgress:    e.CurrentProgress,
		DisplayBalance:     p.FormatAmount(e.CurrentProgress),
		Goal:               p.Goal,
		Status:             string(e.Status),
		RedemptionEligible: e.RedemptionEligible,
		TransactionCount:   e.TransactionCount,
		LastActivityAt:     e.LastActivityAt,
	}
}

// =============================================================================
// Ledger DTOs
// =============================================================================

// AccrueRequest represents a request to add to a balance
type AccrueRequest struct {
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Description string          `json:"description" binding:"max=255"`
}

// PurchaseRequest represents a purchase earning cashback
type PurchaseRequest struct {
	PurchaseAmount decimal.Decimal `json:"purchase_amount" binding:"required"`
	Description    string          `json:"description" binding:"max=255"`
}

// RedeemRequest represents a request to exchange balance for a reward.
// A missing cost on stamps/points programs redeems the program goal.
type RedeemRequest struct {
	Cost        *decimal.Decimal `json:"cost"`
	Description string           `json:"description" binding:"max=255"`
}

// AccrueInput is the application input for Accrue
type AccrueInput struct {
	TenantID       uuid.UUID
	EnrollmentID   uuid.UUID
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
}

// PurchaseInput is the application input for AccruePurchase
type PurchaseInput struct {
	TenantID       uuid.UUID
	EnrollmentID   uuid.UUID
	PurchaseAmount decimal.Decimal
	Description    string
	IdempotencyKey string
}

// RedeemInput is the application input for Redeem. A nil Cost means the
// program goal.
type RedeemInput struct {
	TenantID       uuid.UUID
	EnrollmentID   uuid.UUID
	Cost           *decimal.Decimal
	Description    string
	IdempotencyKey string
}

// EnsureEnrollmentInput is the application input for EnsureEnrollment
type EnsureEnrollmentInput struct {
	TenantID           uuid.UUID
	CustomerIdentifier string
	ProgramID          uuid.UUID
}

// TransactionResponse represents a ledger entry with program-aware formatting
type TransactionResponse struct {
	ID             uuid.UUID       `json:"id"`
	EnrollmentID   uuid.UUID       `json:"enrollment_id"`
	Sequence       int64           `json:"sequence"`
	Kind           string          `json:"kind"`
	ChangeAmount   decimal.Decimal `json:"change_amount"`
	NewProgress    decimal.Decimal `json:"new_progress"`
	DisplayChange  string          `json:"display_change"`
	DisplayBalance string          `json:"display_balance"`
	Description    string          `json:"description"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	// Replayed is set when an idempotency key matched an earlier request
	Replayed bool `json:"replayed,omitempty"`
}

// ToTransactionResponse converts a ledger entry
func ToTransactionResponse(tx *loyalty.Transaction, p *loyalty.Program) TransactionResponse {
	return TransactionResponse{
		ID:             tx.ID,
		EnrollmentID:   tx.EnrollmentID,
		Sequence:       tx.Sequence,
		Kind:           string(tx.Kind),
		ChangeAmount:   tx.ChangeAmount,
		NewProgress:    tx.NewProgress,
		DisplayChange:  p.FormatChange(tx.ChangeAmount),
		DisplayBalance: p.FormatAmount(tx.NewProgress),
		Description:    tx.Description,
		IdempotencyKey: tx.IdempotencyKey,
		CreatedAt:      tx.CreatedAt,
	}
}

// ToTransactionResponses converts a slice of ledger entries
func ToTransactionResponses(txs []loyalty.Transaction, p *loyalty.Program) []TransactionResponse {
	out := make([]TransactionResponse, len(txs))
	for i := range txs {
		out[i] = ToTransactionResponse(&txs[i], p)
	}
	return out
}

// AuditResponse is the outcome of replaying an enrollment's ledger
type AuditResponse struct {
	EnrollmentID     uuid.UUID       `json:"enrollment_id"`
	Consistent       bool            `json:"consistent"`
	TransactionCount int             `json:"transaction_count"`
	ReplayedBalance  decimal.Decimal `json:"replayed_balance"`
	CachedBalance    decimal.Decimal `json:"cached_balance"`
	Violations       []string        `json:"violations"`
}

// ToAuditResponse converts an audit report
func ToAuditResponse(enrollmentID uuid.UUID, r loyalty.AuditReport) AuditResponse {
	violations := r.Violations
	if violations == nil {
		violations = []string{}
	}
	return AuditResponse{
		EnrollmentID:     enrollmentID,
		Consistent:       r.Consistent(),
		TransactionCount: r.TransactionCount,
		ReplayedBalance:  r.ReplayedBalance,
		CachedBalance:    r.CachedBalance,
		Violations:       violations,
	}
}

// IdentifierClassification describes what kind of identifier a string is
type IdentifierClassification struct {
	Identifier              string `json:"identifier"`
	Normalized              string `json:"normalized,omitempty"`
	Kind                    string `json:"kind"`
	SupportsCredentialReset bool   `json:"supports_credential_reset"`
}
