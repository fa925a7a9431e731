package loyalty

import (
	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// AggregateTypeEnrollment is the aggregate type of all enrollment events
const AggregateTypeEnrollment = "Enrollment"

const (
	EventTypeEnrollmentCreated       = "loyalty.enrollment.created"
	EventTypeBalanceAccrued          = "loyalty.points.accrued"
	EventTypeRewardRedeemed          = "loyalty.reward.redeemed"
	EventTypeRedemptionEligible      = "loyalty.enrollment.redemption_eligible"
	EventTypeEnrollmentStatusChanged = "loyalty.enrollment.status_changed"
)

// EnrollmentCreatedEvent is raised when a customer joins a program
type EnrollmentCreatedEvent struct {
	shared.BaseDomainEvent
	ProgramID          uuid.UUID       `json:"program_id"`
	CustomerIdentifier string          `json:"customer_identifier"`
	InitialBalance     decimal.Decimal `json:"initial_balance"`
}

// NewEnrollmentCreatedEvent builds the creation event
func NewEnrollmentCreatedEvent(e *Enrollment, p *Program) *EnrollmentCreatedEvent {
	return &EnrollmentCreatedEvent{
		BaseDomainEvent:    shared.NewBaseDomainEvent(EventTypeEnrollmentCreated, AggregateTypeEnrollment, e.ID, e.TenantID),
		ProgramID:          p.ID,
		CustomerIdentifier: e.CustomerIdentifier,
		InitialBalance:     e.CurrentProgress,
	}
}

// BalanceAccruedEvent is raised for every accrual
type BalanceAccruedEvent struct {
	shared.BaseDomainEvent
	TransactionID      uuid.UUID       `json:"transaction_id"`
	ProgramType        ProgramType     `json:"program_type"`
	CustomerIdentifier string          `json:"customer_identifier"`
	Amount             decimal.Decimal `json:"amount"`
	NewProgress        decimal.Decimal `json:"new_progress"`
}

// NewBalanceAccruedEvent builds the accrual event
func NewBalanceAccruedEvent(e *Enrollment, p *Program, tx *Transaction) *BalanceAccruedEvent {
	return &BalanceAccruedEvent{
		BaseDomainEvent:    shared.NewBaseDomainEvent(EventTypeBalanceAccrued, AggregateTypeEnrollment, e.ID, e.TenantID),
		TransactionID:      tx.ID,
		ProgramType:        p.Type,
		CustomerIdentifier: e.CustomerIdentifier,
		Amount:             tx.ChangeAmount,
		NewProgress:        tx.NewProgress,
	}
}

// RewardRedeemedEvent is raised for every redemption
type RewardRedeemedEvent struct {
	shared.BaseDomainEvent
	TransactionID      uuid.UUID        `json:"transaction_id"`
	ProgramType        ProgramType      `json:"program_type"`
	CustomerIdentifier string           `json:"customer_identifier"`
	RewardDescription  string           `json:"reward_description"`
	Cost               decimal.Decimal  `json:"cost"`
	NewProgress        decimal.Decimal  `json:"new_progress"`
	Status             EnrollmentStatus `json:"status"`
}

// NewRewardRedeemedEvent builds the redemption event
func NewRewardRedeemedEvent(e *Enrollment, p *Program, tx *Transaction) *RewardRedeemedEvent {
	return &RewardRedeemedEvent{
		BaseDomainEvent:    shared.NewBaseDomainEvent(EventTypeRewardRedeemed, AggregateTypeEnrollment, e.ID, e.TenantID),
		TransactionID:      tx.ID,
		ProgramType:        p.Type,
		CustomerIdentifier: e.CustomerIdentifier,
		RewardDescription:  p.RewardDescription,
		Cost:               tx.ChangeAmount.Neg(),
		NewProgress:        tx.NewProgress,
		Status:             e.Status,
	}
}

// RedemptionEligibleEvent is raised when a stamps/points balance first
// reaches the program goal. Redemption stays an explicit action.
type RedemptionEligibleEvent struct {
	shared.BaseDomainEvent
	CustomerIdentifier string          `json:"customer_identifier"`
	Goal               decimal.Decimal `json:"goal"`
	Progress           decimal.Decimal `json:"progress"`
	RewardDescription  string          `json:"reward_description"`
}

// NewRedemptionEligibleEvent builds the eligibility event
func NewRedemptionEligibleEvent(e *Enrollment, p *Program) *RedemptionEligibleEvent {
	goal, _ := p.DefaultRedemptionCost()
	return &RedemptionEligibleEvent{
		BaseDomainEvent:    shared.NewBaseDomainEvent(EventTypeRedemptionEligible, AggregateTypeEnrollment, e.ID, e.TenantID),
		CustomerIdentifier: e.CustomerIdentifier,
		Goal:               goal,
		Progress:           e.CurrentProgress,
		RewardDescription:  p.RewardDescription,
	}
}

// EnrollmentStatusChangedEvent is raised on expire, reactivate and one-shot redemption
type EnrollmentStatusChangedEvent struct {
	shared.BaseDomainEvent
	From EnrollmentStatus `json:"from"`
	To   EnrollmentStatus `json:"to"`
}

// NewEnrollmentStatusChangedEvent builds the status change event
func NewEnrollmentStatusChangedEvent(e *Enrollment, from EnrollmentStatus) *EnrollmentStatusChangedEvent {
	return &EnrollmentStatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEnrollmentStatusChanged, AggregateTypeEnrollment, e.ID, e.TenantID),
		From:            from,
		To:              e.Status,
	}
}
