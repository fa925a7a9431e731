package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LoyaltyProgramModel is the persistence model for loyalty.Program
type LoyaltyProgramModel struct {
	TenantAggregateModel
	Name              string           `gorm:"type:varchar(120);not null"`
	Type              string           `gorm:"type:varchar(20);not null"`
	Goal              *decimal.Decimal `gorm:"type:decimal(18,2)"`
	CashbackRate      decimal.Decimal  `gorm:"type:decimal(6,4);not null"`
	RewardDescription string           `gorm:"type:varchar(255);not null"`
	InitialBalance    decimal.Decimal  `gorm:"type:decimal(18,2);not null"`
	OneShot           bool             `gorm:"not null"`
	Active            bool             `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (LoyaltyProgramModel) TableName() string {
	return "loyalty_programs"
}

// ToDomain converts the model to a domain Program
func (m *LoyaltyProgramModel) ToDomain() *loyalty.Program {
	return &loyalty.Program{
		TenantAggregateRoot: m.ToDomainTenantAggregateRoot(),
		Name:                m.Name,
		Type:                loyalty.ProgramType(m.Type),
		Goal:                m.Goal,
		CashbackRate:        m.CashbackRate,
		RewardDescription:   m.RewardDescription,
		InitialBalance:      m.InitialBalance,
		OneShot:             m.OneShot,
		Active:              m.Active,
	}
}

// LoyaltyProgramModelFromDomain creates a model from a domain Program
func LoyaltyProgramModelFromDomain(p *loyalty.Program) *LoyaltyProgramModel {
	m := &LoyaltyProgramModel{
		Name:              p.Name,
		Type:              string(p.Type),
		Goal:              p.Goal,
		CashbackRate:      p.CashbackRate,
		RewardDescription: p.RewardDescription,
		InitialBalance:    p.InitialBalance,
		OneShot:           p.OneShot,
		Active:            p.Active,
	}
	m.FromDomainTenantAggregateRoot(p.TenantAggregateRoot)
	return m
}

// LoyaltyEnrollmentModel is the persistence model for loyalty.Enrollment.
// The unique key is (customer_identifier, program_id); a program belongs to
// exactly one owner, so this is unique per owner as well.
type LoyaltyEnrollmentModel struct {
	TenantAggregateModel
	CustomerIdentifier string          `gorm:"type:varchar(255);not null;uniqueIndex:uq_loyalty_enrollment_key,priority:1"`
	ProgramID          uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_loyalty_enrollment_key,priority:2;index"`
	CurrentProgress    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Status             string          `gorm:"type:varchar(20);not null;index"`
	RedemptionEligible bool            `gorm:"not null"`
	TransactionCount   int64           `gorm:"not null"`
	LastActivityAt     *time.Time
}

// TableName returns the table name for GORM
func (LoyaltyEnrollmentModel) TableName() string {
	return "loyalty_enrollments"
}

// ToDomain converts the model to a domain Enrollment
func (m *LoyaltyEnrollmentModel) ToDomain() *loyalty.Enrollment {
	return &loyalty.Enrollment{
		TenantAggregateRoot: m.ToDomainTenantAggregateRoot(),
		CustomerIdentifier:  m.CustomerIdentifier,
		ProgramID:           m.ProgramID,
		CurrentProgress:     m.CurrentProgress,
		Status:              loyalty.EnrollmentStatus(m.Status),
		RedemptionEligible:  m.RedemptionEligible,
		TransactionCount:    m.TransactionCount,
		LastActivityAt:      m.LastActivityAt,
	}
}

// LoyaltyEnrollmentModelFromDomain creates a model from a domain Enrollment
func LoyaltyEnrollmentModelFromDomain(e *loyalty.Enrollment) *LoyaltyEnrollmentModel {
	m := &LoyaltyEnrollmentModel{
		CustomerIdentifier: e.CustomerIdentifier,
		ProgramID:          e.ProgramID,
		CurrentProgress:    e.CurrentProgress,
		Status:             string(e.Status),
		RedemptionEligible: e.RedemptionEligible,
		TransactionCount:   e.TransactionCount,
		LastActivityAt:     e.LastActivityAt,
	}
	m.FromDomainTenantAggregateRoot(e.TenantAggregateRoot)
	return m
}

// LoyaltyTransactionModel is a row of the append-only ledger. Updates and
// deletes are refused by hooks here and by a trigger in PostgreSQL.
type LoyaltyTransactionModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID       `gorm:"column:owner_id;type:uuid;not null;index:idx_loyalty_tx_owner_created,priority:1"`
	EnrollmentID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uq_loyalty_tx_sequence,priority:1;uniqueIndex:uq_loyalty_tx_idempotency,priority:1"`
	Sequence       int64           `gorm:"not null;uniqueIndex:uq_loyalty_tx_sequence,priority:2"`
	Kind           string          `gorm:"type:varchar(20);not null"`
	ChangeAmount   decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	NewProgress    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Description    string          `gorm:"type:varchar(255);not null"`
	IdempotencyKey *string         `gorm:"type:varchar(128);uniqueIndex:uq_loyalty_tx_idempotency,priority:2"`
	CreatedAt      time.Time       `gorm:"not null;index:idx_loyalty_tx_owner_created,priority:2"`
}

// TableName returns the table name for GORM
func (LoyaltyTransactionModel) TableName() string {
	return "loyalty_transactions"
}

// BeforeUpdate refuses any update of a ledger row
func (m *LoyaltyTransactionModel) BeforeUpdate(tx *gorm.DB) error {
	return loyalty.ErrTransactionImmutable
}

// BeforeDelete refuses any delete of a ledger row
func (m *LoyaltyTransactionModel) BeforeDelete(tx *gorm.DB) error {
	return loyalty.ErrTransactionImmutable
}

// ToDomain converts the model to a domain Transaction
func (m *LoyaltyTransactionModel) ToDomain() *loyalty.Transaction {
	tx := &loyalty.Transaction{
		ID:           m.ID,
		TenantID:     m.TenantID,
		EnrollmentID: m.EnrollmentID,
		Sequence:     m.Sequence,
		Kind:         loyalty.TransactionKind(m.Kind),
		ChangeAmount: m.ChangeAmount,
		NewProgress:  m.NewProgress,
		Description:  m.Description,
		CreatedAt:    m.CreatedAt,
	}
	if m.IdempotencyKey != nil {
		tx.IdempotencyKey = *m.IdempotencyKey
	}
	return tx
}

// LoyaltyTransactionModelFromDomain creates a model from a domain Transaction.
// An empty idempotency key is stored as NULL so it never collides.
func LoyaltyTransactionModelFromDomain(t *loyalty.Transaction) *LoyaltyTransactionModel {
	m := &LoyaltyTransactionModel{
		ID:           t.ID,
		TenantID:     t.TenantID,
		EnrollmentID: t.EnrollmentID,
		Sequence:     t.Sequence,
		Kind:         string(t.Kind),
		ChangeAmount: t.ChangeAmount,
		NewProgress:  t.NewProgress,
		Description:  t.Description,
		CreatedAt:    t.CreatedAt,
	}
	if t.IdempotencyKey != "" {
		key := t.IdempotencyKey
		m.IdempotencyKey = &key
	}
	return m
}
