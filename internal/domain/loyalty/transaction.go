package loyalty

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionKind classifies a ledger entry
type TransactionKind string

const (
	TransactionKindOpening    TransactionKind = "opening"
	TransactionKindAccrual    TransactionKind = "accrual"
	TransactionKindRedemption TransactionKind = "redemption"
)

// DefaultRedemptionDescription is used when a redemption carries no description
const DefaultRedemptionDescription = "Recompensa resgatada"

// Transaction is an immutable ledger entry. NewProgress is the balance after
// ChangeAmount was applied; Sequence orders entries within an enrollment
// starting at 1.
type Transaction struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	EnrollmentID   uuid.UUID
	Sequence       int64
	Kind           TransactionKind
	ChangeAmount   decimal.Decimal
	NewProgress    decimal.Decimal
	Description    string
	IdempotencyKey string
	CreatedAt      time.Time
}

// IsCredit reports whether the entry increased the balance
func (t *Transaction) IsCredit() bool {
	return t.ChangeAmount.IsPositive()
}

// PreviousProgress is the balance before this entry
func (t *Transaction) PreviousProgress() decimal.Decimal {
	return t.NewProgress.Sub(t.ChangeAmount)
}
