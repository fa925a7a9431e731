package loyalty

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// EnrollmentStatus is the lifecycle state of an enrollment
type EnrollmentStatus string

const (
	EnrollmentStatusActive   EnrollmentStatus = "active"
	EnrollmentStatusRedeemed EnrollmentStatus = "redeemed"
	EnrollmentStatusExpired  EnrollmentStatus = "expired"
)

const maxDescriptionLength = 255

// Enrollment is a customer's membership in one program. CurrentProgress is
// a cache of the latest transaction's NewProgress and only changes together
// with a new transaction.
type Enrollment struct {
	shared.TenantAggregateRoot
	CustomerIdentifier string
	ProgramID          uuid.UUID
	CurrentProgress    decimal.Decimal
	Status             EnrollmentStatus
	RedemptionEligible bool
	TransactionCount   int64
	LastActivityAt     *time.Time
}

// NewEnrollment enrolls identifier in program. When the program has a
// starting balance an opening transaction is returned that must be stored
// together with the enrollment.
func NewEnrollment(tenantID uuid.UUID, identifier string, program *Program, now time.Time) (*Enrollment, *Transaction, error) {
	if program.TenantID != tenantID {
		return nil, nil, ErrProgramNotFound
	}
	if !program.Active {
		return nil, nil, ErrProgramInactive
	}
	normalized, _, err := NormalizeIdentifier(identifier)
	if err != nil {
		return nil, nil, err
	}

	e := &Enrollment{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		CustomerIdentifier:  normalized,
		ProgramID:           program.ID,
		CurrentProgress:     decimal.Zero,
		Status:              EnrollmentStatusActive,
	}
	e.CreatedAt = now
	e.UpdatedAt = now

	var opening *Transaction
	if program.InitialBalance.IsPositive() {
		opening = e.append(TransactionKindOpening, program.InitialBalance, "Saldo inicial", "", now)
		// The opening entry is part of creation, not a separate write.
		e.Version = 1
	}
	e.RedemptionEligible = program.GoalReached(e.CurrentProgress)

	e.AddDomainEvent(NewEnrollmentCreatedEvent(e, program))
	return e, opening, nil
}

// Accrue adds amount to the balance and returns the transaction recording it
func (e *Enrollment) Accrue(program *Program, amount decimal.Decimal, description, idempotencyKey string, now time.Time) (*Transaction, error) {
	if err := e.checkProgram(program); err != nil {
		return nil, err
	}
	if e.Status != EnrollmentStatusActive {
		return nil, ErrEnrollmentInactive.WithMessage(fmt.Sprintf("enrollment is %s", e.Status))
	}
	if !program.Active {
		return nil, ErrProgramInactive
	}
	normalized, err := program.NormalizeAmount(amount)
	if err != nil {
		return nil, err
	}
	if e.CurrentProgress.Add(normalized).GreaterThanOrEqual(MaxAmount) {
		return nil, ErrInvalidAmount.WithMessage("balance would exceed the ledger limit")
	}
	desc, err := cleanDescription(description, "")
	if err != nil {
		return nil, err
	}

	wasEligible := e.RedemptionEligible
	tx := e.append(TransactionKindAccrual, normalized, desc, idempotencyKey, now)
	e.RedemptionEligible = program.GoalReached(e.CurrentProgress)

	e.AddDomainEvent(NewBalanceAccruedEvent(e, program, tx))
	if e.RedemptionEligible && !wasEligible {
		e.AddDomainEvent(NewRedemptionEligibleEvent(e, program))
	}
	return tx, nil
}

// Redeem deducts cost from the balance. A nil cost on stamps/points programs
// means the program goal; a given cost must be positive.
func (e *Enrollment) Redeem(program *Program, cost *decimal.Decimal, description, idempotencyKey string, now time.Time) (*Transaction, error) {
	if err := e.checkProgram(program); err != nil {
		return nil, err
	}
	if e.Status != EnrollmentStatusActive {
		return nil, ErrEnrollmentInactive.WithMessage(fmt.Sprintf("enrollment is %s", e.Status))
	}
	var amount decimal.Decimal
	if cost == nil {
		goal, ok := program.DefaultRedemptionCost()
		if !ok {
			return nil, ErrInvalidAmount.WithMessage("redemption cost is required for cashback programs")
		}
		amount = goal
	} else {
		if !cost.IsPositive() {
			return nil, ErrInvalidAmount.WithMessage("redemption cost must be positive")
		}
		amount = *cost
	}
	normalized, err := program.NormalizeAmount(amount)
	if err != nil {
		return nil, err
	}
	if normalized.GreaterThan(e.CurrentProgress) {
		return nil, ErrInsufficientBalance.WithMessage(fmt.Sprintf("balance %s is below redemption cost %s",
			program.FormatAmount(e.CurrentProgress), program.FormatAmount(normalized)))
	}
	desc, err := cleanDescription(description, DefaultRedemptionDescription)
	if err != nil {
		return nil, err
	}

	tx := e.append(TransactionKindRedemption, normalized.Neg(), desc, idempotencyKey, now)
	e.RedemptionEligible = program.GoalReached(e.CurrentProgress)

	from := e.Status
	if program.OneShot && e.CurrentProgress.IsZero() {
		e.Status = EnrollmentStatusRedeemed
	}

	e.AddDomainEvent(NewRewardRedeemedEvent(e, program, tx))
	if from != e.Status {
		e.AddDomainEvent(NewEnrollmentStatusChangedEvent(e, from))
	}
	return tx, nil
}

// Expire closes an active enrollment. The balance is kept for audit.
func (e *Enrollment) Expire(now time.Time) error {
	if e.Status != EnrollmentStatusActive {
		return ErrInvalidTransition.WithMessage(fmt.Sprintf("cannot expire a %s enrollment", e.Status))
	}
	e.changeStatus(EnrollmentStatusExpired, now)
	return nil
}

// Reactivate reopens an expired or redeemed enrollment
func (e *Enrollment) Reactivate(now time.Time) error {
	if e.Status == EnrollmentStatusActive {
		return ErrInvalidTransition.WithMessage("enrollment is already active")
	}
	e.changeStatus(EnrollmentStatusActive, now)
	return nil
}

// IsActive reports whether balance changes are accepted
func (e *Enrollment) IsActive() bool {
	return e.Status == EnrollmentStatusActive
}

func (e *Enrollment) changeStatus(to EnrollmentStatus, now time.Time) {
	from := e.Status
	e.Status = to
	e.Touch(now)
	e.IncrementVersion()
	e.AddDomainEvent(NewEnrollmentStatusChangedEvent(e, from))
}

func (e *Enrollment) checkProgram(program *Program) error {
	if program == nil || program.ID != e.ProgramID {
		return ErrProgramNotFound
	}
	return nil
}

// append applies change and produces the matching ledger entry. This is the
// only place CurrentProgress moves.
func (e *Enrollment) append(kind TransactionKind, change decimal.Decimal, description, idempotencyKey string, now time.Time) *Transaction {
	e.TransactionCount++
	e.CurrentProgress = e.CurrentProgress.Add(change)
	e.LastActivityAt = &now
	e.Touch(now)
	e.IncrementVersion()

	return &Transaction{
		ID:             uuid.New(),
		TenantID:       e.TenantID,
		EnrollmentID:   e.ID,
		Sequence:       e.TransactionCount,
		Kind:           kind,
		ChangeAmount:   change,
		NewProgress:    e.CurrentProgress,
		Description:    description,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      now,
	}
}

func cleanDescription(desc, fallback string) (string, error) {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		desc = fallback
	}
	if len(desc) > maxDescriptionLength {
		return "", shared.ErrInvalidInput.WithMessage("description is too long")
	}
	return desc, nil
}
