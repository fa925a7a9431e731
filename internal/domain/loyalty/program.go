package loyalty

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ProgramType is the unit a program accumulates
type ProgramType string

const (
	ProgramTypeStamps   ProgramType = "stamps"
	ProgramTypePoints   ProgramType = "points"
	ProgramTypeCashback ProgramType = "cashback"
)

// IsValid reports whether t is a known program type
func (t ProgramType) IsValid() bool {
	switch t {
	case ProgramTypeStamps, ProgramTypePoints, ProgramTypeCashback:
		return true
	}
	return false
}

// MaxAmount is the exclusive upper bound for amounts and balances. Ledger
// columns are DECIMAL(18,2).
var MaxAmount = decimal.New(1, 16)

// IsCounted reports whether balances are whole units (stamps, points)
func (t ProgramType) IsCounted() bool {
	return t == ProgramTypeStamps || t == ProgramTypePoints
}

// Scale is the number of decimal places balances keep for this type
func (t ProgramType) Scale() int32 {
	if t == ProgramTypeCashback {
		return 2
	}
	return 0
}

const maxRewardDescriptionLength = 255

// Program is a merchant-defined loyalty program. Only the reward
// description and the active flag may change after creation.
type Program struct {
	shared.TenantAggregateRoot
	Name              string
	Type              ProgramType
	Goal              *decimal.Decimal // stamps/points target, nil for cashback
	CashbackRate      decimal.Decimal  // fraction of the purchase, cashback only
	RewardDescription string
	InitialBalance    decimal.Decimal
	OneShot           bool
	Active            bool
}

// ProgramDefinition carries the fields needed to create a Program
type ProgramDefinition struct {
	Name              string
	Type              ProgramType
	Goal              *decimal.Decimal
	CashbackRate      decimal.Decimal
	RewardDescription string
	InitialBalance    decimal.Decimal
	OneShot           bool
}

// NewProgram validates def and creates an active program
func NewProgram(tenantID uuid.UUID, def ProgramDefinition) (*Program, error) {
	if tenantID == uuid.Nil {
		return nil, ErrInvalidProgram.WithMessage("owner is required")
	}
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return nil, ErrInvalidProgram.WithMessage("name is required")
	}
	if !def.Type.IsValid() {
		return nil, ErrInvalidProgram.WithMessage("type must be stamps, points or cashback")
	}

	p := &Program{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Name:                name,
		Type:                def.Type,
		OneShot:             def.OneShot,
		Active:              true,
	}

	if err := p.setRewardDescription(def.RewardDescription); err != nil {
		return nil, err
	}

	if def.Type.IsCounted() {
		if def.Goal == nil || !isWhole(*def.Goal) || def.Goal.LessThan(decimal.NewFromInt(1)) {
			return nil, ErrInvalidProgram.WithMessage("goal must be a whole number of at least 1")
		}
		if def.Goal.GreaterThanOrEqual(MaxAmount) {
			return nil, ErrInvalidProgram.WithMessage("goal is too large")
		}
		if !def.CashbackRate.IsZero() {
			return nil, ErrInvalidProgram.WithMessage("cashback rate only applies to cashback programs")
		}
		goal := *def.Goal
		p.Goal = &goal
	} else {
		if def.Goal != nil {
			return nil, ErrInvalidProgram.WithMessage("cashback programs have no goal")
		}
		if !def.CashbackRate.IsPositive() || def.CashbackRate.GreaterThan(decimal.NewFromInt(1)) {
			return nil, ErrInvalidProgram.WithMessage("cashback rate must be greater than 0 and at most 1")
		}
		p.CashbackRate = def.CashbackRate
	}

	if def.InitialBalance.IsNegative() {
		return nil, ErrInvalidProgram.WithMessage("initial balance cannot be negative")
	}
	if def.Type.IsCounted() && !isWhole(def.InitialBalance) {
		return nil, ErrInvalidProgram.WithMessage("initial balance must be a whole number")
	}
	if def.InitialBalance.Round(def.Type.Scale()).GreaterThanOrEqual(MaxAmount) {
		return nil, ErrInvalidProgram.WithMessage("initial balance is too large")
	}
	p.InitialBalance = def.InitialBalance.Round(def.Type.Scale())

	return p, nil
}

func (p *Program) setRewardDescription(desc string) error {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return ErrInvalidProgram.WithMessage("reward description is required")
	}
	if len(desc) > maxRewardDescriptionLength {
		return ErrInvalidProgram.WithMessage("reward description is too long")
	}
	p.RewardDescription = desc
	return nil
}

// UpdateRewardDescription changes the descriptive reward text
func (p *Program) UpdateRewardDescription(desc string, now time.Time) error {
	if err := p.setRewardDescription(desc); err != nil {
		return err
	}
	p.Touch(now)
	p.IncrementVersion()
	return nil
}

// Disable soft-disables the program. Existing balances can still be redeemed.
func (p *Program) Disable(now time.Time) {
	if !p.Active {
		return
	}
	p.Active = false
	p.Touch(now)
	p.IncrementVersion()
}

// Enable re-activates a disabled program
func (p *Program) Enable(now time.Time) {
	if p.Active {
		return
	}
	p.Active = true
	p.Touch(now)
	p.IncrementVersion()
}

// NormalizeAmount applies the program's unit rules to a positive amount:
// stamps and points are whole numbers of at least 1, cashback is rounded to
// cents and must stay above zero. Both stay below MaxAmount.
func (p *Program) NormalizeAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	normalized := amount
	if p.Type.IsCounted() {
		if !isWhole(amount) || amount.LessThan(decimal.NewFromInt(1)) {
			return decimal.Zero, ErrInvalidAmount.WithMessage(string(p.Type) + " amounts must be whole numbers of at least 1")
		}
	} else {
		normalized = amount.Round(2)
		if !normalized.IsPositive() {
			return decimal.Zero, ErrInvalidAmount.WithMessage("cashback amounts must be at least 0.01")
		}
	}
	if normalized.GreaterThanOrEqual(MaxAmount) {
		return decimal.Zero, ErrInvalidAmount.WithMessage("amount is too large")
	}
	return normalized, nil
}

// CashbackFor computes the cashback earned on a purchase
func (p *Program) CashbackFor(purchase decimal.Decimal) (decimal.Decimal, error) {
	if p.Type != ProgramTypeCashback {
		return decimal.Zero, ErrInvalidAmount.WithMessage("purchases only accrue on cashback programs")
	}
	if !purchase.IsPositive() {
		return decimal.Zero, ErrInvalidAmount.WithMessage("purchase amount must be positive")
	}
	return p.NormalizeAmount(purchase.Mul(p.CashbackRate))
}

// DefaultRedemptionCost is the goal for stamps/points programs
func (p *Program) DefaultRedemptionCost() (decimal.Decimal, bool) {
	if p.Goal == nil {
		return decimal.Zero, false
	}
	return *p.Goal, true
}

// GoalReached reports whether progress meets the goal
func (p *Program) GoalReached(progress decimal.Decimal) bool {
	return p.Goal != nil && progress.GreaterThanOrEqual(*p.Goal)
}

// FormatAmount renders a balance in the program's unit
func (p *Program) FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(p.Type.Scale())
}

// FormatChange renders a signed change, always with a sign
func (p *Program) FormatChange(d decimal.Decimal) string {
	s := d.StringFixed(p.Type.Scale())
	if d.IsPositive() {
		return "+" + s
	}
	return s
}

func isWhole(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(0))
}
