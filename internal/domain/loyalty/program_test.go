package loyalty

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func stampsProgram(t *testing.T, tenantID uuid.UUID) *Program {
	t.Helper()
	p, err := NewProgram(tenantID, ProgramDefinition{
		Name:              "Cartão fidelidade",
		Type:              ProgramTypeStamps,
		Goal:              decPtr("10"),
		RewardDescription: "Um café grátis",
	})
	require.NoError(t, err)
	return p
}

func cashbackProgram(t *testing.T, tenantID uuid.UUID) *Program {
	t.Helper()
	p, err := NewProgram(tenantID, ProgramDefinition{
		Name:              "Cashback",
		Type:              ProgramTypeCashback,
		CashbackRate:      dec("0.05"),
		RewardDescription: "Desconto na próxima compra",
	})
	require.NoError(t, err)
	return p
}

func TestProgramType(t *testing.T) {
	assert.True(t, ProgramTypeStamps.IsValid())
	assert.True(t, ProgramTypeCashback.IsValid())
	assert.False(t, ProgramType("miles").IsValid())
	assert.True(t, ProgramTypePoints.IsCounted())
	assert.False(t, ProgramTypeCashback.IsCounted())
	assert.Equal(t, int32(2), ProgramTypeCashback.Scale())
	assert.Equal(t, int32(0), ProgramTypeStamps.Scale())
}

func TestNewProgram(t *testing.T) {
	tenantID := uuid.New()

	t.Run("creates active stamps program", func(t *testing.T) {
		p := stampsProgram(t, tenantID)
		assert.True(t, p.Active)
		assert.Equal(t, 1, p.Version)
		assert.True(t, p.Goal.Equal(dec("10")))
		assert.True(t, p.InitialBalance.IsZero())
	})

	invalid := []struct {
		name string
		def  ProgramDefinition
	}{
		{"missing name", ProgramDefinition{Type: ProgramTypeStamps, Goal: decPtr("5"), RewardDescription: "x"}},
		{"unknown type", ProgramDefinition{Name: "x", Type: "miles", RewardDescription: "x"}},
		{"stamps without goal", ProgramDefinition{Name: "x", Type: ProgramTypeStamps, RewardDescription: "x"}},
		{"fractional goal", ProgramDefinition{Name: "x", Type: ProgramTypePoints, Goal: decPtr("2.5"), RewardDescription: "x"}},
		{"cashback with goal", ProgramDefinition{Name: "x", Type: ProgramTypeCashback, Goal: decPtr("5"), CashbackRate: dec("0.1"), RewardDescription: "x"}},
		{"cashback rate above one", ProgramDefinition{Name: "x", Type: ProgramTypeCashback, CashbackRate: dec("1.5"), RewardDescription: "x"}},
		{"cashback rate zero", ProgramDefinition{Name: "x", Type: ProgramTypeCashback, RewardDescription: "x"}},
		{"rate on stamps", ProgramDefinition{Name: "x", Type: ProgramTypeStamps, Goal: decPtr("5"), CashbackRate: dec("0.1"), RewardDescription: "x"}},
		{"missing reward", ProgramDefinition{Name: "x", Type: ProgramTypeStamps, Goal: decPtr("5")}},
		{"negative initial balance", ProgramDefinition{Name: "x", Type: ProgramTypeStamps, Goal: decPtr("5"), RewardDescription: "x", InitialBalance: dec("-1")}},
		{"fractional initial stamps", ProgramDefinition{Name: "x", Type: ProgramTypeStamps, Goal: decPtr("5"), RewardDescription: "x", InitialBalance: dec("1.5")}},
		{"goal too large", ProgramDefinition{Name: "x", Type: ProgramTypePoints, Goal: decPtr("10000000000000000"), RewardDescription: "x"}},
		{"initial balance too large", ProgramDefinition{Name: "x", Type: ProgramTypeCashback, CashbackRate: dec("0.1"), RewardDescription: "x", InitialBalance: dec("10000000000000000")}},
	}
	for _, tc := range invalid {
		t.Run("rejects "+tc.name, func(t *testing.T) {
			_, err := NewProgram(tenantID, tc.def)
			assert.ErrorIs(t, err, ErrInvalidProgram)
		})
	}

	t.Run("rejects nil tenant", func(t *testing.T) {
		_, err := NewProgram(uuid.Nil, ProgramDefinition{Name: "x", Type: ProgramTypeStamps, Goal: decPtr("5"), RewardDescription: "x"})
		assert.ErrorIs(t, err, ErrInvalidProgram)
	})
}

func TestProgram_NormalizeAmount(t *testing.T) {
	tenantID := uuid.New()
	stamps := stampsProgram(t, tenantID)
	cashback := cashbackProgram(t, tenantID)

	t.Run("stamps accept whole numbers", func(t *testing.T) {
		got, err := stamps.NormalizeAmount(dec("3"))
		require.NoError(t, err)
		assert.True(t, got.Equal(dec("3")))
	})

	t.Run("stamps accept the largest storable amount", func(t *testing.T) {
		got, err := stamps.NormalizeAmount(dec("9999999999999999"))
		require.NoError(t, err)
		assert.True(t, got.Equal(dec("9999999999999999")))
	})

	for _, bad := range []string{"0", "-1", "1.5", "10000000000000000", "1e20"} {
		t.Run("stamps reject "+bad, func(t *testing.T) {
			_, err := stamps.NormalizeAmount(dec(bad))
			assert.ErrorIs(t, err, ErrInvalidAmount)
		})
	}

	t.Run("cashback rounds to cents", func(t *testing.T) {
		got, err := cashback.NormalizeAmount(dec("10.005"))
		require.NoError(t, err)
		assert.Equal(t, "10.01", got.StringFixed(2))
	})

	t.Run("cashback rejects amounts beyond the ledger columns", func(t *testing.T) {
		_, err := cashback.NormalizeAmount(dec("9999999999999999.995"))
		assert.ErrorIs(t, err, ErrInvalidAmount)
		_, err = cashback.NormalizeAmount(dec("10000000000000000.00"))
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("cashback rejects amounts rounding to zero", func(t *testing.T) {
		_, err := cashback.NormalizeAmount(dec("0.004"))
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestProgram_CashbackFor(t *testing.T) {
	tenantID := uuid.New()

	got, err := cashbackProgram(t, tenantID).CashbackFor(dec("87.30"))
	require.NoError(t, err)
	assert.Equal(t, "4.37", got.StringFixed(2))

	_, err = stampsProgram(t, tenantID).CashbackFor(dec("10"))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = cashbackProgram(t, tenantID).CashbackFor(dec("0"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestProgram_Mutations(t *testing.T) {
	p := stampsProgram(t, uuid.New())
	now := time.Now()

	require.NoError(t, p.UpdateRewardDescription("Dois cafés", now))
	assert.Equal(t, "Dois cafés", p.RewardDescription)
	assert.Equal(t, 2, p.Version)

	assert.ErrorIs(t, p.UpdateRewardDescription("  ", now), ErrInvalidProgram)

	p.Disable(now)
	assert.False(t, p.Active)
	assert.Equal(t, 3, p.Version)
	p.Disable(now)
	assert.Equal(t, 3, p.Version)

	p.Enable(now)
	assert.True(t, p.Active)
	assert.Equal(t, 4, p.Version)
}

func TestProgram_Formatting(t *testing.T) {
	tenantID := uuid.New()
	stamps := stampsProgram(t, tenantID)
	cashback := cashbackProgram(t, tenantID)

	assert.Equal(t, "7", stamps.FormatAmount(dec("7")))
	assert.Equal(t, "+4", stamps.FormatChange(dec("4")))
	assert.Equal(t, "-10", stamps.FormatChange(dec("-10")))
	assert.Equal(t, "5.50", cashback.FormatAmount(dec("5.5")))
	assert.Equal(t, "-10.00", cashback.FormatChange(dec("-10")))
	assert.True(t, stamps.GoalReached(dec("10")))
	assert.False(t, stamps.GoalReached(dec("9")))
	assert.False(t, cashback.GoalReached(dec("1000")))
}
