package loyalty

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AuditReport is the result of replaying an enrollment's ledger
type AuditReport struct {
	TransactionCount int
	ReplayedBalance  decimal.Decimal
	CachedBalance    decimal.Decimal
	Violations       []string
}

// Consistent reports whether the replay found no violations
func (r *AuditReport) Consistent() bool {
	return len(r.Violations) == 0
}

// Audit replays txs (oldest first) and checks them against the enrollment's
// cached state: contiguous sequences, a consistent running sum, no negative
// balance, non-decreasing timestamps and a cache equal to the last entry.
func Audit(e *Enrollment, txs []Transaction) AuditReport {
	report := AuditReport{
		TransactionCount: len(txs),
		CachedBalance:    e.CurrentProgress,
	}
	violate := func(format string, args ...any) {
		report.Violations = append(report.Violations, fmt.Sprintf(format, args...))
	}

	running := decimal.Zero
	for i, tx := range txs {
		want := int64(i + 1)
		if tx.Sequence != want {
			violate("sequence %d found where %d was expected", tx.Sequence, want)
		}
		if tx.EnrollmentID != e.ID {
			violate("transaction %s belongs to enrollment %s", tx.ID, tx.EnrollmentID)
		}
		running = running.Add(tx.ChangeAmount)
		if !tx.NewProgress.Equal(running) {
			violate("sequence %d records balance %s but replay gives %s", tx.Sequence, tx.NewProgress, running)
		}
		if tx.NewProgress.IsNegative() {
			violate("sequence %d leaves a negative balance %s", tx.Sequence, tx.NewProgress)
		}
		if i > 0 && tx.CreatedAt.Before(txs[i-1].CreatedAt) {
			violate("sequence %d is timestamped before sequence %d", tx.Sequence, txs[i-1].Sequence)
		}
	}
	report.ReplayedBalance = running

	if !running.Equal(e.CurrentProgress) {
		violate("cached balance %s differs from replayed balance %s", e.CurrentProgress, running)
	}
	if int64(len(txs)) != e.TransactionCount {
		violate("enrollment counts %d transactions but %d are stored", e.TransactionCount, len(txs))
	}
	if e.CurrentProgress.IsNegative() {
		violate("cached balance %s is negative", e.CurrentProgress)
	}
	return report
}
