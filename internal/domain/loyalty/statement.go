package loyalty

import (
	"fmt"
	"io"
	"time"
)

// StatementTimeLayout is the timestamp layout used in printed statements
const StatementTimeLayout = "2006-01-02 15:04"

// WriteStatement prints a plain-text statement of txs (newest first) in the
// program's unit, as shown on printed receipts and in the operator CLI.
func WriteStatement(w io.Writer, p *Program, e *Enrollment, txs []Transaction, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	if _, err := fmt.Fprintf(w, "%s (%s) - %s\n", p.Name, p.Type, e.CustomerIdentifier); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Balance: %s", p.FormatAmount(e.CurrentProgress)); err != nil {
		return err
	}
	if goal, ok := p.DefaultRedemptionCost(); ok {
		if _, err := fmt.Fprintf(w, " / %s", p.FormatAmount(goal)); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, " [%s]\n", e.Status); err != nil {
		return err
	}
	for _, tx := range txs {
		_, err := fmt.Fprintf(w, "#%d %s %8s -> %8s  %s\n",
			tx.Sequence,
			tx.CreatedAt.In(loc).Format(StatementTimeLayout),
			p.FormatChange(tx.ChangeAmount),
			p.FormatAmount(tx.NewProgress),
			tx.Description,
		)
		if err != nil {
			return err
		}
	}
	return nil
}
