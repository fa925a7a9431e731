package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	loyaltyapp "github.com/loyalty/backend/internal/application/loyalty"
	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/infrastructure/persistence"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// LedgerOptions holds flags shared by the ledger inspection commands
type LedgerOptions struct {
	*RootOptions
	Tenant   string
	Timezone string
}

// NewAuditCommand creates the audit command
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit ENROLLMENT_ID...",
		Short: "Replay enrollment ledgers and compare them with the cached balances",
		Long: `Replay every ledger entry of each enrollment and check the sequence,
running totals and cached balance.

Exits non-zero when any ledger is inconsistent.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd.Context(), opts, cmd.OutOrStdout(), args)
		},
	}
	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "owner (merchant) ID (required)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

// NewStatementCommand creates the statement command
func NewStatementCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LedgerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "statement ENROLLMENT_ID",
		Short: "Print the ledger of one enrollment, newest entry first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatement(cmd.Context(), opts, cmd.OutOrStdout(), args[0])
		},
	}
	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "owner (merchant) ID (required)")
	cmd.Flags().StringVar(&opts.Timezone, "tz", "", "timezone for timestamps (default: app.timezone)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

// openLedger builds a LedgerService on the configured database. Nothing is
// published: the commands only read.
func (o *LedgerOptions) openLedger() (*loyaltyapp.LedgerService, *time.Location, func(), error) {
	cfg, log, err := o.load()
	if err != nil {
		return nil, nil, nil, err
	}

	db, err := persistence.NewDatabase(&cfg.Database, persistence.Options{})
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			log.Warn("Failed to close database", zap.Error(err))
		}
		_ = log.Sync()
	}

	loc := cfg.App.Location()
	if o.Timezone != "" {
		if loc, err = time.LoadLocation(o.Timezone); err != nil {
			closeFn()
			return nil, nil, nil, fmt.Errorf("invalid --tz: %w", err)
		}
	}

	svc := loyaltyapp.NewLedgerService(loyaltyapp.LedgerServiceConfig{
		ProgramRepo:     persistence.NewGormProgramRepository(db.DB),
		EnrollmentRepo:  persistence.NewGormEnrollmentRepository(db.DB),
		TransactionRepo: persistence.NewGormTransactionRepository(db.DB),
		TxManager:       persistence.NewGormTransactionManager(db.DB),
		Logger:          log,
	})
	return svc, loc, closeFn, nil
}

func parseIDs(tenant string, enrollments []string) (uuid.UUID, []uuid.UUID, error) {
	tenantID, err := uuid.Parse(tenant)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("invalid --tenant %q", tenant)
	}
	ids := make([]uuid.UUID, len(enrollments))
	for i, raw := range enrollments {
		if ids[i], err = uuid.Parse(raw); err != nil {
			return uuid.Nil, nil, fmt.Errorf("invalid enrollment ID %q", raw)
		}
	}
	return tenantID, ids, nil
}

func runAudit(ctx context.Context, opts *LedgerOptions, w io.Writer, args []string) error {
	tenantID, ids, err := parseIDs(opts.Tenant, args)
	if err != nil {
		return err
	}

	svc, _, closeFn, err := opts.openLedger()
	if err != nil {
		return err
	}
	defer closeFn()

	reports := make([]*loyaltyapp.AuditResponse, 0, len(ids))
	var broken []string
	for _, id := range ids {
		report, err := svc.Audit(ctx, tenantID, id)
		if err != nil {
			return fmt.Errorf("audit %s: %w", id, err)
		}
		reports = append(reports, report)
		if !report.Consistent {
			broken = append(broken, id.String())
		}
	}

	err = opts.print(w, reports, func(w io.Writer) error {
		for _, r := range reports {
			state := "ok"
			if !r.Consistent {
				state = "INCONSISTENT"
			}
			if _, err := fmt.Fprintf(w, "%s %s entries=%d replayed=%s cached=%s\n",
				r.EnrollmentID, state, r.TransactionCount, r.ReplayedBalance, r.CachedBalance); err != nil {
				return err
			}
			for _, v := range r.Violations {
				if _, err := fmt.Fprintf(w, "  - %s\n", v); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(broken) > 0 {
		return fmt.Errorf("inconsistent ledgers: %s", strings.Join(broken, ", "))
	}
	return nil
}

func runStatement(ctx context.Context, opts *LedgerOptions, w io.Writer, arg string) error {
	tenantID, ids, err := parseIDs(opts.Tenant, []string{arg})
	if err != nil {
		return err
	}

	svc, loc, closeFn, err := opts.openLedger()
	if err != nil {
		return err
	}
	defer closeFn()

	e, p, txs, err := svc.Statement(ctx, tenantID, ids[0])
	if err != nil {
		return err
	}
	// oldest first from storage; statements read newest first
	newestFirst := make([]loyalty.Transaction, len(txs))
	for i, tx := range txs {
		newestFirst[len(txs)-1-i] = tx
	}

	statement := struct {
		Enrollment   loyaltyapp.EnrollmentResponse    `json:"enrollment"`
		Transactions []loyaltyapp.TransactionResponse `json:"transactions"`
	}{
		Enrollment:   loyaltyapp.ToEnrollmentResponse(e, p),
		Transactions: loyaltyapp.ToTransactionResponses(newestFirst, p),
	}
	return opts.print(w, statement, func(w io.Writer) error {
		return loyalty.WriteStatement(w, p, e, newestFirst, loc)
	})
}
