package loyalty

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/domain/shared"
	"github.com/loyalty/backend/internal/infrastructure/logger"
	"github.com/loyalty/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Locker serialises work on one key across processes
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// LedgerMetrics receives what domain events cannot carry: conflict retries
// and end-to-end latency
type LedgerMetrics interface {
	RecordRetry(ctx context.Context, operation string)
	RecordDuration(ctx context.Context, operation string, d time.Duration, err error)
}

// RetryPolicy bounds how concurrency conflicts are retried
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns the ledger defaults
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     200 * time.Millisecond,
	}
}

// DefaultHistoryPageSize is the page size GetHistory fetches when none is given
const DefaultHistoryPageSize = 50

// LedgerServiceConfig holds the collaborators of LedgerService
type LedgerServiceConfig struct {
	ProgramRepo     loyalty.ProgramRepository
	EnrollmentRepo  loyalty.EnrollmentRepository
	TransactionRepo loyalty.TransactionRepository
	TxManager       shared.TransactionManager
	// Locker is optional; the enrollment row lock is always taken
	Locker          Locker
	EventPublisher  shared.EventPublisher
	Metrics         LedgerMetrics
	Logger          *zap.Logger
	Retry           RetryPolicy
	HistoryPageSize int
	Clock           func() time.Time
}

// LedgerService is the only writer of balances. Every mutation of an
// enrollment appends exactly one ledger entry and moves the cached balance
// in the same storage transaction.
type LedgerService struct {
	programRepo     loyalty.ProgramRepository
	enrollmentRepo  loyalty.EnrollmentRepository
	transactionRepo loyalty.TransactionRepository
	txManager       shared.TransactionManager
	locker          Locker
	eventPublisher  shared.EventPublisher
	metrics         LedgerMetrics
	logger          *zap.Logger
	retry           RetryPolicy
	historyPageSize int
	now             func() time.Time
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(cfg LedgerServiceConfig) *LedgerService {
	s := &LedgerService{
		programRepo:     cfg.ProgramRepo,
		enrollmentRepo:  cfg.EnrollmentRepo,
		transactionRepo: cfg.TransactionRepo,
		txManager:       cfg.TxManager,
		locker:          cfg.Locker,
		eventPublisher:  cfg.EventPublisher,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		retry:           cfg.Retry,
		historyPageSize: cfg.HistoryPageSize,
		now:             cfg.Clock,
	}
	if s.locker == nil {
		s.locker = noopLocker{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.retry.MaxRetries < 0 {
		s.retry.MaxRetries = 0
	}
	if s.retry.InitialInterval <= 0 {
		s.retry.InitialInterval = DefaultRetryPolicy().InitialInterval
	}
	if s.retry.MaxInterval < s.retry.InitialInterval {
		s.retry.MaxInterval = s.retry.InitialInterval
	}
	if s.historyPageSize <= 0 {
		s.historyPageSize = DefaultHistoryPageSize
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// Accrue adds a positive amount to an enrollment's balance
func (s *LedgerService) Accrue(ctx context.Context, input AccrueInput) (*TransactionResponse, error) {
	return s.appendEntry(ctx, "accrue", input.TenantID, input.EnrollmentID, input.IdempotencyKey, loyalty.TransactionKindAccrual,
		func(e *loyalty.Enrollment, p *loyalty.Program, now time.Time) (*loyalty.Transaction, error) {
			return e.Accrue(p, input.Amount, input.Description, input.IdempotencyKey, now)
		})
}

// AccruePurchase credits the cashback a purchase earns. Only cashback
// programs accept purchases.
func (s *LedgerService) AccruePurchase(ctx context.Context, input PurchaseInput) (*TransactionResponse, error) {
	return s.appendEntry(ctx, "accrue_purchase", input.TenantID, input.EnrollmentID, input.IdempotencyKey, loyalty.TransactionKindAccrual,
		func(e *loyalty.Enrollment, p *loyalty.Program, now time.Time) (*loyalty.Transaction, error) {
			amount, err := p.CashbackFor(input.PurchaseAmount)
			if err != nil {
				return nil, err
			}
			desc := input.Description
			if desc == "" {
				desc = fmt.Sprintf("Cashback sobre compra de %s", input.PurchaseAmount.StringFixed(2))
			}
			return e.Accrue(p, amount, desc, input.IdempotencyKey, now)
		})
}

// Redeem deducts cost from the balance. The balance check and the write are
// one atomic step, so concurrent redemptions can never overdraw.
func (s *LedgerService) Redeem(ctx context.Context, input RedeemInput) (*TransactionResponse, error) {
	if input.Cost != nil && !input.Cost.IsPositive() {
		return nil, loyalty.ErrInvalidAmount.WithMessage("redemption cost must be positive")
	}
	return s.appendEntry(ctx, "redeem", input.TenantID, input.EnrollmentID, input.IdempotencyKey, loyalty.TransactionKindRedemption,
		func(e *loyalty.Enrollment, p *loyalty.Program, now time.Time) (*loyalty.Transaction, error) {
			return e.Redeem(p, input.Cost, input.Description, input.IdempotencyKey, now)
		})
}

// Expire closes an active enrollment without touching its balance
func (s *LedgerService) Expire(ctx context.Context, tenantID, enrollmentID uuid.UUID) (*EnrollmentResponse, error) {
	return s.changeStatus(ctx, "expire", tenantID, enrollmentID, (*loyalty.Enrollment).Expire)
}

// Reactivate reopens an expired or redeemed enrollment
func (s *LedgerService) Reactivate(ctx context.Context, tenantID, enrollmentID uuid.UUID) (*EnrollmentResponse, error) {
	return s.changeStatus(ctx, "reactivate", tenantID, enrollmentID, (*loyalty.Enrollment).Reactivate)
}

// GetBalance returns the cached balance. It takes no locks.
func (s *LedgerService) GetBalance(ctx context.Context, tenantID, enrollmentID uuid.UUID) (*BalanceResponse, error) {
	e, p, err := s.load(ctx, tenantID, enrollmentID)
	if err != nil {
		return nil, err
	}
	resp := ToBalanceResponse(e, p)
	return &resp, nil
}

// GetHistory returns the ledger of an enrollment newest first. Entries are
// fetched lazily pageSize at a time; every range over the sequence starts
// again from the newest entry. A failure is yielded once and ends the sequence.
func (s *LedgerService) GetHistory(ctx context.Context, tenantID, enrollmentID uuid.UUID, pageSize int) iter.Seq2[TransactionResponse, error] {
	if pageSize <= 0 {
		pageSize = s.historyPageSize
	}
	return func(yield func(TransactionResponse, error) bool) {
		e, p, err := s.load(ctx, tenantID, enrollmentID)
		if err != nil {
			yield(TransactionResponse{}, err)
			return
		}

		var before int64
		for {
			page, err := s.transactionRepo.ListByEnrollment(ctx, e.ID, before, pageSize)
			if err != nil {
				yield(TransactionResponse{}, err)
				return
			}
			for i := range page {
				if !yield(ToTransactionResponse(&page[i], p), nil) {
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			before = page[len(page)-1].Sequence
		}
	}
}

// ListHistory returns one newest-first page of the ledger. Sequences are
// contiguous per enrollment, so a page maps directly to a sequence range.
func (s *LedgerService) ListHistory(ctx context.Context, tenantID, enrollmentID uuid.UUID, page, pageSize int) (*shared.Paginated[TransactionResponse], error) {
	page, pageSize = shared.NormalizePage(page, pageSize, maxHistoryPageSize)

	e, p, err := s.load(ctx, tenantID, enrollmentID)
	if err != nil {
		return nil, err
	}
	total, err := s.transactionRepo.CountByEnrollment(ctx, e.ID)
	if err != nil {
		return nil, err
	}

	items := []TransactionResponse{}
	before := total - int64((page-1)*pageSize) + 1
	if before > 1 {
		txs, err := s.transactionRepo.ListByEnrollment(ctx, e.ID, before, pageSize)
		if err != nil {
			return nil, err
		}
		items = ToTransactionResponses(txs, p)
	}

	result := shared.NewPaginated(items, total, page, pageSize)
	return &result, nil
}

const (
	maxHistoryPageSize      = 100
	maxIdempotencyKeyLength = 128
)

// EnsureEnrollment returns the enrollment of a customer in a program,
// creating it on first use. Concurrent first enrollments converge on one
// row; created reports whether this call made it.
func (s *LedgerService) EnsureEnrollment(ctx context.Context, input EnsureEnrollmentInput) (resp *EnrollmentResponse, created bool, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "ensure_enrollment",
		telemetry.AttrTenantID.String(input.TenantID.String()),
		telemetry.AttrProgramID.String(input.ProgramID.String()),
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	identifier, _, err := loyalty.NormalizeIdentifier(input.CustomerIdentifier)
	if err != nil {
		return nil, false, err
	}
	program, err := s.programRepo.FindByID(ctx, input.TenantID, input.ProgramID)
	if err != nil {
		return nil, false, err
	}

	existing, err := s.enrollmentRepo.FindByKey(ctx, input.TenantID, identifier, program.ID)
	if err == nil {
		r := ToEnrollmentResponse(existing, program)
		return &r, false, nil
	}
	if !errors.Is(err, loyalty.ErrEnrollmentNotFound) {
		return nil, false, err
	}

	enrollment, opening, err := loyalty.NewEnrollment(input.TenantID, identifier, program, s.now())
	if err != nil {
		return nil, false, err
	}
	err = s.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.enrollmentRepo.Create(ctx, enrollment); err != nil {
			return err
		}
		if opening != nil {
			return s.transactionRepo.Append(ctx, opening)
		}
		return nil
	})
	if errors.Is(err, shared.ErrAlreadyExists) {
		// Lost the race against a concurrent first enrollment
		winner, findErr := s.enrollmentRepo.FindByKey(ctx, input.TenantID, identifier, program.ID)
		if findErr != nil {
			return nil, false, findErr
		}
		r := ToEnrollmentResponse(winner, program)
		return &r, false, nil
	}
	if err != nil {
		return nil, false, asLedgerError(err)
	}

	logger.WithLogger(ctx, s.logger).Info("Customer enrolled",
		zap.String("enrollment_id", enrollment.ID.String()),
		zap.String("program_id", program.ID.String()),
		zap.String("initial_balance", program.FormatAmount(enrollment.CurrentProgress)),
	)
	s.publishEvents(ctx, enrollment)

	r := ToEnrollmentResponse(enrollment, program)
	return &r, true, nil
}

// Audit replays an enrollment's ledger and checks it against the cached state
func (s *LedgerService) Audit(ctx context.Context, tenantID, enrollmentID uuid.UUID) (*AuditResponse, error) {
	e, _, err := s.load(ctx, tenantID, enrollmentID)
	if err != nil {
		return nil, err
	}
	txs, err := s.transactionRepo.ListAll(ctx, e.ID)
	if err != nil {
		return nil, err
	}

	report := loyalty.Audit(e, txs)
	if !report.Consistent() {
		logger.WithLogger(ctx, s.logger).Error("Ledger audit found violations",
			zap.String("enrollment_id", e.ID.String()),
			zap.Strings("violations", report.Violations),
		)
	}
	resp := ToAuditResponse(e.ID, report)
	return &resp, nil
}

// Statement returns the enrollment, its program and its full ledger oldest
// first, for printed statements
func (s *LedgerService) Statement(ctx context.Context, tenantID, enrollmentID uuid.UUID) (*loyalty.Enrollment, *loyalty.Program, []loyalty.Transaction, error) {
	e, p, err := s.load(ctx, tenantID, enrollmentID)
	if err != nil {
		return nil, nil, nil, err
	}
	txs, err := s.transactionRepo.ListAll(ctx, e.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	return e, p, txs, nil
}

// =============================================================================
// mutation pipeline
// =============================================================================

// change applies one mutation to a locked enrollment and returns the ledger
// entry it produced, or nil for status-only changes.
type change func(e *loyalty.Enrollment, p *loyalty.Program, now time.Time) (*loyalty.Transaction, error)

type outcome struct {
	enrollment *loyalty.Enrollment
	program    *loyalty.Program
	entry      *loyalty.Transaction
	replayed   bool
}

func (s *LedgerService) appendEntry(ctx context.Context, op string, tenantID, enrollmentID uuid.UUID, idempotencyKey string, kind loyalty.TransactionKind, fn change) (*TransactionResponse, error) {
	if len(idempotencyKey) > maxIdempotencyKeyLength {
		return nil, shared.ErrInvalidInput.WithMessage("idempotency key is too long")
	}
	out, err := s.mutate(ctx, op, tenantID, enrollmentID, idempotencyKey, kind, fn)
	if err != nil {
		return nil, err
	}
	resp := ToTransactionResponse(out.entry, out.program)
	resp.Replayed = out.replayed
	return &resp, nil
}

func (s *LedgerService) changeStatus(ctx context.Context, op string, tenantID, enrollmentID uuid.UUID, transition func(*loyalty.Enrollment, time.Time) error) (*EnrollmentResponse, error) {
	out, err := s.mutate(ctx, op, tenantID, enrollmentID, "", "",
		func(e *loyalty.Enrollment, _ *loyalty.Program, now time.Time) (*loyalty.Transaction, error) {
			return nil, transition(e, now)
		})
	if err != nil {
		return nil, err
	}
	resp := ToEnrollmentResponse(out.enrollment, out.program)
	return &resp, nil
}

// mutate runs fn under the enrollment lock and retries it while it loses
// the optimistic version check. Events are published once the storage
// transaction has committed.
func (s *LedgerService) mutate(ctx context.Context, op string, tenantID, enrollmentID uuid.UUID, idempotencyKey string, kind loyalty.TransactionKind, fn change) (out *outcome, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", op,
		telemetry.AttrTenantID.String(tenantID.String()),
		telemetry.AttrEnrollmentID.String(enrollmentID.String()),
	)
	start := time.Now()
	defer func() {
		s.metrics.RecordDuration(ctx, op, time.Since(start), err)
		telemetry.RecordError(span, err)
		span.End()
	}()

	attempt := 0
	operation := func() (*outcome, error) {
		attempt++
		if attempt > 1 {
			s.metrics.RecordRetry(ctx, op)
			span.SetAttributes(telemetry.AttrAttempt.Int(attempt))
			logger.WithLogger(ctx, s.logger).Debug("Retrying ledger operation after conflict",
				zap.String("operation", op),
				zap.String("enrollment_id", enrollmentID.String()),
				zap.Int("attempt", attempt),
			)
		}
		res, err := s.attempt(ctx, tenantID, enrollmentID, idempotencyKey, kind, fn)
		if err != nil && !errors.Is(err, shared.ErrConcurrencyConflict) {
			return nil, backoff.Permanent(err)
		}
		return res, err
	}

	out, err = backoff.RetryWithData(operation, backoff.WithContext(s.backOff(), ctx))
	if err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			logger.WithLogger(ctx, s.logger).Warn("Ledger operation gave up after conflicts",
				zap.String("operation", op),
				zap.String("enrollment_id", enrollmentID.String()),
				zap.Int("attempts", attempt),
			)
		}
		return nil, asLedgerError(err)
	}

	span.SetAttributes(telemetry.AttrProgramType.String(string(out.program.Type)))
	if !out.replayed {
		s.publishEvents(ctx, out.enrollment)
	}
	return out, nil
}

func (s *LedgerService) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.retry.InitialInterval),
		backoff.WithMaxInterval(s.retry.MaxInterval),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.WithMaxRetries(b, uint64(s.retry.MaxRetries))
}

// attempt is one locked read-modify-write of an enrollment
func (s *LedgerService) attempt(ctx context.Context, tenantID, enrollmentID uuid.UUID, idempotencyKey string, kind loyalty.TransactionKind, fn change) (*outcome, error) {
	var out *outcome
	err := s.locker.WithLock(ctx, enrollmentID.String(), func(ctx context.Context) error {
		return s.txManager.WithinTransaction(ctx, func(ctx context.Context) error {
			e, err := s.enrollmentRepo.FindByIDForUpdate(ctx, tenantID, enrollmentID)
			if err != nil {
				return err
			}
			p, err := s.programRepo.FindByID(ctx, tenantID, e.ProgramID)
			if err != nil {
				return err
			}

			if idempotencyKey != "" {
				prior, err := s.transactionRepo.FindByIdempotencyKey(ctx, e.ID, idempotencyKey)
				switch {
				case err == nil:
					if prior.Kind != kind {
						return shared.ErrInvalidInput.WithMessage("idempotency key was already used for a different operation")
					}
					out = &outcome{enrollment: e, program: p, entry: prior, replayed: true}
					return nil
				case !errors.Is(err, shared.ErrNotFound):
					return err
				}
			}

			entry, err := fn(e, p, s.now())
			if err != nil {
				return err
			}
			if entry != nil {
				if err := s.transactionRepo.Append(ctx, entry); err != nil {
					return err
				}
			}
			if err := s.enrollmentRepo.SaveWithLock(ctx, e); err != nil {
				return err
			}
			out = &outcome{enrollment: e, program: p, entry: entry}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *LedgerService) load(ctx context.Context, tenantID, enrollmentID uuid.UUID) (*loyalty.Enrollment, *loyalty.Program, error) {
	e, err := s.enrollmentRepo.FindByID(ctx, tenantID, enrollmentID)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.programRepo.FindByID(ctx, tenantID, e.ProgramID)
	if err != nil {
		return nil, nil, err
	}
	return e, p, nil
}

// publishEvents hands the aggregate's pending events to the bus. Failures
// are logged; the ledger write has already committed.
func (s *LedgerService) publishEvents(ctx context.Context, e *loyalty.Enrollment) {
	events := e.GetDomainEvents()
	e.ClearDomainEvents()
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		logger.WithLogger(ctx, s.logger).Warn("Failed to publish ledger events",
			zap.String("enrollment_id", e.ID.String()),
			zap.Int("events", len(events)),
			zap.Error(err),
		)
	}
}

// asLedgerError gives errors that escaped the repositories (commit
// failures, driver errors) the STORAGE_UNAVAILABLE code
func asLedgerError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := shared.AsDomainError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return shared.ErrStorageUnavailable.Wrap(err)
}

type noopLocker struct{}

func (noopLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type nopMetrics struct{}

func (nopMetrics) RecordRetry(context.Context, string)                          {}
func (nopMetrics) RecordDuration(context.Context, string, time.Duration, error) {}
