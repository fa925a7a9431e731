package telemetry

import (
	"context"
	"time"

	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/domain/shared"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	attrKind      = attribute.Key("kind")
	attrOperation = attribute.Key("operation")
	attrOutcome   = attribute.Key("outcome")
)

// LedgerMetrics counts ledger activity. It subscribes to the loyalty events
// for balance changes and is called directly by the ledger for retries and
// latency, which events cannot see.
type LedgerMetrics struct {
	enrollments *Counter
	entries     *Counter
	amount      *FloatCounter
	eligible    *Counter
	statuses    *Counter
	retries     *Counter
	duration    *Histogram
}

// NewLedgerMetrics registers the ledger instruments on meter
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &LedgerMetrics{}
	var err error
	if m.enrollments, err = NewCounter(meter, "loyalty_enrollments_created_total", "Customers enrolled in a program", "{enrollments}"); err != nil {
		return nil, err
	}
	if m.entries, err = NewCounter(meter, "loyalty_transactions_total", "Ledger entries appended", "{transactions}"); err != nil {
		return nil, err
	}
	if m.amount, err = NewFloatCounter(meter, "loyalty_amount_total", "Absolute balance moved, in program units", "{units}"); err != nil {
		return nil, err
	}
	if m.eligible, err = NewCounter(meter, "loyalty_redemption_eligible_total", "Enrollments that reached their program goal", "{enrollments}"); err != nil {
		return nil, err
	}
	if m.statuses, err = NewCounter(meter, "loyalty_status_changes_total", "Enrollment status transitions", "{changes}"); err != nil {
		return nil, err
	}
	if m.retries, err = NewCounter(meter, "loyalty_conflict_retries_total", "Ledger operations retried after a concurrency conflict", "{retries}"); err != nil {
		return nil, err
	}
	if m.duration, err = NewHistogram(meter, "loyalty_operation_duration_seconds", "Ledger mutation latency including retries", "s", SmallDurationBuckets...); err != nil {
		return nil, err
	}
	return m, nil
}

// EventTypes implements shared.EventHandler
func (m *LedgerMetrics) EventTypes() []string {
	return []string{
		loyalty.EventTypeEnrollmentCreated,
		loyalty.EventTypeBalanceAccrued,
		loyalty.EventTypeRewardRedeemed,
		loyalty.EventTypeRedemptionEligible,
		loyalty.EventTypeEnrollmentStatusChanged,
	}
}

// Handle implements shared.EventHandler
func (m *LedgerMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	tenant := AttrTenantID.String(event.TenantID().String())

	switch e := event.(type) {
	case *loyalty.EnrollmentCreatedEvent:
		m.enrollments.Inc(ctx, tenant)
	case *loyalty.BalanceAccruedEvent:
		attrs := []attribute.KeyValue{tenant, AttrProgramType.String(string(e.ProgramType)), attrKind.String(string(loyalty.TransactionKindAccrual))}
		m.entries.Inc(ctx, attrs...)
		m.amount.Add(ctx, e.Amount.InexactFloat64(), attrs...)
	case *loyalty.RewardRedeemedEvent:
		attrs := []attribute.KeyValue{tenant, AttrProgramType.String(string(e.ProgramType)), attrKind.String(string(loyalty.TransactionKindRedemption))}
		m.entries.Inc(ctx, attrs...)
		m.amount.Add(ctx, e.Cost.InexactFloat64(), attrs...)
	case *loyalty.RedemptionEligibleEvent:
		m.eligible.Inc(ctx, tenant)
	case *loyalty.EnrollmentStatusChangedEvent:
		m.statuses.Inc(ctx, tenant, attribute.String("to", string(e.To)))
	}
	return nil
}

// RecordRetry counts one conflict retry of operation
func (m *LedgerMetrics) RecordRetry(ctx context.Context, operation string) {
	m.retries.Inc(ctx, attrOperation.String(operation))
}

// RecordDuration records the latency of operation and whether it failed
func (m *LedgerMetrics) RecordDuration(ctx context.Context, operation string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if de, ok := shared.AsDomainError(err); ok {
			outcome = de.Code
		}
	}
	m.duration.RecordDuration(ctx, d, attrOperation.String(operation), attrOutcome.String(outcome))
}

var _ shared.EventHandler = (*LedgerMetrics)(nil)

// ErrMeterNil is returned when a meter is required but missing.
var ErrMeterNil = &MetricsError{Op: "NewLedgerMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
