package loyalty

import (
	"context"

	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ActivityLogHandler writes one structured log line per ledger event. It is
// the hook a notification collaborator subscribes next to.
type ActivityLogHandler struct {
	logger *zap.Logger
}

// NewActivityLogHandler creates a new ActivityLogHandler
func NewActivityLogHandler(logger *zap.Logger) *ActivityLogHandler {
	return &ActivityLogHandler{logger: logger.Named("loyalty.activity")}
}

// EventTypes returns the event types this handler is interested in
func (h *ActivityLogHandler) EventTypes() []string {
	return []string{
		loyalty.EventTypeEnrollmentCreated,
		loyalty.EventTypeBalanceAccrued,
		loyalty.EventTypeRewardRedeemed,
		loyalty.EventTypeRedemptionEligible,
		loyalty.EventTypeEnrollmentStatusChanged,
	}
}

// Handle logs the event
func (h *ActivityLogHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_id", event.EventID().String()),
		zap.String("event_type", event.EventType()),
		zap.String("tenant_id", event.TenantID().String()),
		zap.String("enrollment_id", event.AggregateID().String()),
		zap.Time("occurred_at", event.OccurredAt()),
	}

	switch e := event.(type) {
	case *loyalty.EnrollmentCreatedEvent:
		fields = append(fields,
			zap.String("customer", e.CustomerIdentifier),
			zap.String("program_id", e.ProgramID.String()),
			zap.String("initial_balance", e.InitialBalance.String()),
		)
	case *loyalty.BalanceAccruedEvent:
		fields = append(fields,
			zap.String("customer", e.CustomerIdentifier),
			zap.String("program_type", string(e.ProgramType)),
			zap.String("amount", e.Amount.String()),
			zap.String("new_progress", e.NewProgress.String()),
		)
	case *loyalty.RewardRedeemedEvent:
		fields = append(fields,
			zap.String("customer", e.CustomerIdentifier),
			zap.String("reward", e.RewardDescription),
			zap.String("cost", e.Cost.String()),
			zap.String("new_progress", e.NewProgress.String()),
			zap.String("status", string(e.Status)),
		)
	case *loyalty.RedemptionEligibleEvent:
		fields = append(fields,
			zap.String("customer", e.CustomerIdentifier),
			zap.String("reward", e.RewardDescription),
			zap.String("progress", e.Progress.String()),
			zap.String("goal", e.Goal.String()),
		)
	case *loyalty.EnrollmentStatusChangedEvent:
		fields = append(fields,
			zap.String("from", string(e.From)),
			zap.String("to", string(e.To)),
		)
	default:
		h.logger.Warn("unexpected event type", zap.String("event_type", event.EventType()))
		return nil
	}

	h.logger.Info("loyalty activity", fields...)
	return nil
}

var _ shared.EventHandler = (*ActivityLogHandler)(nil)
