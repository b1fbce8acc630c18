package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const TaskReconcilePromoUsage = "reconcile:promo_usage"

// ReconcilePayload triggers a reconciliation run. An empty PromoCodeID means a
// full scan.
type ReconcilePayload struct {
	PromoCodeID string `json:"promo_code_id,omitempty"`
	TraceID     string `json:"trace_id,omitempty"`
}

func NewReconcileTask(payload ReconcilePayload) (*asynq.Task, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcilePromoUsage, b, asynq.Queue("loyalty")), nil
}

// HandleReconcileTask services on-demand reconciliation requests enqueued by
// the admin surface.
func (s *Service) HandleReconcileTask(ctx context.Context, t *asynq.Task) error {
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	zapLog := zap.L().With(
		zap.String("task_type", t.Type()),
		zap.String("trace_id", payload.TraceID),
	)

	if payload.PromoCodeID != "" {
		res, err := s.ReconcileOne(ctx, payload.PromoCodeID)
		if err != nil {
			zapLog.Error("failed to reconcile promo code", zap.String("promo_code_id", payload.PromoCodeID), zap.Error(err))
			return err
		}
		zapLog.Info("promo code reconciled",
			zap.String("promo_code_id", res.PromoCodeID),
			zap.Int64("old_count", res.OldCount),
			zap.Int64("new_count", res.NewCount),
			zap.Bool("updated", res.Updated),
		)
		return nil
	}

	summary, err := s.ReconcileAll(ctx)
	if err != nil {
		zapLog.Error("failed to reconcile promo usage", zap.Error(err))
		return err
	}
	zapLog.Info("promo usage reconciled",
		zap.Int("scanned", summary.Scanned),
		zap.Int("updated", summary.Updated),
		zap.Int("failed", summary.Failed),
	)
	return nil
}
