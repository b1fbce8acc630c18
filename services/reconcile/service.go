package reconcile

import (
	"context"
	"errors"

	"loyalty-engine/pkg/errutil"
	"loyalty-engine/services/promo"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CodeResult records the repair of one promo code's cached counter.
type CodeResult struct {
	PromoCodeID string `json:"promo_code_id"`
	Code        string `json:"code"`
	OldCount    int64  `json:"old_count"`
	NewCount    int64  `json:"new_count"`
	Updated     bool   `json:"updated"`
}

// Summary reports one full reconciliation pass.
type Summary struct {
	Scanned    int          `json:"scanned"`
	Updated    int          `json:"updated"`
	Failed     int          `json:"failed"`
	Mismatches []CodeResult `json:"mismatches,omitempty"`
}

type Service struct {
	db *gorm.DB
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{db: p.DB}
}

// ReconcileAll repairs the cached used_count of every promo code against the
// authoritative usage log. Codes are processed independently, outside any
// shared transaction, so one failure never aborts the scan. Running it twice
// back to back finds zero mismatches the second time.
func (s *Service) ReconcileAll(ctx context.Context) (*Summary, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	var codes []promo.Code
	if err := s.db.WithContext(ctx).Order("code asc").Find(&codes).Error; err != nil {
		return nil, errutil.Internal("failed to list promo codes", err)
	}

	summary := &Summary{Scanned: len(codes)}
	for i := range codes {
		res, err := s.reconcileCode(ctx, &codes[i])
		if err != nil {
			zap.L().Error("failed to reconcile promo code, skipping",
				zap.String("promo_code_id", codes[i].ID),
				zap.String("code", codes[i].Code),
				zap.Error(err),
			)
			summary.Failed++
			continue
		}
		if res.Updated {
			summary.Updated++
			summary.Mismatches = append(summary.Mismatches, *res)
		}
	}

	zap.L().Info("promo usage reconciliation finished",
		zap.Int("scanned", summary.Scanned),
		zap.Int("updated", summary.Updated),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// ReconcileOne repairs a single promo code, used for targeted fixes after a
// reported discrepancy.
func (s *Service) ReconcileOne(ctx context.Context, promoCodeID string) (*CodeResult, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	var pc promo.Code
	if err := s.db.WithContext(ctx).Where("id = ?", promoCodeID).First(&pc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("promo code not found")
		}
		return nil, errutil.Internal("failed to load promo code", err)
	}

	return s.reconcileCode(ctx, &pc)
}

// reconcileCode overwrites the cache with a freshly computed count. The count
// may already be stale by the time it is written under live traffic; the next
// pass self-corrects.
func (s *Service) reconcileCode(ctx context.Context, pc *promo.Code) (*CodeResult, error) {
	var actual int64
	if err := s.db.WithContext(ctx).Model(&promo.Usage{}).
		Where("promo_code_id = ?", pc.ID).
		Count(&actual).Error; err != nil {
		return nil, err
	}

	res := &CodeResult{
		PromoCodeID: pc.ID,
		Code:        pc.Code,
		OldCount:    pc.UsedCount,
		NewCount:    actual,
	}
	if actual == pc.UsedCount {
		return res, nil
	}

	if err := s.db.WithContext(ctx).Model(&promo.Code{}).
		Where("id = ?", pc.ID).
		UpdateColumn("used_count", actual).Error; err != nil {
		return nil, err
	}

	res.Updated = true
	zap.L().Info("repaired cached promo usage counter",
		zap.String("promo_code_id", pc.ID),
		zap.String("code", pc.Code),
		zap.Int64("old_count", res.OldCount),
		zap.Int64("new_count", res.NewCount),
	)
	return res, nil
}
