package promo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"loyalty-engine/pkg/errutil"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BookingCounter reports how many completed bookings a user has. The checkout
// domain owns the bookings table; the validator only needs a count for the
// first-time-only rule.
type BookingCounter interface {
	CompletedBookings(ctx context.Context, userID string) (int64, error)
}

// BookingCounterFunc adapts a function to the BookingCounter interface.
type BookingCounterFunc func(ctx context.Context, userID string) (int64, error)

func (f BookingCounterFunc) CompletedBookings(ctx context.Context, userID string) (int64, error) {
	return f(ctx, userID)
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	bookings BookingCounter
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Bookings BookingCounter `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		bookings: p.Bookings,
	}
}

// Validate evaluates a promo code against an order. Rules run in a fixed
// order and short-circuit on the first failure, so the user always sees the
// most specific message. An empty userID is an anonymous preview and skips
// the per-user and first-time rules.
func (s *Service) Validate(ctx context.Context, code string, orderAmount float64, userID string) (*ValidationResult, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	normalized := NormalizeCode(code)

	var pc Code
	err := s.db.WithContext(ctx).Where("code = ? AND is_active = ?", normalized, true).First(&pc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ValidationResult{Valid: false, Message: "Invalid promo code"}, nil
		}
		return nil, errutil.Internal("failed to load promo code", err)
	}

	now := time.Now()
	if pc.ValidFrom != nil && now.Before(*pc.ValidFrom) {
		return &ValidationResult{Valid: false, Message: "Promo code is not yet valid"}, nil
	}
	if pc.ValidUntil != nil && now.After(*pc.ValidUntil) {
		return &ValidationResult{Valid: false, Message: "Promo code has expired"}, nil
	}

	if pc.MinOrderAmount != nil && orderAmount < *pc.MinOrderAmount {
		return &ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("Minimum order amount for this promo code is %.2f", *pc.MinOrderAmount),
		}, nil
	}

	if userID != "" {
		if pc.UsageLimitPerUser > 0 {
			var userUsage int64
			if err := s.db.WithContext(ctx).Model(&Usage{}).
				Where("promo_code_id = ? AND user_id = ?", pc.ID, userID).
				Count(&userUsage).Error; err != nil {
				return nil, errutil.Internal("failed to count user promo usage", err)
			}
			if userUsage >= pc.UsageLimitPerUser {
				return &ValidationResult{Valid: false, Message: "You have already used this promo code"}, nil
			}
		}

		if pc.FirstTimeOnly && s.bookings != nil {
			completed, err := s.bookings.CompletedBookings(ctx, userID)
			if err != nil {
				return nil, errutil.Internal("failed to count completed bookings", err)
			}
			if completed > 0 {
				return &ValidationResult{Valid: false, Message: "This promo code is for first-time customers only"}, nil
			}
		}
	}

	// Total usage is counted from the log, not the cached counter. The cache
	// exists for fast reads only.
	if pc.TotalUsageLimit != nil {
		var totalUsage int64
		if err := s.db.WithContext(ctx).Model(&Usage{}).
			Where("promo_code_id = ?", pc.ID).
			Count(&totalUsage).Error; err != nil {
			return nil, errutil.Internal("failed to count promo usage", err)
		}
		if totalUsage >= *pc.TotalUsageLimit {
			return &ValidationResult{Valid: false, Message: "Promo code usage limit reached"}, nil
		}
	}

	return &ValidationResult{
		Valid:     true,
		Discount:  computeDiscount(&pc, orderAmount),
		PromoCode: &pc,
	}, nil
}

// RecordUsage appends one usage row after a booking is confirmed. The cached
// used_count is bumped best-effort; a failed bump is logged and left for
// reconciliation to repair rather than failing the booking.
func (s *Service) RecordUsage(ctx context.Context, promoCodeID, userID, bookingID string, discountAmount, orderAmount float64) (*Usage, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if promoCodeID == "" || userID == "" || bookingID == "" {
		return nil, errutil.ValidationFailed("promo code id, user id and booking id are required")
	}

	usage := &Usage{
		ID:             s.node.Generate().String(),
		PromoCodeID:    promoCodeID,
		UserID:         userID,
		BookingID:      bookingID,
		DiscountAmount: discountAmount,
		OrderAmount:    orderAmount,
		UsedAt:         time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(usage).Error; err != nil {
		return nil, errutil.Internal("failed to record promo code usage", err)
	}

	if err := s.db.WithContext(ctx).Model(&Code{}).
		Where("id = ?", promoCodeID).
		UpdateColumn("used_count", gorm.Expr("used_count + 1")).Error; err != nil {
		zap.L().Warn("failed to bump cached used_count, reconciliation will repair",
			zap.String("promo_code_id", promoCodeID),
			zap.Error(err),
		)
	}

	return usage, nil
}

// CreateCode inserts a promo code definition with its code normalized.
func (s *Service) CreateCode(ctx context.Context, pc *Code) error {
	if pc.Code == "" {
		return errutil.ValidationFailed("promo code is required")
	}
	if pc.ID == "" {
		pc.ID = s.node.Generate().String()
	}
	pc.Code = NormalizeCode(pc.Code)

	err := s.db.WithContext(ctx).Create(pc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errutil.Conflict("promo code already exists")
		}
		return errutil.Internal("failed to create promo code", err)
	}
	return nil
}

// GetByCode loads a promo code definition for admin and support reads.
func (s *Service) GetByCode(ctx context.Context, code string) (*Code, error) {
	var pc Code
	err := s.db.WithContext(ctx).Where("code = ?", NormalizeCode(code)).First(&pc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("promo code not found")
		}
		return nil, errutil.Internal("failed to load promo code", err)
	}
	return &pc, nil
}

// ListActive returns active promo codes inside their validity window.
func (s *Service) ListActive(ctx context.Context) ([]*Code, error) {
	now := time.Now()
	var codes []*Code
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("valid_from IS NULL OR valid_from <= ?", now).
		Where("valid_until IS NULL OR valid_until >= ?", now).
		Order("code asc").
		Find(&codes).Error; err != nil {
		return nil, errutil.Internal("failed to list promo codes", err)
	}
	return codes, nil
}

func computeDiscount(pc *Code, orderAmount float64) float64 {
	var discount float64
	switch pc.DiscountType {
	case Percentage:
		discount = orderAmount * pc.DiscountValue / 100
	case Flat:
		discount = pc.DiscountValue
	}
	if pc.MaxDiscount != nil && discount > *pc.MaxDiscount {
		discount = *pc.MaxDiscount
	}
	return floorCents(discount)
}

// floorCents truncates to 2 decimal places, never rounding a discount up.
func floorCents(v float64) float64 {
	return math.Floor(v*100) / 100
}
