package redemption

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loyalty-engine/pkg/errutil"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options carries the voucher lifecycle rules.
type Options struct {
	VoucherTTL     time.Duration
	CodeAttempts   int
	MinPointsUsed  int64
	PointsUsedStep int64
}

func DefaultOptions() Options {
	return Options{
		VoucherTTL:     30 * 24 * time.Hour,
		CodeAttempts:   5,
		MinPointsUsed:  100,
		PointsUsedStep: 100,
	}
}

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	opts Options

	// codeFn is swapped out in tests to force collisions.
	codeFn func() (string, error)
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
	Opts Options
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		node:   p.Node,
		opts:   p.Opts,
		codeFn: NewVoucherCode,
	}
}

// CreateParams describes a redemption to materialise. BookingID binds the
// redemption immediately when the caller already knows the booking.
type CreateParams struct {
	UserID         string
	PointsUsed     int64
	DiscountAmount float64
	Type           Type
	BookingID      *string
}

// CreateRedemption turns a completed point deduction into a redemption record.
// Voucher-type redemptions get a generated code; on a code collision the
// insert is retried with a fresh code a bounded number of times.
func (s *Service) CreateRedemption(ctx context.Context, p CreateParams) (*Redemption, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if p.UserID == "" {
		return nil, errutil.ValidationFailed("user id is required")
	}
	if p.PointsUsed < s.opts.MinPointsUsed {
		return nil, errutil.ValidationFailed("minimum redemption is 100 points")
	}
	if p.PointsUsed%s.opts.PointsUsedStep != 0 {
		return nil, errutil.ValidationFailed("points must be redeemed in multiples of 100")
	}
	if p.Type != TypeVoucher && p.Type != TypeDiscount {
		return nil, errutil.ValidationFailed("unsupported redemption type")
	}

	now := time.Now()
	r := &Redemption{
		ID:             s.node.Generate().String(),
		UserID:         p.UserID,
		PointsUsed:     p.PointsUsed,
		DiscountAmount: p.DiscountAmount,
		Type:           p.Type,
		Status:         StatusPending,
		ExpiresAt:      now.Add(s.opts.VoucherTTL),
	}
	if p.BookingID != nil {
		r.Status = StatusApplied
		r.BookingID = p.BookingID
		r.AppliedAt = &now
	}

	if p.Type != TypeVoucher {
		if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
			return nil, errutil.Internal("failed to create redemption", err)
		}
		return r, nil
	}

	for attempt := 1; attempt <= s.opts.CodeAttempts; attempt++ {
		code, err := s.codeFn()
		if err != nil {
			return nil, errutil.Internal("failed to generate voucher code", err)
		}
		r.VoucherCode = &code

		err = s.db.WithContext(ctx).Create(r).Error
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Internal("failed to create redemption", err)
		}

		zap.L().Warn("voucher code collision, regenerating",
			zap.String("redemption_id", r.ID),
			zap.Int("attempt", attempt),
		)
	}

	return nil, errutil.Conflict("could not allocate a unique voucher code")
}

// ApplyRedemption consumes a pending redemption against a booking. The
// transition is one-way: applying a non-pending or expired redemption fails,
// and a concurrent double-apply loses on the conditional update.
func (s *Service) ApplyRedemption(ctx context.Context, redemptionID, userID, bookingID string) (*Redemption, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if bookingID == "" {
		return nil, errutil.ValidationFailed("booking id is required")
	}

	var r Redemption
	if err := s.db.WithContext(ctx).Where("id = ?", redemptionID).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("redemption not found")
		}
		return nil, errutil.Internal("failed to load redemption", err)
	}
	if r.UserID != userID {
		// Do not leak another user's redemption state.
		return nil, errutil.NotFound("redemption not found")
	}

	now := time.Now()
	if r.Status != StatusPending {
		return nil, errutil.InvalidRedemptionState(fmt.Sprintf("redemption is %s, not pending", r.Status))
	}
	if r.ExpiredAt(now) {
		return nil, errutil.InvalidRedemptionState("redemption has expired")
	}

	res := s.db.WithContext(ctx).Model(&Redemption{}).
		Where("id = ? AND status = ?", redemptionID, StatusPending).
		Updates(map[string]any{
			"status":     StatusApplied,
			"booking_id": bookingID,
			"applied_at": now,
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, errutil.Internal("failed to apply redemption", res.Error)
	}
	if res.RowsAffected == 0 {
		// Lost the race against another apply.
		return nil, errutil.InvalidRedemptionState("redemption is no longer pending")
	}

	if err := s.db.WithContext(ctx).Where("id = ?", redemptionID).First(&r).Error; err != nil {
		return nil, errutil.Internal("failed to reload redemption", err)
	}
	return &r, nil
}

// GetRedemption returns one redemption of the user with lazy expiry applied.
func (s *Service) GetRedemption(ctx context.Context, redemptionID, userID string) (*Redemption, error) {
	var r Redemption
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", redemptionID, userID).First(&r).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errutil.NotFound("redemption not found")
		}
		return nil, errutil.Internal("failed to load redemption", err)
	}
	r.Status = r.EffectiveStatus(time.Now())
	return &r, nil
}

// ListRedemptions returns the user's redemptions newest-first, optionally
// filtered by effective status.
func (s *Service) ListRedemptions(ctx context.Context, userID string, status *Status) ([]*Redemption, error) {
	if userID == "" {
		return nil, errutil.ValidationFailed("user id is required")
	}

	var list []*Redemption
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&list).Error; err != nil {
		return nil, errutil.Internal("failed to list redemptions", err)
	}

	now := time.Now()
	filtered := make([]*Redemption, 0, len(list))
	for _, r := range list {
		r.Status = r.EffectiveStatus(now)
		if status != nil && r.Status != *status {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}
