package redemption

import "time"

type Status string

var (
	StatusPending   Status = "pending"
	StatusApplied   Status = "applied"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string {
	switch s {
	case StatusPending, StatusApplied, StatusExpired, StatusCancelled:
		return string(s)
	default:
		return ""
	}
}

type Type string

var (
	TypeVoucher  Type = "voucher"
	TypeDiscount Type = "discount"
)

// Redemption materialises a point deduction as a one-time-use discount token.
// It transitions pending -> applied exactly once and becomes unusable after
// ExpiresAt regardless of status.
type Redemption struct {
	ID             string     `gorm:"column:id;primaryKey"`
	UserID         string     `gorm:"column:user_id;index;not null"`
	PointsUsed     int64      `gorm:"column:points_used;not null"`
	DiscountAmount float64    `gorm:"column:discount_amount;not null"`
	Type           Type       `gorm:"column:type;type:varchar(20);not null"`
	Status         Status     `gorm:"column:status;type:varchar(20);not null;default:'pending'"`
	VoucherCode    *string    `gorm:"column:voucher_code;uniqueIndex"`
	BookingID      *string    `gorm:"column:booking_id;index"`
	ExpiresAt      time.Time  `gorm:"column:expires_at;not null"`
	AppliedAt      *time.Time `gorm:"column:applied_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Redemption) TableName() string { return "redemptions" }

// ExpiredAt reports whether the redemption is past its expiry at the given
// instant. Expiry is evaluated lazily at read and apply time; there is no
// background sweep.
func (r *Redemption) ExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// EffectiveStatus folds lazy expiry into the stored status.
func (r *Redemption) EffectiveStatus(now time.Time) Status {
	if r.Status == StatusPending && r.ExpiredAt(now) {
		return StatusExpired
	}
	return r.Status
}
