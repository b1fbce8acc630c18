package promo

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

type DiscountType string

var (
	Percentage DiscountType = "percentage"
	Flat       DiscountType = "flat"
)

// Code is a promo code definition. UsedCount is a denormalized read cache over
// the usage log; it may drift and is repaired by reconciliation. Enforcement
// always counts the log, never the cache.
type Code struct {
	ID                 string         `gorm:"column:id;primaryKey" json:"id"`
	Code               string         `gorm:"column:code;uniqueIndex;not null" json:"code"` // stored upper-cased, trimmed
	Description        string         `gorm:"column:description;type:text" json:"description,omitempty"`
	DiscountType       DiscountType   `gorm:"column:discount_type;type:varchar(20);not null" json:"discount_type"`
	DiscountValue      float64        `gorm:"column:discount_value;not null" json:"discount_value"`
	MinOrderAmount     *float64       `gorm:"column:min_order_amount" json:"min_order_amount,omitempty"`
	MaxDiscount        *float64       `gorm:"column:max_discount" json:"max_discount,omitempty"`
	TotalUsageLimit    *int64         `gorm:"column:total_usage_limit" json:"total_usage_limit,omitempty"`
	UsageLimitPerUser  int64          `gorm:"column:usage_limit_per_user;not null;default:1" json:"usage_limit_per_user"`
	ValidFrom          *time.Time     `gorm:"column:valid_from" json:"valid_from,omitempty"`
	ValidUntil         *time.Time     `gorm:"column:valid_until" json:"valid_until,omitempty"`
	FirstTimeOnly      bool           `gorm:"column:first_time_only;not null;default:false" json:"first_time_only"`
	ApplicableServices datatypes.JSON `gorm:"column:applicable_services" json:"applicable_services,omitempty"`
	UsedCount          int64          `gorm:"column:used_count;not null;default:0" json:"used_count"`
	IsActive           bool           `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt          time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Code) TableName() string { return "promo_codes" }

// Usage is the append-only ground truth of promo code consumption, written
// once per confirmed booking.
type Usage struct {
	ID             string    `gorm:"column:id;primaryKey"`
	PromoCodeID    string    `gorm:"column:promo_code_id;index;not null"`
	UserID         string    `gorm:"column:user_id;index;not null"`
	BookingID      string    `gorm:"column:booking_id;not null"`
	DiscountAmount float64   `gorm:"column:discount_amount;not null"`
	OrderAmount    float64   `gorm:"column:order_amount;not null"`
	UsedAt         time.Time `gorm:"column:used_at;autoCreateTime"`
}

func (Usage) TableName() string { return "promo_code_usages" }

// ValidationResult is the outcome of a promo code validation. Business-rule
// failures come back as Valid=false with a user-facing message, never as an
// error.
type ValidationResult struct {
	Valid    bool    `json:"valid"`
	Discount float64 `json:"discount"`
	Message  string  `json:"message,omitempty"`

	PromoCode *Code `json:"-"`
}

// NormalizeCode folds a user-supplied code into its canonical stored form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
