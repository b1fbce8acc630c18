package points

import (
	"time"

	"gorm.io/datatypes"
)

type TransactionType string

var (
	Earn       TransactionType = "earn"
	Redeem     TransactionType = "redeem"
	Refund     TransactionType = "refund"
	Adjustment TransactionType = "adjustment"
)

func (t TransactionType) String() string {
	switch t {
	case Earn, Redeem, Refund, Adjustment:
		return string(t)
	default:
		return ""
	}
}

type SourceType string

var (
	SourceBooking    SourceType = "booking"
	SourceRefund     SourceType = "refund"
	SourceRedemption SourceType = "redemption"
	SourceManual     SourceType = "manual"
)

// Account holds the live point balance of one user. Balance is derived state:
// balance = lifetime_earned - lifetime_redeemed, and never negative. Accounts
// are created lazily on first touch and never deleted.
type Account struct {
	ID               string    `gorm:"column:id;primaryKey"`
	UserID           string    `gorm:"column:user_id;uniqueIndex;not null"`
	Balance          int64     `gorm:"column:balance;not null;default:0"`
	LifetimeEarned   int64     `gorm:"column:lifetime_earned;not null;default:0"`
	LifetimeRedeemed int64     `gorm:"column:lifetime_redeemed;not null;default:0"`
	CurrentTier      string    `gorm:"column:current_tier;type:varchar(20)"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Account) TableName() string { return "points_accounts" }

// Transaction is one row of the append-only points ledger, the source of truth
// for balance derivation and auditing. Rows are immutable once written.
type Transaction struct {
	ID          string          `gorm:"column:id;primaryKey"`
	UserID      string          `gorm:"column:user_id;index;not null"`
	Type        TransactionType `gorm:"column:type;type:varchar(20);not null"`
	Points      int64           `gorm:"column:points;not null"` // signed delta: +earn, -redeem
	SourceType  SourceType      `gorm:"column:source_type;type:varchar(20)"`
	SourceID    string          `gorm:"column:source_id;index"`
	Description string          `gorm:"column:description;type:text"`
	Metadata    datatypes.JSON  `gorm:"column:metadata"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime;index"`
}

func (Transaction) TableName() string { return "points_transactions" }

// BalanceSnapshot is the read model returned by GetBalance.
type BalanceSnapshot struct {
	UserID           string      `json:"user_id"`
	Balance          int64       `json:"balance"`
	LifetimeEarned   int64       `json:"lifetime_earned"`
	LifetimeRedeemed int64       `json:"lifetime_redeemed"`
	Tier             TierDetail  `json:"tier"`
	NextTier         *TierDetail `json:"next_tier,omitempty"`
	PointsToNextTier int64       `json:"points_to_next_tier"`
	MaxTier          bool        `json:"max_tier"`
	CanRedeem        bool        `json:"can_redeem"`
}

// RedeemResult reports the outcome of a successful point redemption.
type RedeemResult struct {
	PointsUsed     int64   `json:"points_used"`
	DiscountAmount float64 `json:"discount_amount"`
	NewBalance     int64   `json:"new_balance"`
}

// HistoryFilter narrows GetHistory reads. Nil fields are ignored.
type HistoryFilter struct {
	Type *TransactionType
	From *time.Time
	To   *time.Time
}
