package points

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Tier is one row of the static loyalty tier catalog. Read-only at runtime;
// an account's tier is recomputed from lifetime_earned against this table.
type Tier struct {
	TierName           string         `gorm:"column:tier_name;primaryKey"`
	MinPoints          int64          `gorm:"column:min_points;not null"`
	MaxPoints          *int64         `gorm:"column:max_points"` // nil = open-ended top tier
	CashbackPercentage float64        `gorm:"column:cashback_percentage;not null;default:0"`
	Benefits           datatypes.JSON `gorm:"column:benefits"`
	BadgeIcon          string         `gorm:"column:badge_icon"`
	BadgeColor         string         `gorm:"column:badge_color"`
	CreatedAt          time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (Tier) TableName() string { return "loyalty_tiers" }

// TierDetail is the presentation shape of a tier inside balance snapshots.
type TierDetail struct {
	Name               string   `json:"name"`
	MinPoints          int64    `json:"min_points"`
	CashbackPercentage float64  `json:"cashback_percentage"`
	Benefits           []string `json:"benefits"`
	BadgeIcon          string   `json:"badge_icon"`
	BadgeColor         string   `json:"badge_color"`
}

func (t *Tier) Detail() TierDetail {
	var benefits []string
	if len(t.Benefits) > 0 {
		_ = json.Unmarshal(t.Benefits, &benefits)
	}
	return TierDetail{
		Name:               t.TierName,
		MinPoints:          t.MinPoints,
		CashbackPercentage: t.CashbackPercentage,
		Benefits:           benefits,
		BadgeIcon:          t.BadgeIcon,
		BadgeColor:         t.BadgeColor,
	}
}

// Contains reports whether lifetime falls inside this tier's point band.
func (t *Tier) Contains(lifetime int64) bool {
	if lifetime < t.MinPoints {
		return false
	}
	if t.MaxPoints != nil && lifetime > *t.MaxPoints {
		return false
	}
	return true
}

func benefitsJSON(items ...string) datatypes.JSON {
	b, _ := json.Marshal(items)
	return datatypes.JSON(b)
}

func intPtr(v int64) *int64 { return &v }

// DefaultTiers is the stock catalog seeded on first start.
func DefaultTiers() []Tier {
	return []Tier{
		{
			TierName:           "bronze",
			MinPoints:          0,
			MaxPoints:          intPtr(499),
			CashbackPercentage: 0,
			Benefits:           benefitsJSON("Earn 1 point per unit spent"),
			BadgeIcon:          "medal-bronze",
			BadgeColor:         "#CD7F32",
		},
		{
			TierName:           "silver",
			MinPoints:          500,
			MaxPoints:          intPtr(1499),
			CashbackPercentage: 1,
			Benefits:           benefitsJSON("Earn 1 point per unit spent", "1% cashback on bookings"),
			BadgeIcon:          "medal-silver",
			BadgeColor:         "#C0C0C0",
		},
		{
			TierName:           "gold",
			MinPoints:          1500,
			MaxPoints:          intPtr(4999),
			CashbackPercentage: 2,
			Benefits:           benefitsJSON("Earn 1 point per unit spent", "2% cashback on bookings", "Priority support"),
			BadgeIcon:          "medal-gold",
			BadgeColor:         "#FFD700",
		},
		{
			TierName:           "platinum",
			MinPoints:          5000,
			MaxPoints:          nil,
			CashbackPercentage: 3,
			Benefits:           benefitsJSON("Earn 1 point per unit spent", "3% cashback on bookings", "Priority support", "Exclusive offers"),
			BadgeIcon:          "medal-platinum",
			BadgeColor:         "#E5E4E2",
		},
	}
}

// SeedTiers inserts the default catalog, leaving existing rows untouched.
func SeedTiers(db *gorm.DB) error {
	tiers := DefaultTiers()
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&tiers).Error
}

// tierFor resolves the tier a lifetime-earned figure belongs to. Tiers must be
// sorted by min_points ascending.
func tierFor(tiers []Tier, lifetime int64) *Tier {
	for i := len(tiers) - 1; i >= 0; i-- {
		if lifetime >= tiers[i].MinPoints {
			return &tiers[i]
		}
	}
	if len(tiers) > 0 {
		return &tiers[0]
	}
	return nil
}

// nextTierAfter returns the tier following current, or nil at the top.
func nextTierAfter(tiers []Tier, current *Tier) *Tier {
	if current == nil {
		return nil
	}
	for i := range tiers {
		if tiers[i].MinPoints > current.MinPoints {
			return &tiers[i]
		}
	}
	return nil
}
