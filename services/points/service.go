package points

import (
	"context"
	"errors"
	"math"
	"time"

	"loyalty-engine/pkg/db"
	"loyalty-engine/pkg/db/pagination"
	"loyalty-engine/pkg/errutil"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Options carries the redemption rules of the ledger.
type Options struct {
	RedemptionRate  float64 // currency units credited per point redeemed
	MinRedeemPoints int64
	RedeemStep      int64
}

func DefaultOptions() Options {
	return Options{
		RedemptionRate:  0.1,
		MinRedeemPoints: 100,
		RedeemStep:      100,
	}
}

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	opts Options
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
	Opts Options
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		opts: p.Opts,
	}
}

// CalculatePoints converts a booking amount into earned points: one point per
// whole currency unit spent.
func CalculatePoints(bookingAmount float64) int64 {
	if bookingAmount <= 0 {
		return 0
	}
	return int64(math.Floor(bookingAmount))
}

// AwardPoints credits points to a user inside a single transaction: the
// balance increment, the ledger row and the tier recompute commit together or
// not at all. The account is created lazily when absent.
func (s *Service) AwardPoints(ctx context.Context, userID string, points int64, sourceType SourceType, sourceID, description string) (int64, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if userID == "" {
		return 0, errutil.ValidationFailed("user id is required")
	}
	if points <= 0 {
		return 0, errutil.ValidationFailed("points to award must be positive")
	}

	var newBalance int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acct, err := s.lockAccount(ctx, tx, userID)
		if err != nil {
			return err
		}

		newLifetime := acct.LifetimeEarned + points
		updates := map[string]any{
			"balance":         gorm.Expr("balance + ?", points),
			"lifetime_earned": gorm.Expr("lifetime_earned + ?", points),
			"updated_at":      time.Now(),
		}

		var tiers []Tier
		if err := tx.Order("min_points asc").Find(&tiers).Error; err != nil {
			return err
		}
		if tier := tierFor(tiers, newLifetime); tier != nil && tier.TierName != acct.CurrentTier {
			updates["current_tier"] = tier.TierName
		}

		if err := tx.Model(&Account{}).Where("id = ?", acct.ID).Updates(updates).Error; err != nil {
			return err
		}

		entry := &Transaction{
			ID:          s.node.Generate().String(),
			UserID:      userID,
			Type:        Earn,
			Points:      points,
			SourceType:  sourceType,
			SourceID:    sourceID,
			Description: description,
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		newBalance = acct.Balance + points
		return nil
	})
	if err != nil {
		zap.L().Error("failed to award points",
			zap.String("user_id", userID),
			zap.Int64("points", points),
			zap.Error(err),
		)
		return 0, asLedgerError(err, "points award did not commit")
	}

	return newBalance, nil
}

// RedeemPoints deducts points in exchange for a discount amount. The balance
// check and the decrement run in the same transaction against a locked row, so
// two concurrent redemptions cannot both pass a stale check.
func (s *Service) RedeemPoints(ctx context.Context, userID string, pointsToRedeem int64) (*RedeemResult, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if userID == "" {
		return nil, errutil.ValidationFailed("user id is required")
	}
	if pointsToRedeem < s.opts.MinRedeemPoints {
		return nil, errutil.ValidationFailed("minimum redemption is 100 points")
	}
	if pointsToRedeem%s.opts.RedeemStep != 0 {
		return nil, errutil.ValidationFailed("points must be redeemed in multiples of 100")
	}

	var newBalance int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acct, err := s.lockAccount(ctx, tx, userID)
		if err != nil {
			return err
		}

		if acct.Balance < pointsToRedeem {
			return errutil.InsufficientBalance("insufficient points balance")
		}

		// Guarded decrement: the balance predicate re-checks under the lock so
		// the update is a no-op if another writer got in first.
		res := tx.Model(&Account{}).
			Where("id = ? AND balance >= ?", acct.ID, pointsToRedeem).
			Updates(map[string]any{
				"balance":           gorm.Expr("balance - ?", pointsToRedeem),
				"lifetime_redeemed": gorm.Expr("lifetime_redeemed + ?", pointsToRedeem),
				"updated_at":        time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.InsufficientBalance("insufficient points balance")
		}

		entry := &Transaction{
			ID:          s.node.Generate().String(),
			UserID:      userID,
			Type:        Redeem,
			Points:      -pointsToRedeem,
			SourceType:  SourceRedemption,
			Description: "Points redeemed for discount",
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		newBalance = acct.Balance - pointsToRedeem
		return nil
	})
	if err != nil {
		return nil, asLedgerError(err, "points redemption did not commit")
	}

	return &RedeemResult{
		PointsUsed:     pointsToRedeem,
		DiscountAmount: float64(pointsToRedeem) * s.opts.RedemptionRate,
		NewBalance:     newBalance,
	}, nil
}

// GetBalance returns the balance snapshot of a user, creating the account with
// zero balances when it does not exist yet.
func (s *Service) GetBalance(ctx context.Context, userID string) (*BalanceSnapshot, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if userID == "" {
		return nil, errutil.ValidationFailed("user id is required")
	}

	acct, err := s.ensureAccount(ctx, s.db.WithContext(ctx), userID)
	if err != nil {
		zap.L().Error("failed to load points account", zap.String("user_id", userID), zap.Error(err))
		return nil, errutil.Internal("failed to load points account", err)
	}

	var tiers []Tier
	if err := s.db.WithContext(ctx).Order("min_points asc").Find(&tiers).Error; err != nil {
		return nil, errutil.Internal("failed to load tier catalog", err)
	}

	snapshot := &BalanceSnapshot{
		UserID:           acct.UserID,
		Balance:          acct.Balance,
		LifetimeEarned:   acct.LifetimeEarned,
		LifetimeRedeemed: acct.LifetimeRedeemed,
		CanRedeem:        acct.Balance >= s.opts.MinRedeemPoints,
	}

	current := tierFor(tiers, acct.LifetimeEarned)
	if current != nil {
		snapshot.Tier = current.Detail()
	}
	if next := nextTierAfter(tiers, current); next != nil {
		d := next.Detail()
		snapshot.NextTier = &d
		snapshot.PointsToNextTier = next.MinPoints - acct.LifetimeEarned
	} else {
		snapshot.MaxTier = true
	}

	return snapshot, nil
}

// GetHistory reads the transaction log newest-first with offset pagination.
func (s *Service) GetHistory(ctx context.Context, userID string, page pagination.Params, filter HistoryFilter) ([]*Transaction, *pagination.PageInfo, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if userID == "" {
		return nil, nil, errutil.ValidationFailed("user id is required")
	}

	query := s.db.WithContext(ctx).Model(&Transaction{}).Where("user_id = ?", userID)
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, nil, errutil.Internal("failed to count ledger history", err)
	}

	var entries []*Transaction
	if err := query.
		Order("created_at DESC, id DESC").
		Scopes(pagination.Scope(page)).
		Find(&entries).Error; err != nil {
		return nil, nil, errutil.Internal("failed to query ledger history", err)
	}

	return entries, pagination.BuildPageInfo(page, total), nil
}

// ensureAccount creates the account idempotently (insert with conflict
// do-nothing on user_id) and reads it back, so concurrent first touches of the
// same user converge on one row.
func (s *Service) ensureAccount(ctx context.Context, tx *gorm.DB, userID string) (*Account, error) {
	fresh := &Account{
		ID:          s.node.Generate().String(),
		UserID:      userID,
		CurrentTier: "bronze",
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(fresh).Error; err != nil {
		return nil, err
	}

	var acct Account
	if err := tx.Where("user_id = ?", userID).First(&acct).Error; err != nil {
		return nil, err
	}
	return &acct, nil
}

// lockAccount is ensureAccount plus a row lock for the enclosing transaction.
func (s *Service) lockAccount(ctx context.Context, tx *gorm.DB, userID string) (*Account, error) {
	if _, err := s.ensureAccount(ctx, tx, userID); err != nil {
		return nil, err
	}

	var acct Account
	if err := tx.Scopes(db.LockingUpdate).Where("user_id = ?", userID).First(&acct).Error; err != nil {
		return nil, err
	}
	return &acct, nil
}

// asLedgerError keeps domain errors intact and wraps infrastructure failures
// as account errors, so callers never mistake a rollback for partial success.
func asLedgerError(err error, msg string) error {
	var be errutil.BaseError
	if errors.As(err, &be) {
		return err
	}
	return errutil.AccountFailure(msg, err)
}
