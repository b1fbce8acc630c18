package points

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"loyalty-engine/pkg/db/pagination"
	"loyalty-engine/pkg/errutil"
	"loyalty-engine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &Account{}, &Transaction{}, &Tier{})
	require.NoError(t, SeedTiers(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node, Opts: DefaultOptions()}), db
}

func TestCalculatePoints(t *testing.T) {
	require.Equal(t, int64(0), CalculatePoints(0))
	require.Equal(t, int64(0), CalculatePoints(-10))
	require.Equal(t, int64(0), CalculatePoints(0.99))
	require.Equal(t, int64(1), CalculatePoints(1))
	require.Equal(t, int64(149), CalculatePoints(149.99))
}

func TestAwardPointsCreatesAccountAndLedgerRow(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	balance, err := svc.AwardPoints(ctx, "user-1", 150, SourceBooking, "booking-1", "Booking completed")
	require.NoError(t, err)
	require.Equal(t, int64(150), balance)

	var acct Account
	require.NoError(t, db.Where("user_id = ?", "user-1").First(&acct).Error)
	require.Equal(t, int64(150), acct.Balance)
	require.Equal(t, int64(150), acct.LifetimeEarned)
	require.Equal(t, int64(0), acct.LifetimeRedeemed)
	require.Equal(t, "bronze", acct.CurrentTier)

	var entries []Transaction
	require.NoError(t, db.Where("user_id = ?", "user-1").Find(&entries).Error)
	require.Len(t, entries, 1)
	require.Equal(t, Earn, entries[0].Type)
	require.Equal(t, int64(150), entries[0].Points)
	require.Equal(t, "booking-1", entries[0].SourceID)
}

func TestAwardPointsPromotesTier(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.AwardPoints(ctx, "user-1", 600, SourceBooking, "booking-1", "big booking")
	require.NoError(t, err)

	var acct Account
	require.NoError(t, db.Where("user_id = ?", "user-1").First(&acct).Error)
	require.Equal(t, "silver", acct.CurrentTier)
}

func TestAwardPointsRejectsNonPositive(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AwardPoints(context.Background(), "user-1", 0, SourceBooking, "b", "")
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))
}

func TestRedeemPointsValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AwardPoints(ctx, "user-1", 500, SourceBooking, "booking-1", "")
	require.NoError(t, err)

	// Below the 100-point minimum.
	_, err = svc.RedeemPoints(ctx, "user-1", 99)
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))

	// Not a multiple of 100.
	_, err = svc.RedeemPoints(ctx, "user-1", 150)
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))
}

func TestRedeemPointsDiscountAmount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AwardPoints(ctx, "user-1", 500, SourceBooking, "booking-1", "")
	require.NoError(t, err)

	res, err := svc.RedeemPoints(ctx, "user-1", 200)
	require.NoError(t, err)
	require.Equal(t, int64(200), res.PointsUsed)
	require.Equal(t, 20.0, res.DiscountAmount)
	require.Equal(t, int64(300), res.NewBalance)
}

func TestRedeemPointsInsufficientBalance(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.AwardPoints(ctx, "user-1", 100, SourceBooking, "booking-1", "")
	require.NoError(t, err)

	_, err = svc.RedeemPoints(ctx, "user-1", 200)
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusInsufficientBalance))

	// The failed redemption must not leave a ledger row behind.
	var count int64
	require.NoError(t, db.Model(&Transaction{}).Where("user_id = ? AND type = ?", "user-1", Redeem).Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestConcurrentAwardAndRedeemKeepsInvariant(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.AwardPoints(ctx, "user-1", 1000, SourceBooking, "seed", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = svc.AwardPoints(ctx, "user-1", 100, SourceBooking, "booking", "")
		}()
		go func() {
			defer wg.Done()
			// Some of these fail with insufficient balance, which is fine.
			_, _ = svc.RedeemPoints(ctx, "user-1", 300)
		}()
	}
	wg.Wait()

	var acct Account
	require.NoError(t, db.Where("user_id = ?", "user-1").First(&acct).Error)
	require.Equal(t, acct.LifetimeEarned-acct.LifetimeRedeemed, acct.Balance)
	require.GreaterOrEqual(t, acct.Balance, int64(0))

	// The ledger must derive the same balance.
	var sum int64
	require.NoError(t, db.Model(&Transaction{}).
		Where("user_id = ?", "user-1").
		Select("COALESCE(SUM(points), 0)").
		Scan(&sum).Error)
	require.Equal(t, acct.Balance, sum)
}

func TestGetBalanceLazyCreate(t *testing.T) {
	svc, db := newTestService(t)

	snapshot, err := svc.GetBalance(context.Background(), "fresh-user")
	require.NoError(t, err)
	require.Equal(t, int64(0), snapshot.Balance)
	require.Equal(t, "bronze", snapshot.Tier.Name)
	require.False(t, snapshot.CanRedeem)

	var count int64
	require.NoError(t, db.Model(&Account{}).Where("user_id = ?", "fresh-user").Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestGetBalanceTierProgress(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AwardPoints(ctx, "user-1", 450, SourceBooking, "booking-1", "")
	require.NoError(t, err)

	snapshot, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "bronze", snapshot.Tier.Name)
	require.NotNil(t, snapshot.NextTier)
	require.Equal(t, "silver", snapshot.NextTier.Name)
	require.Equal(t, int64(50), snapshot.PointsToNextTier)
	require.False(t, snapshot.MaxTier)
	require.True(t, snapshot.CanRedeem)
}

func TestGetBalanceMaxTier(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AwardPoints(ctx, "user-1", 6000, SourceBooking, "booking-1", "")
	require.NoError(t, err)

	snapshot, err := svc.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "platinum", snapshot.Tier.Name)
	require.Nil(t, snapshot.NextTier)
	require.True(t, snapshot.MaxTier)
}

func TestGetHistoryOrderingAndFilter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AwardPoints(ctx, "user-1", 300, SourceBooking, "booking-1", "first")
	require.NoError(t, err)
	_, err = svc.AwardPoints(ctx, "user-1", 200, SourceBooking, "booking-2", "second")
	require.NoError(t, err)
	_, err = svc.RedeemPoints(ctx, "user-1", 100)
	require.NoError(t, err)

	entries, info, err := svc.GetHistory(ctx, "user-1", pagination.Params{Page: 1, Limit: 10}, HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, int64(3), info.Total)
	// Newest first.
	require.Equal(t, Redeem, entries[0].Type)

	redeemType := Redeem
	entries, info, err = svc.GetHistory(ctx, "user-1", pagination.Params{Page: 1, Limit: 10}, HistoryFilter{Type: &redeemType})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(1), info.Total)
	require.Equal(t, int64(-100), entries[0].Points)

	future := time.Now().Add(time.Hour)
	entries, _, err = svc.GetHistory(ctx, "user-1", pagination.Params{Page: 1, Limit: 10}, HistoryFilter{From: &future})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestGetHistoryPagination(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.AwardPoints(ctx, "user-1", 100, SourceBooking, "booking", "")
		require.NoError(t, err)
	}

	entries, info, err := svc.GetHistory(ctx, "user-1", pagination.Params{Page: 2, Limit: 2}, HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, int64(5), info.Total)
	require.Equal(t, int64(3), info.TotalPages)
	require.True(t, info.HasMore)
}

func TestTierForBoundaries(t *testing.T) {
	tiers := DefaultTiers()

	require.Equal(t, "bronze", tierFor(tiers, 0).TierName)
	require.Equal(t, "bronze", tierFor(tiers, 499).TierName)
	require.Equal(t, "silver", tierFor(tiers, 500).TierName)
	require.Equal(t, "gold", tierFor(tiers, 1500).TierName)
	require.Equal(t, "platinum", tierFor(tiers, 5000).TierName)
	require.Equal(t, "platinum", tierFor(tiers, 1_000_000).TierName)
}
