package redemption

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"loyalty-engine/pkg/errutil"
	"loyalty-engine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &Redemption{})
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	return NewService(ServiceParams{DB: db, Node: node, Opts: DefaultOptions()}), db
}

func TestCreateRedemptionVoucher(t *testing.T) {
	svc, _ := newTestService(t)

	r, err := svc.CreateRedemption(context.Background(), CreateParams{
		UserID:         "user-1",
		PointsUsed:     200,
		DiscountAmount: 20,
		Type:           TypeVoucher,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, r.Status)
	require.NotNil(t, r.VoucherCode)
	require.True(t, strings.HasPrefix(*r.VoucherCode, "LOYAL-"))
	require.Nil(t, r.BookingID)
	require.Nil(t, r.AppliedAt)
	require.WithinDuration(t, time.Now().Add(30*24*time.Hour), r.ExpiresAt, time.Minute)
}

func TestCreateRedemptionWithBookingStartsApplied(t *testing.T) {
	svc, _ := newTestService(t)

	booking := "booking-1"
	r, err := svc.CreateRedemption(context.Background(), CreateParams{
		UserID:         "user-1",
		PointsUsed:     100,
		DiscountAmount: 10,
		Type:           TypeDiscount,
		BookingID:      &booking,
	})
	require.NoError(t, err)
	require.Equal(t, StatusApplied, r.Status)
	require.NotNil(t, r.BookingID)
	require.Equal(t, booking, *r.BookingID)
	require.NotNil(t, r.AppliedAt)
	require.Nil(t, r.VoucherCode)
}

func TestCreateRedemptionValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRedemption(ctx, CreateParams{UserID: "user-1", PointsUsed: 50, Type: TypeVoucher})
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))

	_, err = svc.CreateRedemption(ctx, CreateParams{UserID: "user-1", PointsUsed: 150, Type: TypeVoucher})
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))

	_, err = svc.CreateRedemption(ctx, CreateParams{UserID: "user-1", PointsUsed: 100, Type: Type("mystery")})
	require.True(t, errutil.HasStatus(err, errutil.StatusValidationFailed))
}

func TestCreateRedemptionRetriesOnCodeCollision(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// First redemption claims a fixed code.
	svc.codeFn = func() (string, error) { return "LOYAL-TAKEN111", nil }
	_, err := svc.CreateRedemption(ctx, CreateParams{UserID: "user-1", PointsUsed: 100, Type: TypeVoucher})
	require.NoError(t, err)

	// Second collides once, then succeeds with a fresh code.
	calls := 0
	svc.codeFn = func() (string, error) {
		calls++
		if calls == 1 {
			return "LOYAL-TAKEN111", nil
		}
		return "LOYAL-FRESH222", nil
	}
	r, err := svc.CreateRedemption(ctx, CreateParams{UserID: "user-2", PointsUsed: 100, Type: TypeVoucher})
	require.NoError(t, err)
	require.Equal(t, "LOYAL-FRESH222", *r.VoucherCode)
	require.Equal(t, 2, calls)
}

func TestCreateRedemptionCodeSpaceExhausted(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.codeFn = func() (string, error) { return "LOYAL-ONLYCODE", nil }
	_, err := svc.CreateRedemption(ctx, CreateParams{UserID: "user-1", PointsUsed: 100, Type: TypeVoucher})
	require.NoError(t, err)

	_, err = svc.CreateRedemption(ctx, CreateParams{UserID: "user-2", PointsUsed: 100, Type: TypeVoucher})
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusConflict))
}

func TestApplyRedemptionHappyPath(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.CreateRedemption(ctx, CreateParams{UserID: "user-1", PointsUsed: 100, Type: TypeVoucher})
	require.NoError(t, err)

	applied, err := svc.ApplyRedemption(ctx, r.ID, "user-1", "booking-7")
	require.NoError(t, err)
	require.Equal(t, StatusApplied, applied.Status)
	require.Equal(t, "booking-7", *applied.BookingID)
	require.NotNil(t, applied.AppliedAt)
}

func TestApplyRedemptionTwiceFails(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.CreateRedemption(ctx, CreateParams{UserID: "user-1", PointsUsed: 100, Type: TypeVoucher})
	require.NoError(t, err)

	_, err = svc.ApplyRedemption(ctx, r.ID, "user-1", "booking-7")
	require.NoError(t, err)

	_, err = svc.ApplyRedemption(ctx, r.ID, "user-1", "booking-8")
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusInvalidRedemptionState))
}

func TestApplyRedemptionExpired(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	r, err := svc.CreateRedemption(ctx, CreateParams{UserID: "user-1", PointsUsed: 100, Type: TypeVoucher})
	require.NoError(t, err)

	// Push the expiry into the past while the status is still pending.
	require.NoError(t, db.Model(&Redemption{}).
		Where("id = ?", r.ID).
		UpdateColumn("expires_at", time.Now().Add(-time.Hour)).Error)

	_, err = svc.ApplyRedemption(ctx, r.ID, "user-1", "booking-7")
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusInvalidRedemptionState))
}

func TestApplyRedemptionWrongOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.CreateRedemption(ctx, CreateParams{UserID: "user-1", PointsUsed: 100, Type: TypeVoucher})
	require.NoError(t, err)

	_, err = svc.ApplyRedemption(ctx, r.ID, "user-2", "booking-7")
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusNotFound))
}

func TestApplyRedemptionUnknownID(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ApplyRedemption(context.Background(), "missing", "user-1", "booking-7")
	require.Error(t, err)
	require.True(t, errutil.HasStatus(err, errutil.StatusNotFound))
}

func TestGetRedemptionReportsLazyExpiry(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	r, err := svc.CreateRedemption(ctx, CreateParams{UserID: "user-1", PointsUsed: 100, Type: TypeVoucher})
	require.NoError(t, err)

	require.NoError(t, db.Model(&Redemption{}).
		Where("id = ?", r.ID).
		UpdateColumn("expires_at", time.Now().Add(-time.Hour)).Error)

	got, err := svc.GetRedemption(ctx, r.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, StatusExpired, got.Status)
}

func TestListRedemptionsFiltersByEffectiveStatus(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	expired, err := svc.CreateRedemption(ctx, CreateParams{UserID: "user-1", PointsUsed: 100, Type: TypeVoucher})
	require.NoError(t, err)
	require.NoError(t, db.Model(&Redemption{}).
		Where("id = ?", expired.ID).
		UpdateColumn("expires_at", time.Now().Add(-time.Hour)).Error)

	_, err = svc.CreateRedemption(ctx, CreateParams{UserID: "user-1", PointsUsed: 200, Type: TypeVoucher})
	require.NoError(t, err)

	pending := StatusPending
	list, err := svc.ListRedemptions(ctx, "user-1", &pending)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, int64(200), list[0].PointsUsed)

	expiredStatus := StatusExpired
	list, err = svc.ListRedemptions(ctx, "user-1", &expiredStatus)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, expired.ID, list[0].ID)
}

func TestNewVoucherCodeShape(t *testing.T) {
	code, err := NewVoucherCode()
	require.NoError(t, err)
	require.Len(t, code, len("LOYAL-")+8)
	require.True(t, strings.HasPrefix(code, "LOYAL-"))
	require.NotContains(t, code[len("LOYAL-"):], "0")
	require.NotContains(t, code[len("LOYAL-"):], "O")
}
