package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"prolist/internal/models"
	"prolist/internal/service"
	"prolist/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocker struct {
	acquired bool
	err      error
	releases int
}

func (l *fakeLocker) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return l.acquired, l.err
}

func (l *fakeLocker) ReleaseLock(ctx context.Context, lockKey string) error {
	l.releases++
	return nil
}

func seedDueWork(t *testing.T, mem *store.Memory, now time.Time) (orderID, auctionID int64) {
	t.Helper()
	ctx := context.Background()

	confirmedAt := now.Add(-80 * time.Hour)
	order := &models.Order{
		BuyerID:        1,
		VendorID:       2,
		ProductID:      3,
		Quantity:       1,
		TotalAmount:    15000,
		PaymentStatus:  models.PaymentStatusEscrowed,
		DeliveryStatus: models.DeliveryStatusConfirmed,
		BuyerConfirmed: true,
		ConfirmedAt:    &confirmedAt,
	}
	require.NoError(t, mem.CreateOrder(ctx, order))

	auction := &models.Auction{
		VendorID:      2,
		Title:         "Stale auction",
		StartingPrice: 1000,
		CurrentPrice:  1000,
		EndDate:       now.Add(-time.Hour),
		Status:        models.AuctionStatusActive,
	}
	require.NoError(t, mem.CreateAuction(ctx, auction))

	return order.ID, auction.ID
}

func newSweeperUnderTest(mem *store.Memory, locker SweepLocker) *Sweeper {
	orders := service.NewOrderService(mem, nil, 72*time.Hour, nil)
	auctions := service.NewAuctionService(mem, nil, nil)
	return NewSweeper(orders, auctions, locker, time.Minute)
}

func TestRunOnceSweepsBothTasks(t *testing.T) {
	mem := store.NewMemory()
	now := time.Now()
	orderID, auctionID := seedDueWork(t, mem, now)

	s := newSweeperUnderTest(mem, nil)
	s.RunOnce(context.Background(), now)

	ctx := context.Background()
	order, err := mem.GetOrderByID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusReleased, order.PaymentStatus)

	auction, err := mem.GetAuctionByID(ctx, auctionID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusEnded, auction.Status)
}

func TestRunOnceSkipsWhenLockHeldElsewhere(t *testing.T) {
	mem := store.NewMemory()
	now := time.Now()
	orderID, auctionID := seedDueWork(t, mem, now)

	s := newSweeperUnderTest(mem, &fakeLocker{acquired: false})
	s.RunOnce(context.Background(), now)

	ctx := context.Background()
	order, err := mem.GetOrderByID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusEscrowed, order.PaymentStatus)

	auction, err := mem.GetAuctionByID(ctx, auctionID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusActive, auction.Status)
}

func TestRunOnceSweepsDespiteLockError(t *testing.T) {
	mem := store.NewMemory()
	now := time.Now()
	orderID, _ := seedDueWork(t, mem, now)

	// A broken Redis must degrade to every replica sweeping, not to no
	// replica sweeping.
	s := newSweeperUnderTest(mem, &fakeLocker{err: errors.New("redis down")})
	s.RunOnce(context.Background(), now)

	order, err := mem.GetOrderByID(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusReleased, order.PaymentStatus)
}

func TestRunOnceReleasesLock(t *testing.T) {
	mem := store.NewMemory()
	locker := &fakeLocker{acquired: true}

	s := newSweeperUnderTest(mem, locker)
	s.RunOnce(context.Background(), time.Now())

	assert.Equal(t, 1, locker.releases)
}
