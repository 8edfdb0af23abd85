package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"prolist/internal/models"
	"prolist/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is an injectable clock shared by all engines in a fixture.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	mem        *store.Memory
	dispatcher *Dispatcher
	clock      *fakeClock

	orders   *OrderService
	auctions *AuctionService
	vendors  *VendorService
	catalog  *CatalogService

	buyer   *models.User
	bidder  *models.User
	vendor  *models.User
	admin   *models.User
	product *models.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	mem := store.NewMemory()
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	dispatcher := NewDispatcher(mem, nil, clock.Now)
	events := NewDirectPublisher(dispatcher)

	buyer := &models.User{Username: "amina", Role: models.RoleBuyer}
	bidder := &models.User{Username: "nfor", Role: models.RoleBuyer}
	vendor := &models.User{Username: "tabi", Role: models.RoleVendor, VerificationStatus: models.VerificationBasic}
	admin := &models.User{Username: "ops", Role: models.RoleAdmin}
	for _, u := range []*models.User{buyer, bidder, vendor, admin} {
		require.NoError(t, mem.CreateUser(ctx, u))
	}

	product := &models.Product{
		VendorID: vendor.ID,
		Title:    "Solar lamp",
		Category: "electronics",
		Price:    15000,
		Location: "Bamenda",
		Status:   models.ProductStatusActive,
	}
	require.NoError(t, mem.CreateProduct(ctx, product))

	return &fixture{
		mem:        mem,
		dispatcher: dispatcher,
		clock:      clock,
		orders:     NewOrderService(mem, events, 72*time.Hour, clock.Now),
		auctions:   NewAuctionService(mem, events, clock.Now),
		vendors:    NewVendorService(mem, events, clock.Now),
		catalog:    NewCatalogService(mem, clock.Now),
		buyer:      buyer,
		bidder:     bidder,
		vendor:     vendor,
		admin:      admin,
		product:    product,
	}
}

// notificationCount returns how many notifications of one type a user has.
func (f *fixture) notificationCount(t *testing.T, userID int64, eventType string) int {
	t.Helper()
	notifications, err := f.mem.GetNotificationsByUserID(context.Background(), userID)
	require.NoError(t, err)
	count := 0
	for _, n := range notifications {
		if n.Type == eventType {
			count++
		}
	}
	return count
}

func (f *fixture) newOrder(t *testing.T) *models.Order {
	t.Helper()
	order, err := f.orders.CreateOrder(context.Background(), &CreateOrderRequest{
		BuyerID:        f.buyer.ID,
		ProductID:      f.product.ID,
		Quantity:       2,
		PaymentMethod:  "mtn_momo",
		DeliveryMethod: "pickup",
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) escrowedOrder(t *testing.T) *models.Order {
	t.Helper()
	order := f.newOrder(t)
	order, err := f.orders.CapturePayment(context.Background(), order.ID)
	require.NoError(t, err)
	return order
}

func (f *fixture) confirmedOrder(t *testing.T) *models.Order {
	t.Helper()
	ctx := context.Background()
	order := f.escrowedOrder(t)
	_, err := f.orders.MarkDelivered(ctx, order.ID, f.vendor.ID)
	require.NoError(t, err)
	order, err = f.orders.ConfirmReceipt(ctx, order.ID, f.buyer.ID, "https://cdn.prolist.cm/proof/1.jpg")
	require.NoError(t, err)
	return order
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)

	order := f.newOrder(t)

	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, models.DeliveryStatusPending, order.DeliveryStatus)
	assert.Equal(t, f.vendor.ID, order.VendorID)
	assert.Equal(t, int64(30000), order.TotalAmount) // 2 x 15000, server-computed
	assert.False(t, order.BuyerConfirmed)
	assert.Nil(t, order.ConfirmedAt)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orders.CreateOrder(ctx, &CreateOrderRequest{
		BuyerID: f.buyer.ID, ProductID: f.product.ID, Quantity: 0,
		PaymentMethod: "mtn_momo", DeliveryMethod: "pickup",
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.orders.CreateOrder(ctx, &CreateOrderRequest{
		BuyerID: f.buyer.ID, ProductID: 9999, Quantity: 1,
		PaymentMethod: "mtn_momo", DeliveryMethod: "pickup",
	})
	assert.ErrorIs(t, err, ErrNotFound)

	// Vendors cannot buy their own listings.
	_, err = f.orders.CreateOrder(ctx, &CreateOrderRequest{
		BuyerID: f.vendor.ID, ProductID: f.product.ID, Quantity: 1,
		PaymentMethod: "mtn_momo", DeliveryMethod: "pickup",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCapturePaymentIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.newOrder(t)

	first, err := f.orders.CapturePayment(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusEscrowed, first.PaymentStatus)

	// Gateway webhook retries must be harmless.
	for i := 0; i < 3; i++ {
		again, err := f.orders.CapturePayment(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusEscrowed, again.PaymentStatus)
	}

	assert.Equal(t, 1, f.notificationCount(t, f.vendor.ID, models.EventTypeOrderEscrowed))
}

func TestCapturePaymentTerminalOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.escrowedOrder(t)

	_, err := f.orders.Refund(ctx, order.ID, f.admin.ID)
	require.NoError(t, err)

	_, err = f.orders.CapturePayment(ctx, order.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestMarkDelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.escrowedOrder(t)

	_, err := f.orders.MarkDelivered(ctx, order.ID, f.buyer.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	delivered, err := f.orders.MarkDelivered(ctx, order.ID, f.vendor.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusDelivered, delivered.DeliveryStatus)

	_, err = f.orders.MarkDelivered(ctx, order.ID, f.vendor.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.Equal(t, 1, f.notificationCount(t, f.buyer.ID, models.EventTypeOrderDelivered))
}

func TestMarkDeliveredRequiresEscrow(t *testing.T) {
	f := newFixture(t)
	order := f.newOrder(t)

	_, err := f.orders.MarkDelivered(context.Background(), order.ID, f.vendor.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestConfirmReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.escrowedOrder(t)
	_, err := f.orders.MarkDelivered(ctx, order.ID, f.vendor.ID)
	require.NoError(t, err)

	confirmedAt := f.clock.Now()
	confirmed, err := f.orders.ConfirmReceipt(ctx, order.ID, f.buyer.ID, "https://cdn.prolist.cm/proof/1.jpg")
	require.NoError(t, err)
	assert.True(t, confirmed.BuyerConfirmed)
	require.NotNil(t, confirmed.ConfirmedAt)
	assert.True(t, confirmed.ConfirmedAt.Equal(confirmedAt))
	assert.Equal(t, models.DeliveryStatusConfirmed, confirmed.DeliveryStatus)
}

func TestConfirmReceiptOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.confirmedOrder(t)
	firstConfirmedAt := *order.ConfirmedAt

	f.clock.Advance(time.Hour)
	_, err := f.orders.ConfirmReceipt(ctx, order.ID, f.buyer.ID, "https://cdn.prolist.cm/proof/2.jpg")
	assert.ErrorIs(t, err, ErrInvalidState)

	// confirmed_at never rewrites.
	reloaded, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.ConfirmedAt)
	assert.True(t, reloaded.ConfirmedAt.Equal(firstConfirmedAt))
	assert.Equal(t, "https://cdn.prolist.cm/proof/1.jpg", reloaded.DeliveryProofURL)
}

func TestConfirmReceiptGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.newOrder(t)
	_, err := f.orders.ConfirmReceipt(ctx, pending.ID, f.buyer.ID, "receipt-handle-17")
	assert.ErrorIs(t, err, ErrInvalidState)

	escrowed := f.escrowedOrder(t)
	_, err = f.orders.ConfirmReceipt(ctx, escrowed.ID, f.vendor.ID, "receipt-handle-17")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.orders.ConfirmReceipt(ctx, escrowed.ID, f.buyer.ID, "   ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestValidateProofRef(t *testing.T) {
	cases := []struct {
		name  string
		proof string
		valid bool
	}{
		{"empty", "", false},
		{"whitespace", "  ", false},
		{"opaque handle", "momo-receipt-8812", true},
		{"valid url", "https://cdn.prolist.cm/proof/1.jpg", true},
		{"url without host", "https://", false},
		{"oversized", string(make([]byte, 600)), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateProofRef(tc.proof)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrValidation)
			}
		})
	}
}

func TestReleaseFundsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.confirmedOrder(t)

	released, err := f.orders.ReleaseFunds(ctx, order.ID, f.admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusReleased, released.PaymentStatus)

	// Retries land on the terminal state and change nothing.
	for i := 0; i < 3; i++ {
		again, err := f.orders.ReleaseFunds(ctx, order.ID, f.admin.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusReleased, again.PaymentStatus)
	}

	assert.Equal(t, 1, f.notificationCount(t, f.vendor.ID, models.EventTypeOrderReleased))

	product, err := f.mem.GetProductByID(ctx, f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, product.SalesCount)
	assert.Equal(t, models.ProductStatusSold, product.Status)
}

func TestReleaseFundsGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	escrowed := f.escrowedOrder(t)
	_, err := f.orders.ReleaseFunds(ctx, escrowed.ID, f.buyer.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	// Release requires buyer confirmation, never just delivery.
	_, err = f.orders.MarkDelivered(ctx, escrowed.ID, f.vendor.ID)
	require.NoError(t, err)
	_, err = f.orders.ReleaseFunds(ctx, escrowed.ID, f.admin.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestReleaseAfterRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.confirmedOrder(t)

	_, err := f.orders.Refund(ctx, order.ID, f.admin.ID)
	require.NoError(t, err)

	_, err = f.orders.ReleaseFunds(ctx, order.ID, f.admin.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.escrowedOrder(t)

	_, err := f.orders.Refund(ctx, order.ID, f.buyer.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	refunded, err := f.orders.Refund(ctx, order.ID, f.admin.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, refunded.PaymentStatus)

	_, err = f.orders.Refund(ctx, order.ID, f.admin.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	assert.Equal(t, 1, f.notificationCount(t, f.buyer.ID, models.EventTypeOrderRefunded))
}

func TestAutoReleaseSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.confirmedOrder(t)

	// One hour short of the 72h window: nothing is due.
	released, err := f.orders.AutoReleaseSweep(ctx, f.clock.Now().Add(71*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, released)

	released, err = f.orders.AutoReleaseSweep(ctx, f.clock.Now().Add(72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	reloaded, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusReleased, reloaded.PaymentStatus)

	// Redundant sweeps are no-ops.
	released, err = f.orders.AutoReleaseSweep(ctx, f.clock.Now().Add(80*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, released)
	assert.Equal(t, 1, f.notificationCount(t, f.vendor.ID, models.EventTypeOrderReleased))
}

func TestAutoReleaseIgnoresUnconfirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order := f.escrowedOrder(t)
	_, err := f.orders.MarkDelivered(ctx, order.ID, f.vendor.ID)
	require.NoError(t, err)

	// Delivered but never confirmed: escrow waits for the dispute channel,
	// no matter how old the order is.
	released, err := f.orders.AutoReleaseSweep(ctx, f.clock.Now().Add(1000*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, released)
}

func TestConcurrentReleaseFiresOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.confirmedOrder(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.orders.ReleaseFunds(ctx, order.ID, f.admin.ID)
		}()
	}
	wg.Wait()

	reloaded, err := f.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusReleased, reloaded.PaymentStatus)
	assert.Equal(t, 1, f.notificationCount(t, f.vendor.ID, models.EventTypeOrderReleased))
}

// paymentRank orders statuses along the only legal direction of travel.
var paymentRank = map[string]int{
	models.PaymentStatusPending:  0,
	models.PaymentStatusEscrowed: 1,
	models.PaymentStatusReleased: 2,
	models.PaymentStatusRefunded: 2,
}

func TestPaymentStatusNeverMovesBackward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.newOrder(t)

	actions := []func() error{
		func() error { _, err := f.orders.CapturePayment(ctx, order.ID); return err },
		func() error { _, err := f.orders.MarkDelivered(ctx, order.ID, f.vendor.ID); return err },
		func() error {
			_, err := f.orders.ConfirmReceipt(ctx, order.ID, f.buyer.ID, "receipt-1")
			return err
		},
		func() error { _, err := f.orders.ReleaseFunds(ctx, order.ID, f.admin.ID); return err },
		func() error { _, err := f.orders.Refund(ctx, order.ID, f.admin.ID); return err },
	}

	// Hammer the lifecycle in a fixed but unordered pattern; every
	// interleaving must keep payment status monotone.
	last := paymentRank[models.PaymentStatusPending]
	for round := 0; round < 6; round++ {
		for i := range actions {
			_ = actions[(i+round*3)%len(actions)]()

			current, err := f.orders.GetOrder(ctx, order.ID)
			require.NoError(t, err)
			rank := paymentRank[current.PaymentStatus]
			assert.GreaterOrEqual(t, rank, last,
				"payment status regressed to %s", current.PaymentStatus)
			last = rank
		}
	}
}

func TestListBuyerOrders(t *testing.T) {
	f := newFixture(t)

	first := f.newOrder(t)
	f.clock.Advance(time.Minute)
	second := f.newOrder(t)

	orders, err := f.orders.ListBuyerOrders(context.Background(), f.buyer.ID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID) // newest first
	assert.Equal(t, first.ID, orders[1].ID)
}
