package service

import (
	"context"
	"sync"
	"time"

	"prolist/internal/models"
)

// Ledger is the persistence contract the engines run against. Both the
// Postgres store and the in-memory store satisfy it. Status-change methods
// that return bool are compare-and-swap: they report whether the row moved
// from the expected state, so redundant triggers become no-ops instead of
// double-firing side effects.
type Ledger interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	SetUserVerification(ctx context.Context, userID int64, status string) error

	CreateProduct(ctx context.Context, p *models.Product) error
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	IncrementProductViews(ctx context.Context, productID int64) error
	RecordProductSale(ctx context.Context, productID int64, quantity int) error

	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrdersByBuyerID(ctx context.Context, buyerID int64) ([]models.Order, error)
	UpdateOrderPaymentStatus(ctx context.Context, orderID int64, from, to string) (bool, error)
	UpdateOrderDeliveryStatus(ctx context.Context, orderID int64, status string) error
	MarkOrderConfirmed(ctx context.Context, orderID int64, proofURL string, confirmedAt time.Time) error
	GetOrdersDueForRelease(ctx context.Context, cutoff time.Time) ([]models.Order, error)

	CreateAuction(ctx context.Context, a *models.Auction) error
	GetAuctionByID(ctx context.Context, id int64) (*models.Auction, error)
	UpdateAuctionStatus(ctx context.Context, auctionID int64, from, to string) (bool, error)
	SetAuctionWinner(ctx context.Context, auctionID, bidID int64) error
	GetDueActiveAuctions(ctx context.Context, now time.Time) ([]models.Auction, error)

	// AcceptBid atomically demotes the previous accepted bid (0 when none),
	// inserts the new bid as accepted, and raises current_price. One storage
	// transaction: the schema allows a single accepted bid per auction, so
	// the demote must be visible before the insert.
	AcceptBid(ctx context.Context, bid *models.Bid, previousBidID int64) error
	GetAcceptedBid(ctx context.Context, auctionID int64) (*models.Bid, error)
	GetBidsByAuctionID(ctx context.Context, auctionID int64) ([]models.Bid, error)

	CreateVendorApplication(ctx context.Context, app *models.VendorApplication) error
	GetVendorApplicationByID(ctx context.Context, id int64) (*models.VendorApplication, error)
	ReviewVendorApplication(ctx context.Context, id int64, status string, reviewerID int64, reviewedAt time.Time) (bool, error)
}

// EventPublisher is the sink for domain events. Publishing is best-effort:
// engines log failures and carry on, they never roll back a transition
// because an event could not be delivered.
type EventPublisher interface {
	Publish(ctx context.Context, event models.DomainEvent) error
}

// Clock is injectable so tests can pin time-driven transitions.
type Clock func() time.Time

// entityLock serializes mutations per entity id within this process. The
// Postgres ledger adds CAS updates underneath, so two replicas racing on the
// same row still cannot double-fire a terminal transition.
type entityLock struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newEntityLock() *entityLock {
	return &entityLock{locks: make(map[int64]*sync.Mutex)}
}

func (l *entityLock) lock(id int64) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
