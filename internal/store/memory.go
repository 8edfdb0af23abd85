package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"prolist/internal/models"
)

// Memory is an in-memory ledger with the same compare-and-swap semantics as
// the Postgres store. It backs tests and the standalone demo mode. All
// methods copy entities in and out, so callers never share row memory.
type Memory struct {
	mu sync.Mutex

	users         map[int64]*models.User
	products      map[int64]*models.Product
	orders        map[int64]*models.Order
	auctions      map[int64]*models.Auction
	bids          map[int64]*models.Bid
	applications  map[int64]*models.VendorApplication
	notifications map[int64]*models.Notification

	nextID int64
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		users:         make(map[int64]*models.User),
		products:      make(map[int64]*models.Product),
		orders:        make(map[int64]*models.Order),
		auctions:      make(map[int64]*models.Auction),
		bids:          make(map[int64]*models.Bid),
		applications:  make(map[int64]*models.VendorApplication),
		notifications: make(map[int64]*models.Notification),
	}
}

func (m *Memory) nextSeq() int64 {
	m.nextID++
	return m.nextID
}

// CreateUser stores a user (seeding and tests).
func (m *Memory) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user.ID = m.nextSeq()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

// GetUserByID returns a user or nil.
func (m *Memory) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// SetUserVerification updates a user's verification tier.
func (m *Memory) SetUserVerification(ctx context.Context, userID int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[userID]; ok {
		u.VerificationStatus = status
	}
	return nil
}

// CreateProduct stores a listing.
func (m *Memory) CreateProduct(ctx context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.ID = m.nextSeq()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	cp := *p
	m.products[p.ID] = &cp
	return nil
}

// GetProductByID returns a product or nil.
func (m *Memory) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// IncrementProductViews bumps the view counter.
func (m *Memory) IncrementProductViews(ctx context.Context, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.products[productID]; ok {
		p.ViewCount++
	}
	return nil
}

// RecordProductSale bumps the sales counter and flips active listings to sold.
func (m *Memory) RecordProductSale(ctx context.Context, productID int64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.products[productID]; ok && p.Status == models.ProductStatusActive {
		p.SalesCount += quantity
		p.Status = models.ProductStatusSold
	}
	return nil
}

// CreateOrder stores an order.
func (m *Memory) CreateOrder(ctx context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o.ID = m.nextSeq()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

// GetOrderByID returns an order or nil.
func (m *Memory) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

// GetOrdersByBuyerID returns a buyer's orders, newest first.
func (m *Memory) GetOrdersByBuyerID(ctx context.Context, buyerID int64) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var orders []models.Order
	for _, o := range m.orders {
		if o.BuyerID == buyerID {
			orders = append(orders, *o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

// UpdateOrderPaymentStatus is a compare-and-swap on payment_status.
func (m *Memory) UpdateOrderPaymentStatus(ctx context.Context, orderID int64, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok || o.PaymentStatus != from {
		return false, nil
	}
	o.PaymentStatus = to
	return true, nil
}

// UpdateOrderDeliveryStatus updates the delivery leg.
func (m *Memory) UpdateOrderDeliveryStatus(ctx context.Context, orderID int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o, ok := m.orders[orderID]; ok {
		o.DeliveryStatus = status
	}
	return nil
}

// MarkOrderConfirmed records buyer confirmation once; confirmed_at never
// rewrites.
func (m *Memory) MarkOrderConfirmed(ctx context.Context, orderID int64, proofURL string, confirmedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok || o.BuyerConfirmed {
		return nil
	}
	o.BuyerConfirmed = true
	t := confirmedAt
	o.ConfirmedAt = &t
	o.DeliveryProofURL = proofURL
	o.DeliveryStatus = models.DeliveryStatusConfirmed
	return nil
}

// GetOrdersDueForRelease lists escrowed, confirmed orders at or past cutoff.
func (m *Memory) GetOrdersDueForRelease(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []models.Order
	for _, o := range m.orders {
		if o.PaymentStatus == models.PaymentStatusEscrowed &&
			o.BuyerConfirmed &&
			o.ConfirmedAt != nil &&
			!o.ConfirmedAt.After(cutoff) {
			due = append(due, *o)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].ConfirmedAt.Before(*due[j].ConfirmedAt)
	})
	return due, nil
}

// CreateAuction stores an auction.
func (m *Memory) CreateAuction(ctx context.Context, a *models.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a.ID = m.nextSeq()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	cp := *a
	m.auctions[a.ID] = &cp
	return nil
}

// GetAuctionByID returns an auction or nil.
func (m *Memory) GetAuctionByID(ctx context.Context, id int64) (*models.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.auctions[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

// UpdateAuctionStatus is a compare-and-swap on status.
func (m *Memory) UpdateAuctionStatus(ctx context.Context, auctionID int64, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.auctions[auctionID]
	if !ok || a.Status != from {
		return false, nil
	}
	a.Status = to
	return true, nil
}

// SetAuctionWinner records the winning bid.
func (m *Memory) SetAuctionWinner(ctx context.Context, auctionID, bidID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.auctions[auctionID]; ok {
		id := bidID
		a.WinningBidID = &id
	}
	return nil
}

// GetDueActiveAuctions lists active auctions past their deadline.
func (m *Memory) GetDueActiveAuctions(ctx context.Context, now time.Time) ([]models.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []models.Auction
	for _, a := range m.auctions {
		if a.Status == models.AuctionStatusActive && !a.EndDate.After(now) {
			due = append(due, *a)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].EndDate.Before(due[j].EndDate)
	})
	return due, nil
}

// AcceptBid demotes the previous accepted bid, stores the new accepted bid,
// and raises current_price, all under one lock hold. The single-accepted-bid
// constraint is enforced here too, mirroring the partial unique index in the
// Postgres schema.
func (m *Memory) AcceptBid(ctx context.Context, bid *models.Bid, previousBidID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.bids[previousBidID]; ok && prev.AuctionID == bid.AuctionID {
		prev.Status = models.BidStatusOutbid
	}
	for _, b := range m.bids {
		if b.AuctionID == bid.AuctionID && b.Status == models.BidStatusAccepted {
			return fmt.Errorf("auction %d already has an accepted bid", bid.AuctionID)
		}
	}

	bid.ID = m.nextSeq()
	cp := *bid
	m.bids[bid.ID] = &cp

	if a, ok := m.auctions[bid.AuctionID]; ok && a.CurrentPrice < bid.Amount {
		a.CurrentPrice = bid.Amount
	}
	return nil
}

// GetAcceptedBid returns the standing highest bid or nil.
func (m *Memory) GetAcceptedBid(ctx context.Context, auctionID int64) (*models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *models.Bid
	for _, b := range m.bids {
		if b.AuctionID == auctionID && b.Status == models.BidStatusAccepted {
			if best == nil || b.Amount > best.Amount {
				best = b
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

// GetBidsByAuctionID returns all bids on an auction, highest first.
func (m *Memory) GetBidsByAuctionID(ctx context.Context, auctionID int64) ([]models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var bids []models.Bid
	for _, b := range m.bids {
		if b.AuctionID == auctionID {
			bids = append(bids, *b)
		}
	}
	sort.Slice(bids, func(i, j int) bool {
		if bids[i].Amount != bids[j].Amount {
			return bids[i].Amount > bids[j].Amount
		}
		return bids[i].PlacedAt.Before(bids[j].PlacedAt)
	})
	return bids, nil
}

// CreateVendorApplication stores a review cycle.
func (m *Memory) CreateVendorApplication(ctx context.Context, app *models.VendorApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	app.ID = m.nextSeq()
	if app.SubmittedAt.IsZero() {
		app.SubmittedAt = time.Now()
	}
	cp := *app
	m.applications[app.ID] = &cp
	return nil
}

// GetVendorApplicationByID returns an application or nil.
func (m *Memory) GetVendorApplicationByID(ctx context.Context, id int64) (*models.VendorApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.applications[id]
	if !ok {
		return nil, nil
	}
	cp := *app
	return &cp, nil
}

// ReviewVendorApplication applies a decision to a pending application once.
func (m *Memory) ReviewVendorApplication(ctx context.Context, id int64, status string, reviewerID int64, reviewedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.applications[id]
	if !ok || app.Status != models.ApplicationPending {
		return false, nil
	}
	app.Status = status
	rid := reviewerID
	app.ReviewerID = &rid
	t := reviewedAt
	app.ReviewedAt = &t
	return true, nil
}

// CreateNotification stores a notification.
func (m *Memory) CreateNotification(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n.ID = m.nextSeq()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

// GetNotificationsByUserID returns a user's notifications, newest first.
func (m *Memory) GetNotificationsByUserID(ctx context.Context, userID int64) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// MarkNotificationRead flags a notification as read.
func (m *Memory) MarkNotificationRead(ctx context.Context, notificationID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n, ok := m.notifications[notificationID]; ok {
		n.IsRead = true
	}
	return nil
}
