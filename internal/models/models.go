package models

import "time"

// Product represents a marketplace listing. Prices are in XAF, which has no
// minor unit, so amounts are stored as plain int64 francs.
type Product struct {
	ID         int64     `db:"id" json:"id"`
	VendorID   int64     `db:"vendor_id" json:"vendor_id"`
	Title      string    `db:"title" json:"title"`
	Category   string    `db:"category" json:"category"`
	Price      int64     `db:"price" json:"price"`
	Location   string    `db:"location" json:"location"`
	Status     string    `db:"status" json:"status"`
	ViewCount  int       `db:"view_count" json:"view_count"`
	SalesCount int       `db:"sales_count" json:"sales_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Product statuses. Products are never hard-deleted; removal is a status.
const (
	ProductStatusActive  = "active"
	ProductStatusSold    = "sold"
	ProductStatusRemoved = "removed"
)

// Order represents a purchase moving through the escrow lifecycle.
type Order struct {
	ID               int64      `db:"id" json:"id"`
	BuyerID          int64      `db:"buyer_id" json:"buyer_id"`
	VendorID         int64      `db:"vendor_id" json:"vendor_id"`
	ProductID        int64      `db:"product_id" json:"product_id"`
	Quantity         int        `db:"quantity" json:"quantity"`
	TotalAmount      int64      `db:"total_amount" json:"total_amount"`
	PaymentMethod    string     `db:"payment_method" json:"payment_method"`
	DeliveryMethod   string     `db:"delivery_method" json:"delivery_method"`
	PaymentStatus    string     `db:"payment_status" json:"payment_status"`
	DeliveryStatus   string     `db:"delivery_status" json:"delivery_status"`
	BuyerConfirmed   bool       `db:"buyer_confirmed" json:"buyer_confirmed"`
	DeliveryProofURL string     `db:"delivery_proof_url" json:"delivery_proof_url,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	ConfirmedAt      *time.Time `db:"confirmed_at" json:"confirmed_at,omitempty"`
}

// Payment statuses. Forward-only: pending -> escrowed -> released|refunded.
const (
	PaymentStatusPending  = "pending"
	PaymentStatusEscrowed = "escrowed"
	PaymentStatusReleased = "released"
	PaymentStatusRefunded = "refunded"
)

// Delivery statuses.
const (
	DeliveryStatusPending   = "pending"
	DeliveryStatusInTransit = "in_transit"
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusConfirmed = "confirmed"
)

// Terminal reports whether the order's funds have reached a terminal state.
func (o *Order) Terminal() bool {
	return o.PaymentStatus == PaymentStatusReleased || o.PaymentStatus == PaymentStatusRefunded
}

// Delivered reports whether the vendor-side delivery has happened.
func (o *Order) Delivered() bool {
	return o.DeliveryStatus == DeliveryStatusDelivered || o.DeliveryStatus == DeliveryStatusConfirmed
}

// Auction represents a timed listing. CurrentPrice tracks the highest
// accepted bid and never decreases while the auction is active.
type Auction struct {
	ID            int64     `db:"id" json:"id"`
	VendorID      int64     `db:"vendor_id" json:"vendor_id"`
	Title         string    `db:"title" json:"title"`
	Description   string    `db:"description" json:"description"`
	Category      string    `db:"category" json:"category"`
	Location      string    `db:"location" json:"location"`
	StartingPrice int64     `db:"starting_price" json:"starting_price"`
	CurrentPrice  int64     `db:"current_price" json:"current_price"`
	EndDate       time.Time `db:"end_date" json:"end_date"`
	Status        string    `db:"status" json:"status"`
	WinningBidID  *int64    `db:"winning_bid_id" json:"winning_bid_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Auction statuses (ended and cancelled are terminal).
const (
	AuctionStatusActive    = "active"
	AuctionStatusEnded     = "ended"
	AuctionStatusCancelled = "cancelled"
)

// Bid is immutable once placed except for its status field.
type Bid struct {
	ID        int64     `db:"id" json:"id"`
	AuctionID int64     `db:"auction_id" json:"auction_id"`
	BidderID  int64     `db:"bidder_id" json:"bidder_id"`
	Amount    int64     `db:"amount" json:"amount"`
	Status    string    `db:"status" json:"status"`
	PlacedAt  time.Time `db:"placed_at" json:"placed_at"`
}

// Bid statuses. At most one bid per auction is accepted at any time.
const (
	BidStatusAccepted = "accepted"
	BidStatusOutbid   = "outbid"
	BidStatusRejected = "rejected"
)

// User identifies an actor. Role gates engine transitions; verification
// status gates vendor privileges.
type User struct {
	ID                 int64     `db:"id" json:"id"`
	Username           string    `db:"username" json:"username"`
	Role               string    `db:"role" json:"role"`
	VerificationStatus string    `db:"verification_status" json:"verification_status"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// User roles.
const (
	RoleBuyer  = "buyer"
	RoleVendor = "vendor"
	RoleAdmin  = "admin"
)

// Vendor verification tiers.
const (
	VerificationPending  = "pending"
	VerificationBasic    = "basic_verified"
	VerificationPremium  = "premium_verified"
	VerificationRejected = "rejected"
)

// Verified reports whether the user holds any verified vendor tier.
func (u *User) Verified() bool {
	return u.VerificationStatus == VerificationBasic || u.VerificationStatus == VerificationPremium
}

// VendorApplication is one review cycle. Review is one-way per application;
// a rejected vendor submits a new application rather than mutating this one.
type VendorApplication struct {
	ID            int64      `db:"id" json:"id"`
	VendorID      int64      `db:"vendor_id" json:"vendor_id"`
	RequestedTier string     `db:"requested_tier" json:"requested_tier"`
	Status        string     `db:"status" json:"status"`
	SubmittedAt   time.Time  `db:"submitted_at" json:"submitted_at"`
	ReviewedAt    *time.Time `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewerID    *int64     `db:"reviewer_id" json:"reviewer_id,omitempty"`
}

// Vendor application statuses.
const (
	ApplicationPending  = "pending"
	ApplicationApproved = "approved"
	ApplicationRejected = "rejected"
)

// Notification is a persisted best-effort signal to a user.
type Notification struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Type      string    `db:"type" json:"type"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	ActionURL string    `db:"action_url" json:"action_url,omitempty"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
