package models

import (
	"strconv"
	"time"
)

// Event types
const (
	EventTypeBidAccepted        = "BID_ACCEPTED"
	EventTypeBidOutbid          = "BID_OUTBID"
	EventTypeOrderEscrowed      = "ORDER_ESCROWED"
	EventTypeOrderDelivered     = "ORDER_DELIVERED"
	EventTypeOrderReleased      = "ORDER_RELEASED"
	EventTypeOrderRefunded      = "ORDER_REFUNDED"
	EventTypeAuctionWon         = "AUCTION_WON"
	EventTypeAuctionEndedNoBids = "AUCTION_ENDED_NO_WINNER"
	EventTypeVendorApproved     = "VENDOR_APPROVED"
	EventTypeVendorRejected     = "VENDOR_REJECTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// DomainEvent is implemented by every event; Key is the Kafka partition key,
// chosen so all events of one entity land on one partition in order.
type DomainEvent interface {
	Base() BaseEvent
	Key() string
}

func (e BaseEvent) Base() BaseEvent { return e }

// BidAcceptedEvent published when a bid becomes the standing highest bid
type BidAcceptedEvent struct {
	BaseEvent
	AuctionID    int64  `json:"auction_id"`
	BidID        int64  `json:"bid_id"`
	BidderID     int64  `json:"bidder_id"`
	VendorID     int64  `json:"vendor_id"`
	Amount       int64  `json:"amount"`
	AuctionTitle string `json:"auction_title"`
}

// BidOutbidEvent published to the previous highest bidder
type BidOutbidEvent struct {
	BaseEvent
	AuctionID    int64  `json:"auction_id"`
	BidID        int64  `json:"bid_id"`
	BidderID     int64  `json:"bidder_id"`
	NewAmount    int64  `json:"new_amount"`
	AuctionTitle string `json:"auction_title"`
}

// OrderEscrowedEvent published when payment capture lands in escrow
type OrderEscrowedEvent struct {
	BaseEvent
	OrderID  int64 `json:"order_id"`
	BuyerID  int64 `json:"buyer_id"`
	VendorID int64 `json:"vendor_id"`
	Amount   int64 `json:"amount"`
}

// OrderDeliveredEvent published when the vendor marks delivery
type OrderDeliveredEvent struct {
	BaseEvent
	OrderID  int64 `json:"order_id"`
	BuyerID  int64 `json:"buyer_id"`
	VendorID int64 `json:"vendor_id"`
}

// OrderReleasedEvent published when escrowed funds are released to the vendor
type OrderReleasedEvent struct {
	BaseEvent
	OrderID  int64  `json:"order_id"`
	BuyerID  int64  `json:"buyer_id"`
	VendorID int64  `json:"vendor_id"`
	Amount   int64  `json:"amount"`
	Trigger  string `json:"trigger"` // "admin" or "auto_release"
}

// OrderRefundedEvent published when escrow is returned to the buyer
type OrderRefundedEvent struct {
	BaseEvent
	OrderID  int64 `json:"order_id"`
	BuyerID  int64 `json:"buyer_id"`
	VendorID int64 `json:"vendor_id"`
	Amount   int64 `json:"amount"`
}

// AuctionWonEvent published at close when an accepted bid exists
type AuctionWonEvent struct {
	BaseEvent
	AuctionID    int64  `json:"auction_id"`
	WinnerID     int64  `json:"winner_id"`
	VendorID     int64  `json:"vendor_id"`
	WinningBidID int64  `json:"winning_bid_id"`
	Amount       int64  `json:"amount"`
	AuctionTitle string `json:"auction_title"`
}

// AuctionEndedNoWinnerEvent published at close when no bid was accepted
type AuctionEndedNoWinnerEvent struct {
	BaseEvent
	AuctionID    int64  `json:"auction_id"`
	VendorID     int64  `json:"vendor_id"`
	AuctionTitle string `json:"auction_title"`
}

// VendorApprovedEvent published when an application review approves a tier
type VendorApprovedEvent struct {
	BaseEvent
	ApplicationID int64  `json:"application_id"`
	VendorID      int64  `json:"vendor_id"`
	Tier          string `json:"tier"`
}

// VendorRejectedEvent published when an application review rejects
type VendorRejectedEvent struct {
	BaseEvent
	ApplicationID int64 `json:"application_id"`
	VendorID      int64 `json:"vendor_id"`
}

func orderKey(id int64) string   { return "order-" + strconv.FormatInt(id, 10) }
func auctionKey(id int64) string { return "auction-" + strconv.FormatInt(id, 10) }
func vendorKey(id int64) string  { return "vendor-" + strconv.FormatInt(id, 10) }

func (e *BidAcceptedEvent) Key() string          { return auctionKey(e.AuctionID) }
func (e *BidOutbidEvent) Key() string            { return auctionKey(e.AuctionID) }
func (e *OrderEscrowedEvent) Key() string        { return orderKey(e.OrderID) }
func (e *OrderDeliveredEvent) Key() string       { return orderKey(e.OrderID) }
func (e *OrderReleasedEvent) Key() string        { return orderKey(e.OrderID) }
func (e *OrderRefundedEvent) Key() string        { return orderKey(e.OrderID) }
func (e *AuctionWonEvent) Key() string           { return auctionKey(e.AuctionID) }
func (e *AuctionEndedNoWinnerEvent) Key() string { return auctionKey(e.AuctionID) }
func (e *VendorApprovedEvent) Key() string       { return vendorKey(e.VendorID) }
func (e *VendorRejectedEvent) Key() string       { return vendorKey(e.VendorID) }
