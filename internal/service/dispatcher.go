package service

import (
	"context"
	"fmt"
	"time"

	"prolist/internal/models"
	"prolist/internal/util"

	"go.uber.org/zap"
)

// NotificationStore is the slice of the ledger the dispatcher may touch. It
// deliberately excludes order/auction mutation: notifications read from the
// state machine, never feed back into it.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotificationsByUserID(ctx context.Context, userID int64) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, notificationID int64) error
}

// LivePusher pushes a notification to a live channel (websocket fan-out via
// Redis pub/sub in production). Optional; nil disables pushing.
type LivePusher interface {
	PushNotification(ctx context.Context, n *models.Notification) error
}

// Dispatcher turns domain events into persisted notifications. Delivery is
// best-effort: a failed dispatch is logged and dropped, it never rolls back
// or blocks the state transition that produced the event.
type Dispatcher struct {
	store  NotificationStore
	pusher LivePusher
	logger *zap.Logger
	now    Clock
}

// NewDispatcher creates a new notification dispatcher.
func NewDispatcher(store NotificationStore, pusher LivePusher, now Clock) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{store: store, pusher: pusher, logger: util.GetLogger(), now: now}
}

// Handle consumes one domain event and writes the notification(s) it
// implies. Unknown event types are skipped.
func (d *Dispatcher) Handle(ctx context.Context, event models.DomainEvent) error {
	switch e := event.(type) {
	case *models.BidAcceptedEvent:
		return d.notify(ctx, e.VendorID, e.EventType,
			"New bid received",
			fmt.Sprintf("%q received a bid of %d XAF", e.AuctionTitle, e.Amount),
			fmt.Sprintf("/auctions/%d", e.AuctionID))

	case *models.BidOutbidEvent:
		return d.notify(ctx, e.BidderID, e.EventType,
			"You have been outbid",
			fmt.Sprintf("A bid of %d XAF now leads %q", e.NewAmount, e.AuctionTitle),
			fmt.Sprintf("/auctions/%d", e.AuctionID))

	case *models.OrderEscrowedEvent:
		return d.notify(ctx, e.VendorID, e.EventType,
			"Payment secured in escrow",
			fmt.Sprintf("Order #%d: %d XAF is held in escrow, ship when ready", e.OrderID, e.Amount),
			fmt.Sprintf("/orders/%d", e.OrderID))

	case *models.OrderDeliveredEvent:
		return d.notify(ctx, e.BuyerID, e.EventType,
			"Order delivered",
			fmt.Sprintf("Order #%d was marked delivered, please confirm receipt", e.OrderID),
			fmt.Sprintf("/orders/%d", e.OrderID))

	case *models.OrderReleasedEvent:
		return d.notify(ctx, e.VendorID, e.EventType,
			"Funds released",
			fmt.Sprintf("%d XAF from order #%d is now payable to you", e.Amount, e.OrderID),
			fmt.Sprintf("/orders/%d", e.OrderID))

	case *models.OrderRefundedEvent:
		return d.notify(ctx, e.BuyerID, e.EventType,
			"Order refunded",
			fmt.Sprintf("%d XAF from order #%d was returned to you", e.Amount, e.OrderID),
			fmt.Sprintf("/orders/%d", e.OrderID))

	case *models.AuctionWonEvent:
		return d.notify(ctx, e.WinnerID, e.EventType,
			"You won the auction",
			fmt.Sprintf("You won %q at %d XAF, proceed to checkout", e.AuctionTitle, e.Amount),
			fmt.Sprintf("/auctions/%d/checkout", e.AuctionID))

	case *models.AuctionEndedNoWinnerEvent:
		return d.notify(ctx, e.VendorID, e.EventType,
			"Auction ended without bids",
			fmt.Sprintf("%q ended with no winner", e.AuctionTitle),
			fmt.Sprintf("/auctions/%d", e.AuctionID))

	case *models.VendorApprovedEvent:
		return d.notify(ctx, e.VendorID, e.EventType,
			"Verification approved",
			fmt.Sprintf("Your vendor application was approved at tier %s", e.Tier),
			"/vendor/dashboard")

	case *models.VendorRejectedEvent:
		return d.notify(ctx, e.VendorID, e.EventType,
			"Verification rejected",
			"Your vendor application was rejected, you may submit a new one",
			"/vendor/apply")

	default:
		d.logger.Warn("Unhandled event type", zap.String("event_type", event.Base().EventType))
		return nil
	}
}

func (d *Dispatcher) notify(ctx context.Context, userID int64, eventType, title, message, actionURL string) error {
	n := &models.Notification{
		UserID:    userID,
		Type:      eventType,
		Title:     title,
		Message:   message,
		ActionURL: actionURL,
		CreatedAt: d.now(),
	}

	if err := d.store.CreateNotification(ctx, n); err != nil {
		util.NotificationFailuresTotal.Inc()
		d.logger.Error("Failed to create notification",
			zap.Int64("user_id", userID),
			zap.String("type", eventType),
			zap.Error(err))
		return err
	}
	util.NotificationsCreatedTotal.Inc()

	if d.pusher != nil {
		if err := d.pusher.PushNotification(ctx, n); err != nil {
			// Live push is opportunistic; the persisted row is the record.
			d.logger.Warn("Failed to push live notification",
				zap.Int64("user_id", userID),
				zap.Error(err))
		}
	}
	return nil
}

// DirectPublisher feeds engine events straight into a dispatcher,
// bypassing the bus. Used in memory-store mode and in tests.
type DirectPublisher struct {
	dispatcher *Dispatcher
}

// NewDirectPublisher creates a synchronous event publisher.
func NewDirectPublisher(dispatcher *Dispatcher) *DirectPublisher {
	return &DirectPublisher{dispatcher: dispatcher}
}

// Publish hands the event to the dispatcher immediately.
func (p *DirectPublisher) Publish(ctx context.Context, event models.DomainEvent) error {
	return p.dispatcher.Handle(ctx, event)
}

// ListNotifications returns a user's notifications, newest first.
func (d *Dispatcher) ListNotifications(ctx context.Context, userID int64) ([]models.Notification, error) {
	return d.store.GetNotificationsByUserID(ctx, userID)
}

// MarkRead marks a single notification as read.
func (d *Dispatcher) MarkRead(ctx context.Context, notificationID int64) error {
	return d.store.MarkNotificationRead(ctx, notificationID)
}
