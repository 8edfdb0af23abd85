package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"prolist/internal/models"
	"prolist/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Release triggers, recorded on OrderReleased events for the audit trail.
const (
	ReleaseTriggerAdmin = "admin"
	ReleaseTriggerAuto  = "auto_release"
)

// OrderService owns the escrow order lifecycle:
//
//	pending -> escrowed -> (delivered) -> buyer_confirmed -> released
//	                    \-> refunded
//
// Funds release is the money-moving transition; it must happen exactly once
// per order no matter how often admins, webhooks, or the sweep retry it.
type OrderService struct {
	ledger           Ledger
	events           EventPublisher
	logger           *zap.Logger
	now              Clock
	locks            *entityLock
	autoReleaseAfter time.Duration
}

// NewOrderService creates a new order lifecycle engine.
func NewOrderService(ledger Ledger, events EventPublisher, autoReleaseAfter time.Duration, now Clock) *OrderService {
	if now == nil {
		now = time.Now
	}
	return &OrderService{
		ledger:           ledger,
		events:           events,
		logger:           util.GetLogger(),
		now:              now,
		locks:            newEntityLock(),
		autoReleaseAfter: autoReleaseAfter,
	}
}

// CreateOrderRequest represents a request to create an order. The total is
// computed server-side from the product snapshot; no client-supplied amount
// is trusted.
type CreateOrderRequest struct {
	BuyerID        int64  `json:"buyer_id" binding:"required"`
	ProductID      int64  `json:"product_id" binding:"required"`
	Quantity       int    `json:"quantity" binding:"required"`
	PaymentMethod  string `json:"payment_method" binding:"required"`
	DeliveryMethod string `json:"delivery_method" binding:"required"`
}

// CreateOrder creates a new order in pending_payment state.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if req.Quantity < 1 {
		return nil, validationf("quantity must be at least 1, got %d", req.Quantity)
	}

	buyer, err := s.ledger.GetUserByID(ctx, req.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load buyer: %w", err)
	}
	if buyer == nil {
		return nil, notFoundf("buyer %d", req.BuyerID)
	}

	product, err := s.ledger.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	if product == nil {
		return nil, notFoundf("product %d", req.ProductID)
	}
	if product.Status != models.ProductStatusActive {
		return nil, invalidStatef("product %d is %s", product.ID, product.Status)
	}
	if product.VendorID == req.BuyerID {
		return nil, validationf("buyer %d cannot order their own product", req.BuyerID)
	}

	// Vendor is snapshotted from the product at creation time; later
	// reassignment of the product does not touch past orders.
	order := &models.Order{
		BuyerID:        req.BuyerID,
		VendorID:       product.VendorID,
		ProductID:      product.ID,
		Quantity:       req.Quantity,
		TotalAmount:    product.Price * int64(req.Quantity),
		PaymentMethod:  req.PaymentMethod,
		DeliveryMethod: req.DeliveryMethod,
		PaymentStatus:  models.PaymentStatusPending,
		DeliveryStatus: models.DeliveryStatusPending,
		CreatedAt:      s.now(),
	}

	if err := s.ledger.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("buyer_id", order.BuyerID),
		zap.Int64("vendor_id", order.VendorID),
		zap.Int64("total_amount", order.TotalAmount))

	return order, nil
}

// CapturePayment moves a pending order into escrow. Idempotent: payment
// gateways retry webhooks, so capturing an already-escrowed order returns
// the current order unchanged.
func (s *OrderService) CapturePayment(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CapturePayment")
	defer span.End()

	unlock := s.locks.lock(orderID)
	defer unlock()

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch order.PaymentStatus {
	case models.PaymentStatusEscrowed:
		s.logger.Info("Duplicate payment capture ignored", zap.Int64("order_id", orderID))
		return order, nil
	case models.PaymentStatusReleased, models.PaymentStatusRefunded:
		return nil, invalidStatef("order %d is already %s", orderID, order.PaymentStatus)
	}

	swapped, err := s.ledger.UpdateOrderPaymentStatus(ctx, orderID,
		models.PaymentStatusPending, models.PaymentStatusEscrowed)
	if err != nil {
		return nil, fmt.Errorf("failed to escrow payment: %w", err)
	}
	if !swapped {
		return s.getOrder(ctx, orderID)
	}
	order.PaymentStatus = models.PaymentStatusEscrowed

	util.OrdersEscrowedTotal.Inc()
	s.logger.Info("Payment captured into escrow",
		zap.Int64("order_id", orderID),
		zap.Int64("amount", order.TotalAmount))

	s.publish(ctx, &models.OrderEscrowedEvent{
		BaseEvent: s.baseEvent(models.EventTypeOrderEscrowed),
		OrderID:   order.ID,
		BuyerID:   order.BuyerID,
		VendorID:  order.VendorID,
		Amount:    order.TotalAmount,
	})

	return order, nil
}

// MarkDelivered records vendor-side delivery of an escrowed order. Only the
// order's vendor may call it.
func (s *OrderService) MarkDelivered(ctx context.Context, orderID, actorID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.MarkDelivered")
	defer span.End()

	unlock := s.locks.lock(orderID)
	defer unlock()

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.VendorID != actorID {
		return nil, forbiddenf("user %d is not the vendor of order %d", actorID, orderID)
	}
	if order.PaymentStatus != models.PaymentStatusEscrowed {
		return nil, invalidStatef("order %d is %s, expected escrowed", orderID, order.PaymentStatus)
	}
	if order.Delivered() {
		return nil, invalidStatef("order %d is already %s", orderID, order.DeliveryStatus)
	}

	if err := s.ledger.UpdateOrderDeliveryStatus(ctx, orderID, models.DeliveryStatusDelivered); err != nil {
		return nil, fmt.Errorf("failed to mark delivered: %w", err)
	}
	order.DeliveryStatus = models.DeliveryStatusDelivered

	s.logger.Info("Order marked delivered",
		zap.Int64("order_id", orderID),
		zap.Int64("vendor_id", actorID))

	s.publish(ctx, &models.OrderDeliveredEvent{
		BaseEvent: s.baseEvent(models.EventTypeOrderDelivered),
		OrderID:   order.ID,
		BuyerID:   order.BuyerID,
		VendorID:  order.VendorID,
	})

	return order, nil
}

// ConfirmReceipt records the buyer's confirmation with a proof reference.
// buyer_confirmed flips true at most once, only while funds sit in escrow;
// confirmed_at is set exactly then and never changes afterwards.
func (s *OrderService) ConfirmReceipt(ctx context.Context, orderID, actorID int64, proofRef string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ConfirmReceipt")
	defer span.End()

	if err := validateProofRef(proofRef); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(orderID)
	defer unlock()

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != actorID {
		return nil, forbiddenf("user %d is not the buyer of order %d", actorID, orderID)
	}
	if order.BuyerConfirmed {
		return nil, invalidStatef("order %d is already confirmed", orderID)
	}
	if order.PaymentStatus != models.PaymentStatusEscrowed {
		return nil, invalidStatef("order %d is %s, expected escrowed", orderID, order.PaymentStatus)
	}

	confirmedAt := s.now()
	if err := s.ledger.MarkOrderConfirmed(ctx, orderID, proofRef, confirmedAt); err != nil {
		return nil, fmt.Errorf("failed to confirm receipt: %w", err)
	}
	order.BuyerConfirmed = true
	order.ConfirmedAt = &confirmedAt
	order.DeliveryProofURL = proofRef
	order.DeliveryStatus = models.DeliveryStatusConfirmed

	s.logger.Info("Order receipt confirmed",
		zap.Int64("order_id", orderID),
		zap.Int64("buyer_id", actorID),
		zap.Time("confirmed_at", confirmedAt))

	return order, nil
}

// ReleaseFunds moves escrowed funds to the vendor. Admin-only and terminal.
// A second call on an already-released order returns the order unchanged so
// the money-moving side effect fires exactly once.
func (s *OrderService) ReleaseFunds(ctx context.Context, orderID, actorID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ReleaseFunds")
	defer span.End()

	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(orderID)
	defer unlock()

	return s.releaseLocked(ctx, orderID, actorID, ReleaseTriggerAdmin)
}

// releaseLocked performs the release transition. Callers must hold the
// order's entity lock.
func (s *OrderService) releaseLocked(ctx context.Context, orderID, actorID int64, trigger string) (*models.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.PaymentStatus == models.PaymentStatusReleased {
		util.FundsReleaseDuplicatesTotal.Inc()
		s.logger.Info("Duplicate funds release ignored",
			zap.Int64("order_id", orderID),
			zap.Int64("actor_id", actorID),
			zap.String("trigger", trigger))
		return order, nil
	}
	if order.PaymentStatus == models.PaymentStatusRefunded {
		return nil, invalidStatef("order %d was refunded", orderID)
	}
	if !order.BuyerConfirmed || !order.Delivered() {
		return nil, invalidStatef("order %d is not confirmed by buyer", orderID)
	}

	swapped, err := s.ledger.UpdateOrderPaymentStatus(ctx, orderID,
		models.PaymentStatusEscrowed, models.PaymentStatusReleased)
	if err != nil {
		return nil, fmt.Errorf("failed to release funds: %w", err)
	}
	if !swapped {
		// Lost the race against a concurrent release; treat as duplicate.
		util.FundsReleaseDuplicatesTotal.Inc()
		return s.getOrder(ctx, orderID)
	}
	order.PaymentStatus = models.PaymentStatusReleased

	if err := s.ledger.RecordProductSale(ctx, order.ProductID, order.Quantity); err != nil {
		s.logger.Error("Failed to record product sale",
			zap.Int64("product_id", order.ProductID),
			zap.Error(err))
	}

	util.OrdersReleasedTotal.WithLabelValues(trigger).Inc()
	// Audit log: money moved, always recorded with full context.
	s.logger.Info("Escrow funds released",
		zap.Int64("order_id", orderID),
		zap.Int64("vendor_id", order.VendorID),
		zap.Int64("amount", order.TotalAmount),
		zap.Int64("actor_id", actorID),
		zap.String("trigger", trigger),
		zap.Time("released_at", s.now()))

	s.publish(ctx, &models.OrderReleasedEvent{
		BaseEvent: s.baseEvent(models.EventTypeOrderReleased),
		OrderID:   order.ID,
		BuyerID:   order.BuyerID,
		VendorID:  order.VendorID,
		Amount:    order.TotalAmount,
		Trigger:   trigger,
	})

	return order, nil
}

// Refund returns escrow to the buyer. Admin-only, allowed from any
// non-terminal state, terminal once applied.
func (s *OrderService) Refund(ctx context.Context, orderID, actorID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Refund")
	defer span.End()

	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(orderID)
	defer unlock()

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Terminal() {
		return nil, invalidStatef("order %d is already %s", orderID, order.PaymentStatus)
	}

	swapped, err := s.ledger.UpdateOrderPaymentStatus(ctx, orderID,
		order.PaymentStatus, models.PaymentStatusRefunded)
	if err != nil {
		return nil, fmt.Errorf("failed to refund order: %w", err)
	}
	if !swapped {
		return nil, invalidStatef("order %d changed state during refund", orderID)
	}
	order.PaymentStatus = models.PaymentStatusRefunded

	util.OrdersRefundedTotal.Inc()
	s.logger.Info("Order refunded",
		zap.Int64("order_id", orderID),
		zap.Int64("buyer_id", order.BuyerID),
		zap.Int64("amount", order.TotalAmount),
		zap.Int64("actor_id", actorID),
		zap.Time("refunded_at", s.now()))

	s.publish(ctx, &models.OrderRefundedEvent{
		BaseEvent: s.baseEvent(models.EventTypeOrderRefunded),
		OrderID:   order.ID,
		BuyerID:   order.BuyerID,
		VendorID:  order.VendorID,
		Amount:    order.TotalAmount,
	})

	return order, nil
}

// AutoReleaseSweep force-releases every buyer-confirmed order whose
// confirmation is older than the configured timeout. Safe to run on any
// cadence and concurrently with manual release: the terminal-state guard in
// releaseLocked turns redundant invocations into no-ops. Returns the number
// of orders released.
func (s *OrderService) AutoReleaseSweep(ctx context.Context, now time.Time) (int, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AutoReleaseSweep")
	defer span.End()

	cutoff := now.Add(-s.autoReleaseAfter)
	due, err := s.ledger.GetOrdersDueForRelease(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list orders due for release: %w", err)
	}

	released := 0
	for i := range due {
		orderID := due[i].ID
		unlock := s.locks.lock(orderID)
		order, err := s.releaseLocked(ctx, orderID, 0, ReleaseTriggerAuto)
		unlock()
		if err != nil {
			s.logger.Error("Auto-release failed",
				zap.Int64("order_id", orderID),
				zap.Error(err))
			continue
		}
		if order.PaymentStatus == models.PaymentStatusReleased {
			released++
		}
	}

	if released > 0 {
		s.logger.Info("Auto-release sweep completed",
			zap.Int("due", len(due)),
			zap.Int("released", released))
	}
	return released, nil
}

// GetOrder retrieves an order by ID.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	return s.getOrder(ctx, orderID)
}

// ListBuyerOrders retrieves all orders placed by a buyer.
func (s *OrderService) ListBuyerOrders(ctx context.Context, buyerID int64) ([]models.Order, error) {
	return s.ledger.GetOrdersByBuyerID(ctx, buyerID)
}

func (s *OrderService) getOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.ledger.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		return nil, notFoundf("order %d", orderID)
	}
	return order, nil
}

func (s *OrderService) requireAdmin(ctx context.Context, actorID int64) error {
	actor, err := s.ledger.GetUserByID(ctx, actorID)
	if err != nil {
		return fmt.Errorf("failed to load actor: %w", err)
	}
	if actor == nil || actor.Role != models.RoleAdmin {
		return forbiddenf("user %d is not an admin", actorID)
	}
	return nil
}

func (s *OrderService) baseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: s.now(),
	}
}

func (s *OrderService) publish(ctx context.Context, event models.DomainEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish event",
			zap.String("event_type", event.Base().EventType),
			zap.Error(err))
	}
}

// validateProofRef checks presence and well-formedness of the delivery proof
// reference. URL-shaped references must parse; opaque handles just need to
// be non-empty and reasonably sized.
func validateProofRef(proofRef string) error {
	proofRef = strings.TrimSpace(proofRef)
	if proofRef == "" {
		return validationf("proof reference is required")
	}
	if len(proofRef) > 512 {
		return validationf("proof reference exceeds 512 characters")
	}
	if strings.Contains(proofRef, "://") {
		u, err := url.Parse(proofRef)
		if err != nil || u.Host == "" {
			return validationf("proof reference is not a valid URL")
		}
	}
	return nil
}
