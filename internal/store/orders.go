package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"prolist/internal/models"
)

// CreateOrder creates a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (buyer_id, vendor_id, product_id, quantity, total_amount,
			payment_method, delivery_method, payment_status, delivery_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, order, query,
		order.BuyerID, order.VendorID, order.ProductID, order.Quantity, order.TotalAmount,
		order.PaymentMethod, order.DeliveryMethod, order.PaymentStatus, order.DeliveryStatus)
}

// GetOrderByID retrieves an order by ID; returns nil when absent.
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByBuyerID retrieves orders for a buyer
func (s *Store) GetOrdersByBuyerID(ctx context.Context, buyerID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC", buyerID)
	return orders, err
}

// UpdateOrderPaymentStatus moves payment_status from -> to as a single
// compare-and-swap; reports whether the row actually moved. This is the
// guard that keeps funds release exactly-once under concurrent triggers.
func (s *Store) UpdateOrderPaymentStatus(ctx context.Context, orderID int64, from, to string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1 WHERE id = $2 AND payment_status = $3",
		to, orderID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateOrderDeliveryStatus updates the delivery leg of an order.
func (s *Store) UpdateOrderDeliveryStatus(ctx context.Context, orderID int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET delivery_status = $1 WHERE id = $2", status, orderID)
	return err
}

// MarkOrderConfirmed records buyer confirmation. The WHERE clause keeps
// confirmed_at immutable: a row that is already confirmed never rewrites it.
func (s *Store) MarkOrderConfirmed(ctx context.Context, orderID int64, proofURL string, confirmedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders
		 SET buyer_confirmed = TRUE,
		     confirmed_at = $1,
		     delivery_proof_url = $2,
		     delivery_status = $3
		 WHERE id = $4 AND buyer_confirmed = FALSE`,
		confirmedAt, proofURL, models.DeliveryStatusConfirmed, orderID)
	return err
}

// GetOrdersDueForRelease lists escrowed, buyer-confirmed orders whose
// confirmation is at or before the cutoff.
func (s *Store) GetOrdersDueForRelease(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		`SELECT * FROM orders
		 WHERE payment_status = $1
		   AND buyer_confirmed = TRUE
		   AND confirmed_at <= $2
		 ORDER BY confirmed_at`,
		models.PaymentStatusEscrowed, cutoff)
	return orders, err
}
