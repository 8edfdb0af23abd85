package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"prolist/internal/models"
)

// CreateNotification creates a notification record.
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (user_id, type, title, message, action_url, is_read)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, n, query,
		n.UserID, n.Type, n.Title, n.Message, n.ActionURL)
}

// GetNotificationsByUserID retrieves a user's notifications, newest first.
func (s *Store) GetNotificationsByUserID(ctx context.Context, userID int64) ([]models.Notification, error) {
	var notifications []models.Notification
	err := s.db.SelectContext(ctx, &notifications,
		"SELECT * FROM notifications WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return notifications, err
}

// MarkNotificationRead flags a notification as read.
func (s *Store) MarkNotificationRead(ctx context.Context, notificationID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = TRUE WHERE id = $1", notificationID)
	return err
}

// CreateVendorApplication creates a review cycle for a vendor.
func (s *Store) CreateVendorApplication(ctx context.Context, app *models.VendorApplication) error {
	query := `
		INSERT INTO vendor_applications (vendor_id, requested_tier, status)
		VALUES ($1, $2, $3)
		RETURNING id, submitted_at`

	return s.db.GetContext(ctx, app, query, app.VendorID, app.RequestedTier, app.Status)
}

// GetVendorApplicationByID retrieves an application; returns nil when absent.
func (s *Store) GetVendorApplicationByID(ctx context.Context, id int64) (*models.VendorApplication, error) {
	var app models.VendorApplication
	err := s.db.GetContext(ctx, &app, "SELECT * FROM vendor_applications WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// ReviewVendorApplication applies a decision to a pending application as a
// compare-and-swap; a reviewed application never changes again.
func (s *Store) ReviewVendorApplication(ctx context.Context, id int64, status string, reviewerID int64, reviewedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE vendor_applications
		 SET status = $1, reviewer_id = $2, reviewed_at = $3
		 WHERE id = $4 AND status = $5`,
		status, reviewerID, reviewedAt, id, models.ApplicationPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
