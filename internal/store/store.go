package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"prolist/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store is the Postgres-backed ledger. Status transitions use conditional
// UPDATEs (WHERE status = expected) so terminal transitions behave as
// compare-and-swap even across replicas.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetUserByID retrieves a user by ID; returns nil when absent.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SetUserVerification updates a user's verification tier.
func (s *Store) SetUserVerification(ctx context.Context, userID int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET verification_status = $1 WHERE id = $2", status, userID)
	return err
}

// CreateUser creates a user (used by seeding and tests).
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (username, role, verification_status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, user, query, user.Username, user.Role, user.VerificationStatus)
}

// CreateProduct creates a new product listing.
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (vendor_id, title, category, price, location, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, p, query,
		p.VendorID, p.Title, p.Category, p.Price, p.Location, p.Status)
}

// GetProductByID retrieves a product by ID; returns nil when absent.
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// IncrementProductViews bumps the view counter.
func (s *Store) IncrementProductViews(ctx context.Context, productID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE products SET view_count = view_count + 1 WHERE id = $1", productID)
	return err
}

// RecordProductSale bumps the sales counter and flips the listing to sold.
func (s *Store) RecordProductSale(ctx context.Context, productID int64, quantity int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE products
		 SET sales_count = sales_count + $1, status = $2
		 WHERE id = $3 AND status = $4`,
		quantity, models.ProductStatusSold, productID, models.ProductStatusActive)
	return err
}
