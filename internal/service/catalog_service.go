package service

import (
	"context"
	"fmt"
	"time"

	"prolist/internal/models"
	"prolist/internal/util"

	"go.uber.org/zap"
)

// CatalogService is the thin listing layer the order engine sells from.
type CatalogService struct {
	ledger Ledger
	logger *zap.Logger
	now    Clock
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(ledger Ledger, now Clock) *CatalogService {
	if now == nil {
		now = time.Now
	}
	return &CatalogService{ledger: ledger, logger: util.GetLogger(), now: now}
}

// CreateProductRequest represents a new listing.
type CreateProductRequest struct {
	VendorID int64  `json:"vendor_id" binding:"required"`
	Title    string `json:"title" binding:"required"`
	Category string `json:"category" binding:"required"`
	Price    int64  `json:"price" binding:"required"`
	Location string `json:"location" binding:"required"`
}

// CreateProduct creates an active listing owned by a verified vendor.
func (s *CatalogService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*models.Product, error) {
	if req.Price <= 0 {
		return nil, validationf("price must be positive, got %d", req.Price)
	}

	vendor, err := s.ledger.GetUserByID(ctx, req.VendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load vendor: %w", err)
	}
	if vendor == nil {
		return nil, notFoundf("vendor %d", req.VendorID)
	}
	if !vendor.Verified() {
		return nil, forbiddenf("vendor %d is not verified", req.VendorID)
	}

	product := &models.Product{
		VendorID:  req.VendorID,
		Title:     req.Title,
		Category:  req.Category,
		Price:     req.Price,
		Location:  req.Location,
		Status:    models.ProductStatusActive,
		CreatedAt: s.now(),
	}
	if err := s.ledger.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product created",
		zap.Int64("product_id", product.ID),
		zap.Int64("vendor_id", product.VendorID),
		zap.Int64("price", product.Price))

	return product, nil
}

// GetProduct retrieves a listing and bumps its view counter. Counter
// failures are logged only; a read must not fail over analytics.
func (s *CatalogService) GetProduct(ctx context.Context, productID int64) (*models.Product, error) {
	product, err := s.ledger.GetProductByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	if product == nil {
		return nil, notFoundf("product %d", productID)
	}

	if err := s.ledger.IncrementProductViews(ctx, productID); err != nil {
		s.logger.Error("Failed to increment view count",
			zap.Int64("product_id", productID),
			zap.Error(err))
	} else {
		product.ViewCount++
	}

	return product, nil
}
