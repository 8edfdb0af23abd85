package service

import (
	"context"
	"testing"

	"prolist/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	product, err := f.catalog.CreateProduct(ctx, &CreateProductRequest{
		VendorID: f.vendor.ID,
		Title:    "Ndop cloth",
		Category: "textiles",
		Price:    25000,
		Location: "Bamenda",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProductStatusActive, product.Status)
	assert.NotZero(t, product.ID)
}

func TestCreateProductGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.catalog.CreateProduct(ctx, &CreateProductRequest{
		VendorID: f.vendor.ID, Title: "x", Category: "misc", Price: 0, Location: "Bamenda",
	})
	assert.ErrorIs(t, err, ErrValidation)

	// Only verified vendors may list.
	_, err = f.catalog.CreateProduct(ctx, &CreateProductRequest{
		VendorID: f.buyer.ID, Title: "x", Category: "misc", Price: 1000, Location: "Bamenda",
	})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.catalog.CreateProduct(ctx, &CreateProductRequest{
		VendorID: 9999, Title: "x", Category: "misc", Price: 1000, Location: "Bamenda",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetProductCountsViews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.catalog.GetProduct(ctx, f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ViewCount)

	second, err := f.catalog.GetProduct(ctx, f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, second.ViewCount)

	_, err = f.catalog.GetProduct(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}
