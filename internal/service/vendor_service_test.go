package service

import (
	"context"
	"testing"

	"prolist/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitApplication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	app, err := f.vendors.SubmitApplication(ctx, &SubmitApplicationRequest{
		VendorID:      f.buyer.ID,
		RequestedTier: models.VerificationBasic,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationPending, app.Status)
	assert.Nil(t, app.ReviewedAt)

	_, err = f.vendors.SubmitApplication(ctx, &SubmitApplicationRequest{
		VendorID:      f.buyer.ID,
		RequestedTier: "platinum",
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.vendors.SubmitApplication(ctx, &SubmitApplicationRequest{
		VendorID:      9999,
		RequestedTier: models.VerificationBasic,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReviewApplicationApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	app, err := f.vendors.SubmitApplication(ctx, &SubmitApplicationRequest{
		VendorID:      f.buyer.ID,
		RequestedTier: models.VerificationPremium,
	})
	require.NoError(t, err)

	reviewed, err := f.vendors.ReviewApplication(ctx, app.ID, f.admin.ID, DecisionApprovePremium)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationApproved, reviewed.Status)
	require.NotNil(t, reviewed.ReviewerID)
	assert.Equal(t, f.admin.ID, *reviewed.ReviewerID)
	assert.NotNil(t, reviewed.ReviewedAt)

	user, err := f.mem.GetUserByID(ctx, f.buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationPremium, user.VerificationStatus)
	assert.True(t, user.Verified())

	assert.Equal(t, 1, f.notificationCount(t, f.buyer.ID, models.EventTypeVendorApproved))
}

func TestReviewApplicationReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	app, err := f.vendors.SubmitApplication(ctx, &SubmitApplicationRequest{
		VendorID:      f.buyer.ID,
		RequestedTier: models.VerificationBasic,
	})
	require.NoError(t, err)

	reviewed, err := f.vendors.ReviewApplication(ctx, app.ID, f.admin.ID, DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationRejected, reviewed.Status)

	user, err := f.mem.GetUserByID(ctx, f.buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationRejected, user.VerificationStatus)
	assert.False(t, user.Verified())

	assert.Equal(t, 1, f.notificationCount(t, f.buyer.ID, models.EventTypeVendorRejected))
}

func TestReviewApplicationOneWay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	app, err := f.vendors.SubmitApplication(ctx, &SubmitApplicationRequest{
		VendorID:      f.buyer.ID,
		RequestedTier: models.VerificationBasic,
	})
	require.NoError(t, err)

	_, err = f.vendors.ReviewApplication(ctx, app.ID, f.admin.ID, DecisionReject)
	require.NoError(t, err)

	// A reviewed application never mutates again; the vendor submits a
	// fresh one instead.
	_, err = f.vendors.ReviewApplication(ctx, app.ID, f.admin.ID, DecisionApproveBasic)
	assert.ErrorIs(t, err, ErrInvalidState)

	user, err := f.mem.GetUserByID(ctx, f.buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationRejected, user.VerificationStatus)
}

func TestReviewApplicationGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	app, err := f.vendors.SubmitApplication(ctx, &SubmitApplicationRequest{
		VendorID:      f.buyer.ID,
		RequestedTier: models.VerificationBasic,
	})
	require.NoError(t, err)

	_, err = f.vendors.ReviewApplication(ctx, app.ID, f.vendor.ID, DecisionApproveBasic)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.vendors.ReviewApplication(ctx, 9999, f.admin.ID, DecisionApproveBasic)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.vendors.ReviewApplication(ctx, app.ID, f.admin.ID, "promote")
	assert.ErrorIs(t, err, ErrValidation)
}
