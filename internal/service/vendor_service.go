package service

import (
	"context"
	"fmt"
	"time"

	"prolist/internal/models"
	"prolist/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Review decisions accepted by ReviewApplication.
const (
	DecisionApproveBasic   = "approve_basic"
	DecisionApprovePremium = "approve_premium"
	DecisionReject         = "reject"
)

// VendorService handles vendor verification applications. Review is one-way
// per application: a rejected vendor resubmits a new application, the old
// row never mutates again.
type VendorService struct {
	ledger Ledger
	events EventPublisher
	logger *zap.Logger
	now    Clock
}

// NewVendorService creates a new vendor verification service.
func NewVendorService(ledger Ledger, events EventPublisher, now Clock) *VendorService {
	if now == nil {
		now = time.Now
	}
	return &VendorService{
		ledger: ledger,
		events: events,
		logger: util.GetLogger(),
		now:    now,
	}
}

// SubmitApplicationRequest represents a vendor verification request.
type SubmitApplicationRequest struct {
	VendorID      int64  `json:"vendor_id" binding:"required"`
	RequestedTier string `json:"requested_tier" binding:"required"`
}

// SubmitApplication opens a new review cycle for a vendor.
func (s *VendorService) SubmitApplication(ctx context.Context, req *SubmitApplicationRequest) (*models.VendorApplication, error) {
	if req.RequestedTier != models.VerificationBasic && req.RequestedTier != models.VerificationPremium {
		return nil, validationf("requested_tier must be %s or %s",
			models.VerificationBasic, models.VerificationPremium)
	}

	vendor, err := s.ledger.GetUserByID(ctx, req.VendorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load vendor: %w", err)
	}
	if vendor == nil {
		return nil, notFoundf("vendor %d", req.VendorID)
	}

	app := &models.VendorApplication{
		VendorID:      req.VendorID,
		RequestedTier: req.RequestedTier,
		Status:        models.ApplicationPending,
		SubmittedAt:   s.now(),
	}
	if err := s.ledger.CreateVendorApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	s.logger.Info("Vendor application submitted",
		zap.Int64("application_id", app.ID),
		zap.Int64("vendor_id", app.VendorID),
		zap.String("tier", app.RequestedTier))

	return app, nil
}

// ReviewApplication applies an admin decision to a pending application and
// updates the vendor's verification status accordingly.
func (s *VendorService) ReviewApplication(ctx context.Context, applicationID, reviewerID int64, decision string) (*models.VendorApplication, error) {
	reviewer, err := s.ledger.GetUserByID(ctx, reviewerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reviewer: %w", err)
	}
	if reviewer == nil || reviewer.Role != models.RoleAdmin {
		return nil, forbiddenf("user %d may not review applications", reviewerID)
	}

	app, err := s.ledger.GetVendorApplicationByID(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	if app == nil {
		return nil, notFoundf("application %d", applicationID)
	}

	var appStatus, tier string
	switch decision {
	case DecisionApproveBasic:
		appStatus, tier = models.ApplicationApproved, models.VerificationBasic
	case DecisionApprovePremium:
		appStatus, tier = models.ApplicationApproved, models.VerificationPremium
	case DecisionReject:
		appStatus, tier = models.ApplicationRejected, models.VerificationRejected
	default:
		return nil, validationf("unknown decision %q", decision)
	}

	reviewedAt := s.now()
	swapped, err := s.ledger.ReviewVendorApplication(ctx, applicationID, appStatus, reviewerID, reviewedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to review application: %w", err)
	}
	if !swapped {
		return nil, invalidStatef("application %d is already reviewed", applicationID)
	}
	app.Status = appStatus
	app.ReviewedAt = &reviewedAt
	app.ReviewerID = &reviewerID

	if err := s.ledger.SetUserVerification(ctx, app.VendorID, tier); err != nil {
		return nil, fmt.Errorf("failed to update vendor verification: %w", err)
	}

	s.logger.Info("Vendor application reviewed",
		zap.Int64("application_id", applicationID),
		zap.Int64("vendor_id", app.VendorID),
		zap.Int64("reviewer_id", reviewerID),
		zap.String("decision", decision))

	base := models.BaseEvent{
		EventID:   uuid.New().String(),
		Timestamp: reviewedAt,
	}
	if appStatus == models.ApplicationApproved {
		base.EventType = models.EventTypeVendorApproved
		s.publishEvent(ctx, &models.VendorApprovedEvent{
			BaseEvent:     base,
			ApplicationID: applicationID,
			VendorID:      app.VendorID,
			Tier:          tier,
		})
	} else {
		base.EventType = models.EventTypeVendorRejected
		s.publishEvent(ctx, &models.VendorRejectedEvent{
			BaseEvent:     base,
			ApplicationID: applicationID,
			VendorID:      app.VendorID,
		})
	}

	return app, nil
}

func (s *VendorService) publishEvent(ctx context.Context, event models.DomainEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish event",
			zap.String("event_type", event.Base().EventType),
			zap.Error(err))
	}
}
