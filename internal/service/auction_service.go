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

// AuctionService owns bid acceptance and the deadline-driven close. All
// mutations of one auction and its bid set are serialized on a per-auction
// lock, so the read-compare-write on current_price cannot race. The
// active->ended transition is a single CAS in the ledger, so the close fires
// exactly once no matter how many sweeps or lazy reads trigger it.
type AuctionService struct {
	ledger Ledger
	events EventPublisher
	logger *zap.Logger
	now    Clock
	locks  *entityLock
}

// NewAuctionService creates a new auction engine.
func NewAuctionService(ledger Ledger, events EventPublisher, now Clock) *AuctionService {
	if now == nil {
		now = time.Now
	}
	return &AuctionService{
		ledger: ledger,
		events: events,
		logger: util.GetLogger(),
		now:    now,
		locks:  newEntityLock(),
	}
}

// CreateAuctionRequest represents a request to open an auction.
type CreateAuctionRequest struct {
	VendorID      int64  `json:"vendor_id" binding:"required"`
	Title         string `json:"title" binding:"required"`
	Description   string `json:"description"`
	Category      string `json:"category" binding:"required"`
	Location      string `json:"location" binding:"required"`
	StartingPrice int64  `json:"starting_price" binding:"required"`
	EndDate       string `json:"end_date" binding:"required"` // RFC 3339
}

// CreateAuction opens a new auction for a verified vendor.
func (s *AuctionService) CreateAuction(ctx context.Context, req *CreateAuctionRequest) (*models.Auction, error) {
	ctx, span := util.StartSpan(ctx, "AuctionService.CreateAuction")
	defer span.End()

	if req.StartingPrice <= 0 {
		return nil, validationf("starting price must be positive, got %d", req.StartingPrice)
	}
	endDate, err := time.Parse(time.RFC3339, req.EndDate)
	if err != nil {
		return nil, validationf("end_date must be RFC 3339: %v", err)
	}
	if !endDate.After(s.now()) {
		return nil, validationf("end_date must be in the future")
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

	auction := &models.Auction{
		VendorID:      req.VendorID,
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		Location:      req.Location,
		StartingPrice: req.StartingPrice,
		CurrentPrice:  req.StartingPrice,
		EndDate:       endDate,
		Status:        models.AuctionStatusActive,
		CreatedAt:     s.now(),
	}

	if err := s.ledger.CreateAuction(ctx, auction); err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}

	util.AuctionsCreatedTotal.Inc()
	s.logger.Info("Auction created",
		zap.Int64("auction_id", auction.ID),
		zap.Int64("vendor_id", auction.VendorID),
		zap.Int64("starting_price", auction.StartingPrice),
		zap.Time("end_date", auction.EndDate))

	return auction, nil
}

// PlaceBid accepts a strictly increasing bid on an active auction. Ties are
// rejected, so no tie-break rule exists by construction. The previously
// accepted bid, if any, flips to outbid and its bidder is notified.
func (s *AuctionService) PlaceBid(ctx context.Context, auctionID, bidderID, amount int64) (*models.Bid, error) {
	ctx, span := util.StartSpan(ctx, "AuctionService.PlaceBid")
	defer span.End()

	if amount <= 0 {
		return nil, validationf("bid amount must be positive, got %d", amount)
	}

	bidder, err := s.ledger.GetUserByID(ctx, bidderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bidder: %w", err)
	}
	if bidder == nil {
		return nil, notFoundf("bidder %d", bidderID)
	}

	unlock := s.locks.lock(auctionID)
	defer unlock()

	auction, err := s.getAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if auction.Status == models.AuctionStatusActive && !now.Before(auction.EndDate) {
		// Deadline passed but the sweep has not fired yet: close lazily,
		// then reject the bid. Server time is authoritative.
		auction, err = s.closeLocked(ctx, auction, now)
		if err != nil {
			return nil, err
		}
	}
	if auction.Status != models.AuctionStatusActive {
		util.BidsPlacedTotal.WithLabelValues("auction_closed").Inc()
		return nil, fmt.Errorf("%w: auction %d is %s", ErrAuctionClosed, auctionID, auction.Status)
	}
	if auction.VendorID == bidderID {
		return nil, forbiddenf("vendor %d cannot bid on their own auction", bidderID)
	}
	if amount <= auction.CurrentPrice {
		util.BidsPlacedTotal.WithLabelValues("too_low").Inc()
		return nil, fmt.Errorf("%w: bid %d must exceed current price %d",
			ErrBidTooLow, amount, auction.CurrentPrice)
	}

	previous, err := s.ledger.GetAcceptedBid(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load standing bid: %w", err)
	}
	var previousBidID int64
	if previous != nil {
		previousBidID = previous.ID
	}

	// Demote-then-insert, in one ledger transaction: the bids table keeps
	// at most one accepted row per auction.
	bid := &models.Bid{
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		Status:    models.BidStatusAccepted,
		PlacedAt:  now,
	}
	if err := s.ledger.AcceptBid(ctx, bid, previousBidID); err != nil {
		return nil, fmt.Errorf("failed to accept bid: %w", err)
	}

	util.BidsPlacedTotal.WithLabelValues("accepted").Inc()
	s.logger.Info("Bid accepted",
		zap.Int64("auction_id", auctionID),
		zap.Int64("bid_id", bid.ID),
		zap.Int64("bidder_id", bidderID),
		zap.Int64("amount", amount))

	s.publish(ctx, &models.BidAcceptedEvent{
		BaseEvent:    s.baseEvent(models.EventTypeBidAccepted),
		AuctionID:    auctionID,
		BidID:        bid.ID,
		BidderID:     bidderID,
		VendorID:     auction.VendorID,
		Amount:       amount,
		AuctionTitle: auction.Title,
	})
	if previous != nil {
		s.publish(ctx, &models.BidOutbidEvent{
			BaseEvent:    s.baseEvent(models.EventTypeBidOutbid),
			AuctionID:    auctionID,
			BidID:        previous.ID,
			BidderID:     previous.BidderID,
			NewAmount:    amount,
			AuctionTitle: auction.Title,
		})
	}

	return bid, nil
}

// GetAuction retrieves an auction, lazily closing it first if its deadline
// has passed. Reads are therefore always consistent with server time.
func (s *AuctionService) GetAuction(ctx context.Context, auctionID int64) (*models.Auction, error) {
	unlock := s.locks.lock(auctionID)
	defer unlock()

	auction, err := s.getAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if auction.Status == models.AuctionStatusActive && !now.Before(auction.EndDate) {
		return s.closeLocked(ctx, auction, now)
	}
	return auction, nil
}

// ListBids retrieves the full bid history of an auction.
func (s *AuctionService) ListBids(ctx context.Context, auctionID int64) ([]models.Bid, error) {
	if _, err := s.getAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return s.ledger.GetBidsByAuctionID(ctx, auctionID)
}

// CloseAuction performs the deadline close. Redundant triggers are no-ops:
// the active->ended CAS fires at most once and an already-closed auction is
// returned as-is.
func (s *AuctionService) CloseAuction(ctx context.Context, auctionID int64, now time.Time) (*models.Auction, error) {
	ctx, span := util.StartSpan(ctx, "AuctionService.CloseAuction")
	defer span.End()

	unlock := s.locks.lock(auctionID)
	defer unlock()

	auction, err := s.getAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if auction.Status != models.AuctionStatusActive {
		return auction, nil
	}
	if now.Before(auction.EndDate) {
		return nil, invalidStatef("auction %d does not end until %s",
			auctionID, auction.EndDate.Format(time.RFC3339))
	}
	return s.closeLocked(ctx, auction, now)
}

// closeLocked transitions active->ended and settles the outcome. Callers
// must hold the auction's entity lock.
func (s *AuctionService) closeLocked(ctx context.Context, auction *models.Auction, now time.Time) (*models.Auction, error) {
	swapped, err := s.ledger.UpdateAuctionStatus(ctx, auction.ID,
		models.AuctionStatusActive, models.AuctionStatusEnded)
	if err != nil {
		return nil, fmt.Errorf("failed to close auction: %w", err)
	}
	if !swapped {
		// Another trigger won the CAS; nothing left to settle.
		return s.getAuction(ctx, auction.ID)
	}
	auction.Status = models.AuctionStatusEnded

	winner, err := s.ledger.GetAcceptedBid(ctx, auction.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load winning bid: %w", err)
	}

	if winner != nil {
		if err := s.ledger.SetAuctionWinner(ctx, auction.ID, winner.ID); err != nil {
			s.logger.Error("Failed to record auction winner",
				zap.Int64("auction_id", auction.ID),
				zap.Error(err))
		}
		auction.WinningBidID = &winner.ID

		util.AuctionsClosedTotal.WithLabelValues("won").Inc()
		s.logger.Info("Auction closed with winner",
			zap.Int64("auction_id", auction.ID),
			zap.Int64("winning_bid_id", winner.ID),
			zap.Int64("winner_id", winner.BidderID),
			zap.Int64("amount", winner.Amount),
			zap.Time("closed_at", now))

		s.publish(ctx, &models.AuctionWonEvent{
			BaseEvent:    s.baseEvent(models.EventTypeAuctionWon),
			AuctionID:    auction.ID,
			WinnerID:     winner.BidderID,
			VendorID:     auction.VendorID,
			WinningBidID: winner.ID,
			Amount:       winner.Amount,
			AuctionTitle: auction.Title,
		})
	} else {
		util.AuctionsClosedTotal.WithLabelValues("no_winner").Inc()
		s.logger.Info("Auction closed without bids",
			zap.Int64("auction_id", auction.ID),
			zap.Time("closed_at", now))

		s.publish(ctx, &models.AuctionEndedNoWinnerEvent{
			BaseEvent:    s.baseEvent(models.EventTypeAuctionEndedNoBids),
			AuctionID:    auction.ID,
			VendorID:     auction.VendorID,
			AuctionTitle: auction.Title,
		})
	}

	return auction, nil
}

// CancelAuction terminates an active auction without a winner. Allowed for
// the owning vendor or an admin; forbidden once the auction has ended.
func (s *AuctionService) CancelAuction(ctx context.Context, auctionID, actorID int64) (*models.Auction, error) {
	ctx, span := util.StartSpan(ctx, "AuctionService.CancelAuction")
	defer span.End()

	actor, err := s.ledger.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load actor: %w", err)
	}
	if actor == nil {
		return nil, notFoundf("user %d", actorID)
	}

	unlock := s.locks.lock(auctionID)
	defer unlock()

	auction, err := s.getAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && auction.VendorID != actorID {
		return nil, forbiddenf("user %d may not cancel auction %d", actorID, auctionID)
	}
	if auction.Status != models.AuctionStatusActive {
		return nil, invalidStatef("auction %d is already %s", auctionID, auction.Status)
	}

	swapped, err := s.ledger.UpdateAuctionStatus(ctx, auctionID,
		models.AuctionStatusActive, models.AuctionStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel auction: %w", err)
	}
	if !swapped {
		return nil, invalidStatef("auction %d changed state during cancellation", auctionID)
	}
	auction.Status = models.AuctionStatusCancelled

	util.AuctionsClosedTotal.WithLabelValues("cancelled").Inc()
	s.logger.Info("Auction cancelled",
		zap.Int64("auction_id", auctionID),
		zap.Int64("actor_id", actorID))

	return auction, nil
}

// CloseDueAuctions closes every active auction whose deadline has passed.
// Invoked by the background sweeper; safe to run redundantly.
func (s *AuctionService) CloseDueAuctions(ctx context.Context, now time.Time) (int, error) {
	ctx, span := util.StartSpan(ctx, "AuctionService.CloseDueAuctions")
	defer span.End()

	due, err := s.ledger.GetDueActiveAuctions(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list due auctions: %w", err)
	}

	closed := 0
	for i := range due {
		if _, err := s.CloseAuction(ctx, due[i].ID, now); err != nil {
			s.logger.Error("Failed to close due auction",
				zap.Int64("auction_id", due[i].ID),
				zap.Error(err))
			continue
		}
		closed++
	}
	return closed, nil
}

func (s *AuctionService) getAuction(ctx context.Context, auctionID int64) (*models.Auction, error) {
	auction, err := s.ledger.GetAuctionByID(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load auction: %w", err)
	}
	if auction == nil {
		return nil, notFoundf("auction %d", auctionID)
	}
	return auction, nil
}

func (s *AuctionService) baseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: s.now(),
	}
}

func (s *AuctionService) publish(ctx context.Context, event models.DomainEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish event",
			zap.String("event_type", event.Base().EventType),
			zap.Error(err))
	}
}
