package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"prolist/internal/models"
)

// CreateAuction creates a new auction
func (s *Store) CreateAuction(ctx context.Context, a *models.Auction) error {
	query := `
		INSERT INTO auctions (vendor_id, title, description, category, location,
			starting_price, current_price, end_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, a, query,
		a.VendorID, a.Title, a.Description, a.Category, a.Location,
		a.StartingPrice, a.CurrentPrice, a.EndDate, a.Status)
}

// GetAuctionByID retrieves an auction by ID; returns nil when absent.
func (s *Store) GetAuctionByID(ctx context.Context, id int64) (*models.Auction, error) {
	var auction models.Auction
	err := s.db.GetContext(ctx, &auction, "SELECT * FROM auctions WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &auction, nil
}

// UpdateAuctionStatus moves status from -> to as a compare-and-swap and
// reports whether the row moved. The active->ended close rides on this so
// it fires exactly once no matter how many triggers race.
func (s *Store) UpdateAuctionStatus(ctx context.Context, auctionID int64, from, to string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE auctions SET status = $1 WHERE id = $2 AND status = $3",
		to, auctionID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetAuctionWinner records the winning bid at close.
func (s *Store) SetAuctionWinner(ctx context.Context, auctionID, bidID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE auctions SET winning_bid_id = $1 WHERE id = $2", bidID, auctionID)
	return err
}

// GetDueActiveAuctions lists active auctions whose deadline has passed.
func (s *Store) GetDueActiveAuctions(ctx context.Context, now time.Time) ([]models.Auction, error) {
	var auctions []models.Auction
	err := s.db.SelectContext(ctx, &auctions,
		"SELECT * FROM auctions WHERE status = $1 AND end_date <= $2 ORDER BY end_date",
		models.AuctionStatusActive, now)
	return auctions, err
}

// CreateBid creates a new bid
func (s *Store) CreateBid(ctx context.Context, b *models.Bid) error {
	query := `
		INSERT INTO bids (auction_id, bidder_id, amount, status, placed_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	return s.db.GetContext(ctx, &b.ID, query,
		b.AuctionID, b.BidderID, b.Amount, b.Status, b.PlacedAt)
}

// AcceptBid records a new standing bid in one transaction: the previous
// accepted bid (if any) flips to outbid, the new bid is inserted as
// accepted, and current_price moves up. The demote must land before the
// insert because bids carries a partial unique index allowing one accepted
// row per auction; the transaction keeps a mid-sequence failure from
// stranding the auction with no accepted bid or a stale price.
func (s *Store) AcceptBid(ctx context.Context, bid *models.Bid, previousBidID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if previousBidID != 0 {
		_, err = tx.ExecContext(ctx,
			"UPDATE bids SET status = $1 WHERE id = $2",
			models.BidStatusOutbid, previousBidID)
		if err != nil {
			return fmt.Errorf("failed to outbid previous bid: %w", err)
		}
	}

	query := `
		INSERT INTO bids (auction_id, bidder_id, amount, status, placed_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	err = tx.GetContext(ctx, &bid.ID, query,
		bid.AuctionID, bid.BidderID, bid.Amount, bid.Status, bid.PlacedAt)
	if err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE auctions SET current_price = $1 WHERE id = $2 AND current_price < $1",
		bid.Amount, bid.AuctionID)
	if err != nil {
		return fmt.Errorf("failed to update current price: %w", err)
	}

	return tx.Commit()
}

// GetAcceptedBid retrieves the standing highest bid; returns nil when the
// auction has no accepted bid.
func (s *Store) GetAcceptedBid(ctx context.Context, auctionID int64) (*models.Bid, error) {
	var bid models.Bid
	err := s.db.GetContext(ctx, &bid,
		"SELECT * FROM bids WHERE auction_id = $1 AND status = $2 ORDER BY amount DESC LIMIT 1",
		auctionID, models.BidStatusAccepted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

// GetBidsByAuctionID retrieves all bids on an auction, highest first.
func (s *Store) GetBidsByAuctionID(ctx context.Context, auctionID int64) ([]models.Bid, error) {
	var bids []models.Bid
	err := s.db.SelectContext(ctx, &bids,
		"SELECT * FROM bids WHERE auction_id = $1 ORDER BY amount DESC, placed_at",
		auctionID)
	return bids, err
}
