package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"platepay/internal/common/database"
	"platepay/internal/common/errs"
)

// BulkChunkSize bounds how many identifiers a single bulk statement touches.
// The store enforces a query limit, so larger requests are split; atomicity
// holds within a chunk, never across chunks.
const BulkChunkSize = 25

// Store persists directory records in PostgreSQL.
type Store struct {
	db *database.DB
}

// NewStore creates a directory store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// GetRestaurant retrieves a restaurant by id.
func (s *Store) GetRestaurant(ctx context.Context, id string) (*Restaurant, error) {
	query := `
		SELECT id, name, payout_account_id, online, negotiated,
		       fee_type, service_fee_fixed, service_fee_percentage,
		       processor_fee_percentage, processor_flat_fee,
		       created_at, updated_at
		FROM restaurants
		WHERE id = $1
	`

	var r Restaurant
	err := s.db.QueryRow(ctx, query, id).Scan(
		&r.ID, &r.Name, &r.PayoutAccountID, &r.Online, &r.Negotiated,
		&r.FeeOverride.FeeType, &r.FeeOverride.ServiceFeeFixed, &r.FeeOverride.ServiceFeePercentage,
		&r.FeeOverride.ProcessorFeePercentage, &r.FeeOverride.ProcessorFlatFee,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFound("restaurant", id)
		}
		return nil, fmt.Errorf("get restaurant %s: %w", id, err)
	}
	return &r, nil
}

// CreateRestaurant inserts a restaurant record.
func (s *Store) CreateRestaurant(ctx context.Context, r *Restaurant) error {
	query := `
		INSERT INTO restaurants (
			id, name, payout_account_id, online, negotiated,
			fee_type, service_fee_fixed, service_fee_percentage,
			processor_fee_percentage, processor_flat_fee,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err := s.db.Exec(ctx, query,
		r.ID, r.Name, r.PayoutAccountID, r.Online, r.Negotiated,
		r.FeeOverride.FeeType, r.FeeOverride.ServiceFeeFixed, r.FeeOverride.ServiceFeePercentage,
		r.FeeOverride.ProcessorFeePercentage, r.FeeOverride.ProcessorFlatFee,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create restaurant %s: %w", r.ID, err)
	}
	return nil
}

// GetVenue retrieves a venue by id.
func (s *Store) GetVenue(ctx context.Context, id string) (*Venue, error) {
	query := `
		SELECT id, name, payout_account_id, default_fee_percentage, created_at, updated_at
		FROM venues
		WHERE id = $1
	`

	var v Venue
	err := s.db.QueryRow(ctx, query, id).Scan(
		&v.ID, &v.Name, &v.PayoutAccountID, &v.DefaultFeePercentage, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFound("venue", id)
		}
		return nil, fmt.Errorf("get venue %s: %w", id, err)
	}
	return &v, nil
}

// CreateVenue inserts a venue record.
func (s *Store) CreateVenue(ctx context.Context, v *Venue) error {
	query := `
		INSERT INTO venues (id, name, payout_account_id, default_fee_percentage, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now

	_, err := s.db.Exec(ctx, query,
		v.ID, v.Name, v.PayoutAccountID, v.DefaultFeePercentage, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create venue %s: %w", v.ID, err)
	}
	return nil
}

// GetActiveLink returns the active venue linkage for a restaurant, or nil if
// none exists. Pending and rejected linkages never affect fee resolution.
func (s *Store) GetActiveLink(ctx context.Context, restaurantID string) (*VenueLink, error) {
	query := `
		SELECT id, restaurant_id, venue_id, status, fee_percentage, created_at, updated_at
		FROM venue_links
		WHERE restaurant_id = $1 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1
	`

	var l VenueLink
	err := s.db.QueryRow(ctx, query, restaurantID).Scan(
		&l.ID, &l.RestaurantID, &l.VenueID, &l.Status, &l.FeePercentage, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active link for restaurant %s: %w", restaurantID, err)
	}
	return &l, nil
}

// CreateLink inserts a restaurant-venue linkage.
func (s *Store) CreateLink(ctx context.Context, l *VenueLink) error {
	query := `
		INSERT INTO venue_links (id, restaurant_id, venue_id, status, fee_percentage, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now

	_, err := s.db.Exec(ctx, query,
		l.ID, l.RestaurantID, l.VenueID, l.Status, l.FeePercentage, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create venue link %s: %w", l.ID, err)
	}
	return nil
}

// SetLinkStatus moves a linkage between pending, active and rejected.
func (s *Store) SetLinkStatus(ctx context.Context, linkID string, status LinkStatus) error {
	query := `UPDATE venue_links SET status = $2, updated_at = $3 WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, linkID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set link %s status: %w", linkID, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("venue link", linkID)
	}
	return nil
}

// BulkSetOnline flips the online flag for a batch of restaurants. The id list
// is split into chunks of BulkChunkSize and one ChunkResult is reported per
// chunk; a failed chunk does not stop the remaining chunks.
func (s *Store) BulkSetOnline(ctx context.Context, ids []string, online bool) []ChunkResult {
	query := `UPDATE restaurants SET online = $2, updated_at = $3 WHERE id = ANY($1)`
	return s.bulkUpdate(ctx, ids, func(chunk []string) (int64, error) {
		tag, err := s.db.Exec(ctx, query, chunk, online, time.Now().UTC())
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	})
}

// BulkSetItemStock flips the stock flag for a batch of menu items, chunked the
// same way as BulkSetOnline.
func (s *Store) BulkSetItemStock(ctx context.Context, itemIDs []string, inStock bool) []ChunkResult {
	query := `UPDATE menu_items SET in_stock = $2, updated_at = $3 WHERE id = ANY($1)`
	return s.bulkUpdate(ctx, itemIDs, func(chunk []string) (int64, error) {
		tag, err := s.db.Exec(ctx, query, chunk, inStock, time.Now().UTC())
		if err != nil {
			return 0, err
		}
		return tag.RowsAffected(), nil
	})
}

func (s *Store) bulkUpdate(ctx context.Context, ids []string, exec func(chunk []string) (int64, error)) []ChunkResult {
	chunks := Chunk(ids, BulkChunkSize)
	results := make([]ChunkResult, 0, len(chunks))

	for i, chunk := range chunks {
		updated, err := exec(chunk)
		results = append(results, ChunkResult{
			Index:   i,
			Size:    len(chunk),
			Updated: updated,
			Err:     err,
		})
	}
	return results
}

// Chunk splits ids into groups of at most size elements, preserving order.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 || len(ids) == 0 {
		return nil
	}

	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
