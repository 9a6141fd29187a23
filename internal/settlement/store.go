package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"platepay/internal/common/database"
	"platepay/internal/common/errs"
)

// scanChunkSize bounds how many payment records one chunked scan query
// fetches; windows larger than this paginate by (completed_at, intent_id).
const scanChunkSize = 500

// PostgresStore persists payment intents and payment records in PostgreSQL.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a settlement store.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateIntent inserts a new payment intent in the created state.
func (s *PostgresStore) CreateIntent(ctx context.Context, intent *PaymentIntentRecord) error {
	query := `
		INSERT INTO payment_intents (
			id, restaurant_id, venue_id, currency,
			gross_cents, processor_fee_cents, platform_fee_cents,
			venue_fee_cents, restaurant_cents, net_cents,
			state, failure_reason, processor_ref, transfers,
			created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	transfers, err := json.Marshal(intent.Transfers)
	if err != nil {
		return fmt.Errorf("marshal transfers for intent %s: %w", intent.ID, err)
	}

	_, err = s.db.Exec(ctx, query,
		intent.ID, intent.RestaurantID, nullStr(intent.VenueID), intent.Currency,
		intent.Split.GrossCents, intent.Split.ProcessorFeeCents, intent.Split.PlatformFeeCents,
		intent.Split.VenueFeeCents, intent.Split.RestaurantCents, intent.Split.NetCents,
		intent.State, nullStr(intent.FailureReason), nullStr(intent.ProcessorRef), transfers,
		intent.CreatedAt, intent.UpdatedAt, intent.CompletedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("intent %s: %w", intent.ID, database.ErrAlreadyExists)
		}
		return fmt.Errorf("create intent %s: %w", intent.ID, err)
	}
	return nil
}

// GetIntent retrieves a payment intent by id.
func (s *PostgresStore) GetIntent(ctx context.Context, id string) (*PaymentIntentRecord, error) {
	query := `
		SELECT id, restaurant_id, venue_id, currency,
		       gross_cents, processor_fee_cents, platform_fee_cents,
		       venue_fee_cents, restaurant_cents, net_cents,
		       state, failure_reason, processor_ref, transfers,
		       created_at, updated_at, completed_at
		FROM payment_intents
		WHERE id = $1
	`
	return s.scanIntent(s.db.QueryRow(ctx, query, id), id)
}

// UpdateTransfers persists per-destination payout progress for a live intent
// without touching its state, so a crash mid-execution never loses the record
// of payouts already made.
func (s *PostgresStore) UpdateTransfers(ctx context.Context, id string, transfers []Transfer) error {
	query := `
		UPDATE payment_intents SET transfers = $2, updated_at = $3
		WHERE id = $1 AND state = 'created'
	`

	raw, err := json.Marshal(transfers)
	if err != nil {
		return fmt.Errorf("marshal transfers for intent %s: %w", id, err)
	}

	if _, err := s.db.Exec(ctx, query, id, raw, time.Now().UTC()); err != nil {
		return fmt.Errorf("update transfers for intent %s: %w", id, err)
	}
	return nil
}

// MarkCompleted transitions an intent to completed with its final transfer
// results. Marking an already-completed intent again is a no-op; an intent
// that already failed cannot complete.
func (s *PostgresStore) MarkCompleted(ctx context.Context, id string, transfers []Transfer) error {
	return s.markTerminal(ctx, id, func(intent *PaymentIntentRecord) error {
		return intent.markCompleted(transfers)
	})
}

// MarkFailed transitions an intent to failed, recording why. Same
// idempotency rules as MarkCompleted.
func (s *PostgresStore) MarkFailed(ctx context.Context, id, reason string, transfers []Transfer) error {
	return s.markTerminal(ctx, id, func(intent *PaymentIntentRecord) error {
		return intent.markFailed(reason, transfers)
	})
}

// markTerminal applies a state transition under a row lock so concurrent
// redeliveries of the same event serialize on the intent row.
func (s *PostgresStore) markTerminal(ctx context.Context, id string, transition func(*PaymentIntentRecord) error) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		query := `
			SELECT id, restaurant_id, venue_id, currency,
			       gross_cents, processor_fee_cents, platform_fee_cents,
			       venue_fee_cents, restaurant_cents, net_cents,
			       state, failure_reason, processor_ref, transfers,
			       created_at, updated_at, completed_at
			FROM payment_intents
			WHERE id = $1
			FOR UPDATE
		`

		intent, err := s.scanIntent(tx.QueryRow(ctx, query, id), id)
		if err != nil {
			return err
		}

		before := intent.State
		if err := transition(intent); err != nil {
			return err
		}
		if intent.State == before {
			// Already in the requested terminal state.
			return nil
		}

		raw, err := json.Marshal(intent.Transfers)
		if err != nil {
			return fmt.Errorf("marshal transfers for intent %s: %w", id, err)
		}

		update := `
			UPDATE payment_intents SET
				state = $2, failure_reason = $3, transfers = $4,
				updated_at = $5, completed_at = $6
			WHERE id = $1
		`
		_, err = tx.Exec(ctx, update,
			intent.ID, intent.State, nullStr(intent.FailureReason), raw,
			intent.UpdatedAt, intent.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("mark intent %s %s: %w", id, intent.State, err)
		}
		return nil
	})
}

func (s *PostgresStore) scanIntent(row pgx.Row, id string) (*PaymentIntentRecord, error) {
	var i PaymentIntentRecord
	var venueID, failureReason, processorRef *string
	var transfers []byte

	err := row.Scan(
		&i.ID, &i.RestaurantID, &venueID, &i.Currency,
		&i.Split.GrossCents, &i.Split.ProcessorFeeCents, &i.Split.PlatformFeeCents,
		&i.Split.VenueFeeCents, &i.Split.RestaurantCents, &i.Split.NetCents,
		&i.State, &failureReason, &processorRef, &transfers,
		&i.CreatedAt, &i.UpdatedAt, &i.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFound("payment intent", id)
		}
		return nil, fmt.Errorf("scan intent %s: %w", id, err)
	}

	if venueID != nil {
		i.VenueID = *venueID
	}
	if failureReason != nil {
		i.FailureReason = *failureReason
	}
	if processorRef != nil {
		i.ProcessorRef = *processorRef
	}
	if err := json.Unmarshal(transfers, &i.Transfers); err != nil {
		return nil, fmt.Errorf("unmarshal transfers for intent %s: %w", id, err)
	}
	return &i, nil
}

// InsertRecord writes the completed-payment record for an intent. The intent
// id is the primary key, so replays of the same completion insert nothing.
func (s *PostgresStore) InsertRecord(ctx context.Context, rec *PaymentRecord) error {
	query := `
		INSERT INTO payment_records (
			intent_id, restaurant_id, venue_id, currency,
			gross_cents, processor_fee_cents, platform_fee_cents,
			venue_fee_cents, restaurant_cents, net_cents, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (intent_id) DO NOTHING
	`

	_, err := s.db.Exec(ctx, query,
		rec.IntentID, rec.RestaurantID, nullStr(rec.VenueID), rec.Currency,
		rec.Split.GrossCents, rec.Split.ProcessorFeeCents, rec.Split.PlatformFeeCents,
		rec.Split.VenueFeeCents, rec.Split.RestaurantCents, rec.Split.NetCents,
		rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment record %s: %w", rec.IntentID, err)
	}
	return nil
}

// RecordQuery filters a payment-record listing by time window.
type RecordQuery struct {
	From  time.Time
	To    time.Time
	Limit int
}

func (q RecordQuery) limit() int {
	if q.Limit <= 0 || q.Limit > scanChunkSize {
		return scanChunkSize
	}
	return q.Limit
}

// ListByRestaurant returns a restaurant's completed payments, newest first.
func (s *PostgresStore) ListByRestaurant(ctx context.Context, restaurantID string, q RecordQuery) ([]*PaymentRecord, error) {
	query := `
		SELECT intent_id, restaurant_id, venue_id, currency,
		       gross_cents, processor_fee_cents, platform_fee_cents,
		       venue_fee_cents, restaurant_cents, net_cents, completed_at
		FROM payment_records
		WHERE restaurant_id = $1
		  AND ($2::timestamptz IS NULL OR completed_at >= $2)
		  AND ($3::timestamptz IS NULL OR completed_at < $3)
		ORDER BY completed_at DESC
		LIMIT $4
	`
	return s.listRecords(ctx, query, restaurantID, nullTime(q.From), nullTime(q.To), q.limit())
}

// ListByVenue returns completed payments attributed to a venue, newest first.
func (s *PostgresStore) ListByVenue(ctx context.Context, venueID string, q RecordQuery) ([]*PaymentRecord, error) {
	query := `
		SELECT intent_id, restaurant_id, venue_id, currency,
		       gross_cents, processor_fee_cents, platform_fee_cents,
		       venue_fee_cents, restaurant_cents, net_cents, completed_at
		FROM payment_records
		WHERE venue_id = $1
		  AND ($2::timestamptz IS NULL OR completed_at >= $2)
		  AND ($3::timestamptz IS NULL OR completed_at < $3)
		ORDER BY completed_at DESC
		LIMIT $4
	`
	return s.listRecords(ctx, query, venueID, nullTime(q.From), nullTime(q.To), q.limit())
}

// ListAll returns completed payments across the whole platform, newest
// first.
func (s *PostgresStore) ListAll(ctx context.Context, q RecordQuery) ([]*PaymentRecord, error) {
	query := `
		SELECT intent_id, restaurant_id, venue_id, currency,
		       gross_cents, processor_fee_cents, platform_fee_cents,
		       venue_fee_cents, restaurant_cents, net_cents, completed_at
		FROM payment_records
		WHERE ($1::timestamptz IS NULL OR completed_at >= $1)
		  AND ($2::timestamptz IS NULL OR completed_at < $2)
		ORDER BY completed_at DESC
		LIMIT $3
	`
	return s.listRecords(ctx, query, nullTime(q.From), nullTime(q.To), q.limit())
}

// ScanWindow streams every completed payment on or after from, oldest first,
// through fn. Fetching happens in chunks keyed by (completed_at, intent_id)
// so arbitrarily large windows never load into memory at once. fn returning
// an error stops the scan.
func (s *PostgresStore) ScanWindow(ctx context.Context, from time.Time, fn func(*PaymentRecord) error) error {
	query := `
		SELECT intent_id, restaurant_id, venue_id, currency,
		       gross_cents, processor_fee_cents, platform_fee_cents,
		       venue_fee_cents, restaurant_cents, net_cents, completed_at
		FROM payment_records
		WHERE (completed_at, intent_id) > ($1, $2) AND completed_at >= $3
		ORDER BY completed_at ASC, intent_id ASC
		LIMIT $4
	`

	cursorAt := time.Time{}
	cursorID := ""
	for {
		records, err := s.listRecords(ctx, query, cursorAt, cursorID, from, scanChunkSize)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if err := fn(rec); err != nil {
				return err
			}
		}
		if len(records) < scanChunkSize {
			return nil
		}
		last := records[len(records)-1]
		cursorAt, cursorID = last.CompletedAt, last.IntentID
	}
}

func (s *PostgresStore) listRecords(ctx context.Context, query string, args ...any) ([]*PaymentRecord, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payment records: %w", err)
	}
	defer rows.Close()

	var records []*PaymentRecord
	for rows.Next() {
		var r PaymentRecord
		var venueID *string
		err := rows.Scan(
			&r.IntentID, &r.RestaurantID, &venueID, &r.Currency,
			&r.Split.GrossCents, &r.Split.ProcessorFeeCents, &r.Split.PlatformFeeCents,
			&r.Split.VenueFeeCents, &r.Split.RestaurantCents, &r.Split.NetCents,
			&r.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan payment record: %w", err)
		}
		if venueID != nil {
			r.VenueID = *venueID
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
