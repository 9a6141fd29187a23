// Package settlement drives charge intents, multi-destination payout
// execution and the immutable payment records behind analytics.
package settlement

import (
	"fmt"
	"time"

	"platepay/internal/common/errs"
	"platepay/internal/fees"
)

// IntentState is the lifecycle state of a payment intent. completed and
// failed are terminal; an intent transitions exactly once out of created.
type IntentState string

const (
	IntentCreated   IntentState = "created"
	IntentCompleted IntentState = "completed"
	IntentFailed    IntentState = "failed"
)

// TransferStatus is the per-destination payout state.
type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferSucceeded TransferStatus = "succeeded"
	TransferFailed    TransferStatus = "failed"
)

// TransferKind distinguishes the mandatory restaurant payout from the
// optional venue payout.
type TransferKind string

const (
	TransferRestaurant TransferKind = "restaurant"
	TransferVenue      TransferKind = "venue"
)

// Transfer is one planned payout of part of a split to one destination
// account. It is owned by exactly one PaymentIntentRecord.
type Transfer struct {
	Kind                 TransferKind   `json:"kind"`
	DestinationAccountID string         `json:"destination_account_id"`
	AmountCents          int64          `json:"amount_cents"`
	Status               TransferStatus `json:"status"`
	FailureReason        string         `json:"failure_reason,omitempty"`
	PayoutRef            string         `json:"payout_ref,omitempty"`
}

// PaymentIntentRecord persists the split and the planned transfers at
// charge-creation time.
type PaymentIntentRecord struct {
	ID            string            `json:"id"`
	RestaurantID  string            `json:"restaurant_id"`
	VenueID       string            `json:"venue_id,omitempty"`
	Currency      string            `json:"currency"`
	Split         fees.PaymentSplit `json:"split"`
	Transfers     []Transfer        `json:"transfers"`
	State         IntentState       `json:"state"`
	FailureReason string            `json:"failure_reason,omitempty"`
	ProcessorRef  string            `json:"processor_ref,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// NewIntent builds a created intent with its planned transfer list: the
// restaurant transfer is always planned, the venue transfer only when the
// split carries a nonzero venue fee.
func NewIntent(id, restaurantID, venueID, currency string, split fees.PaymentSplit, restaurantAccount, venueAccount string) (*PaymentIntentRecord, error) {
	if id == "" {
		return nil, errs.Validation("id", "required")
	}
	if restaurantID == "" {
		return nil, errs.Validation("restaurantId", "required")
	}
	if restaurantAccount == "" {
		return nil, errs.Validation("restaurantAccount", "restaurant has no payout destination")
	}
	if split.VenueFeeCents > 0 && venueAccount == "" {
		return nil, errs.Validation("venueAccount", "split owes a venue fee but no venue payout destination exists")
	}

	transfers := []Transfer{{
		Kind:                 TransferRestaurant,
		DestinationAccountID: restaurantAccount,
		AmountCents:          split.RestaurantCents,
		Status:               TransferPending,
	}}
	if split.VenueFeeCents > 0 {
		transfers = append(transfers, Transfer{
			Kind:                 TransferVenue,
			DestinationAccountID: venueAccount,
			AmountCents:          split.VenueFeeCents,
			Status:               TransferPending,
		})
	}

	now := time.Now().UTC()
	return &PaymentIntentRecord{
		ID:           id,
		RestaurantID: restaurantID,
		VenueID:      venueID,
		Currency:     currency,
		Split:        split,
		Transfers:    transfers,
		State:        IntentCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsTerminal reports whether the intent has reached a terminal state.
func (p *PaymentIntentRecord) IsTerminal() bool {
	return p.State == IntentCompleted || p.State == IntentFailed
}

// RestaurantTransfer returns the mandatory restaurant transfer.
func (p *PaymentIntentRecord) RestaurantTransfer() *Transfer {
	for i := range p.Transfers {
		if p.Transfers[i].Kind == TransferRestaurant {
			return &p.Transfers[i]
		}
	}
	return nil
}

// markCompleted transitions the intent to completed. Repeating the same
// outcome is a no-op; crossing from one terminal state to the other is not.
func (p *PaymentIntentRecord) markCompleted(transfers []Transfer) error {
	switch p.State {
	case IntentCompleted:
		return nil
	case IntentFailed:
		return fmt.Errorf("intent %s already failed; cannot complete", p.ID)
	}
	now := time.Now().UTC()
	p.State = IntentCompleted
	p.Transfers = transfers
	p.CompletedAt = &now
	p.UpdatedAt = now
	return nil
}

// markFailed transitions the intent to failed, with the same idempotency
// rules as markCompleted.
func (p *PaymentIntentRecord) markFailed(reason string, transfers []Transfer) error {
	switch p.State {
	case IntentFailed:
		return nil
	case IntentCompleted:
		return fmt.Errorf("intent %s already completed; cannot fail", p.ID)
	}
	p.State = IntentFailed
	p.FailureReason = reason
	if transfers != nil {
		p.Transfers = transfers
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// PaymentRecord is the immutable completed-payment record, keyed by intent
// id, that analytics aggregates over. At most one exists per intent.
type PaymentRecord struct {
	IntentID     string            `json:"intent_id"`
	RestaurantID string            `json:"restaurant_id"`
	VenueID      string            `json:"venue_id,omitempty"`
	Currency     string            `json:"currency"`
	Split        fees.PaymentSplit `json:"split"`
	CompletedAt  time.Time         `json:"completed_at"`
}
