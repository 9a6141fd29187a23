package settlement

import "platepay/internal/fees"

// IntentCreatedEvent is published when a charge is created and its split
// locked in.
type IntentCreatedEvent struct {
	IntentID     string            `json:"intent_id"`
	RestaurantID string            `json:"restaurant_id"`
	VenueID      string            `json:"venue_id,omitempty"`
	Currency     string            `json:"currency"`
	Split        fees.PaymentSplit `json:"split"`
}

// SettlementCompletedEvent is published once an intent reaches completed.
type SettlementCompletedEvent struct {
	IntentID           string `json:"intent_id"`
	RestaurantID       string `json:"restaurant_id"`
	TransfersAttempted int    `json:"transfers_attempted"`
	TransfersSucceeded int    `json:"transfers_succeeded"`
}

// SettlementFailedEvent is published once an intent reaches failed.
type SettlementFailedEvent struct {
	IntentID     string `json:"intent_id"`
	RestaurantID string `json:"restaurant_id"`
	Reason       string `json:"reason"`
}

// TransferFailedEvent is published for each payout that fails, whether or
// not the intent itself completes. Consumers use it for reconciliation.
type TransferFailedEvent struct {
	IntentID             string       `json:"intent_id"`
	Kind                 TransferKind `json:"kind"`
	DestinationAccountID string       `json:"destination_account_id"`
	AmountCents          int64        `json:"amount_cents"`
	Reason               string       `json:"reason"`
}
