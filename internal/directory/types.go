// Package directory holds the persisted records the payment core collaborates
// with: restaurants, venues and the linkage between them. The core reads these
// records; it does not own their lifecycle.
package directory

import "time"

// LinkStatus is the state of a restaurant-venue linkage.
type LinkStatus string

const (
	LinkPending  LinkStatus = "pending"
	LinkActive   LinkStatus = "active"
	LinkRejected LinkStatus = "rejected"
)

// Restaurant is a payout-receiving merchant. FeeOverride fields are pointers:
// only explicitly stored fields override the platform defaults during fee
// resolution.
type Restaurant struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	PayoutAccountID string       `json:"payout_account_id"`
	Online          bool         `json:"online"`
	Negotiated      bool         `json:"negotiated"`
	FeeOverride     FeeOverride  `json:"fee_override"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// FeeOverride holds per-restaurant fee fields. A nil field means "use the
// platform default".
type FeeOverride struct {
	FeeType                *string  `json:"fee_type,omitempty"`
	ServiceFeeFixed        *int64   `json:"service_fee_fixed,omitempty"`
	ServiceFeePercentage   *float64 `json:"service_fee_percentage,omitempty"`
	ProcessorFeePercentage *float64 `json:"processor_fee_percentage,omitempty"`
	ProcessorFlatFee       *int64   `json:"processor_flat_fee,omitempty"`
}

// Venue hosts multiple restaurants and takes a commission on their orders.
type Venue struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	PayoutAccountID      string    `json:"payout_account_id"`
	DefaultFeePercentage float64   `json:"default_fee_percentage"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// VenueLink ties a restaurant to a venue. FeePercentage, when set, is the
// negotiated fee agreement for this specific linkage; otherwise the venue's
// default applies.
type VenueLink struct {
	ID            string     `json:"id"`
	RestaurantID  string     `json:"restaurant_id"`
	VenueID       string     `json:"venue_id"`
	Status        LinkStatus `json:"status"`
	FeePercentage *float64   `json:"fee_percentage,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// MenuItem is the stock-tracked part of a restaurant's menu. Only the bulk
// stock flag is touched here; menu CRUD lives elsewhere.
type MenuItem struct {
	ID           string    `json:"id"`
	RestaurantID string    `json:"restaurant_id"`
	Name         string    `json:"name"`
	InStock      bool      `json:"in_stock"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ChunkResult reports the outcome of one chunk of a bulk update. Bulk
// operations are atomic per chunk only; callers must inspect every entry.
type ChunkResult struct {
	Index   int   `json:"index"`
	Size    int   `json:"size"`
	Updated int64 `json:"updated"`
	Err     error `json:"-"`
}
