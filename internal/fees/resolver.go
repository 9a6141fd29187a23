package fees

import (
	"context"
	"fmt"
	"log/slog"

	"platepay/internal/directory"
)

// DirectoryReader is the slice of the directory store the resolver needs.
type DirectoryReader interface {
	GetRestaurant(ctx context.Context, id string) (*directory.Restaurant, error)
	GetVenue(ctx context.Context, id string) (*directory.Venue, error)
	GetActiveLink(ctx context.Context, restaurantID string) (*directory.VenueLink, error)
}

// Resolution is the outcome of fee resolution: the effective FeeConfig plus
// the payout destinations discovered along the way, so charge creation does
// not have to re-read the directory.
type Resolution struct {
	Config FeeConfig

	RestaurantPayoutAccount string
	VenueID                 string // empty when no active linkage
	VenuePayoutAccount      string
}

// Resolver derives the effective fee configuration for a restaurant. It is
// read-only; the resolved snapshot is what the split is computed from, and
// later configuration changes never retroactively affect an existing split.
type Resolver struct {
	dir    DirectoryReader
	logger *slog.Logger
}

// NewResolver creates a fee resolver.
func NewResolver(dir DirectoryReader, logger *slog.Logger) *Resolver {
	return &Resolver{dir: dir, logger: logger}
}

// Resolve merges platform defaults, restaurant overrides and venue linkage
// into a fully populated FeeConfig. Merge order: defaults first, then any
// explicitly stored restaurant override field, then the venue linkage, which
// alone decides VenueEnabled.
func (r *Resolver) Resolve(ctx context.Context, restaurantID string) (*Resolution, error) {
	restaurant, err := r.dir.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	overridden := applyOverride(&cfg, restaurant.FeeOverride)
	cfg.Negotiated = restaurant.Negotiated || overridden

	res := &Resolution{
		RestaurantPayoutAccount: restaurant.PayoutAccountID,
	}

	link, err := r.dir.GetActiveLink(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("resolving venue linkage for restaurant %s: %w", restaurantID, err)
	}

	if link != nil {
		cfg.VenueEnabled = true
		cfg.VenueFeePercentage = 0

		venue, err := r.dir.GetVenue(ctx, link.VenueID)
		if err != nil {
			return nil, err
		}
		res.VenueID = venue.ID
		res.VenuePayoutAccount = venue.PayoutAccountID

		if link.FeePercentage != nil {
			cfg.VenueFeePercentage = *link.FeePercentage
		} else {
			cfg.VenueFeePercentage = venue.DefaultFeePercentage
		}
	}

	r.logger.Debug("fee config resolved",
		"restaurant_id", restaurantID,
		"fee_type", cfg.FeeType,
		"venue_enabled", cfg.VenueEnabled,
		"negotiated", cfg.Negotiated,
	)

	res.Config = cfg
	return res, nil
}

// applyOverride copies explicitly stored fields onto cfg and reports whether
// any field was overridden.
func applyOverride(cfg *FeeConfig, o directory.FeeOverride) bool {
	overridden := false
	if o.FeeType != nil {
		cfg.FeeType = FeeType(*o.FeeType)
		overridden = true
	}
	if o.ServiceFeeFixed != nil {
		cfg.ServiceFeeFixed = *o.ServiceFeeFixed
		overridden = true
	}
	if o.ServiceFeePercentage != nil {
		cfg.ServiceFeePercentage = *o.ServiceFeePercentage
		overridden = true
	}
	if o.ProcessorFeePercentage != nil {
		cfg.ProcessorFeePercentage = *o.ProcessorFeePercentage
		overridden = true
	}
	if o.ProcessorFlatFee != nil {
		cfg.ProcessorFlatFee = *o.ProcessorFlatFee
		overridden = true
	}
	return overridden
}
