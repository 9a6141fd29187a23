package fees

import (
	"github.com/shopspring/decimal"

	"platepay/internal/common/errs"
)

// PaymentSplit is the deterministic division of one gross charge between the
// payment processor, the platform, an optional venue and the restaurant. All
// amounts are minor units.
type PaymentSplit struct {
	GrossCents        int64 `json:"gross_cents"`
	ProcessorFeeCents int64 `json:"processor_fee_cents"`
	PlatformFeeCents  int64 `json:"platform_fee_cents"`
	VenueFeeCents     int64 `json:"venue_fee_cents"`
	RestaurantCents   int64 `json:"restaurant_cents"`
	NetCents          int64 `json:"net_cents"`
}

// splitTolerance is the permitted rounding slack, in minor units, between the
// gross amount and the sum of its parts.
const splitTolerance = 1

// Compute derives a validated PaymentSplit from a gross charge and an
// effective fee configuration. It is a pure function: identical inputs always
// yield an identical split.
//
// All percentage applications round half-up (decimal arithmetic, no float
// drift); the same mode must be used by any client-side pre-calculation or
// the integrity check below will trip on settlement.
func Compute(grossCents int64, cfg FeeConfig) (PaymentSplit, error) {
	if grossCents <= 0 {
		return PaymentSplit{}, errs.Validation("grossCents", "must be positive")
	}
	if err := cfg.Validate(); err != nil {
		return PaymentSplit{}, err
	}

	processorFee := percentOf(grossCents, cfg.ProcessorFeePercentage) + cfg.ProcessorFlatFee

	net := grossCents - processorFee
	if net < 0 {
		return PaymentSplit{}, errs.Validationf("grossCents",
			"processor fees (%d) exceed charge (%d)", processorFee, grossCents)
	}

	var platformFee int64
	switch cfg.FeeType {
	case FeeTypeFixed:
		platformFee = cfg.ServiceFeeFixed
	case FeeTypePercentage:
		platformFee = percentOf(net, cfg.ServiceFeePercentage)
	case FeeTypeHybrid:
		platformFee = cfg.ServiceFeeFixed + percentOf(net, cfg.ServiceFeePercentage)
	default:
		// Unreachable after Validate, kept so a future fee type cannot fall
		// through to a silent default.
		return PaymentSplit{}, errs.Validationf("feeType", "unknown fee type %q", cfg.FeeType)
	}

	var venueFee int64
	if cfg.VenueEnabled {
		venueFee = percentOf(net, cfg.VenueFeePercentage)
	}

	restaurant := net - platformFee - venueFee
	if restaurant < 0 {
		return PaymentSplit{}, errs.Validationf("grossCents",
			"platform and venue fees (%d) exceed net amount (%d)", platformFee+venueFee, net)
	}

	split := PaymentSplit{
		GrossCents:        grossCents,
		ProcessorFeeCents: processorFee,
		PlatformFeeCents:  platformFee,
		VenueFeeCents:     venueFee,
		RestaurantCents:   restaurant,
		NetCents:          net,
	}

	sum := split.ProcessorFeeCents + split.PlatformFeeCents + split.VenueFeeCents + split.RestaurantCents
	if diff := sum - grossCents; diff > splitTolerance || diff < -splitTolerance {
		return PaymentSplit{}, &errs.SplitIntegrityError{GrossCents: grossCents, SumCents: sum}
	}

	return split, nil
}

// percentOf applies pct (0-100) to an amount of minor units, rounding half-up.
func percentOf(amountCents int64, pct float64) int64 {
	if pct == 0 || amountCents == 0 {
		return 0
	}
	return decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromFloat(pct)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}
