// Package fees contains the fee configuration model, the per-restaurant
// resolver and the split calculator.
package fees

import (
	"platepay/internal/common/errs"
)

// FeeType selects how the platform fee is computed.
type FeeType string

const (
	FeeTypeFixed      FeeType = "fixed"
	FeeTypePercentage FeeType = "percentage"
	FeeTypeHybrid     FeeType = "hybrid"
)

// FeeConfig is the effective fee configuration for one restaurant at one
// moment. It is always derived by merging (defaults < restaurant override <
// venue linkage) and is never persisted as a standalone mutable entity.
type FeeConfig struct {
	FeeType                FeeType `json:"fee_type"`
	ServiceFeeFixed        int64   `json:"service_fee_fixed"`        // minor units
	ServiceFeePercentage   float64 `json:"service_fee_percentage"`   // 0-100
	ProcessorFeePercentage float64 `json:"processor_fee_percentage"` // 0-100
	ProcessorFlatFee       int64   `json:"processor_flat_fee"`       // minor units
	VenueEnabled           bool    `json:"venue_enabled"`
	VenueFeePercentage     float64 `json:"venue_fee_percentage"` // 0-100
	Negotiated             bool    `json:"negotiated"`
}

// Defaults returns the platform-wide fee configuration applied when a
// restaurant has no stored overrides.
func Defaults() FeeConfig {
	return FeeConfig{
		FeeType:                FeeTypePercentage,
		ServiceFeeFixed:        0,
		ServiceFeePercentage:   3.5,
		ProcessorFeePercentage: 2.9,
		ProcessorFlatFee:       30,
		VenueEnabled:           false,
		VenueFeePercentage:     0,
		Negotiated:             false,
	}
}

// Validate rejects out-of-range fields. Percentages must lie in [0,100]; they
// are rejected, never clamped.
func (c FeeConfig) Validate() error {
	switch c.FeeType {
	case FeeTypeFixed, FeeTypePercentage, FeeTypeHybrid:
	default:
		return errs.Validationf("feeType", "unknown fee type %q", c.FeeType)
	}
	if c.ServiceFeeFixed < 0 {
		return errs.Validation("serviceFeeFixed", "must not be negative")
	}
	if c.ProcessorFlatFee < 0 {
		return errs.Validation("processorFlatFee", "must not be negative")
	}
	if c.ServiceFeePercentage < 0 || c.ServiceFeePercentage > 100 {
		return errs.Validationf("serviceFeePercentage", "%v outside [0,100]", c.ServiceFeePercentage)
	}
	if c.ProcessorFeePercentage < 0 || c.ProcessorFeePercentage > 100 {
		return errs.Validationf("processorFeePercentage", "%v outside [0,100]", c.ProcessorFeePercentage)
	}
	if c.VenueFeePercentage < 0 || c.VenueFeePercentage > 100 {
		return errs.Validationf("venueFeePercentage", "%v outside [0,100]", c.VenueFeePercentage)
	}
	return nil
}
