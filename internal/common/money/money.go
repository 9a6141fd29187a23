// Package money provides integer minor-unit amounts. All amounts in the split
// and settlement engine are carried as minor units; conversion to major units
// happens only at presentation.
package money

// Currency represents an ISO 4217 currency code
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
)

var supported = map[Currency]struct{}{
	USD: {},
	EUR: {},
	GBP: {},
}

// IsSupported reports whether the currency is known. Every supported currency
// uses two minor-unit decimal places.
func IsSupported(c Currency) bool {
	_, ok := supported[c]
	return ok
}

// MinorToMajor converts a raw minor-unit amount to major units assuming two
// decimal places, the presentation rule for all in-platform currencies.
func MinorToMajor(amountMinor int64) float64 {
	return float64(amountMinor) / 100
}
