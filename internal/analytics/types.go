package analytics

import "platepay/internal/common/money"

// Totals accumulates platform-wide sums over a window. Amounts are minor
// units; major-unit figures are derived at presentation.
type Totals struct {
	RevenueCents      int64 `json:"revenue_cents"`
	ProcessorFeeCents int64 `json:"processor_fee_cents"`
	PlatformFeeCents  int64 `json:"platform_fee_cents"`
	VenueFeeCents     int64 `json:"venue_fee_cents"`
	RestaurantCents   int64 `json:"restaurant_cents"`
	OrderCount        int64 `json:"order_count"`

	Revenue      float64 `json:"revenue"`
	ProcessorFee float64 `json:"processor_fee"`
	PlatformFee  float64 `json:"platform_fee"`
	VenueFee     float64 `json:"venue_fee"`
	Restaurant   float64 `json:"restaurant"`

	AvgOrderValue   float64 `json:"avg_order_value"`
	AvgPlatformFee  float64 `json:"avg_platform_fee"`
	AvgRestaurant   float64 `json:"avg_restaurant_take"`
	AvgVenueFee     float64 `json:"avg_venue_fee"`
	AvgProcessorFee float64 `json:"avg_processor_fee"`
}

// finalize fills the derived major-unit and average fields. Averages are 0
// for an empty window.
func (t *Totals) finalize() {
	t.Revenue = money.MinorToMajor(t.RevenueCents)
	t.ProcessorFee = money.MinorToMajor(t.ProcessorFeeCents)
	t.PlatformFee = money.MinorToMajor(t.PlatformFeeCents)
	t.VenueFee = money.MinorToMajor(t.VenueFeeCents)
	t.Restaurant = money.MinorToMajor(t.RestaurantCents)

	if t.OrderCount == 0 {
		return
	}
	n := float64(t.OrderCount)
	t.AvgOrderValue = t.Revenue / n
	t.AvgPlatformFee = t.PlatformFee / n
	t.AvgRestaurant = t.Restaurant / n
	t.AvgVenueFee = t.VenueFee / n
	t.AvgProcessorFee = t.ProcessorFee / n
}

// RestaurantBreakdown sub-totals one restaurant's share of a window.
type RestaurantBreakdown struct {
	RestaurantID     string  `json:"restaurant_id"`
	RevenueCents     int64   `json:"revenue_cents"`
	PlatformFeeCents int64   `json:"platform_fee_cents"`
	VenueFeeCents    int64   `json:"venue_fee_cents"`
	RestaurantCents  int64   `json:"restaurant_cents"`
	OrderCount       int64   `json:"order_count"`
	Revenue          float64 `json:"revenue"`
}

// VenueBreakdown sub-totals the payments attributed to one venue, including
// how many distinct restaurants contributed.
type VenueBreakdown struct {
	VenueID         string  `json:"venue_id"`
	RevenueCents    int64   `json:"revenue_cents"`
	VenueFeeCents   int64   `json:"venue_fee_cents"`
	OrderCount      int64   `json:"order_count"`
	RestaurantCount int     `json:"restaurant_count"`
	VenueFee        float64 `json:"venue_fee"`

	restaurants map[string]struct{}
}

// TrendPoint is one bucket of a trend series.
type TrendPoint struct {
	Bucket           string  `json:"bucket"`
	RevenueCents     int64   `json:"revenue_cents"`
	PlatformFeeCents int64   `json:"platform_fee_cents"`
	OrderCount       int64   `json:"order_count"`
	Revenue          float64 `json:"revenue"`
}

// TopRestaurant ranks one restaurant by revenue.
type TopRestaurant struct {
	RestaurantID string  `json:"restaurant_id"`
	RevenueCents int64   `json:"revenue_cents"`
	OrderCount   int64   `json:"order_count"`
	Revenue      float64 `json:"revenue"`
}

// FeeReport answers a fee-analytics query.
type FeeReport struct {
	Period       string `json:"period"`
	RestaurantID string `json:"restaurant_id,omitempty"`
	Totals       Totals `json:"totals"`
}

// TrendReport answers a revenue-trends query.
type TrendReport struct {
	Period  string       `json:"period"`
	GroupBy GroupBy      `json:"group_by"`
	Points  []TrendPoint `json:"points"`
}

// RevenueReport is the full platform revenue picture for a window.
type RevenueReport struct {
	Period      string                 `json:"period"`
	Totals      Totals                 `json:"totals"`
	Restaurants []*RestaurantBreakdown `json:"restaurants"`
	Venues      []*VenueBreakdown      `json:"venues"`
}
