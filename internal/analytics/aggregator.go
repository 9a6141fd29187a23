package analytics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"platepay/internal/common/errs"
	"platepay/internal/common/money"
	"platepay/internal/settlement"
)

// RecordSource streams completed-payment records for a time window.
type RecordSource interface {
	ScanWindow(ctx context.Context, from time.Time, fn func(*settlement.PaymentRecord) error) error
}

// Aggregator answers analytics queries with a single pass over the payment
// records in the requested window.
type Aggregator struct {
	source RecordSource
	logger *slog.Logger
	now    func() time.Time
}

// NewAggregator creates an analytics aggregator.
func NewAggregator(source RecordSource, logger *slog.Logger) *Aggregator {
	return &Aggregator{source: source, logger: logger, now: time.Now}
}

// FeeAnalytics totals fees over a period, optionally narrowed to one
// restaurant. An empty window yields zeroed totals, never an error.
func (a *Aggregator) FeeAnalytics(ctx context.Context, period, restaurantID string) (*FeeReport, error) {
	report := &FeeReport{Period: period, RestaurantID: restaurantID}

	from := PeriodStart(period, a.now())
	err := a.source.ScanWindow(ctx, from, func(rec *settlement.PaymentRecord) error {
		if restaurantID != "" && rec.RestaurantID != restaurantID {
			return nil
		}
		accumulate(&report.Totals, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	report.Totals.finalize()
	return report, nil
}

// RevenueTrends buckets revenue by day, ISO week or month, ascending by
// bucket key.
func (a *Aggregator) RevenueTrends(ctx context.Context, period string, groupBy GroupBy) (*TrendReport, error) {
	if !groupBy.Valid() {
		return nil, errs.Validationf("groupBy", "unknown granularity %q", string(groupBy))
	}

	buckets := make(map[string]*TrendPoint)
	from := PeriodStart(period, a.now())
	err := a.source.ScanWindow(ctx, from, func(rec *settlement.PaymentRecord) error {
		key := bucketKey(groupBy, rec.CompletedAt)
		point, ok := buckets[key]
		if !ok {
			point = &TrendPoint{Bucket: key}
			buckets[key] = point
		}
		point.RevenueCents += rec.Split.GrossCents
		point.PlatformFeeCents += rec.Split.PlatformFeeCents
		point.OrderCount++
		return nil
	})
	if err != nil {
		return nil, err
	}

	points := make([]TrendPoint, 0, len(buckets))
	for _, p := range buckets {
		p.Revenue = money.MinorToMajor(p.RevenueCents)
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Bucket < points[j].Bucket })

	return &TrendReport{Period: period, GroupBy: groupBy, Points: points}, nil
}

// TopRestaurants ranks restaurants by revenue, descending. Ties keep the
// order in which the restaurants first appeared in the records.
func (a *Aggregator) TopRestaurants(ctx context.Context, period string, limit int) ([]TopRestaurant, error) {
	if limit <= 0 {
		limit = 10
	}

	byID := make(map[string]*TopRestaurant)
	var order []string

	from := PeriodStart(period, a.now())
	err := a.source.ScanWindow(ctx, from, func(rec *settlement.PaymentRecord) error {
		top, ok := byID[rec.RestaurantID]
		if !ok {
			top = &TopRestaurant{RestaurantID: rec.RestaurantID}
			byID[rec.RestaurantID] = top
			order = append(order, rec.RestaurantID)
		}
		top.RevenueCents += rec.Split.GrossCents
		top.OrderCount++
		return nil
	})
	if err != nil {
		return nil, err
	}

	ranked := make([]TopRestaurant, 0, len(order))
	for _, id := range order {
		top := byID[id]
		top.Revenue = money.MinorToMajor(top.RevenueCents)
		ranked = append(ranked, *top)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].RevenueCents > ranked[j].RevenueCents })

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// Revenue builds the full revenue report: totals plus per-restaurant and
// per-venue breakdowns.
func (a *Aggregator) Revenue(ctx context.Context, period string) (*RevenueReport, error) {
	report := &RevenueReport{Period: period}
	restaurants := make(map[string]*RestaurantBreakdown)
	venues := make(map[string]*VenueBreakdown)
	var restaurantOrder, venueOrder []string

	from := PeriodStart(period, a.now())
	err := a.source.ScanWindow(ctx, from, func(rec *settlement.PaymentRecord) error {
		accumulate(&report.Totals, rec)

		rb, ok := restaurants[rec.RestaurantID]
		if !ok {
			rb = &RestaurantBreakdown{RestaurantID: rec.RestaurantID}
			restaurants[rec.RestaurantID] = rb
			restaurantOrder = append(restaurantOrder, rec.RestaurantID)
		}
		rb.RevenueCents += rec.Split.GrossCents
		rb.PlatformFeeCents += rec.Split.PlatformFeeCents
		rb.VenueFeeCents += rec.Split.VenueFeeCents
		rb.RestaurantCents += rec.Split.RestaurantCents
		rb.OrderCount++

		if rec.VenueID != "" {
			vb, ok := venues[rec.VenueID]
			if !ok {
				vb = &VenueBreakdown{
					VenueID:     rec.VenueID,
					restaurants: make(map[string]struct{}),
				}
				venues[rec.VenueID] = vb
				venueOrder = append(venueOrder, rec.VenueID)
			}
			vb.RevenueCents += rec.Split.GrossCents
			vb.VenueFeeCents += rec.Split.VenueFeeCents
			vb.OrderCount++
			vb.restaurants[rec.RestaurantID] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	report.Totals.finalize()
	for _, id := range restaurantOrder {
		rb := restaurants[id]
		rb.Revenue = money.MinorToMajor(rb.RevenueCents)
		report.Restaurants = append(report.Restaurants, rb)
	}
	for _, id := range venueOrder {
		vb := venues[id]
		vb.RestaurantCount = len(vb.restaurants)
		vb.VenueFee = money.MinorToMajor(vb.VenueFeeCents)
		report.Venues = append(report.Venues, vb)
	}

	a.logger.Debug("revenue report built",
		"period", period,
		"orders", report.Totals.OrderCount,
		"restaurants", len(report.Restaurants),
		"venues", len(report.Venues),
	)
	return report, nil
}

func accumulate(t *Totals, rec *settlement.PaymentRecord) {
	t.RevenueCents += rec.Split.GrossCents
	t.ProcessorFeeCents += rec.Split.ProcessorFeeCents
	t.PlatformFeeCents += rec.Split.PlatformFeeCents
	t.VenueFeeCents += rec.Split.VenueFeeCents
	t.RestaurantCents += rec.Split.RestaurantCents
	t.OrderCount++
}
