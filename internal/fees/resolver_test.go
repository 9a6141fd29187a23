package fees

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platepay/internal/common/errs"
	"platepay/internal/directory"
)

type fakeDirectory struct {
	restaurants map[string]*directory.Restaurant
	venues      map[string]*directory.Venue
	links       map[string]*directory.VenueLink // keyed by restaurant id
}

func (f *fakeDirectory) GetRestaurant(_ context.Context, id string) (*directory.Restaurant, error) {
	r, ok := f.restaurants[id]
	if !ok {
		return nil, errs.NotFound("restaurant", id)
	}
	return r, nil
}

func (f *fakeDirectory) GetVenue(_ context.Context, id string) (*directory.Venue, error) {
	v, ok := f.venues[id]
	if !ok {
		return nil, errs.NotFound("venue", id)
	}
	return v, nil
}

func (f *fakeDirectory) GetActiveLink(_ context.Context, restaurantID string) (*directory.VenueLink, error) {
	return f.links[restaurantID], nil
}

func testLogger() *slog.Logger {
	return slog.Default()
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int64) *int64       { return &i }
func strPtr(s string) *string    { return &s }

func TestResolve_MissingRestaurant(t *testing.T) {
	r := NewResolver(&fakeDirectory{restaurants: map[string]*directory.Restaurant{}}, testLogger())

	_, err := r.Resolve(context.Background(), "r-missing")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestResolve_DefaultsWhenNoOverrides(t *testing.T) {
	dir := &fakeDirectory{
		restaurants: map[string]*directory.Restaurant{
			"r1": {ID: "r1", PayoutAccountID: "acct_r1"},
		},
	}

	res, err := NewResolver(dir, testLogger()).Resolve(context.Background(), "r1")
	require.NoError(t, err)

	assert.Equal(t, Defaults(), res.Config)
	assert.Equal(t, "acct_r1", res.RestaurantPayoutAccount)
	assert.Empty(t, res.VenueID)
}

func TestResolve_RestaurantOverridesOnlyPresentFields(t *testing.T) {
	dir := &fakeDirectory{
		restaurants: map[string]*directory.Restaurant{
			"r1": {
				ID:              "r1",
				PayoutAccountID: "acct_r1",
				FeeOverride: directory.FeeOverride{
					FeeType:              strPtr("hybrid"),
					ServiceFeeFixed:      intPtr(200),
					ServiceFeePercentage: floatPtr(2.0),
					// processor fields absent on purpose
				},
			},
		},
	}

	res, err := NewResolver(dir, testLogger()).Resolve(context.Background(), "r1")
	require.NoError(t, err)

	cfg := res.Config
	assert.Equal(t, FeeTypeHybrid, cfg.FeeType)
	assert.Equal(t, int64(200), cfg.ServiceFeeFixed)
	assert.Equal(t, 2.0, cfg.ServiceFeePercentage)
	// unset fields keep platform defaults
	assert.Equal(t, Defaults().ProcessorFeePercentage, cfg.ProcessorFeePercentage)
	assert.Equal(t, Defaults().ProcessorFlatFee, cfg.ProcessorFlatFee)
	assert.True(t, cfg.Negotiated)
}

func TestResolve_ActiveLinkageEnablesVenue(t *testing.T) {
	dir := &fakeDirectory{
		restaurants: map[string]*directory.Restaurant{
			"r1": {ID: "r1", PayoutAccountID: "acct_r1"},
		},
		venues: map[string]*directory.Venue{
			"v1": {ID: "v1", PayoutAccountID: "acct_v1", DefaultFeePercentage: 2.5},
		},
		links: map[string]*directory.VenueLink{
			"r1": {ID: "l1", RestaurantID: "r1", VenueID: "v1", Status: directory.LinkActive},
		},
	}

	res, err := NewResolver(dir, testLogger()).Resolve(context.Background(), "r1")
	require.NoError(t, err)

	assert.True(t, res.Config.VenueEnabled)
	assert.Equal(t, 2.5, res.Config.VenueFeePercentage, "venue default applies when the link has no agreement")
	assert.Equal(t, "v1", res.VenueID)
	assert.Equal(t, "acct_v1", res.VenuePayoutAccount)
}

func TestResolve_LinkAgreementBeatsVenueDefault(t *testing.T) {
	dir := &fakeDirectory{
		restaurants: map[string]*directory.Restaurant{
			"r1": {ID: "r1", PayoutAccountID: "acct_r1"},
		},
		venues: map[string]*directory.Venue{
			"v1": {ID: "v1", PayoutAccountID: "acct_v1", DefaultFeePercentage: 2.5},
		},
		links: map[string]*directory.VenueLink{
			"r1": {ID: "l1", RestaurantID: "r1", VenueID: "v1", Status: directory.LinkActive, FeePercentage: floatPtr(1.0)},
		},
	}

	res, err := NewResolver(dir, testLogger()).Resolve(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Config.VenueFeePercentage)
}

func TestResolve_NoLinkageForcesVenueDisabled(t *testing.T) {
	dir := &fakeDirectory{
		restaurants: map[string]*directory.Restaurant{
			"r1": {ID: "r1", PayoutAccountID: "acct_r1"},
		},
	}

	res, err := NewResolver(dir, testLogger()).Resolve(context.Background(), "r1")
	require.NoError(t, err)
	assert.False(t, res.Config.VenueEnabled)
	assert.Zero(t, res.Config.VenueFeePercentage)
}

func TestResolve_OutputFullyPopulated(t *testing.T) {
	dir := &fakeDirectory{
		restaurants: map[string]*directory.Restaurant{
			"r1": {ID: "r1", PayoutAccountID: "acct_r1", Negotiated: true},
		},
	}

	res, err := NewResolver(dir, testLogger()).Resolve(context.Background(), "r1")
	require.NoError(t, err)

	require.NoError(t, res.Config.Validate())
	assert.True(t, res.Config.Negotiated)
}
