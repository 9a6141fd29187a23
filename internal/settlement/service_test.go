package settlement

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platepay/internal/common/errs"
	"platepay/internal/common/events"
	"platepay/internal/common/middleware"
	"platepay/internal/fees"
	"platepay/internal/processor"
)

type fakeResolver struct {
	resolutions map[string]*fees.Resolution
}

func (r *fakeResolver) Resolve(_ context.Context, restaurantID string) (*fees.Resolution, error) {
	res, ok := r.resolutions[restaurantID]
	if !ok {
		return nil, errs.NotFound("restaurant", restaurantID)
	}
	return res, nil
}

type fakeCharger struct {
	calls []processor.ChargeRequest
	err   error
}

func (c *fakeCharger) CreateCharge(_ context.Context, req processor.ChargeRequest) (*processor.Charge, error) {
	c.calls = append(c.calls, req)
	if c.err != nil {
		return nil, c.err
	}
	return &processor.Charge{Ref: "ch_123", ClientSecret: "cs_secret", Status: "requires_payment"}, nil
}

type serviceFixture struct {
	resolver *fakeResolver
	charger  *fakeCharger
	intents  *fakeIntentStore
	records  *fakeRecordStore
	pub      *fakePublisher
	svc      *Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		resolver: &fakeResolver{resolutions: make(map[string]*fees.Resolution)},
		charger:  &fakeCharger{},
		intents:  newFakeIntentStore(),
		records:  newFakeRecordStore(),
		pub:      &fakePublisher{},
	}
	f.svc = NewService(f.resolver, f.charger, f.intents, f.records, f.pub, slog.Default())
	return f
}

func (f *serviceFixture) withDefaults(restaurantID string) {
	f.resolver.resolutions[restaurantID] = &fees.Resolution{
		Config:                  fees.Defaults(),
		RestaurantPayoutAccount: "acct_rest",
	}
}

func (f *serviceFixture) withVenue(restaurantID string, pct float64) {
	cfg := fees.Defaults()
	cfg.VenueEnabled = true
	cfg.VenueFeePercentage = pct
	f.resolver.resolutions[restaurantID] = &fees.Resolution{
		Config:                  cfg,
		RestaurantPayoutAccount: "acct_rest",
		VenueID:                 "venue-1",
		VenuePayoutAccount:      "acct_venue",
	}
}

func TestCreateCharge_StandardSplit(t *testing.T) {
	f := newServiceFixture(t)
	f.withDefaults("rest-1")

	resp, err := f.svc.CreateCharge(context.Background(), CreateChargeRequest{
		RestaurantID: "rest-1",
		GrossCents:   10000,
		Currency:     "USD",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(320), resp.Split.ProcessorFeeCents)
	assert.Equal(t, int64(9680), resp.Split.NetCents)
	assert.Equal(t, int64(339), resp.Split.PlatformFeeCents)
	assert.Equal(t, int64(0), resp.Split.VenueFeeCents)
	assert.Equal(t, int64(9341), resp.Split.RestaurantCents)
	assert.InDelta(t, 93.41, resp.Split.Restaurant, 1e-9)

	assert.Equal(t, "ch_123", resp.ChargeRef)
	assert.Equal(t, "cs_secret", resp.ClientSecret)
	assert.Equal(t, IntentCreated, resp.State)

	stored, err := f.intents.GetIntent(context.Background(), resp.IntentID)
	require.NoError(t, err)
	assert.Equal(t, "ch_123", stored.ProcessorRef)
	require.Len(t, stored.Transfers, 1)
	assert.Equal(t, TransferRestaurant, stored.Transfers[0].Kind)

	require.Len(t, f.charger.calls, 1)
	assert.Equal(t, resp.IntentID, f.charger.calls[0].Metadata["intent_id"])

	assert.Contains(t, f.pub.typesSeen(), events.EventIntentCreated)
}

func TestCreateCharge_WithVenueShare(t *testing.T) {
	f := newServiceFixture(t)
	f.withVenue("rest-1", 1.0)

	resp, err := f.svc.CreateCharge(context.Background(), CreateChargeRequest{
		RestaurantID: "rest-1",
		GrossCents:   10000,
		Currency:     "USD",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(97), resp.Split.VenueFeeCents)
	assert.Equal(t, int64(9244), resp.Split.RestaurantCents)
	assert.True(t, resp.Split.VenueEnabled)

	stored, err := f.intents.GetIntent(context.Background(), resp.IntentID)
	require.NoError(t, err)
	require.Len(t, stored.Transfers, 2)
	assert.Equal(t, "acct_venue", stored.Transfers[1].DestinationAccountID)
	assert.Equal(t, int64(97), stored.Transfers[1].AmountCents)
	assert.Equal(t, "venue-1", stored.VenueID)
}

func TestCreateCharge_UnsupportedCurrency(t *testing.T) {
	f := newServiceFixture(t)
	f.withDefaults("rest-1")

	_, err := f.svc.CreateCharge(context.Background(), CreateChargeRequest{
		RestaurantID: "rest-1",
		GrossCents:   10000,
		Currency:     "XYZ",
	})
	assert.True(t, errs.IsValidation(err))
	assert.Empty(t, f.charger.calls)
}

func TestCreateCharge_UnknownRestaurant(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.CreateCharge(context.Background(), CreateChargeRequest{
		RestaurantID: "ghost",
		GrossCents:   10000,
		Currency:     "USD",
	})
	assert.True(t, errs.IsNotFound(err))
	assert.Empty(t, f.charger.calls)
}

func TestCreateCharge_ChargerFailurePersistsNothing(t *testing.T) {
	f := newServiceFixture(t)
	f.withDefaults("rest-1")
	f.charger.err = &errs.ExternalServiceError{Service: "processor", Op: "create charge", Err: context.DeadlineExceeded}

	_, err := f.svc.CreateCharge(context.Background(), CreateChargeRequest{
		RestaurantID: "rest-1",
		GrossCents:   10000,
		Currency:     "USD",
	})
	require.Error(t, err)
	assert.True(t, errs.IsExternal(err))
	assert.Empty(t, f.intents.intents)
	assert.Empty(t, f.pub.published)
}

func seedRecord(f *serviceFixture, intentID, restaurantID, venueID string) {
	f.records.records[intentID] = &PaymentRecord{
		IntentID:     intentID,
		RestaurantID: restaurantID,
		VenueID:      venueID,
		Currency:     "USD",
		Split:        testSplit(97),
		CompletedAt:  time.Now().UTC(),
	}
}

func TestListRestaurantPayments_Permissions(t *testing.T) {
	f := newServiceFixture(t)
	seedRecord(f, "intent-1", "rest-1", "venue-1")

	owner := middleware.Actor{ID: "rest-1", Role: middleware.RoleRestaurant}
	views, err := f.svc.ListRestaurantPayments(context.Background(), owner, "rest-1", RecordQuery{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, int64(9244), views[0].RestaurantCents)

	other := middleware.Actor{ID: "rest-2", Role: middleware.RoleRestaurant}
	_, err = f.svc.ListRestaurantPayments(context.Background(), other, "rest-1", RecordQuery{})
	assert.True(t, errs.IsPermission(err))

	operator := middleware.Actor{ID: "ops", Role: middleware.RoleOperator}
	views, err = f.svc.ListRestaurantPayments(context.Background(), operator, "rest-1", RecordQuery{})
	require.NoError(t, err)
	assert.Len(t, views, 1)
}

func TestListVenuePayments_VenueSeesOnlyItsShare(t *testing.T) {
	f := newServiceFixture(t)
	seedRecord(f, "intent-1", "rest-1", "venue-1")

	venue := middleware.Actor{ID: "venue-1", Role: middleware.RoleVenue}
	views, err := f.svc.ListVenuePayments(context.Background(), venue, "venue-1", RecordQuery{})
	require.NoError(t, err)
	require.Len(t, views, 1)

	assert.Equal(t, int64(97), views[0].VenueFeeCents)
	assert.Zero(t, views[0].RestaurantCents)
	assert.Zero(t, views[0].PlatformFee)

	operator := middleware.Actor{ID: "ops", Role: middleware.RoleOperator}
	views, err = f.svc.ListVenuePayments(context.Background(), operator, "venue-1", RecordQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(9244), views[0].RestaurantCents)

	stranger := middleware.Actor{ID: "venue-2", Role: middleware.RoleVenue}
	_, err = f.svc.ListVenuePayments(context.Background(), stranger, "venue-1", RecordQuery{})
	assert.True(t, errs.IsPermission(err))
}

func TestListPlatformPayments_OperatorOnly(t *testing.T) {
	f := newServiceFixture(t)
	seedRecord(f, "intent-1", "rest-1", "venue-1")
	seedRecord(f, "intent-2", "rest-2", "")

	restaurant := middleware.Actor{ID: "rest-1", Role: middleware.RoleRestaurant}
	_, err := f.svc.ListPlatformPayments(context.Background(), restaurant, RecordQuery{})
	assert.True(t, errs.IsPermission(err))

	operator := middleware.Actor{ID: "ops", Role: middleware.RoleOperator}
	views, err := f.svc.ListPlatformPayments(context.Background(), operator, RecordQuery{})
	require.NoError(t, err)
	require.Len(t, views, 2)
	for _, v := range views {
		assert.NotZero(t, v.PlatformFee)
		assert.NotZero(t, v.ProcessorFee)
	}
}
