package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platepay/internal/common/errs"
	"platepay/internal/common/events"
	"platepay/internal/processor"
)

type fakeIntentStore struct {
	intents map[string]*PaymentIntentRecord
}

func newFakeIntentStore() *fakeIntentStore {
	return &fakeIntentStore{intents: make(map[string]*PaymentIntentRecord)}
}

func (s *fakeIntentStore) CreateIntent(_ context.Context, intent *PaymentIntentRecord) error {
	if _, ok := s.intents[intent.ID]; ok {
		return fmt.Errorf("intent %s already exists", intent.ID)
	}
	cp := *intent
	s.intents[intent.ID] = &cp
	return nil
}

func (s *fakeIntentStore) GetIntent(_ context.Context, id string) (*PaymentIntentRecord, error) {
	intent, ok := s.intents[id]
	if !ok {
		return nil, errs.NotFound("payment intent", id)
	}
	cp := *intent
	cp.Transfers = append([]Transfer(nil), intent.Transfers...)
	return &cp, nil
}

func (s *fakeIntentStore) UpdateTransfers(_ context.Context, id string, transfers []Transfer) error {
	intent, ok := s.intents[id]
	if !ok {
		return errs.NotFound("payment intent", id)
	}
	if intent.IsTerminal() {
		return nil
	}
	intent.Transfers = append([]Transfer(nil), transfers...)
	return nil
}

func (s *fakeIntentStore) MarkCompleted(_ context.Context, id string, transfers []Transfer) error {
	intent, ok := s.intents[id]
	if !ok {
		return errs.NotFound("payment intent", id)
	}
	return intent.markCompleted(transfers)
}

func (s *fakeIntentStore) MarkFailed(_ context.Context, id, reason string, transfers []Transfer) error {
	intent, ok := s.intents[id]
	if !ok {
		return errs.NotFound("payment intent", id)
	}
	return intent.markFailed(reason, transfers)
}

type fakeRecordStore struct {
	records map[string]*PaymentRecord
	inserts int
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{records: make(map[string]*PaymentRecord)}
}

func (s *fakeRecordStore) InsertRecord(_ context.Context, rec *PaymentRecord) error {
	s.inserts++
	if _, ok := s.records[rec.IntentID]; ok {
		return nil
	}
	s.records[rec.IntentID] = rec
	return nil
}

func (s *fakeRecordStore) ListByRestaurant(_ context.Context, restaurantID string, _ RecordQuery) ([]*PaymentRecord, error) {
	var out []*PaymentRecord
	for _, r := range s.records {
		if r.RestaurantID == restaurantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeRecordStore) ListByVenue(_ context.Context, venueID string, _ RecordQuery) ([]*PaymentRecord, error) {
	var out []*PaymentRecord
	for _, r := range s.records {
		if r.VenueID == venueID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeRecordStore) ListAll(_ context.Context, _ RecordQuery) ([]*PaymentRecord, error) {
	var out []*PaymentRecord
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, nil
}

type fakePayer struct {
	failures map[string]error // keyed by destination account
	calls    []processor.PayoutRequest
}

func newFakePayer() *fakePayer {
	return &fakePayer{failures: make(map[string]error)}
}

func (p *fakePayer) Payout(_ context.Context, req processor.PayoutRequest) (*processor.Payout, error) {
	p.calls = append(p.calls, req)
	if err, ok := p.failures[req.DestinationAccountID]; ok {
		return nil, err
	}
	return &processor.Payout{Ref: "po_" + req.DestinationAccountID, Status: "paid"}, nil
}

func (p *fakePayer) callsTo(destination string) int {
	n := 0
	for _, c := range p.calls {
		if c.DestinationAccountID == destination {
			n++
		}
	}
	return n
}

type fakePublisher struct {
	published []*events.Envelope
}

func (p *fakePublisher) Publish(_ context.Context, _ string, env *events.Envelope) error {
	p.published = append(p.published, env)
	return nil
}

func (p *fakePublisher) typesSeen() []string {
	var out []string
	for _, env := range p.published {
		out = append(out, env.Type)
	}
	return out
}

type executorFixture struct {
	intents *fakeIntentStore
	records *fakeRecordStore
	payer   *fakePayer
	pub     *fakePublisher
	exec    *Executor
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	f := &executorFixture{
		intents: newFakeIntentStore(),
		records: newFakeRecordStore(),
		payer:   newFakePayer(),
		pub:     &fakePublisher{},
	}
	f.exec = NewExecutor(f.intents, f.records, f.payer, f.pub, slog.Default())
	return f
}

func (f *executorFixture) seedIntent(t *testing.T, venueFee int64) *PaymentIntentRecord {
	t.Helper()
	venueID, venueAccount := "", ""
	if venueFee > 0 {
		venueID, venueAccount = "venue-1", "acct_venue"
	}
	intent, err := NewIntent("intent-1", "rest-1", venueID, "USD", testSplit(venueFee), "acct_rest", venueAccount)
	require.NoError(t, err)
	intent.ProcessorRef = "ch_1"
	require.NoError(t, f.intents.CreateIntent(context.Background(), intent))
	return intent
}

func TestExecute_AllTransfersSucceed(t *testing.T) {
	f := newExecutorFixture(t)
	f.seedIntent(t, 97)

	res, err := f.exec.Execute(context.Background(), "intent-1")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 2, res.TransfersAttempted)
	assert.Equal(t, 2, res.TransfersSucceeded)

	stored, err := f.intents.GetIntent(context.Background(), "intent-1")
	require.NoError(t, err)
	assert.Equal(t, IntentCompleted, stored.State)
	for _, tr := range stored.Transfers {
		assert.Equal(t, TransferSucceeded, tr.Status)
		assert.NotEmpty(t, tr.PayoutRef)
	}

	require.Contains(t, f.records.records, "intent-1")
	assert.Equal(t, int64(97), f.records.records["intent-1"].Split.VenueFeeCents)

	assert.Contains(t, f.pub.typesSeen(), events.EventCompleted)
}

func TestExecute_PayoutKeysAreDestinationScoped(t *testing.T) {
	f := newExecutorFixture(t)
	f.seedIntent(t, 97)

	_, err := f.exec.Execute(context.Background(), "intent-1")
	require.NoError(t, err)

	require.Len(t, f.payer.calls, 2)
	assert.Equal(t, "intent-1:acct_rest", f.payer.calls[0].IdempotencyKey)
	assert.Equal(t, "intent-1:acct_venue", f.payer.calls[1].IdempotencyKey)
	assert.Equal(t, "ch_1", f.payer.calls[0].SourceChargeRef)
}

func TestExecute_VenueFailureStillCompletesIntent(t *testing.T) {
	f := newExecutorFixture(t)
	f.seedIntent(t, 97)
	f.payer.failures["acct_venue"] = &processor.DeclineError{Code: "account_closed", Message: "destination closed"}

	res, err := f.exec.Execute(context.Background(), "intent-1")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 2, res.TransfersAttempted)
	assert.Equal(t, 1, res.TransfersSucceeded)

	stored, err := f.intents.GetIntent(context.Background(), "intent-1")
	require.NoError(t, err)
	assert.Equal(t, IntentCompleted, stored.State)

	venue := stored.Transfers[1]
	assert.Equal(t, TransferFailed, venue.Status)
	assert.Equal(t, "account_closed: destination closed", venue.FailureReason)

	// The failed venue payout is reported for reconciliation.
	assert.Contains(t, f.pub.typesSeen(), events.EventTransferFailed)
	assert.Contains(t, f.pub.typesSeen(), events.EventCompleted)

	// Completion still yields a payment record for analytics.
	assert.Contains(t, f.records.records, "intent-1")
}

func TestExecute_RestaurantFailureFailsIntent(t *testing.T) {
	f := newExecutorFixture(t)
	f.seedIntent(t, 97)
	f.payer.failures["acct_rest"] = &processor.DeclineError{Code: "account_invalid", Message: "no such account"}

	res, err := f.exec.Execute(context.Background(), "intent-1")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, 2, res.TransfersAttempted)
	assert.Equal(t, 1, res.TransfersSucceeded)

	stored, err := f.intents.GetIntent(context.Background(), "intent-1")
	require.NoError(t, err)
	assert.Equal(t, IntentFailed, stored.State)
	assert.Equal(t, "account_invalid: no such account", stored.FailureReason)

	// No payment record for a failed settlement.
	assert.Empty(t, f.records.records)
	assert.Contains(t, f.pub.typesSeen(), events.EventFailed)
}

func TestExecute_RedeliveryOfTerminalIntentPaysNothing(t *testing.T) {
	f := newExecutorFixture(t)
	f.seedIntent(t, 97)

	first, err := f.exec.Execute(context.Background(), "intent-1")
	require.NoError(t, err)
	require.True(t, first.Success)
	payoutsAfterFirst := len(f.payer.calls)

	second, err := f.exec.Execute(context.Background(), "intent-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, payoutsAfterFirst, len(f.payer.calls))
	assert.Equal(t, 1, f.records.inserts)
}

func TestExecute_ResumeSkipsAlreadyPaidDestinations(t *testing.T) {
	f := newExecutorFixture(t)
	intent := f.seedIntent(t, 97)

	// A prior run paid the restaurant and then stopped before reaching a
	// terminal state.
	intent.Transfers[0].Status = TransferSucceeded
	intent.Transfers[0].PayoutRef = "po_earlier"
	require.NoError(t, f.intents.UpdateTransfers(context.Background(), intent.ID, intent.Transfers))

	res, err := f.exec.Execute(context.Background(), "intent-1")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 2, res.TransfersSucceeded)
	assert.Equal(t, 0, f.payer.callsTo("acct_rest"))
	assert.Equal(t, 1, f.payer.callsTo("acct_venue"))

	stored, err := f.intents.GetIntent(context.Background(), "intent-1")
	require.NoError(t, err)
	assert.Equal(t, "po_earlier", stored.Transfers[0].PayoutRef)
}

func TestExecute_SingleTransferWhenNoVenue(t *testing.T) {
	f := newExecutorFixture(t)
	f.seedIntent(t, 0)

	res, err := f.exec.Execute(context.Background(), "intent-1")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.TransfersAttempted)
	assert.Equal(t, 1, res.TransfersSucceeded)
	require.Len(t, f.payer.calls, 1)
	assert.Equal(t, int64(9341), f.payer.calls[0].AmountCents)
}

func TestExecute_UnknownIntent(t *testing.T) {
	f := newExecutorFixture(t)

	_, err := f.exec.Execute(context.Background(), "missing")
	assert.True(t, errs.IsNotFound(err))
}

func TestPayoutKey(t *testing.T) {
	assert.Equal(t, "intent-1:acct_1", PayoutKey("intent-1", "acct_1"))
	assert.NotEqual(t, PayoutKey("intent-1", "a"), PayoutKey("intent-1", "b"))
	assert.NotEqual(t, PayoutKey("intent-1", "a"), PayoutKey("intent-2", "a"))
}
