package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"platepay/internal/common/errs"
	"platepay/internal/common/events"
	"platepay/internal/common/middleware"
	"platepay/internal/common/money"
	"platepay/internal/fees"
	"platepay/internal/processor"
)

// FeeResolver resolves the effective fee configuration and payout
// destinations for a restaurant.
type FeeResolver interface {
	Resolve(ctx context.Context, restaurantID string) (*fees.Resolution, error)
}

// Charger creates charges with the payment processor.
type Charger interface {
	CreateCharge(ctx context.Context, req processor.ChargeRequest) (*processor.Charge, error)
}

// IntentStore persists payment intents.
type IntentStore interface {
	CreateIntent(ctx context.Context, intent *PaymentIntentRecord) error
	GetIntent(ctx context.Context, id string) (*PaymentIntentRecord, error)
	UpdateTransfers(ctx context.Context, id string, transfers []Transfer) error
	MarkCompleted(ctx context.Context, id string, transfers []Transfer) error
	MarkFailed(ctx context.Context, id, reason string, transfers []Transfer) error
}

// RecordStore persists and lists completed-payment records.
type RecordStore interface {
	InsertRecord(ctx context.Context, rec *PaymentRecord) error
	ListByRestaurant(ctx context.Context, restaurantID string, q RecordQuery) ([]*PaymentRecord, error)
	ListByVenue(ctx context.Context, venueID string, q RecordQuery) ([]*PaymentRecord, error)
	ListAll(ctx context.Context, q RecordQuery) ([]*PaymentRecord, error)
}

// CreateChargeRequest asks for a charge with its split locked in at
// creation time.
type CreateChargeRequest struct {
	RestaurantID string            `json:"restaurant_id" validate:"required"`
	GrossCents   int64             `json:"gross_cents" validate:"required,gt=0"`
	Currency     string            `json:"currency" validate:"required,len=3"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// SplitBreakdown presents a split in major units alongside the exact
// minor-unit amounts.
type SplitBreakdown struct {
	GrossCents        int64   `json:"gross_cents"`
	ProcessorFeeCents int64   `json:"processor_fee_cents"`
	PlatformFeeCents  int64   `json:"platform_fee_cents"`
	VenueFeeCents     int64   `json:"venue_fee_cents"`
	RestaurantCents   int64   `json:"restaurant_cents"`
	NetCents          int64   `json:"net_cents"`
	Gross             float64 `json:"gross"`
	ProcessorFee      float64 `json:"processor_fee"`
	PlatformFee       float64 `json:"platform_fee"`
	VenueFee          float64 `json:"venue_fee"`
	Restaurant        float64 `json:"restaurant"`
	Net               float64 `json:"net"`
	VenueEnabled      bool    `json:"venue_enabled"`
}

func breakdown(s fees.PaymentSplit) SplitBreakdown {
	return SplitBreakdown{
		GrossCents:        s.GrossCents,
		ProcessorFeeCents: s.ProcessorFeeCents,
		PlatformFeeCents:  s.PlatformFeeCents,
		VenueFeeCents:     s.VenueFeeCents,
		RestaurantCents:   s.RestaurantCents,
		NetCents:          s.NetCents,
		Gross:             money.MinorToMajor(s.GrossCents),
		ProcessorFee:      money.MinorToMajor(s.ProcessorFeeCents),
		PlatformFee:       money.MinorToMajor(s.PlatformFeeCents),
		VenueFee:          money.MinorToMajor(s.VenueFeeCents),
		Restaurant:        money.MinorToMajor(s.RestaurantCents),
		Net:               money.MinorToMajor(s.NetCents),
	}
}

// CreateChargeResponse returns the client secret for the charge together
// with the locked-in split.
type CreateChargeResponse struct {
	IntentID     string         `json:"intent_id"`
	ChargeRef    string         `json:"charge_ref"`
	ClientSecret string         `json:"client_secret"`
	State        IntentState    `json:"state"`
	Split        SplitBreakdown `json:"split"`
}

// Service creates charges and answers payment queries.
type Service struct {
	resolver FeeResolver
	charger  Charger
	intents  IntentStore
	records  RecordStore
	pub      events.Publisher
	logger   *slog.Logger
}

// NewService creates a settlement service.
func NewService(resolver FeeResolver, charger Charger, intents IntentStore, records RecordStore, pub events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		resolver: resolver,
		charger:  charger,
		intents:  intents,
		records:  records,
		pub:      pub,
		logger:   logger,
	}
}

// CreateCharge resolves the restaurant's fee configuration, computes the
// split, creates the processor charge and persists the intent. The split is
// fixed here; later fee changes never affect this payment.
func (s *Service) CreateCharge(ctx context.Context, req CreateChargeRequest) (*CreateChargeResponse, error) {
	if !money.IsSupported(money.Currency(req.Currency)) {
		return nil, errs.Validationf("currency", "unsupported currency %q", req.Currency)
	}

	res, err := s.resolver.Resolve(ctx, req.RestaurantID)
	if err != nil {
		return nil, err
	}

	split, err := fees.Compute(req.GrossCents, res.Config)
	if err != nil {
		var integrity *errs.SplitIntegrityError
		if errors.As(err, &integrity) {
			s.logger.Error("split integrity violation",
				"restaurant_id", req.RestaurantID,
				"gross_cents", integrity.GrossCents,
				"sum_cents", integrity.SumCents,
			)
		}
		return nil, err
	}

	intentID := ulid.Make().String()
	intent, err := NewIntent(intentID, req.RestaurantID, res.VenueID, req.Currency, split,
		res.RestaurantPayoutAccount, res.VenuePayoutAccount)
	if err != nil {
		return nil, err
	}

	metadata := map[string]string{"intent_id": intentID}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	charge, err := s.charger.CreateCharge(ctx, processor.ChargeRequest{
		AmountCents: req.GrossCents,
		Currency:    req.Currency,
		Description: req.Description,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("creating charge for restaurant %s: %w", req.RestaurantID, err)
	}
	intent.ProcessorRef = charge.Ref

	if err := s.intents.CreateIntent(ctx, intent); err != nil {
		return nil, err
	}

	s.publish(ctx, events.SubjectIntentCreated, events.EventIntentCreated, IntentCreatedEvent{
		IntentID:     intentID,
		RestaurantID: req.RestaurantID,
		VenueID:      res.VenueID,
		Currency:     req.Currency,
		Split:        split,
	})

	s.logger.Info("charge created",
		"intent_id", intentID,
		"restaurant_id", req.RestaurantID,
		"gross_cents", split.GrossCents,
		"restaurant_cents", split.RestaurantCents,
		"venue_fee_cents", split.VenueFeeCents,
	)

	b := breakdown(split)
	b.VenueEnabled = res.Config.VenueEnabled
	return &CreateChargeResponse{
		IntentID:     intentID,
		ChargeRef:    charge.Ref,
		ClientSecret: charge.ClientSecret,
		State:        intent.State,
		Split:        b,
	}, nil
}

// GetIntent returns a payment intent by id.
func (s *Service) GetIntent(ctx context.Context, id string) (*PaymentIntentRecord, error) {
	return s.intents.GetIntent(ctx, id)
}

// PaymentView is one completed payment as seen by a caller. Amounts are
// scoped to what the caller may see.
type PaymentView struct {
	IntentID     string    `json:"intent_id"`
	RestaurantID string    `json:"restaurant_id"`
	VenueID      string    `json:"venue_id,omitempty"`
	Currency     string    `json:"currency"`
	CompletedAt  time.Time `json:"completed_at"`

	GrossCents      int64 `json:"gross_cents"`
	RestaurantCents int64 `json:"restaurant_cents,omitempty"`
	VenueFeeCents   int64 `json:"venue_fee_cents,omitempty"`
	PlatformFee     int64 `json:"platform_fee_cents,omitempty"`
	ProcessorFee    int64 `json:"processor_fee_cents,omitempty"`
}

// ListRestaurantPayments returns a restaurant's completed payments. The
// caller must be an operator or the restaurant itself.
func (s *Service) ListRestaurantPayments(ctx context.Context, actor middleware.Actor, restaurantID string, q RecordQuery) ([]PaymentView, error) {
	if !actor.CanAccessRestaurant(restaurantID) {
		return nil, errs.Permission(actor.ID, "restaurant "+restaurantID)
	}

	records, err := s.records.ListByRestaurant(ctx, restaurantID, q)
	if err != nil {
		return nil, err
	}

	views := make([]PaymentView, 0, len(records))
	for _, rec := range records {
		views = append(views, PaymentView{
			IntentID:        rec.IntentID,
			RestaurantID:    rec.RestaurantID,
			VenueID:         rec.VenueID,
			Currency:        rec.Currency,
			CompletedAt:     rec.CompletedAt,
			GrossCents:      rec.Split.GrossCents,
			RestaurantCents: rec.Split.RestaurantCents,
			VenueFeeCents:   rec.Split.VenueFeeCents,
		})
	}
	return views, nil
}

// ListVenuePayments returns payments attributed to a venue. Venue callers
// see only the venue fee amounts, never the restaurant's take.
func (s *Service) ListVenuePayments(ctx context.Context, actor middleware.Actor, venueID string, q RecordQuery) ([]PaymentView, error) {
	if !actor.CanAccessVenue(venueID) {
		return nil, errs.Permission(actor.ID, "venue "+venueID)
	}

	records, err := s.records.ListByVenue(ctx, venueID, q)
	if err != nil {
		return nil, err
	}

	views := make([]PaymentView, 0, len(records))
	for _, rec := range records {
		v := PaymentView{
			IntentID:      rec.IntentID,
			RestaurantID:  rec.RestaurantID,
			VenueID:       rec.VenueID,
			Currency:      rec.Currency,
			CompletedAt:   rec.CompletedAt,
			GrossCents:    rec.Split.GrossCents,
			VenueFeeCents: rec.Split.VenueFeeCents,
		}
		if actor.IsOperator() {
			v.RestaurantCents = rec.Split.RestaurantCents
			v.PlatformFee = rec.Split.PlatformFeeCents
			v.ProcessorFee = rec.Split.ProcessorFeeCents
		}
		views = append(views, v)
	}
	return views, nil
}

// ListPlatformPayments returns completed payments across all restaurants
// with full fee detail. Operator only.
func (s *Service) ListPlatformPayments(ctx context.Context, actor middleware.Actor, q RecordQuery) ([]PaymentView, error) {
	if !actor.IsOperator() {
		return nil, errs.Permission(actor.ID, "platform payments")
	}

	records, err := s.records.ListAll(ctx, q)
	if err != nil {
		return nil, err
	}

	views := make([]PaymentView, 0, len(records))
	for _, rec := range records {
		views = append(views, PaymentView{
			IntentID:        rec.IntentID,
			RestaurantID:    rec.RestaurantID,
			VenueID:         rec.VenueID,
			Currency:        rec.Currency,
			CompletedAt:     rec.CompletedAt,
			GrossCents:      rec.Split.GrossCents,
			RestaurantCents: rec.Split.RestaurantCents,
			VenueFeeCents:   rec.Split.VenueFeeCents,
			PlatformFee:     rec.Split.PlatformFeeCents,
			ProcessorFee:    rec.Split.ProcessorFeeCents,
		})
	}
	return views, nil
}

func (s *Service) publish(ctx context.Context, subject, eventType string, data any) {
	env, err := events.NewEnvelope(eventType, middleware.GetCorrelationID(ctx), data)
	if err != nil {
		s.logger.Error("failed to build event envelope", "type", eventType, "error", err)
		return
	}
	if err := s.pub.Publish(ctx, subject, env); err != nil {
		s.logger.Error("failed to publish event", "subject", subject, "error", err)
	}
}
