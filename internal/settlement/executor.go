package settlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"platepay/internal/common/errs"
	"platepay/internal/common/events"
	"platepay/internal/common/middleware"
	"platepay/internal/processor"
)

// Payer sends payouts to destination accounts.
type Payer interface {
	Payout(ctx context.Context, req processor.PayoutRequest) (*processor.Payout, error)
}

// Result summarizes one settlement run over an intent.
type Result struct {
	IntentID           string `json:"intent_id"`
	Success            bool   `json:"success"`
	TransfersAttempted int    `json:"transfers_attempted"`
	TransfersSucceeded int    `json:"transfers_succeeded"`
}

// Executor settles a charged intent by paying out each planned transfer.
// Execution is idempotent: redelivered settlement events re-enter Execute,
// which skips destinations already paid and leaves terminal intents alone.
type Executor struct {
	intents IntentStore
	records RecordStore
	payer   Payer
	pub     events.Publisher
	logger  *slog.Logger
}

// NewExecutor creates a transfer executor.
func NewExecutor(intents IntentStore, records RecordStore, payer Payer, pub events.Publisher, logger *slog.Logger) *Executor {
	return &Executor{
		intents: intents,
		records: records,
		payer:   payer,
		pub:     pub,
		logger:  logger,
	}
}

// PayoutKey derives the idempotency key for one transfer. Scoping the key to
// the (intent, destination) pair lets a retried run pay a previously failed
// destination while the processor deduplicates the ones already paid.
func PayoutKey(intentID, destinationAccountID string) string {
	return intentID + ":" + destinationAccountID
}

// Execute runs every pending transfer for the intent, then drives the intent
// to a terminal state. The intent completes when the restaurant transfer
// succeeds; a failed venue transfer is recorded and reported for
// reconciliation but does not fail the payment. The intent fails only when
// the restaurant transfer fails.
func (e *Executor) Execute(ctx context.Context, intentID string) (*Result, error) {
	intent, err := e.intents.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	if intent.IsTerminal() {
		e.logger.Info("settlement already terminal, skipping",
			"intent_id", intentID,
			"state", intent.State,
		)
		return resultFrom(intent), nil
	}

	transfers := make([]Transfer, len(intent.Transfers))
	copy(transfers, intent.Transfers)

	for i := range transfers {
		t := &transfers[i]
		if t.Status == TransferSucceeded {
			continue
		}
		e.attempt(ctx, intent, t)

		// Persist progress after each attempt so a crash between payouts
		// never loses the record of money already moved.
		if err := e.intents.UpdateTransfers(ctx, intentID, transfers); err != nil {
			e.logger.Error("failed to persist transfer progress",
				"intent_id", intentID,
				"error", err,
			)
		}
	}

	return e.finish(ctx, intent, transfers)
}

// attempt runs one payout and records its outcome on t.
func (e *Executor) attempt(ctx context.Context, intent *PaymentIntentRecord, t *Transfer) {
	payout, err := e.payer.Payout(ctx, processor.PayoutRequest{
		IdempotencyKey:       PayoutKey(intent.ID, t.DestinationAccountID),
		DestinationAccountID: t.DestinationAccountID,
		AmountCents:          t.AmountCents,
		Currency:             intent.Currency,
		Description:          string(t.Kind) + " settlement",
		SourceChargeRef:      intent.ProcessorRef,
	})
	if err != nil {
		t.Status = TransferFailed
		t.FailureReason = failureReason(err)

		terr := &errs.TransferError{
			IntentID:      intent.ID,
			DestinationID: t.DestinationAccountID,
			Reason:        t.FailureReason,
			Err:           err,
		}
		e.logger.Warn("transfer failed",
			"intent_id", intent.ID,
			"kind", t.Kind,
			"destination", t.DestinationAccountID,
			"amount_cents", t.AmountCents,
			"error", terr,
		)
		e.publish(ctx, events.SubjectTransferFailed, events.EventTransferFailed, TransferFailedEvent{
			IntentID:             intent.ID,
			Kind:                 t.Kind,
			DestinationAccountID: t.DestinationAccountID,
			AmountCents:          t.AmountCents,
			Reason:               t.FailureReason,
		})
		return
	}

	t.Status = TransferSucceeded
	t.FailureReason = ""
	t.PayoutRef = payout.Ref
}

// finish decides the terminal state from the restaurant transfer and writes
// the payment record on completion.
func (e *Executor) finish(ctx context.Context, intent *PaymentIntentRecord, transfers []Transfer) (*Result, error) {
	var restaurant *Transfer
	for i := range transfers {
		if transfers[i].Kind == TransferRestaurant {
			restaurant = &transfers[i]
			break
		}
	}

	if restaurant == nil || restaurant.Status != TransferSucceeded {
		reason := "restaurant transfer failed"
		if restaurant != nil && restaurant.FailureReason != "" {
			reason = restaurant.FailureReason
		}
		if err := e.intents.MarkFailed(ctx, intent.ID, reason, transfers); err != nil {
			return nil, err
		}
		intent.State = IntentFailed
		intent.FailureReason = reason
		intent.Transfers = transfers

		e.publish(ctx, events.SubjectFailed, events.EventFailed, SettlementFailedEvent{
			IntentID:     intent.ID,
			RestaurantID: intent.RestaurantID,
			Reason:       reason,
		})
		e.logger.Error("settlement failed",
			"intent_id", intent.ID,
			"restaurant_id", intent.RestaurantID,
			"reason", reason,
		)
		return resultFrom(intent), nil
	}

	if err := e.intents.MarkCompleted(ctx, intent.ID, transfers); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	intent.State = IntentCompleted
	intent.Transfers = transfers
	intent.CompletedAt = &now

	if err := e.records.InsertRecord(ctx, &PaymentRecord{
		IntentID:     intent.ID,
		RestaurantID: intent.RestaurantID,
		VenueID:      intent.VenueID,
		Currency:     intent.Currency,
		Split:        intent.Split,
		CompletedAt:  now,
	}); err != nil {
		return nil, err
	}

	res := resultFrom(intent)
	e.publish(ctx, events.SubjectCompleted, events.EventCompleted, SettlementCompletedEvent{
		IntentID:           intent.ID,
		RestaurantID:       intent.RestaurantID,
		TransfersAttempted: res.TransfersAttempted,
		TransfersSucceeded: res.TransfersSucceeded,
	})
	e.logger.Info("settlement completed",
		"intent_id", intent.ID,
		"restaurant_id", intent.RestaurantID,
		"transfers_attempted", res.TransfersAttempted,
		"transfers_succeeded", res.TransfersSucceeded,
	)
	return res, nil
}

func resultFrom(intent *PaymentIntentRecord) *Result {
	res := &Result{
		IntentID:           intent.ID,
		Success:            intent.State == IntentCompleted,
		TransfersAttempted: len(intent.Transfers),
	}
	for _, t := range intent.Transfers {
		if t.Status == TransferSucceeded {
			res.TransfersSucceeded++
		}
	}
	return res
}

// failureReason keeps the stored reason short and stable for declines while
// preserving the full error for infrastructure failures.
func failureReason(err error) string {
	var decline *processor.DeclineError
	if errors.As(err, &decline) {
		return decline.Code + ": " + decline.Message
	}
	return err.Error()
}

func (e *Executor) publish(ctx context.Context, subject, eventType string, data any) {
	env, err := events.NewEnvelope(eventType, middleware.GetCorrelationID(ctx), data)
	if err != nil {
		e.logger.Error("failed to build event envelope", "type", eventType, "error", err)
		return
	}
	if err := e.pub.Publish(ctx, subject, env); err != nil {
		e.logger.Error("failed to publish event", "subject", subject, "error", err)
	}
}
