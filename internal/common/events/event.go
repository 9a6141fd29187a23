// Package events defines the envelope and subjects for platform events.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Envelope wraps all events with common metadata.
type Envelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlation_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Data          json.RawMessage `json:"data"`
}

// NewEnvelope creates a new event envelope.
func NewEnvelope(eventType, correlationID string, data any) (*Envelope, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		ID:            ulid.Make().String(),
		Type:          eventType,
		CorrelationID: correlationID,
		OccurredAt:    time.Now().UTC(),
		Data:          jsonData,
	}, nil
}

// DecodeData decodes the event data into a struct
func (e *Envelope) DecodeData(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Publisher publishes events to a message broker.
type Publisher interface {
	Publish(ctx context.Context, subject string, env *Envelope) error
}

// Subjects for settlement lifecycle events.
const (
	SubjectIntentCreated  = "settlement.intent.created"
	SubjectCompleted      = "settlement.completed"
	SubjectFailed         = "settlement.failed"
	SubjectTransferFailed = "settlement.transfer.failed"
)

// Event types carried on the settlement subjects.
const (
	EventIntentCreated  = "settlement.intent.created"
	EventCompleted      = "settlement.completed"
	EventFailed         = "settlement.failed"
	EventTransferFailed = "settlement.transfer.failed"
)
