// Package processor talks to the external payment processor used for card
// charges and multi-destination payouts.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"platepay/internal/common/errs"
)

// Config holds processor client configuration.
type Config struct {
	BaseURL        string        `envconfig:"PROCESSOR_BASE_URL" default:"https://api.processor.local"`
	APIKey         string        `envconfig:"PROCESSOR_API_KEY" required:"true"`
	RequestTimeout time.Duration `envconfig:"PROCESSOR_TIMEOUT" default:"15s"`
}

// Client is an HTTP client for the payment processor. Every call is bounded
// by the configured request timeout.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a processor client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		logger:  logger,
	}
}

// ChargeRequest creates a charge against the customer's payment method.
type ChargeRequest struct {
	AmountCents int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Charge is the processor's view of a created charge.
type Charge struct {
	Ref          string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

// PayoutRequest moves part of a settled charge to one destination account.
// IdempotencyKey must be scoped to (intent, destination); the processor
// deduplicates on it, so redelivery never double-pays.
type PayoutRequest struct {
	IdempotencyKey       string `json:"-"`
	DestinationAccountID string `json:"destination"`
	AmountCents          int64  `json:"amount"`
	Currency             string `json:"currency"`
	Description          string `json:"description,omitempty"`
	SourceChargeRef      string `json:"source_charge,omitempty"`
}

// Payout is the processor's view of a payout.
type Payout struct {
	Ref    string `json:"id"`
	Status string `json:"status"`
}

// DeclineError reports a payout the processor refused for this destination.
// It is a destination-scoped business failure, not an availability problem.
type DeclineError struct {
	Code    string
	Message string
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("payout declined (%s): %s", e.Code, e.Message)
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateCharge creates a charge. Never retried automatically: charge creation
// is a write.
func (c *Client) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	var charge Charge
	if err := c.do(ctx, http.MethodPost, "/v1/charges", "", req, &charge); err != nil {
		return nil, err
	}

	c.logger.Info("processor charge created",
		"charge_ref", charge.Ref,
		"amount", req.AmountCents,
		"currency", req.Currency,
	)
	return &charge, nil
}

// GetCharge fetches a charge by ref. Reads are idempotent, so one transient
// failure is retried.
func (c *Client) GetCharge(ctx context.Context, ref string) (*Charge, error) {
	var charge Charge
	err := c.do(ctx, http.MethodGet, "/v1/charges/"+ref, "", nil, &charge)
	if errs.IsRetryable(err) {
		c.logger.Warn("retrying charge read", "charge_ref", ref, "error", err)
		err = c.do(ctx, http.MethodGet, "/v1/charges/"+ref, "", nil, &charge)
	}
	if err != nil {
		return nil, err
	}
	return &charge, nil
}

// Payout executes a single payout. The idempotency key is mandatory and the
// call is never retried here; redelivery of the triggering event re-runs the
// executor, which reuses the same key.
func (c *Client) Payout(ctx context.Context, req PayoutRequest) (*Payout, error) {
	if req.IdempotencyKey == "" {
		return nil, errs.Validation("idempotencyKey", "required for payouts")
	}

	var payout Payout
	if err := c.do(ctx, http.MethodPost, "/v1/payouts", req.IdempotencyKey, req, &payout); err != nil {
		return nil, err
	}

	c.logger.Info("processor payout submitted",
		"payout_ref", payout.Ref,
		"destination", req.DestinationAccountID,
		"amount", req.AmountCents,
	)
	return &payout, nil
}

func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling %s %s request: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building %s %s request: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &errs.ExternalServiceError{
			Service:   "processor",
			Op:        method + " " + path,
			Retryable: method == http.MethodGet,
			Err:       err,
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s %s response: %w", method, path, err)
		}
		return nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var ae apiError
		_ = json.NewDecoder(resp.Body).Decode(&ae)
		return &DeclineError{Code: ae.Error.Code, Message: ae.Error.Message}

	default:
		return &errs.ExternalServiceError{
			Service:   "processor",
			Op:        method + " " + path,
			Retryable: method == http.MethodGet,
			Err:       fmt.Errorf("status %d", resp.StatusCode),
		}
	}
}
