// Package errs defines the error taxonomy shared by the payment core.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError reports bad or out-of-range input. It is never retried and
// maps to a 4xx response at the API boundary.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation: %s", e.Message)
}

// Validation creates a ValidationError for a field.
func Validation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Validationf creates a ValidationError with a formatted message.
func Validationf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing restaurant, venue, intent or record.
type NotFoundError struct {
	Kind string // "restaurant", "venue", "intent", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// NotFound creates a NotFoundError.
func NotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// SplitIntegrityError reports a violated split-sum invariant. It is fatal:
// charge creation must be blocked, and it must be distinguishable in logs and
// alerts from ordinary validation failures, since it points at a configuration
// or rounding bug rather than bad user input.
type SplitIntegrityError struct {
	GrossCents int64
	SumCents   int64
}

func (e *SplitIntegrityError) Error() string {
	return fmt.Sprintf("split integrity violated: parts sum to %d, gross is %d", e.SumCents, e.GrossCents)
}

// TransferError is scoped to a single payout destination. It is collected per
// transfer and never aborts sibling transfers.
type TransferError struct {
	IntentID      string
	DestinationID string
	Reason        string
	Err           error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer to %s for intent %s failed: %s", e.DestinationID, e.IntentID, e.Reason)
}

func (e *TransferError) Unwrap() error { return e.Err }

// PermissionError reports a caller acting on a restaurant or venue it has no
// rights over.
type PermissionError struct {
	ActorID  string
	Resource string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("actor %s has no access to %s", e.ActorID, e.Resource)
}

// Permission creates a PermissionError.
func Permission(actorID, resource string) *PermissionError {
	return &PermissionError{ActorID: actorID, Resource: resource}
}

// ExternalServiceError reports an unavailable processor or store. Retryable is
// set only for idempotent read operations; writes and payouts are never retried
// without a destination-scoped idempotency key.
type ExternalServiceError struct {
	Service   string
	Op        string
	Retryable bool
	Err       error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsSplitIntegrity reports whether err is a SplitIntegrityError.
func IsSplitIntegrity(err error) bool {
	var si *SplitIntegrityError
	return errors.As(err, &si)
}

// IsPermission reports whether err is a PermissionError.
func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

// IsExternal reports whether err is an ExternalServiceError.
func IsExternal(err error) bool {
	var ee *ExternalServiceError
	return errors.As(err, &ee)
}

// IsRetryable reports whether err is an external error safe to retry.
func IsRetryable(err error) bool {
	var ee *ExternalServiceError
	return errors.As(err, &ee) && ee.Retryable
}
