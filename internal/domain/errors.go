package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every typed error below matches exactly one of these through
// errors.Is, so callers branch on the kind and inspect details with errors.As.
var (
	ErrValidation          = errors.New("validation failed")
	ErrInvalidState        = errors.New("invalid state")
	ErrImmutableField      = errors.New("field is immutable")
	ErrNotFound            = errors.New("not found")
	ErrDuplicate           = errors.New("already exists")
	ErrTransport           = errors.New("transport failure")
	ErrZeroRecipients      = errors.New("no active subscribers to send to")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Field + " is required"
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Required is shorthand for a missing required field.
func Required(field string) error { return &ValidationError{Field: field} }

// InvalidStateError reports an operation that is illegal in the entity's
// current status.
type InvalidStateError struct {
	Op     string
	Status CampaignStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s a campaign in status %q", e.Op, e.Status)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// ImmutableFieldError reports an edit to a field that is locked in the
// entity's current status.
type ImmutableFieldError struct {
	Field  string
	Status CampaignStatus
}

func (e *ImmutableFieldError) Error() string {
	return fmt.Sprintf("cannot modify %s of a campaign in status %q", e.Field, e.Status)
}

func (e *ImmutableFieldError) Is(target error) bool { return target == ErrImmutableField }

// TransportError is a soft, per-recipient delivery failure.
type TransportError struct {
	Recipient string
	Kind      string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.Recipient, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// UpstreamError wraps a failure of a backing store.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstreamUnavailable }

// Upstream wraps err as an UpstreamError unless it already carries a kind
// from this package.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		ErrValidation, ErrInvalidState, ErrImmutableField, ErrNotFound,
		ErrDuplicate, ErrTransport, ErrZeroRecipients, ErrUpstreamUnavailable,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return &UpstreamError{Op: op, Err: err}
}
