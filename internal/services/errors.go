package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrTransient marks failures that a later attempt may resolve
	// (network errors, timeouts, 5xx, 408, 429).
	ErrTransient = errors.New("transient provider failure")
	// ErrPermanent marks failures that retrying cannot fix (4xx, explicit failure).
	ErrPermanent = errors.New("permanent provider failure")
	// ErrProviderRejected marks a non-2xx response to a submission or poll.
	ErrProviderRejected = errors.New("provider rejected request")
	// ErrConfiguration marks missing credentials or endpoints.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation marks payloads that fail local validation before any call is made.
	ErrValidation = errors.New("validation error")
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindPermanent ErrorKind = "permanent"
)

// ProviderError describes a failed call to an external provider.
type ProviderError struct {
	Provider   string
	Operation  string
	StatusCode int
	Kind       ErrorKind
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Operation != "" {
		b.WriteByte(' ')
		b.WriteString(e.Operation)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": http %d", e.StatusCode)
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		if len(body) > 256 {
			body = body[:256] + "..."
		}
		b.WriteString(": ")
		b.WriteString(body)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the kind marker, the rejection marker for HTTP status
// failures, and the underlying cause.
func (e *ProviderError) Unwrap() []error {
	errs := make([]error, 0, 3)
	if e.Kind == KindPermanent {
		errs = append(errs, ErrPermanent)
	} else {
		errs = append(errs, ErrTransient)
	}
	if e.StatusCode != 0 {
		errs = append(errs, ErrProviderRejected)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Classify maps an HTTP status code to an error kind. Any 4xx other than 408
// and 429 is permanent; everything else is transient.
func Classify(statusCode int) ErrorKind {
	switch {
	case statusCode == 408 || statusCode == 429:
		return KindTransient
	case statusCode >= 400 && statusCode < 500:
		return KindPermanent
	default:
		return KindTransient
	}
}

// NewStatusError builds a ProviderError for a non-2xx response.
func NewStatusError(provider, operation string, statusCode int, body string) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Operation:  operation,
		StatusCode: statusCode,
		Kind:       Classify(statusCode),
		Body:       body,
	}
}

// NewTransportError builds a transient ProviderError for network failures.
// Context cancellation by the caller is reported as-is.
func NewTransportError(provider, operation string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &ProviderError{Provider: provider, Operation: operation, Kind: KindTransient, Err: err}
}

// NewPermanentError builds a permanent ProviderError without an HTTP status,
// used for explicit failure reports and undecodable responses.
func NewPermanentError(provider, operation string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Operation: operation, Kind: KindPermanent, Err: err}
}

// IsTransient reports whether err should be retried on a later pass.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	if errors.Is(err, ErrPermanent) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsPermanent reports whether err is a terminal provider failure.
func IsPermanent(err error) bool {
	return err != nil && errors.Is(err, ErrPermanent)
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
