package cloner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind is the coarse failure taxonomy reported to callers.
type ErrorKind string

// Error kinds.
const (
	ErrorValidation ErrorKind = "validation"
	ErrorFatal      ErrorKind = "fatal"
	ErrorPartial    ErrorKind = "partial"
	ErrorTransient  ErrorKind = "transient"
)

// Sentinel errors shared across packages.
var (
	ErrValidation        = errors.New("validation failed")
	ErrRootFetch         = errors.New("root document fetch failed")
	ErrContainerNotFound = errors.New("container not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrObjectNotFound    = errors.New("object not found")
	ErrSiteNotFound      = errors.New("site not found")
	ErrJobNotFound       = errors.New("job not found")
	ErrJobExists         = errors.New("job already exists")
	ErrQueueFull         = errors.New("queue full")
	ErrQueueClosed       = errors.New("queue closed")
	ErrPrivateAddress    = errors.New("private or loopback address")
)

// ValidationError carries the specific reason a request was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// FetchErrorKind classifies fetch failures for retry decisions.
type FetchErrorKind string

// Fetch failure kinds.
const (
	FetchTransient FetchErrorKind = "transient"
	FetchClient    FetchErrorKind = "client"
	FetchDNS       FetchErrorKind = "dns"
	FetchTooLarge  FetchErrorKind = "too_large"
	FetchCanceled  FetchErrorKind = "canceled"
)

// FetchError is the typed failure returned by fetchers.
type FetchError struct {
	URL        string
	Kind       FetchErrorKind
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode > 0:
		return fmt.Sprintf("fetch %s: %s (status %d): %v", e.URL, e.Kind, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could succeed.
func (e *FetchError) Retryable() bool {
	return e.Kind == FetchTransient
}

// NewStatusError classifies a non-success HTTP status.
func NewStatusError(url string, status int) *FetchError {
	kind := FetchClient
	switch {
	case status >= 500, status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		kind = FetchTransient
	case status >= 200 && status < 400:
		// unexpected success codes (204, 206) are not worth retrying
		kind = FetchClient
	}
	return &FetchError{URL: url, Kind: kind, StatusCode: status, Err: errors.New(http.StatusText(status))}
}

// ClassifyTransportError wraps a network-level failure with its fetch kind.
func ClassifyTransportError(url string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.Canceled) {
		return &FetchError{URL: url, Kind: FetchCanceled, Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.IsTimeout && !dnsErr.IsTemporary {
		return &FetchError{URL: url, Kind: FetchDNS, Err: err}
	}
	return &FetchError{URL: url, Kind: FetchTransient, Err: err}
}

// Classify maps any error onto the caller-facing taxonomy.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrValidation) {
		return ErrorValidation
	}
	var fe *FetchError
	if errors.As(err, &fe) && fe.Retryable() && !errors.Is(err, ErrRootFetch) {
		return ErrorTransient
	}
	return ErrorFatal
}
