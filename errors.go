package paywallkit

import (
	"errors"
	"fmt"
)

// NetworkError represents a transport-level failure from the content fetcher.
type NetworkError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *NetworkError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// Network error codes. Redirects are followed transparently and never map to
// an error; 401 and 404 translate to their specific codes, every other
// status >= 300 is unknown.
const (
	ErrCodeUnknown          = "unknown"
	ErrCodeNotAuthenticated = "not_authenticated"
	ErrCodeTimeout          = "timeout"
	ErrCodeDecoding         = "decoding"
	ErrCodeNotFound         = "not_found"
	ErrCodeInvalidURL       = "invalid_url"
)

// NewNetworkError creates a network error with the given code.
func NewNetworkError(code, message string, cause error) *NetworkError {
	return &NetworkError{Code: code, Message: message, Cause: cause}
}

func networkErrorCode(err error) string {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.Code
	}
	return ""
}

// IsNotFound reports whether err is a not-found network error.
func IsNotFound(err error) bool { return networkErrorCode(err) == ErrCodeNotFound }

// IsTimeout reports whether err is a timeout network error.
func IsTimeout(err error) bool { return networkErrorCode(err) == ErrCodeTimeout }

// IsNotAuthenticated reports whether err is an authentication failure.
func IsNotAuthenticated(err error) bool { return networkErrorCode(err) == ErrCodeNotAuthenticated }

// FetchError is surfaced by the resolver when the paywall definition cannot
// be retrieved and neither a static fallback nor a usable cache entry exists.
type FetchError struct {
	Key   string
	Cause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("paywall fetch failed for %q: %v", e.Key, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// WebviewErrorCode classifies content-delivery failures.
type WebviewErrorCode string

const (
	WebviewErrNetwork            WebviewErrorCode = "network_error"
	WebviewErrTimeout            WebviewErrorCode = "timeout"
	WebviewErrMaxAttemptsReached WebviewErrorCode = "max_attempts_reached"
	WebviewErrNoURLs             WebviewErrorCode = "no_urls"
	WebviewErrAllURLsFailed      WebviewErrorCode = "all_urls_failed"
)

// WebviewError drives the delivery controller's fallback machine and is only
// surfaced to the host once every candidate is exhausted.
type WebviewError struct {
	Code        WebviewErrorCode
	StatusCode  int
	Description string
	URL         string
	// URLs lists the sources involved: tried-so-far for
	// max_attempts_reached, the full candidate set for all_urls_failed.
	URLs []string
}

func (e *WebviewError) Error() string {
	switch e.Code {
	case WebviewErrNetwork:
		return fmt.Sprintf("webview network error %d for %s: %s", e.StatusCode, e.URL, e.Description)
	case WebviewErrMaxAttemptsReached, WebviewErrAllURLsFailed:
		return fmt.Sprintf("%s: %v", e.Code, e.URLs)
	default:
		return string(e.Code)
	}
}

// TransactionError classifies purchase failures for tracking.
type TransactionError struct {
	// Pending is true for purchases awaiting external approval.
	Pending   bool
	Message   string
	ProductID string
}

func (e *TransactionError) Error() string {
	if e.Pending {
		return fmt.Sprintf("transaction pending: %s", e.Message)
	}
	return fmt.Sprintf("transaction failed for %s: %s", e.ProductID, e.Message)
}

// PresentationError is delivered through the error callback when an attempt
// cannot reach the presented state.
type PresentationError struct {
	Code    int
	Title   string
	Message string
	Cause   error
}

func (e *PresentationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%d): %s: %v", e.Title, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%d): %s", e.Title, e.Code, e.Message)
}

func (e *PresentationError) Unwrap() error {
	return e.Cause
}
