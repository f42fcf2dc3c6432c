package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	paywallkit "github.com/paywallkit/paywallkit-go"
)

// Retry budgets per call class. Reads tolerate more retries than writes;
// restore/redeem-class calls must never be retried because the backend is
// not idempotent for them.
const (
	getRetries  = 6
	postRetries = 3
	zeroRetries = 0
)

// retryBaseDelay is the base delay for exponential backoff between retries.
const retryBaseDelay = 500 * time.Millisecond

// RequestData describes one API request for the executor.
type RequestData struct {
	Method string
	Host   string
	Path   string
	// RawQuery is the pre-built query string. It is used verbatim so the
	// parameter order survives; callers own the encoding.
	RawQuery string
	Body     []byte
	Headers  map[string]string
	// Retries is the retry budget for this call class.
	Retries int
}

// URL renders the request's full URL. Host may carry an explicit scheme;
// without one it defaults to https.
func (r RequestData) URL() string {
	host := r.Host
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	u := host + r.Path
	if r.RawQuery != "" {
		u += "?" + r.RawQuery
	}
	return u
}

// Executor runs API requests with auth headers, transparent redirect
// following, and per-class retries. It maps transport failures onto the
// NetworkError taxonomy.
type Executor struct {
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// ExecutorOption configures the executor.
type ExecutorOption func(*Executor)

// WithExecutorHTTPClient replaces the underlying HTTP client.
func WithExecutorHTTPClient(client *http.Client) ExecutorOption {
	return func(e *Executor) {
		e.httpClient = client
	}
}

// WithExecutorLogger sets the structured logger.
func WithExecutorLogger(logger *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates an executor authenticated with the given API key.
func NewExecutor(apiKey string, opts ...ExecutorOption) *Executor {
	e := &Executor{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the request and returns the response body. Redirects are
// followed transparently; a response is only returned for 2xx statuses.
func (e *Executor) Execute(ctx context.Context, data RequestData) ([]byte, error) {
	if e.apiKey == "" {
		return nil, paywallkit.NewNetworkError(paywallkit.ErrCodeNotAuthenticated, "no API key configured", nil)
	}

	var lastErr error
	for attempt := 0; attempt <= data.Retries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, paywallkit.NewNetworkError(paywallkit.ErrCodeTimeout, "request cancelled while backing off", ctx.Err())
			}
		}

		body, retryable, err := e.executeOnce(ctx, data)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		e.logger.Debug("request retrying",
			zap.String("scope", "network"),
			zap.String("url", data.URL()),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	return nil, lastErr
}

func (e *Executor) executeOnce(ctx context.Context, data RequestData) (body []byte, retryable bool, err error) {
	var reader io.Reader
	if data.Body != nil {
		reader = bytes.NewReader(data.Body)
	}

	req, err := http.NewRequestWithContext(ctx, data.Method, data.URL(), reader)
	if err != nil {
		return nil, false, paywallkit.NewNetworkError(paywallkit.ErrCodeInvalidURL, data.URL(), err)
	}

	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	for k, v := range data.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, true, paywallkit.NewNetworkError(paywallkit.ErrCodeTimeout, "request timed out", err)
		}
		return nil, true, paywallkit.NewNetworkError(paywallkit.ErrCodeUnknown, "request failed", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, paywallkit.NewNetworkError(paywallkit.ErrCodeUnknown, "failed to read response body", err)
	}

	e.logger.Debug("request completed",
		zap.String("scope", "network"),
		zap.String("url", data.URL()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return responseBody, false, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, false, paywallkit.NewNetworkError(paywallkit.ErrCodeNotAuthenticated, "invalid API key", nil)
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, paywallkit.NewNetworkError(paywallkit.ErrCodeNotFound, data.URL(), nil)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, paywallkit.NewNetworkError(
			paywallkit.ErrCodeUnknown,
			fmt.Sprintf("request failed with status %d", resp.StatusCode), nil)
	default:
		return nil, false, paywallkit.NewNetworkError(
			paywallkit.ErrCodeUnknown,
			fmt.Sprintf("request failed with status %d", resp.StatusCode), nil)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
