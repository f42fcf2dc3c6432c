// Package http provides the network implementations of the SDK's remote
// boundaries: the request executor, the API endpoints, and the paywall
// client consumed by the resolver.
package http

import (
	"net/http"
	"time"
)

// DefaultHost is the default API host.
const DefaultHost = "api.paywallkit.com"

// DefaultVersion is the API version path segment.
const DefaultVersion = "/api/v1/"

// APIConfig configures the API client.
type APIConfig struct {
	// APIKey is the publishable key sent as the pk query parameter and in
	// the Authorization header.
	APIKey string

	// Host overrides the API host (optional).
	Host string

	// Version overrides the API version path segment (optional).
	Version string

	// Locale is the device locale, e.g. "en_US".
	Locale string

	// Locales is the set of locales the remote config declares paywall
	// translations for. The device locale is only forwarded when this
	// set contains it, fully or shortened.
	Locales []string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *http.Client

	// Timeout for requests (optional, defaults to 30s).
	Timeout time.Duration
}

// NewClient creates an API client for the given configuration.
func NewClient(config *APIConfig) *APIClient {
	return NewAPIClient(config)
}
