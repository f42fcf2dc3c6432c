package http

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	paywallkit "github.com/paywallkit/paywallkit-go"
)

// APIClient is the production PaywallClient. It resolves paywall definitions
// over the executor and validates payloads before decoding.
type APIClient struct {
	config   *APIConfig
	executor *Executor
	logger   *zap.Logger
}

// APIClientOption configures the client.
type APIClientOption func(*APIClient)

// WithAPIClientLogger sets the structured logger.
func WithAPIClientLogger(logger *zap.Logger) APIClientOption {
	return func(c *APIClient) {
		c.logger = logger
	}
}

// WithAPIClientExecutor replaces the request executor.
func WithAPIClientExecutor(executor *Executor) APIClientOption {
	return func(c *APIClient) {
		c.executor = executor
	}
}

// NewAPIClient creates a client for the given configuration.
func NewAPIClient(config *APIConfig, opts ...APIClientOption) *APIClient {
	if config == nil {
		config = &APIConfig{}
	}
	c := &APIClient{
		config: config,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.executor == nil {
		executorOpts := []ExecutorOption{WithExecutorLogger(c.logger)}
		if config.HTTPClient != nil {
			executorOpts = append(executorOpts, WithExecutorHTTPClient(config.HTTPClient))
		} else if config.Timeout != 0 {
			executorOpts = append(executorOpts, WithExecutorHTTPClient(&http.Client{Timeout: config.Timeout}))
		}
		c.executor = NewExecutor(config.APIKey, executorOpts...)
	}
	return c
}

var _ paywallkit.PaywallClient = (*APIClient)(nil)

// GetPaywall fetches a paywall definition by identifier, or from the
// triggering event when identifier is empty.
func (c *APIClient) GetPaywall(ctx context.Context, identifier string, event *paywallkit.EventData) (*paywallkit.Paywall, error) {
	var (
		data RequestData
		err  error
	)
	if identifier != "" {
		data = paywallByIdentifier(c.config, identifier, c.config.Locale)
	} else {
		if event == nil {
			return nil, paywallkit.NewNetworkError(paywallkit.ErrCodeInvalidURL, "neither identifier nor event given", nil)
		}
		data, err = paywallByEvent(c.config, event)
		if err != nil {
			return nil, err
		}
	}

	body, err := c.executor.Execute(ctx, data)
	if err != nil {
		return nil, err
	}

	if err := ValidatePaywallPayload(body); err != nil {
		return nil, paywallkit.NewNetworkError(paywallkit.ErrCodeDecoding, "paywall payload failed validation", err)
	}

	var paywall paywallkit.Paywall
	if err := json.Unmarshal(body, &paywall); err != nil {
		return nil, paywallkit.NewNetworkError(paywallkit.ErrCodeDecoding, "failed to decode paywall payload", err)
	}
	return &paywall, nil
}

// RedeemCode redeems a promotional code. The call carries no retry budget.
func (c *APIClient) RedeemCode(ctx context.Context, code string) error {
	data, err := redeemEndpoint(c.config, code)
	if err != nil {
		return err
	}
	_, err = c.executor.Execute(ctx, data)
	return err
}
