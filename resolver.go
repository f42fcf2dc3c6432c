package paywallkit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Resolver converts a paywall request into a resolved paywall with products,
// deduplicating concurrent identical fetches and serving repeats from cache.
type Resolver struct {
	client  PaywallClient
	billing BillingController
	cache   *paywallCache

	static          StaticPaywallProvider
	track           TrackFunc
	globalOverrides func() map[string]string
	logger          *zap.Logger
}

// ResolverOption configures the resolver.
type ResolverOption func(*Resolver)

// WithStaticPaywallProvider installs a provider for locally configured
// paywalls that short-circuit the network fetch.
func WithStaticPaywallProvider(provider StaticPaywallProvider) ResolverOption {
	return func(r *Resolver) {
		r.static = provider
	}
}

// WithResolverTracker installs the lifecycle event sink.
func WithResolverTracker(track TrackFunc) ResolverOption {
	return func(r *Resolver) {
		r.track = track
	}
}

// WithGlobalProductOverrides installs a source of globally configured product
// substitutions, applied when a request carries no local overrides.
func WithGlobalProductOverrides(overrides func() map[string]string) ResolverOption {
	return func(r *Resolver) {
		r.globalOverrides = overrides
	}
}

// WithResolverLogger sets the structured logger.
func WithResolverLogger(logger *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver backed by the given network client and
// billing collaborator.
func NewResolver(client PaywallClient, billing BillingController, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		client:          client,
		billing:         billing,
		cache:           newPaywallCache(),
		static:          func(string, bool) *Paywall { return nil },
		track:           func(context.Context, TrackedEvent) {},
		globalOverrides: func() map[string]string { return nil },
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the paywall for the request. Across concurrent callers the
// underlying fetch runs at most once per distinct request key; repeat lookups
// for a non-debug key never touch the network.
func (r *Resolver) Resolve(ctx context.Context, req PaywallRequest) (*Paywall, error) {
	key := req.Key()

	// Debug-launched requests bypass the cache in both directions: they
	// never read a cached entry and never populate one.
	if req.IsDebuggerLaunched {
		paywall, err := r.fetch(ctx, req, key)
		if err != nil {
			return nil, err
		}
		return r.applyRequest(paywall, req), nil
	}

	status, cached, pending := r.cache.checkAndMark(key)
	switch status {
	case statusHit:
		r.logger.Debug("paywall cache hit", zap.String("scope", "paywallRequest"), zap.String("key", key))
		return r.applyRequest(cached, req), nil

	case statusInFlight:
		paywall, err := r.cache.wait(ctx, pending)
		if err != nil {
			return nil, err
		}
		return r.applyRequest(paywall, req), nil
	}

	paywall, err := r.fetch(ctx, req, key)
	if err != nil {
		r.cache.fail(key, err, pending)
		return nil, err
	}

	// Static paywalls are a local fallback, never cached as a network
	// result.
	isStatic := r.static(req.Identifiers.PaywallID, req.IsDebuggerLaunched) != nil
	r.cache.complete(key, paywall, pending, !isStatic)
	return r.applyRequest(paywall, req), nil
}

// ResetCache clears all cached paywalls.
func (r *Resolver) ResetCache() {
	r.cache.reset()
}

// fetch retrieves the paywall definition and resolves its products.
func (r *Resolver) fetch(ctx context.Context, req PaywallRequest, key string) (*Paywall, error) {
	paywall, err := r.getRawPaywall(ctx, req)
	if err != nil {
		return nil, &FetchError{Key: key, Cause: err}
	}
	return r.addProducts(ctx, paywall, req)
}

// getRawPaywall loads the paywall definition, preferring a configured static
// paywall over the network, and brackets the load with tracking events.
func (r *Resolver) getRawPaywall(ctx context.Context, req PaywallRequest) (*Paywall, error) {
	r.track(ctx, newTrackedEvent(EventPaywallResponseLoadStart, eventParams(req.Event)))
	startAt := time.Now()

	paywall := r.static(req.Identifiers.PaywallID, req.IsDebuggerLaunched)
	if paywall == nil {
		var err error
		paywall, err = r.client.GetPaywall(ctx, req.Identifiers.PaywallID, req.Event)
		if err != nil {
			r.logger.Warn("paywall response load failed",
				zap.String("scope", "paywallRequest"),
				zap.String("paywall_id", req.Identifiers.PaywallID),
				zap.Error(err))
			params := eventParams(req.Event)
			params["error"] = err.Error()
			r.track(ctx, newTrackedEvent(EventPaywallResponseLoadFail, params))
			return nil, err
		}
	}

	paywall.Experiment = req.Identifiers.Experiment
	paywall.ResponseLoadingInfo = LoadingInfo{StartAt: startAt, EndAt: time.Now()}

	params := paywallParams(paywall.Info(req.Event))
	params["response_load_duration"] = paywall.ResponseLoadingInfo.Duration().Seconds()
	r.track(ctx, newTrackedEvent(EventPaywallResponseLoadComplete, params))

	return paywall, nil
}

// addProducts merges product overrides with the definition's declared
// products and resolves them against the billing collaborator. Unresolved
// references are dropped, never a hard failure.
func (r *Resolver) addProducts(ctx context.Context, paywall *Paywall, req PaywallRequest) (*Paywall, error) {
	r.track(ctx, newTrackedEvent(EventPaywallProductsLoadStart, paywallParams(paywall.Info(req.Event))))
	paywall.ProductsLoadingInfo.StartAt = time.Now()

	overrides := req.Overrides.Products
	if len(overrides) == 0 {
		overrides = r.globalOverrides()
	}

	// Substitute declared product IDs slot-by-slot before lookup.
	ids := make([]string, 0, len(paywall.ProductItems))
	for _, item := range paywall.ProductItems {
		id := item.ProductID
		if substitute, ok := overrides[item.Name]; ok {
			id = substitute
		}
		ids = append(ids, id)
	}

	resolved, err := r.billing.FetchProducts(ctx, ids)
	if err != nil {
		r.logger.Warn("product lookup failed",
			zap.String("scope", "paywallRequest"),
			zap.String("paywall_id", paywall.Identifier),
			zap.Error(err))
		params := paywallParams(paywall.Info(req.Event))
		params["error"] = err.Error()
		r.track(ctx, newTrackedEvent(EventPaywallProductsLoadFail, params))
		resolved = nil
	}

	products := make([]Product, 0, len(ids))
	hasFreeTrial := false
	for i, id := range ids {
		product, ok := resolved[id]
		if !ok {
			continue
		}
		product.Name = paywall.ProductItems[i].Name
		products = append(products, product)
		if product.HasFreeTrial {
			hasFreeTrial = true
		}
	}
	paywall.Products = products
	paywall.IsFreeTrialAvailable = hasFreeTrial
	if req.Overrides.IsFreeTrial != nil {
		paywall.IsFreeTrialAvailable = *req.Overrides.IsFreeTrial
	}

	paywall.ProductsLoadingInfo.EndAt = time.Now()
	params := paywallParams(paywall.Info(req.Event))
	params["products_load_duration"] = paywall.ProductsLoadingInfo.Duration().Seconds()
	r.track(ctx, newTrackedEvent(EventPaywallProductsLoadComplete, params))

	return paywall, nil
}

// applyRequest copies request-scoped fields onto a shared paywall without
// mutating the cached value.
func (r *Resolver) applyRequest(paywall *Paywall, req PaywallRequest) *Paywall {
	updated := *paywall
	updated.Experiment = req.Identifiers.Experiment
	updated.PresentationSourceType = req.PresentationSourceType
	return &updated
}
