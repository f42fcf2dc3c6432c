package paywallkit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePaywallClient struct {
	calls   int64
	paywall Paywall
	err     error
	blocked chan struct{}
}

func (c *fakePaywallClient) GetPaywall(ctx context.Context, identifier string, event *EventData) (*Paywall, error) {
	atomic.AddInt64(&c.calls, 1)
	if c.blocked != nil {
		select {
		case <-c.blocked:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	paywall := c.paywall
	return &paywall, nil
}

func (c *fakePaywallClient) callCount() int64 {
	return atomic.LoadInt64(&c.calls)
}

type fakeBilling struct {
	products       map[string]Product
	fetchErr       error
	purchaseResult PurchaseResult
	purchaseHook   func()
	restoreResult  RestorationResult
}

func (b *fakeBilling) Purchase(ctx context.Context, product Product) PurchaseResult {
	if b.purchaseHook != nil {
		b.purchaseHook()
	}
	return b.purchaseResult
}

func (b *fakeBilling) RestorePurchases(ctx context.Context) RestorationResult {
	return b.restoreResult
}

func (b *fakeBilling) FetchProducts(ctx context.Context, ids []string) (map[string]Product, error) {
	if b.fetchErr != nil {
		return nil, b.fetchErr
	}
	resolved := make(map[string]Product, len(ids))
	for _, id := range ids {
		if product, ok := b.products[id]; ok {
			resolved[id] = product
		}
	}
	return resolved, nil
}

func testPaywall() Paywall {
	return Paywall{
		Identifier: "test_paywall",
		Name:       "Test",
		ProductItems: []ProductItem{
			{Name: "primary", ProductID: "com.app.yearly"},
			{Name: "secondary", ProductID: "com.app.monthly"},
		},
		FeatureGating: FeatureGatingNonGated,
	}
}

func testBilling() *fakeBilling {
	return &fakeBilling{products: map[string]Product{
		"com.app.yearly":  {ID: "com.app.yearly", Type: ProductTypeAutoRenewable, HasFreeTrial: true},
		"com.app.monthly": {ID: "com.app.monthly", Type: ProductTypeAutoRenewable},
		"com.app.weekly":  {ID: "com.app.weekly", Type: ProductTypeAutoRenewable},
	}}
}

func TestResolverCachesByRequestKey(t *testing.T) {
	client := &fakePaywallClient{paywall: testPaywall()}
	resolver := NewResolver(client, testBilling())

	req := PaywallRequest{Identifiers: ResponseIdentifiers{PaywallID: "test_paywall"}, Locale: "en_US"}

	first, err := resolver.Resolve(context.Background(), req)
	require.NoError(t, err)
	second, err := resolver.Resolve(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, int64(1), client.callCount())
	assert.Equal(t, first.Identifier, second.Identifier)
}

func TestResolverSingleFlight(t *testing.T) {
	client := &fakePaywallClient{paywall: testPaywall(), blocked: make(chan struct{})}
	resolver := NewResolver(client, testBilling())

	req := PaywallRequest{Identifiers: ResponseIdentifiers{PaywallID: "test_paywall"}, Locale: "en_US"}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*Paywall, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paywall, err := resolver.Resolve(context.Background(), req)
			assert.NoError(t, err)
			results[i] = paywall
		}(i)
	}

	close(client.blocked)
	wg.Wait()

	assert.Equal(t, int64(1), client.callCount())
	for _, paywall := range results {
		require.NotNil(t, paywall)
		assert.Equal(t, "test_paywall", paywall.Identifier)
	}
}

func TestResolverDebugBypassesCache(t *testing.T) {
	client := &fakePaywallClient{paywall: testPaywall()}
	resolver := NewResolver(client, testBilling())

	req := PaywallRequest{
		Identifiers:        ResponseIdentifiers{PaywallID: "test_paywall"},
		Locale:             "en_US",
		IsDebuggerLaunched: true,
	}

	_, err := resolver.Resolve(context.Background(), req)
	require.NoError(t, err)
	_, err = resolver.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(2), client.callCount())

	// A debug fetch must not have populated the cache for the non-debug
	// request with the same key.
	req.IsDebuggerLaunched = false
	_, err = resolver.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(3), client.callCount())
}

func TestResolverStaticShortCircuit(t *testing.T) {
	client := &fakePaywallClient{paywall: testPaywall()}
	static := testPaywall()
	static.Identifier = "static_paywall"
	resolver := NewResolver(client, testBilling(),
		WithStaticPaywallProvider(func(paywallID string, isDebuggerLaunched bool) *Paywall {
			copy := static
			return &copy
		}))

	req := PaywallRequest{Identifiers: ResponseIdentifiers{PaywallID: "static_paywall"}, Locale: "en_US"}

	paywall, err := resolver.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "static_paywall", paywall.Identifier)
	assert.Equal(t, int64(0), client.callCount())

	// Static results stay out of the cache.
	_, ok := resolver.cache.peek(req.Key())
	assert.False(t, ok)
}

func TestResolverFetchErrorNotCached(t *testing.T) {
	client := &fakePaywallClient{err: errors.New("server down")}
	resolver := NewResolver(client, testBilling())

	req := PaywallRequest{Identifiers: ResponseIdentifiers{PaywallID: "test_paywall"}, Locale: "en_US"}

	_, err := resolver.Resolve(context.Background(), req)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, req.Key(), fetchErr.Key)

	// Failure is not sticky.
	client.err = nil
	client.paywall = testPaywall()
	_, err = resolver.Resolve(context.Background(), req)
	assert.NoError(t, err)
}

func TestResolverProductResolution(t *testing.T) {
	t.Run("declared products resolved in slot order", func(t *testing.T) {
		resolver := NewResolver(&fakePaywallClient{paywall: testPaywall()}, testBilling())

		paywall, err := resolver.Resolve(context.Background(), PaywallRequest{
			Identifiers: ResponseIdentifiers{PaywallID: "test_paywall"}, Locale: "en_US",
		})
		require.NoError(t, err)
		require.Len(t, paywall.Products, 2)
		assert.Equal(t, "primary", paywall.Products[0].Name)
		assert.Equal(t, "com.app.yearly", paywall.Products[0].ID)
		assert.True(t, paywall.IsFreeTrialAvailable)
	})

	t.Run("request overrides substitute by slot name", func(t *testing.T) {
		resolver := NewResolver(&fakePaywallClient{paywall: testPaywall()}, testBilling())

		paywall, err := resolver.Resolve(context.Background(), PaywallRequest{
			Identifiers: ResponseIdentifiers{PaywallID: "test_paywall"}, Locale: "en_US",
			Overrides: PaywallOverrides{Products: map[string]string{"primary": "com.app.weekly"}},
		})
		require.NoError(t, err)
		require.Len(t, paywall.Products, 2)
		assert.Equal(t, "com.app.weekly", paywall.Products[0].ID)
		assert.False(t, paywall.IsFreeTrialAvailable)
	})

	t.Run("unresolved references dropped silently", func(t *testing.T) {
		billing := &fakeBilling{products: map[string]Product{
			"com.app.monthly": {ID: "com.app.monthly", Type: ProductTypeAutoRenewable},
		}}
		resolver := NewResolver(&fakePaywallClient{paywall: testPaywall()}, billing)

		paywall, err := resolver.Resolve(context.Background(), PaywallRequest{
			Identifiers: ResponseIdentifiers{PaywallID: "test_paywall"}, Locale: "en_US",
		})
		require.NoError(t, err)
		require.Len(t, paywall.Products, 1)
		assert.Equal(t, "com.app.monthly", paywall.Products[0].ID)
	})

	t.Run("product lookup failure is not a resolve failure", func(t *testing.T) {
		var events []string
		billing := testBilling()
		billing.fetchErr = errors.New("billing unavailable")
		resolver := NewResolver(&fakePaywallClient{paywall: testPaywall()}, billing,
			WithResolverTracker(func(_ context.Context, event TrackedEvent) {
				events = append(events, event.Name)
			}))

		paywall, err := resolver.Resolve(context.Background(), PaywallRequest{
			Identifiers: ResponseIdentifiers{PaywallID: "test_paywall"}, Locale: "en_US",
		})
		require.NoError(t, err)
		assert.Empty(t, paywall.Products)
		assert.Contains(t, events, EventPaywallProductsLoadFail)
	})

	t.Run("free trial override wins over computed value", func(t *testing.T) {
		resolver := NewResolver(&fakePaywallClient{paywall: testPaywall()}, testBilling())

		override := false
		paywall, err := resolver.Resolve(context.Background(), PaywallRequest{
			Identifiers: ResponseIdentifiers{PaywallID: "test_paywall"}, Locale: "en_US",
			Overrides: PaywallOverrides{IsFreeTrial: &override},
		})
		require.NoError(t, err)
		assert.False(t, paywall.IsFreeTrialAvailable)
	})
}

func TestResolverTrackingBracket(t *testing.T) {
	var events []string
	resolver := NewResolver(&fakePaywallClient{paywall: testPaywall()}, testBilling(),
		WithResolverTracker(func(_ context.Context, event TrackedEvent) {
			events = append(events, event.Name)
		}))

	_, err := resolver.Resolve(context.Background(), PaywallRequest{
		Identifiers: ResponseIdentifiers{PaywallID: "test_paywall"}, Locale: "en_US",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		EventPaywallResponseLoadStart,
		EventPaywallResponseLoadComplete,
		EventPaywallProductsLoadStart,
		EventPaywallProductsLoadComplete,
	}, events)
}

func TestResolverAppliesRequestScopedFields(t *testing.T) {
	resolver := NewResolver(&fakePaywallClient{paywall: testPaywall()}, testBilling())

	experiment := &Experiment{ID: "exp_1", VariantID: "treatment"}
	req := PaywallRequest{
		Identifiers:            ResponseIdentifiers{PaywallID: "test_paywall", Experiment: experiment},
		Locale:                 "en_US",
		PresentationSourceType: "register",
	}

	paywall, err := resolver.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Same(t, experiment, paywall.Experiment)
	assert.Equal(t, "register", paywall.PresentationSourceType)

	// The cached copy must not carry request-scoped fields from a previous
	// caller.
	req.Identifiers.Experiment = nil
	req.PresentationSourceType = ""
	cached, err := resolver.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, cached.Experiment)
	assert.Empty(t, cached.PresentationSourceType)
}
