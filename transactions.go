package paywallkit

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// PurchaseSourceKind marks where a purchase was initiated.
type PurchaseSourceKind string

const (
	// PurchaseSourceInternal is a purchase started from a presented
	// paywall; the product is looked up on that paywall.
	PurchaseSourceInternal PurchaseSourceKind = "internal"
	// PurchaseSourceExternal is a purchase started by the host app with a
	// fully formed product.
	PurchaseSourceExternal PurchaseSourceKind = "external"
)

// PurchaseSource describes one purchase initiation. Internal sources carry
// the product's store identifier; external sources carry the product itself.
type PurchaseSource struct {
	Kind      PurchaseSourceKind
	ProductID string
	Product   Product
}

// InternalPurchase builds a source for a product on the presented paywall.
func InternalPurchase(productID string) PurchaseSource {
	return PurchaseSource{Kind: PurchaseSourceInternal, ProductID: productID}
}

// ExternalPurchase builds a source for a host-provided product.
func ExternalPurchase(product Product) PurchaseSource {
	return PurchaseSource{Kind: PurchaseSourceExternal, Product: product, ProductID: product.ID}
}

// PurchaseOutcomeKind classifies the final outcome of one purchase flow.
type PurchaseOutcomeKind string

const (
	PurchaseOutcomePurchased PurchaseOutcomeKind = "purchased"
	PurchaseOutcomeRestored  PurchaseOutcomeKind = "restored"
	PurchaseOutcomeCancelled PurchaseOutcomeKind = "cancelled"
	PurchaseOutcomePending   PurchaseOutcomeKind = "pending"
	PurchaseOutcomeFailed    PurchaseOutcomeKind = "failed"
)

// PurchaseOutcome is the result of TransactionCoordinator.Purchase.
type PurchaseOutcome struct {
	Kind      PurchaseOutcomeKind
	ProductID string
	Err       error
}

// paywallPresenter is the slice of the presentation coordinator the
// transaction layer drives: inspect and close the presented paywall.
type paywallPresenter interface {
	PresentedInfo() (PaywallInfo, bool)
	PresentedPaywall() (*Paywall, bool)
	PresentedSurface() (SurfaceHandle, bool)
	Dismiss(result PaywallResult, reason PaywallCloseReason)
}

// ErrPurchaseInFlight is returned when a purchase starts while another is
// still running. Billing backends do not tolerate interleaved flows.
var ErrPurchaseInFlight = errors.New("a purchase is already in flight")

// errNoProduct is returned for internal purchases whose product ID is not on
// the presented paywall.
var errNoProduct = errors.New("product not found on the presented paywall")

// TransactionCoordinator drives purchase and restore flows against the
// billing backend, keeps the entitlement snapshot current, and reflects
// progress onto the presented surface.
type TransactionCoordinator struct {
	billing        BillingController
	entitlements   *EntitlementStore
	surfaces       *SurfaceRegistry
	presenter      paywallPresenter
	options        Options
	track          TrackFunc
	logger         *zap.Logger
	failureHandler func(*TransactionError)

	mu       sync.Mutex
	inFlight bool
}

// TransactionOption configures the coordinator.
type TransactionOption func(*TransactionCoordinator)

// WithTransactionTracker installs the lifecycle event sink.
func WithTransactionTracker(track TrackFunc) TransactionOption {
	return func(c *TransactionCoordinator) {
		c.track = track
	}
}

// WithTransactionLogger sets the structured logger.
func WithTransactionLogger(logger *zap.Logger) TransactionOption {
	return func(c *TransactionCoordinator) {
		c.logger = logger
	}
}

// WithTransactionOptions overrides the stock option set.
func WithTransactionOptions(options Options) TransactionOption {
	return func(c *TransactionCoordinator) {
		c.options = options
	}
}

// WithPurchaseFailureHandler installs a custom handler for failed purchases.
// When set, the stock failure alert is suppressed and the handler receives
// the error instead.
func WithPurchaseFailureHandler(handler func(*TransactionError)) TransactionOption {
	return func(c *TransactionCoordinator) {
		c.failureHandler = handler
	}
}

// NewTransactionCoordinator creates the coordinator.
func NewTransactionCoordinator(
	billing BillingController,
	entitlements *EntitlementStore,
	surfaces *SurfaceRegistry,
	presenter paywallPresenter,
	opts ...TransactionOption,
) *TransactionCoordinator {
	c := &TransactionCoordinator{
		billing:      billing,
		entitlements: entitlements,
		surfaces:     surfaces,
		presenter:    presenter,
		options:      DefaultOptions(),
		track:        func(context.Context, TrackedEvent) {},
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Purchase runs one purchase flow to completion. Only one purchase may be in
// flight at a time; concurrent calls fail fast with ErrPurchaseInFlight.
func (c *TransactionCoordinator) Purchase(ctx context.Context, source PurchaseSource) (PurchaseOutcome, error) {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return PurchaseOutcome{}, ErrPurchaseInFlight
	}
	c.inFlight = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	product, err := c.resolveProduct(source)
	if err != nil {
		return PurchaseOutcome{}, err
	}

	params := c.purchaseParams(product)
	c.track(ctx, newTrackedEvent(EventTransactionStart, params))
	c.setLoadingState(LoadingStateLoadingPurchase)

	result := c.billing.Purchase(ctx, product)

	switch result.Kind {
	case PurchaseResultPurchased:
		return c.finishPurchased(ctx, product, params)

	case PurchaseResultRestored:
		restore := c.Restore(ctx, RestoreViaPurchase)
		if restore.Kind != RestoreOutcomeRestored {
			msg := "restore failed"
			if restore.Err != nil {
				msg = restore.Err.Error()
			}
			return PurchaseOutcome{
				Kind:      PurchaseOutcomeFailed,
				ProductID: product.ID,
				Err:       &TransactionError{Message: msg, ProductID: product.ID},
			}, nil
		}
		return PurchaseOutcome{Kind: PurchaseOutcomeRestored, ProductID: product.ID}, nil

	case PurchaseResultCancelled:
		c.track(ctx, newTrackedEvent(EventTransactionAbandon, params))
		c.setLoadingState(LoadingStateReady)
		return PurchaseOutcome{Kind: PurchaseOutcomeCancelled, ProductID: product.ID}, nil

	case PurchaseResultPending:
		c.track(ctx, newTrackedEvent(EventTransactionFail, withMessage(params, "purchase needs external approval")))
		c.presentAlert(c.options.TransactionPending)
		c.setLoadingState(LoadingStateReady)
		return PurchaseOutcome{
			Kind:      PurchaseOutcomePending,
			ProductID: product.ID,
			Err:       &TransactionError{Pending: true, Message: "purchase needs external approval", ProductID: product.ID},
		}, nil

	default:
		c.logger.Warn("purchase failed",
			zap.String("scope", "transactions"),
			zap.String("product_id", product.ID),
			zap.String("message", result.Message))
		c.track(ctx, newTrackedEvent(EventTransactionFail, withMessage(params, result.Message)))
		txnErr := &TransactionError{Message: result.Message, ProductID: product.ID}
		switch {
		case c.failureHandler != nil:
			c.failureHandler(txnErr)
		case c.options.ShouldShowPurchaseFailureAlert:
			c.presentAlert(AlertCopy{
				Title:            "An error occurred",
				Message:          result.Message,
				CloseButtonTitle: "Okay",
			})
		}
		c.setLoadingState(LoadingStateReady)
		return PurchaseOutcome{
			Kind:      PurchaseOutcomeFailed,
			ProductID: product.ID,
			Err:       txnErr,
		}, nil
	}
}

func (c *TransactionCoordinator) finishPurchased(ctx context.Context, product Product, params map[string]interface{}) (PurchaseOutcome, error) {
	if err := c.entitlements.Refresh(ctx); err != nil {
		c.logger.Warn("entitlement refresh after purchase failed",
			zap.String("scope", "transactions"),
			zap.Error(err))
	}

	c.track(ctx, newTrackedEvent(EventTransactionComplete, params))
	switch product.Type {
	case ProductTypeAutoRenewable:
		if product.HasFreeTrial {
			c.track(ctx, newTrackedEvent(EventFreeTrialStart, params))
		} else {
			c.track(ctx, newTrackedEvent(EventSubscriptionStart, params))
		}
	default:
		c.track(ctx, newTrackedEvent(EventNonRecurringProductSale, params))
	}

	if c.options.AutomaticallyDismiss {
		c.presenter.Dismiss(
			PaywallResult{Kind: PaywallResultPurchased, ProductID: product.ID},
			CloseReasonSystemLogic,
		)
	} else {
		c.setLoadingState(LoadingStateReady)
	}
	return PurchaseOutcome{Kind: PurchaseOutcomePurchased, ProductID: product.ID}, nil
}

func (c *TransactionCoordinator) resolveProduct(source PurchaseSource) (Product, error) {
	if source.Kind == PurchaseSourceExternal {
		return source.Product, nil
	}
	paywall, ok := c.presenter.PresentedPaywall()
	if !ok {
		return Product{}, errNoProduct
	}
	product, ok := paywall.ProductByID(source.ProductID)
	if !ok {
		return Product{}, errNoProduct
	}
	return product, nil
}

func (c *TransactionCoordinator) purchaseParams(product Product) map[string]interface{} {
	params := map[string]interface{}{
		"product_id":   product.ID,
		"product_type": string(product.Type),
	}
	if info, ok := c.presenter.PresentedInfo(); ok {
		for k, v := range paywallParams(info) {
			params[k] = v
		}
	}
	return params
}

func (c *TransactionCoordinator) setLoadingState(state LoadingState) {
	handle, ok := c.presenter.PresentedSurface()
	if !ok {
		return
	}
	if surface, live := c.surfaces.Lookup(handle); live {
		surface.SetLoadingState(state)
	}
}

func (c *TransactionCoordinator) presentAlert(alert AlertCopy) {
	handle, ok := c.presenter.PresentedSurface()
	if !ok {
		return
	}
	if surface, live := c.surfaces.Lookup(handle); live {
		surface.PresentAlert(alert.Title, alert.Message, alert.CloseButtonTitle)
	}
}

func withMessage(params map[string]interface{}, message string) map[string]interface{} {
	out := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out["message"] = message
	return out
}
