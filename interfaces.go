package paywallkit

import (
	"context"
	"time"
)

// PaywallClient fetches a paywall definition from the remote service. The
// http subpackage provides the production implementation.
type PaywallClient interface {
	// GetPaywall fetches a paywall definition by identifier, or by
	// triggering event when identifier is empty.
	GetPaywall(ctx context.Context, identifier string, event *EventData) (*Paywall, error)
}

// PurchaseResultKind classifies the raw result of a billing purchase call.
type PurchaseResultKind string

const (
	PurchaseResultPurchased PurchaseResultKind = "purchased"
	// PurchaseResultRestored reports the product is already owned; the
	// purchase is reconciled as a restore.
	PurchaseResultRestored  PurchaseResultKind = "restored"
	PurchaseResultCancelled PurchaseResultKind = "cancelled"
	PurchaseResultPending   PurchaseResultKind = "pending"
	PurchaseResultFailed    PurchaseResultKind = "failed"
)

// PurchaseResult is the outcome reported by the billing collaborator for one
// purchase call. Message is populated for failures.
type PurchaseResult struct {
	Kind    PurchaseResultKind
	Message string
}

// RestorationResult is the outcome reported by the billing collaborator for
// a restore call.
type RestorationResult struct {
	Restored bool
	Err      error
}

// BillingController is the external billing backend the transaction
// coordinator and resolver delegate to.
type BillingController interface {
	// Purchase starts the billing flow for the given product.
	Purchase(ctx context.Context, product Product) PurchaseResult
	// RestorePurchases re-syncs previously owned purchases.
	RestorePurchases(ctx context.Context) RestorationResult
	// FetchProducts looks up products by store identifier. Missing IDs are
	// simply absent from the result, never an error.
	FetchProducts(ctx context.Context, ids []string) (map[string]Product, error)
}

// StoreTransaction is a single billing transaction as reported by the store.
type StoreTransaction struct {
	ID                   string
	ProductID            string
	PurchaseDate         time.Time
	OriginalPurchaseDate time.Time
}

// TransactionStore exposes the device's transaction history for entitlement
// computation.
type TransactionStore interface {
	// LatestTransaction returns the most recent transaction, or nil.
	LatestTransaction(ctx context.Context) (*StoreTransaction, error)
	// TransactionsByEntitlement groups raw transactions by the
	// entitlement ID they unlock.
	TransactionsByEntitlement(ctx context.Context) (map[string][]EntitlementTransaction, error)
}

// RuleEvaluator is the opaque on-device audience evaluator. The presentation
// layer consumes its decision; this core never interprets rule expressions.
type RuleEvaluator interface {
	Evaluate(ctx context.Context, ruleExpression string, evalContext map[string]interface{}) (bool, error)
}

// StaticPaywallProvider returns a locally configured paywall for the target
// identifier, short-circuiting the network fetch. Return nil when no static
// paywall applies.
type StaticPaywallProvider func(paywallID string, isDebuggerLaunched bool) *Paywall

// TrackFunc receives lifecycle and analytics events. Implementations must
// not block; batching and flushing are the host's concern.
type TrackFunc func(ctx context.Context, event TrackedEvent)

// SourceLoader renders one candidate source on a presentation surface. Load
// blocks until the source signals meaningful progress (nil) or a hard load
// error. Cancelling ctx aborts the in-flight load.
type SourceLoader interface {
	Load(ctx context.Context, source CandidateSource) error
}

// LoaderFactory builds the source loader bound to a presentation surface.
type LoaderFactory func(handle SurfaceHandle) SourceLoader
