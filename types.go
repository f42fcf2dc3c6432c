package paywallkit

import (
	"time"
)

// FeatureGating describes whether the feature behind a paywall is accessible
// without a purchase.
type FeatureGating string

const (
	// FeatureGatingGated blocks the feature until the user converts.
	FeatureGatingGated FeatureGating = "gated"
	// FeatureGatingNonGated lets the feature proceed regardless of outcome.
	FeatureGatingNonGated FeatureGating = "non_gated"
)

// ProductType classifies a billing product.
type ProductType string

const (
	ProductTypeConsumable    ProductType = "consumable"
	ProductTypeNonConsumable ProductType = "non_consumable"
	ProductTypeAutoRenewable ProductType = "auto_renewable"
	ProductTypeNonRenewable  ProductType = "non_renewable"
)

// Product is a billing product resolved from the billing collaborator.
type Product struct {
	// ID is the store product identifier.
	ID string `json:"id"`
	// Name is the template slot this product fills on the paywall
	// (e.g. "primary", "secondary").
	Name string `json:"name,omitempty"`
	// Type classifies the product for entitlement computation.
	Type ProductType `json:"type,omitempty"`
	// SubscriptionPeriod is the ISO-8601 period for recurring products,
	// empty for one-time purchases.
	SubscriptionPeriod string `json:"subscription_period,omitempty"`
	// HasFreeTrial reports whether the product's current offer includes a
	// trial phase the user is eligible for.
	HasFreeTrial bool `json:"has_free_trial,omitempty"`
	// BasePlanID and OfferID select a specific offer on stores that
	// support multiple plans per product.
	BasePlanID string `json:"base_plan_id,omitempty"`
	OfferID    string `json:"offer_id,omitempty"`
	// Attributes carries store-specific display values (price, currency)
	// for templating.
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// ProductItem is a product reference as declared by the remote paywall
// definition, before resolution against the billing collaborator.
type ProductItem struct {
	Name      string `json:"name"`
	ProductID string `json:"product_id"`
}

// CandidateSource is one render-source option for a paywall's content.
type CandidateSource struct {
	// URL of the hosted paywall content.
	URL string `json:"url"`
	// Weight is the selection probability mass. Zero means the source is
	// never preferred unless every remaining candidate is also zero.
	Weight int `json:"score"`
	// TimeoutMS bounds how long a load may run without signalling
	// progress, in milliseconds.
	TimeoutMS int64 `json:"timeout_ms"`
}

// Timeout returns the per-source load timeout as a duration.
func (s CandidateSource) Timeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// CandidateSourceConfig is the ordered, weighted set of render sources a
// paywall owns, plus the attempt budget shared across them.
type CandidateSourceConfig struct {
	Sources     []CandidateSource `json:"endpoints"`
	MaxAttempts int               `json:"max_attempts"`
}

// Experiment identifies the campaign variant that selected this paywall.
type Experiment struct {
	ID        string `json:"id"`
	GroupID   string `json:"group_id"`
	VariantID string `json:"variant_id"`
}

// LoadingInfo brackets one load phase with wall-clock timestamps.
type LoadingInfo struct {
	StartAt time.Time
	EndAt   time.Time
}

// Duration returns the elapsed load time, or zero if the phase never ended.
func (l LoadingInfo) Duration() time.Duration {
	if l.StartAt.IsZero() || l.EndAt.IsZero() {
		return 0
	}
	return l.EndAt.Sub(l.StartAt)
}

// Paywall is a remotely-defined offer screen with its resolved products and
// render sources.
type Paywall struct {
	Identifier   string                `json:"identifier"`
	Name         string                `json:"name"`
	URLConfig    CandidateSourceConfig `json:"url_config"`
	ProductItems []ProductItem         `json:"product_items"`
	// Products is the resolved product list. Populated by the resolver,
	// never by the wire payload.
	Products             []Product     `json:"-"`
	IsFreeTrialAvailable bool          `json:"-"`
	FeatureGating        FeatureGating `json:"feature_gating"`
	PresentationStyle    string        `json:"presentation_style,omitempty"`

	Experiment             *Experiment `json:"-"`
	PresentationSourceType string      `json:"-"`

	ResponseLoadingInfo LoadingInfo `json:"-"`
	ProductsLoadingInfo LoadingInfo `json:"-"`
}

// ProductIDs returns the identifiers of the resolved products in order.
func (p *Paywall) ProductIDs() []string {
	ids := make([]string, 0, len(p.Products))
	for _, product := range p.Products {
		ids = append(ids, product.ID)
	}
	return ids
}

// ProductByID returns the resolved product with the given identifier.
func (p *Paywall) ProductByID(id string) (Product, bool) {
	for _, product := range p.Products {
		if product.ID == id {
			return product, true
		}
	}
	return Product{}, false
}

// Info snapshots the host-visible facts about this paywall for callbacks and
// tracked events.
func (p *Paywall) Info(event *EventData) PaywallInfo {
	info := PaywallInfo{
		Identifier:           p.Identifier,
		Name:                 p.Name,
		ProductIDs:           p.ProductIDs(),
		FeatureGating:        p.FeatureGating,
		IsFreeTrialAvailable: p.IsFreeTrialAvailable,
		Experiment:           p.Experiment,
		CloseReason:          CloseReasonNone,
	}
	if event != nil {
		info.PresentedByEventName = event.Name
		info.PresentedByEventAt = event.CreatedAt
	}
	return info
}

// PaywallInfo is an immutable snapshot of a paywall handed to the host in
// callbacks and analytics events.
type PaywallInfo struct {
	Identifier           string
	Name                 string
	ProductIDs           []string
	FeatureGating        FeatureGating
	IsFreeTrialAvailable bool
	Experiment           *Experiment
	CloseReason          PaywallCloseReason
	PresentedByEventName string
	PresentedByEventAt   time.Time
}

// EventData is an application event that may trigger a paywall.
type EventData struct {
	ID         string
	Name       string
	Parameters map[string]interface{}
	CreatedAt  time.Time
}
