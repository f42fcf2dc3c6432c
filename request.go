package paywallkit

import (
	"sort"
	"strings"
)

// calledManuallyKey is the identifier used in cache keys when a request
// carries neither an explicit paywall identifier nor a triggering event.
const calledManuallyKey = "$called_manually"

// ResponseIdentifiers names what a paywall request should resolve to.
type ResponseIdentifiers struct {
	PaywallID  string
	Experiment *Experiment
}

// PaywallOverrides carries per-request substitutions applied during product
// resolution.
type PaywallOverrides struct {
	// Products maps template slot names to substitute product IDs.
	Products map[string]string
	// IsFreeTrial, when set, overrides the computed free-trial
	// availability.
	IsFreeTrial *bool
}

// PaywallRequest identifies what to resolve: either an explicit paywall
// identifier or an originating application event. Immutable once created.
type PaywallRequest struct {
	Identifiers            ResponseIdentifiers
	Event                  *EventData
	Locale                 string
	IsDebuggerLaunched     bool
	Overrides              PaywallOverrides
	PresentationSourceType string
}

// Key derives the deterministic cache/dedup key for this request from its
// identifier (or event name), locale, and sorted substitute product IDs.
func (r PaywallRequest) Key() string {
	id := r.Identifiers.PaywallID
	if id == "" && r.Event != nil {
		id = r.Event.Name
	}
	if id == "" {
		id = calledManuallyKey
	}

	substitutes := make([]string, 0, len(r.Overrides.Products))
	for _, productID := range r.Overrides.Products {
		substitutes = append(substitutes, productID)
	}
	sort.Strings(substitutes)

	return id + "_" + r.Locale + "_" + strings.Join(substitutes, "")
}
