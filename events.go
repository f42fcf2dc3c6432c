package paywallkit

import (
	"time"
)

// Tracked event names. These bracket the resolver's load phases and the
// transaction coordinator's lifecycle.
const (
	EventPaywallResponseLoadStart    = "paywall_response_load_start"
	EventPaywallResponseLoadComplete = "paywall_response_load_complete"
	EventPaywallResponseLoadFail     = "paywall_response_load_fail"

	EventPaywallProductsLoadStart    = "paywall_products_load_start"
	EventPaywallProductsLoadComplete = "paywall_products_load_complete"
	EventPaywallProductsLoadFail     = "paywall_products_load_fail"

	EventPaywallWebviewLoadFallback = "paywall_webview_load_fallback"

	EventTransactionStart    = "transaction_start"
	EventTransactionComplete = "transaction_complete"
	EventTransactionFail     = "transaction_fail"
	EventTransactionAbandon  = "transaction_abandon"
	EventTransactionRestore  = "transaction_restore"

	EventSubscriptionStart       = "subscription_start"
	EventFreeTrialStart          = "free_trial_start"
	EventNonRecurringProductSale = "non_recurring_product_purchase"
	EventRestoreStart            = "restore_start"
	EventRestoreComplete         = "restore_complete"
	EventRestoreFail             = "restore_fail"
)

// TrackedEvent is one lifecycle/analytics event emitted by this SDK.
type TrackedEvent struct {
	Name   string
	At     time.Time
	Params map[string]interface{}
}

func newTrackedEvent(name string, params map[string]interface{}) TrackedEvent {
	if params == nil {
		params = map[string]interface{}{}
	}
	return TrackedEvent{Name: name, At: time.Now(), Params: params}
}

func eventParams(event *EventData) map[string]interface{} {
	params := map[string]interface{}{}
	if event != nil {
		params["triggered_by_event"] = event.Name
	}
	return params
}

func paywallParams(info PaywallInfo) map[string]interface{} {
	return map[string]interface{}{
		"paywall_identifier": info.Identifier,
		"paywall_name":       info.Name,
		"product_ids":        info.ProductIDs,
	}
}
