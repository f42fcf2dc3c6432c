package paywallkit

// AlertCopy is the user-facing text for a blocking alert.
type AlertCopy struct {
	Title            string
	Message          string
	CloseButtonTitle string
}

// Options are host-configurable behaviors shared by the presentation and
// transaction layers.
type Options struct {
	// AutomaticallyDismiss closes the paywall after a successful purchase
	// or restore.
	AutomaticallyDismiss bool
	// ShouldShowPurchaseFailureAlert surfaces a blocking alert on purchase
	// failure when no custom failure handler covers the placement.
	ShouldShowPurchaseFailureAlert bool
	// RestoreFailed is the alert shown when a restore does not produce an
	// active subscription.
	RestoreFailed AlertCopy
	// TransactionPending is the alert shown for purchases awaiting
	// external approval.
	TransactionPending AlertCopy
}

// DefaultOptions returns the stock option set.
func DefaultOptions() Options {
	return Options{
		AutomaticallyDismiss:           true,
		ShouldShowPurchaseFailureAlert: true,
		RestoreFailed: AlertCopy{
			Title:            "No Subscription Found",
			Message:          "We couldn't find an active subscription for your account.",
			CloseButtonTitle: "Okay",
		},
		TransactionPending: AlertCopy{
			Title:            "Waiting for Approval",
			Message:          "Thank you! This purchase is pending approval. Please try again once it is approved.",
			CloseButtonTitle: "Okay",
		},
	}
}
