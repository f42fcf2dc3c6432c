package paywallkit

// PaywallCloseReason classifies why a presented paywall went away and whether
// the pending logical application state should be considered complete.
type PaywallCloseReason string

const (
	// CloseReasonSystemLogic is a closure driven by SDK logic, such as a
	// completed purchase or restore.
	CloseReasonSystemLogic PaywallCloseReason = "system_logic"
	// CloseReasonForNextPaywall hands off to another paywall; the attempt
	// is not complete.
	CloseReasonForNextPaywall PaywallCloseReason = "for_next_paywall"
	// CloseReasonWebViewFailedToLoad closes because content delivery
	// exhausted every candidate.
	CloseReasonWebViewFailedToLoad PaywallCloseReason = "webview_failed_to_load"
	// CloseReasonManualClose is a user-initiated close.
	CloseReasonManualClose PaywallCloseReason = "manual_close"
	// CloseReasonNone means the paywall has not closed yet.
	CloseReasonNone PaywallCloseReason = "none"
)

// StateShouldComplete reports whether this closure finishes the logical
// application state that requested the paywall.
func (r PaywallCloseReason) StateShouldComplete() bool {
	switch r {
	case CloseReasonSystemLogic, CloseReasonWebViewFailedToLoad, CloseReasonManualClose:
		return true
	default:
		return false
	}
}

// PaywallResultKind classifies the user outcome of a dismissed paywall.
type PaywallResultKind string

const (
	PaywallResultPurchased PaywallResultKind = "purchased"
	PaywallResultDeclined  PaywallResultKind = "declined"
	PaywallResultRestored  PaywallResultKind = "restored"
)

// PaywallResult is the user outcome carried by a dismissal.
type PaywallResult struct {
	Kind      PaywallResultKind
	ProductID string
}

// SkippedReason explains why a presentation attempt never rendered.
type SkippedReason string

const (
	// SkipHoldout means the user was assigned to a holdout group.
	SkipHoldout SkippedReason = "holdout"
	// SkipNoAudienceMatch means no audience rule matched.
	SkipNoAudienceMatch SkippedReason = "no_audience_match"
	// SkipPlacementNotFound means the event is not configured to show a
	// paywall.
	SkipPlacementNotFound SkippedReason = "placement_not_found"
	// SkipPaywallNotAvailable means the paywall is explicitly disabled.
	SkipPaywallNotAvailable SkippedReason = "paywall_not_available"
)

// PaywallStateKind tags the presentation state machine's states.
type PaywallStateKind string

const (
	StateRequested         PaywallStateKind = "requested"
	StatePresented         PaywallStateKind = "presented"
	StateDismissed         PaywallStateKind = "dismissed"
	StateSkipped           PaywallStateKind = "skipped"
	StatePresentationError PaywallStateKind = "presentation_error"
)

// PaywallState is one state of a presentation attempt. Exactly one of the
// terminal variants (Dismissed, Skipped, PresentationError) is ever emitted
// per attempt.
type PaywallState struct {
	Kind   PaywallStateKind
	Info   PaywallInfo
	Result PaywallResult
	Reason SkippedReason
	Err    error
}

// Terminal reports whether this state ends the attempt.
func (s PaywallState) Terminal() bool {
	switch s.Kind {
	case StateDismissed, StateSkipped, StatePresentationError:
		return true
	default:
		return false
	}
}
