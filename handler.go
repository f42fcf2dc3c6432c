package paywallkit

// PresentationHandler receives host-visible callbacks for one registration.
// Each callback fires at most once per terminal state per attempt.
type PresentationHandler struct {
	onPresent func(PaywallInfo)
	onDismiss func(PaywallInfo, PaywallResult)
	onSkip    func(SkippedReason)
	onError   func(error)
}

// NewPresentationHandler creates an empty handler.
func NewPresentationHandler() *PresentationHandler {
	return &PresentationHandler{}
}

// OnPresent sets the callback invoked when the paywall is presented.
func (h *PresentationHandler) OnPresent(fn func(PaywallInfo)) *PresentationHandler {
	h.onPresent = fn
	return h
}

// OnDismiss sets the callback invoked when the paywall is dismissed.
func (h *PresentationHandler) OnDismiss(fn func(PaywallInfo, PaywallResult)) *PresentationHandler {
	h.onDismiss = fn
	return h
}

// OnSkip sets the callback invoked when the paywall is skipped without error.
func (h *PresentationHandler) OnSkip(fn func(SkippedReason)) *PresentationHandler {
	h.onSkip = fn
	return h
}

// OnError sets the callback invoked when presentation fails.
func (h *PresentationHandler) OnError(fn func(error)) *PresentationHandler {
	h.onError = fn
	return h
}
