package paywallkit

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PresentationFlow is the kind of flow a presentation request drives.
type PresentationFlow string

const (
	// FlowPresentation shows the paywall to the user.
	FlowPresentation PresentationFlow = "presentation"
	// FlowGetPaywall resolves and renders without registering a feature
	// gate.
	FlowGetPaywall PresentationFlow = "get_paywall"
)

// PresentationRequest asks the coordinator to show a resolved paywall.
type PresentationRequest struct {
	// Placement is the application trigger point being registered.
	Placement string
	// Event is the triggering application event, if any.
	Event *EventData
	// Identifiers pins an explicit paywall instead of deriving one from
	// the placement decision.
	Identifiers ResponseIdentifiers
	Locale      string
	// IsDebuggerLaunched marks a debug/preview request; these bypass the
	// resolver cache.
	IsDebuggerLaunched bool
	Overrides          PaywallOverrides
	// Surface is the handle of the presentation surface to render on.
	Surface SurfaceHandle
	Handler *PresentationHandler
	// Completion runs when the logical application state behind the
	// registration is considered complete.
	Completion func()
	Flow       PresentationFlow
}

// TriggerOutcome is the upstream audience decision for a presentation
// request: either skip with a reason, or present the given identifiers.
type TriggerOutcome struct {
	Skip        *SkippedReason
	Identifiers ResponseIdentifiers
}

// DeciderFunc computes the trigger outcome for a request. The rule/audience
// evaluation itself happens upstream of this core.
type DeciderFunc func(ctx context.Context, req PresentationRequest) TriggerOutcome

// RuleDecider builds a decider that gates presentation on an audience rule.
// The event's parameters form the evaluation context; a failed or false
// evaluation skips with NoAudienceMatch.
func RuleDecider(evaluator RuleEvaluator, ruleExpression string) DeciderFunc {
	return func(ctx context.Context, req PresentationRequest) TriggerOutcome {
		evalContext := map[string]interface{}{"placement": req.Placement}
		if req.Event != nil {
			evalContext["event_name"] = req.Event.Name
			evalContext["params"] = req.Event.Parameters
		}
		matched, err := evaluator.Evaluate(ctx, ruleExpression, evalContext)
		if err != nil || !matched {
			reason := SkipNoAudienceMatch
			return TriggerOutcome{Skip: &reason}
		}
		return TriggerOutcome{Identifiers: req.Identifiers}
	}
}

// presentationAttempt tracks one request through the state machine.
type presentationAttempt struct {
	id      string
	request PresentationRequest
	paywall *Paywall
	info    PaywallInfo
	states  chan PaywallState

	mu        sync.Mutex
	presented bool
	terminal  bool
}

// PresentationCoordinator owns the lifecycle of presentation attempts. All
// attempts and their host-visible callbacks are serialized through a single
// ordered task queue.
type PresentationCoordinator struct {
	resolver  *Resolver
	loaderFor LoaderFactory
	surfaces  *SurfaceRegistry
	decider   DeciderFunc
	track     TrackFunc
	logger    *zap.Logger
	queue     *serialQueue

	mu          sync.Mutex
	current     *presentationAttempt
	controllers map[string]*DeliveryController
	randInt     func(n int) int
}

// PresentationOption configures the coordinator.
type PresentationOption func(*PresentationCoordinator)

// WithDecider installs the audience decision function.
func WithDecider(decider DeciderFunc) PresentationOption {
	return func(c *PresentationCoordinator) {
		c.decider = decider
	}
}

// WithPresentationTracker installs the lifecycle event sink.
func WithPresentationTracker(track TrackFunc) PresentationOption {
	return func(c *PresentationCoordinator) {
		c.track = track
	}
}

// WithPresentationLogger sets the structured logger.
func WithPresentationLogger(logger *zap.Logger) PresentationOption {
	return func(c *PresentationCoordinator) {
		c.logger = logger
	}
}

// WithPresentationRand replaces the random source handed to delivery
// controllers.
func WithPresentationRand(randInt func(n int) int) PresentationOption {
	return func(c *PresentationCoordinator) {
		c.randInt = randInt
	}
}

// NewPresentationCoordinator creates the coordinator.
func NewPresentationCoordinator(
	resolver *Resolver,
	loaderFor LoaderFactory,
	surfaces *SurfaceRegistry,
	opts ...PresentationOption,
) *PresentationCoordinator {
	c := &PresentationCoordinator{
		resolver:  resolver,
		loaderFor: loaderFor,
		surfaces:  surfaces,
		decider: func(_ context.Context, req PresentationRequest) TriggerOutcome {
			return TriggerOutcome{Identifiers: req.Identifiers}
		},
		track:       func(context.Context, TrackedEvent) {},
		logger:      zap.NewNop(),
		queue:       newSerialQueue(),
		controllers: make(map[string]*DeliveryController),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register starts a presentation attempt and returns its ordered state
// stream. The stream ends after the attempt's terminal state; `Presented` is
// followed by exactly one `Dismissed`.
func (c *PresentationCoordinator) Register(ctx context.Context, req PresentationRequest) <-chan PaywallState {
	attempt := &presentationAttempt{
		id:      uuid.NewString(),
		request: req,
		states:  make(chan PaywallState, 8),
	}
	attempt.states <- PaywallState{Kind: StateRequested}

	c.queue.enqueue(func() {
		c.run(ctx, attempt)
	})
	return attempt.states
}

// Close stops the coordinator's task queue after draining pending work.
func (c *PresentationCoordinator) Close() {
	c.queue.close()
}

func (c *PresentationCoordinator) run(ctx context.Context, attempt *presentationAttempt) {
	req := attempt.request

	if ctx.Err() != nil {
		c.emitError(attempt, &PresentationError{
			Code: 101, Title: "Presentation Cancelled", Message: "the host cancelled the presentation attempt", Cause: ctx.Err(),
		})
		return
	}

	outcome := c.decider(ctx, req)
	if outcome.Skip != nil {
		c.emitSkipped(attempt, *outcome.Skip)
		return
	}

	paywall, err := c.resolver.Resolve(ctx, PaywallRequest{
		Identifiers:            outcome.Identifiers,
		Event:                  req.Event,
		Locale:                 req.Locale,
		IsDebuggerLaunched:     req.IsDebuggerLaunched,
		Overrides:              req.Overrides,
		PresentationSourceType: string(req.Flow),
	})
	if err != nil {
		c.emitError(attempt, &PresentationError{
			Code: 104, Title: "Paywall Not Found", Message: "no paywall could be resolved for this request", Cause: err,
		})
		return
	}

	attempt.paywall = paywall
	attempt.info = paywall.Info(req.Event)

	controller := c.controllerFor(paywall.Identifier, req.Surface)
	events := controller.Render(ctx, augmentRenderSources(paywall.URLConfig))
	for event := range events {
		switch event.Kind {
		case DeliveryLoadingFallback:
			params := paywallParams(attempt.info)
			params["url"] = event.Source.URL
			c.track(ctx, newTrackedEvent(EventPaywallWebviewLoadFallback, params))

		case DeliveryLoaded:
			c.emitPresented(attempt)

		case DeliveryFailed:
			c.emitError(attempt, &PresentationError{
				Code:    106,
				Title:   "Webview Failed",
				Message: "the paywall content could not be loaded from any candidate source",
				Cause:   event.Err,
			})
		}
	}
}

// controllerFor returns the delivery controller for a paywall, keeping its
// attempt counters across reloads of the same paywall.
func (c *PresentationCoordinator) controllerFor(paywallID string, surface SurfaceHandle) *DeliveryController {
	c.mu.Lock()
	defer c.mu.Unlock()
	if controller, ok := c.controllers[paywallID]; ok {
		return controller
	}
	loader := c.loaderFor(surface)
	opts := []DeliveryOption{WithDeliveryLogger(c.logger)}
	if c.randInt != nil {
		opts = append(opts, WithDeliveryRand(c.randInt))
	}
	controller := NewDeliveryController(loader, opts...)
	c.controllers[paywallID] = controller
	return controller
}

// PresentedInfo returns the info of the currently presented paywall, if any.
func (c *PresentationCoordinator) PresentedInfo() (PaywallInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return PaywallInfo{}, false
	}
	return c.current.info, true
}

// PresentedPaywall returns the currently presented paywall, if any.
func (c *PresentationCoordinator) PresentedPaywall() (*Paywall, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, false
	}
	return c.current.paywall, true
}

// PresentedSurface returns the surface handle of the current attempt.
func (c *PresentationCoordinator) PresentedSurface() (SurfaceHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return "", false
	}
	return c.current.request.Surface, true
}

// Dismiss closes the currently presented paywall with the given result and
// close reason. Dismissing when nothing is presented is a no-op.
func (c *PresentationCoordinator) Dismiss(result PaywallResult, reason PaywallCloseReason) {
	c.mu.Lock()
	attempt := c.current
	c.current = nil
	c.mu.Unlock()
	if attempt == nil {
		return
	}
	c.emitDismissed(attempt, result, reason)
}

// DismissForNextPaywall closes the current paywall as a hand-off; the
// logical application state stays open for the next attempt.
func (c *PresentationCoordinator) DismissForNextPaywall() {
	c.Dismiss(PaywallResult{Kind: PaywallResultDeclined}, CloseReasonForNextPaywall)
}

// ============================================================================
// State emission. Terminal states fire at most once per attempt; callbacks
// are dispatched on the serial queue so cross-attempt ordering holds.
// ============================================================================

func (c *PresentationCoordinator) emitPresented(attempt *presentationAttempt) {
	attempt.mu.Lock()
	if attempt.presented || attempt.terminal {
		attempt.mu.Unlock()
		return
	}
	attempt.presented = true
	attempt.mu.Unlock()

	c.mu.Lock()
	c.current = attempt
	c.mu.Unlock()

	attempt.states <- PaywallState{Kind: StatePresented, Info: attempt.info}
	c.dispatch(attempt, func(h *PresentationHandler) {
		if h.onPresent != nil {
			h.onPresent(attempt.info)
		}
	})
}

func (c *PresentationCoordinator) emitDismissed(attempt *presentationAttempt, result PaywallResult, reason PaywallCloseReason) {
	if !c.markTerminal(attempt) {
		return
	}
	attempt.info.CloseReason = reason

	info := attempt.info
	attempt.states <- PaywallState{Kind: StateDismissed, Info: info, Result: result}
	close(attempt.states)

	c.dispatch(attempt, func(h *PresentationHandler) {
		if h.onDismiss != nil {
			h.onDismiss(info, result)
		}
	})

	switch result.Kind {
	case PaywallResultPurchased, PaywallResultRestored:
		c.complete(attempt)
	case PaywallResultDeclined:
		if reason.StateShouldComplete() && info.FeatureGating == FeatureGatingNonGated {
			c.complete(attempt)
		}
		if reason == CloseReasonWebViewFailedToLoad && info.FeatureGating == FeatureGatingGated {
			err := &PresentationError{
				Code:    106,
				Title:   "Webview Failed",
				Message: "trying to present gated paywall but the webview could not load",
			}
			c.dispatch(attempt, func(h *PresentationHandler) {
				if h.onError != nil {
					h.onError(err)
				}
			})
		}
	}
}

func (c *PresentationCoordinator) emitSkipped(attempt *presentationAttempt, reason SkippedReason) {
	if !c.markTerminal(attempt) {
		return
	}
	attempt.states <- PaywallState{Kind: StateSkipped, Reason: reason}
	close(attempt.states)

	c.dispatch(attempt, func(h *PresentationHandler) {
		if h.onSkip != nil {
			h.onSkip(reason)
		}
	})
	c.complete(attempt)
}

func (c *PresentationCoordinator) emitError(attempt *presentationAttempt, err *PresentationError) {
	if !c.markTerminal(attempt) {
		return
	}
	c.logger.Warn("presentation failed",
		zap.String("scope", "paywallPresentation"),
		zap.String("attempt_id", attempt.id),
		zap.Error(err))

	attempt.states <- PaywallState{Kind: StatePresentationError, Err: err}
	close(attempt.states)

	c.dispatch(attempt, func(h *PresentationHandler) {
		if h.onError != nil {
			h.onError(err)
		}
	})
	c.complete(attempt)
}

func (c *PresentationCoordinator) markTerminal(attempt *presentationAttempt) bool {
	attempt.mu.Lock()
	defer attempt.mu.Unlock()
	if attempt.terminal {
		return false
	}
	attempt.terminal = true
	return true
}

// dispatch runs a callback on the ordered queue unless no handler is set.
// Dismissal and later callbacks can arrive from outside the queue, so they
// are re-enqueued rather than invoked inline.
func (c *PresentationCoordinator) dispatch(attempt *presentationAttempt, fn func(*PresentationHandler)) {
	handler := attempt.request.Handler
	if handler == nil {
		return
	}
	c.queue.enqueue(func() {
		fn(handler)
	})
}

// complete invokes the request's completion callback after the terminal
// callback, preserving queue order.
func (c *PresentationCoordinator) complete(attempt *presentationAttempt) {
	completion := attempt.request.Completion
	if completion == nil {
		return
	}
	c.queue.enqueue(completion)
}
