package paywallkit

import (
	"context"
	"errors"
	"math/rand"
	"net/url"
	"sync"

	"go.uber.org/zap"
)

// Fixed query parameters stamped on every render URL before delivery.
const (
	renderPlatformParam  = "platform"
	renderPlatform       = "app"
	renderTransportParam = "transport"
	renderTransport      = "sdk"
)

// DeliveryEventKind tags events on the delivery stream.
type DeliveryEventKind string

const (
	// DeliveryLoading is emitted when a candidate starts loading.
	DeliveryLoading DeliveryEventKind = "loading"
	// DeliveryLoadingFallback is emitted instead of DeliveryLoading when
	// the candidate is not the first attempt, so callers can distinguish a
	// first-try success from a recovered failure.
	DeliveryLoadingFallback DeliveryEventKind = "loading_fallback"
	// DeliveryLoaded is the terminal success event.
	DeliveryLoaded DeliveryEventKind = "loaded"
	// DeliveryFailed is the terminal failure event; Err carries the
	// exhaustion reason.
	DeliveryFailed DeliveryEventKind = "failed"
)

// DeliveryEvent is one lifecycle event from a delivery attempt.
type DeliveryEvent struct {
	Kind   DeliveryEventKind
	Source CandidateSource
	Err    *WebviewError
}

// errLoadTimedOut distinguishes a per-source timeout from a hard load error.
var errLoadTimedOut = errors.New("source load timed out")

// DeliveryController loads a paywall's weighted candidate sources with
// per-source timeout and automatic weighted fallback.
type DeliveryController struct {
	loader SourceLoader
	logger *zap.Logger

	// randInt draws a uniform integer in [0, n). Injectable for tests.
	randInt func(n int) int

	mu           sync.Mutex
	failureCount int
}

// DeliveryOption configures a delivery controller.
type DeliveryOption func(*DeliveryController)

// WithDeliveryLogger sets the structured logger.
func WithDeliveryLogger(logger *zap.Logger) DeliveryOption {
	return func(c *DeliveryController) {
		c.logger = logger
	}
}

// WithDeliveryRand replaces the random source used for weighted selection.
func WithDeliveryRand(randInt func(n int) int) DeliveryOption {
	return func(c *DeliveryController) {
		c.randInt = randInt
	}
}

// NewDeliveryController creates a controller that renders through the given
// loader.
func NewDeliveryController(loader SourceLoader, opts ...DeliveryOption) *DeliveryController {
	c := &DeliveryController{
		loader:  loader,
		logger:  zap.NewNop(),
		randInt: rand.Intn,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Render walks the candidate set until one source loads or the set is
// exhausted. Events stream on the returned channel; the last event before
// close is always DeliveryLoaded or DeliveryFailed.
func (c *DeliveryController) Render(ctx context.Context, config CandidateSourceConfig) <-chan DeliveryEvent {
	events := make(chan DeliveryEvent, len(config.Sources)*2+2)
	go func() {
		defer close(events)
		c.render(ctx, config, events)
	}()
	return events
}

func (c *DeliveryController) render(ctx context.Context, config CandidateSourceConfig, events chan<- DeliveryEvent) {
	if len(config.Sources) == 0 {
		events <- DeliveryEvent{Kind: DeliveryFailed, Err: &WebviewError{Code: WebviewErrNoURLs}}
		return
	}

	untried := make([]CandidateSource, len(config.Sources))
	copy(untried, config.Sources)
	var tried []CandidateSource

	for {
		if len(untried) == 0 {
			events <- DeliveryEvent{Kind: DeliveryFailed, Err: &WebviewError{
				Code: WebviewErrAllURLsFailed,
				URLs: sourceURLs(config.Sources),
			}}
			return
		}

		if c.attemptsExhausted(config.MaxAttempts) {
			events <- DeliveryEvent{Kind: DeliveryFailed, Err: &WebviewError{
				Code: WebviewErrMaxAttemptsReached,
				URLs: sourceURLs(tried),
			}}
			return
		}

		attempt := len(tried)
		source, rest := c.nextWeighted(untried)
		untried = rest
		tried = append(tried, source)

		kind := DeliveryLoading
		if attempt > 0 {
			kind = DeliveryLoadingFallback
		}
		events <- DeliveryEvent{Kind: kind, Source: source}

		err := c.loadWithTimeout(ctx, source)
		if err == nil {
			// Progress seen: the attempt is committed and a later
			// reload of the same paywall starts fresh.
			c.resetFailures()
			events <- DeliveryEvent{Kind: DeliveryLoaded, Source: source}
			return
		}
		if ctx.Err() != nil {
			events <- DeliveryEvent{Kind: DeliveryFailed, Source: source, Err: &WebviewError{
				Code:        WebviewErrTimeout,
				URL:         source.URL,
				Description: ctx.Err().Error(),
			}}
			return
		}

		c.logger.Debug("candidate source failed",
			zap.String("scope", "paywallView"),
			zap.String("url", source.URL),
			zap.Error(err))
	}
}

// loadWithTimeout races the loader against the source's timeout. A timeout
// aborts only this load; the overall delivery proceeds to the next candidate.
func (c *DeliveryController) loadWithTimeout(ctx context.Context, source CandidateSource) error {
	loadCtx := ctx
	cancel := context.CancelFunc(func() {})
	if source.Timeout() > 0 {
		loadCtx, cancel = context.WithTimeout(ctx, source.Timeout())
	}
	defer cancel()

	err := c.loader.Load(loadCtx, source)
	if err == nil {
		return nil
	}
	if loadCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return errLoadTimedOut
	}
	return err
}

// nextWeighted draws the next source by weighted-without-replacement
// sampling and returns the remaining untried set. When every untried source
// has weight zero the draw is uniform.
func (c *DeliveryController) nextWeighted(untried []CandidateSource) (CandidateSource, []CandidateSource) {
	c.mu.Lock()
	c.failureCount++
	c.mu.Unlock()

	eligible := make([]int, 0, len(untried))
	total := 0
	for i, source := range untried {
		if source.Weight != 0 {
			eligible = append(eligible, i)
			total += source.Weight
		}
	}
	if len(eligible) == 0 {
		for i := range untried {
			eligible = append(eligible, i)
		}
	}

	chosenIdx := eligible[0]
	if total == 0 {
		chosenIdx = eligible[c.randInt(len(eligible))]
	} else {
		draw := c.randInt(total)
		accumulated := 0
		for _, i := range eligible {
			accumulated += untried[i].Weight
			if draw < accumulated {
				chosenIdx = i
				break
			}
		}
	}

	rest := make([]CandidateSource, 0, len(untried)-1)
	rest = append(rest, untried[:chosenIdx]...)
	rest = append(rest, untried[chosenIdx+1:]...)
	return untried[chosenIdx], rest
}

func (c *DeliveryController) attemptsExhausted(maxAttempts int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maxAttempts > 0 && c.failureCount >= maxAttempts
}

func (c *DeliveryController) resetFailures() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount = 0
}

// AugmentRenderURL appends the fixed platform and transport parameters to a
// candidate source URL, preserving any existing query.
func AugmentRenderURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", NewNetworkError(ErrCodeInvalidURL, raw, err)
	}
	query := u.RawQuery
	if query != "" {
		query += "&"
	}
	query += renderPlatformParam + "=" + renderPlatform +
		"&" + renderTransportParam + "=" + renderTransport
	u.RawQuery = query
	return u.String(), nil
}

// augmentRenderSources stamps the transport parameters on every candidate
// source. Unparseable URLs pass through untouched; the loader reports them.
func augmentRenderSources(config CandidateSourceConfig) CandidateSourceConfig {
	sources := make([]CandidateSource, len(config.Sources))
	copy(sources, config.Sources)
	for i, source := range sources {
		augmented, err := AugmentRenderURL(source.URL)
		if err != nil {
			continue
		}
		sources[i].URL = augmented
	}
	config.Sources = sources
	return config
}

func sourceURLs(sources []CandidateSource) []string {
	urls := make([]string, 0, len(sources))
	for _, source := range sources {
		urls = append(urls, source.URL)
	}
	return urls
}
