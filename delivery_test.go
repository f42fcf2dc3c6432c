package paywallkit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedLoader fails or succeeds per URL and records the order of loads.
type scriptedLoader struct {
	failing map[string]bool
	loaded  []string
	delay   time.Duration
}

func (l *scriptedLoader) Load(ctx context.Context, source CandidateSource) error {
	if l.delay > 0 {
		select {
		case <-time.After(l.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	l.loaded = append(l.loaded, source.URL)
	if l.failing[source.URL] {
		return errors.New("load failed")
	}
	return nil
}

func collectDelivery(t *testing.T, events <-chan DeliveryEvent) []DeliveryEvent {
	t.Helper()
	var all []DeliveryEvent
	for event := range events {
		all = append(all, event)
	}
	require.NotEmpty(t, all)
	return all
}

func threeSources() CandidateSourceConfig {
	return CandidateSourceConfig{
		Sources: []CandidateSource{
			{URL: "https://cdn-a.example.com/pw", Weight: 10},
			{URL: "https://cdn-b.example.com/pw", Weight: 5},
			{URL: "https://cdn-c.example.com/pw", Weight: 1},
		},
	}
}

func TestDeliveryFirstTrySuccess(t *testing.T) {
	loader := &scriptedLoader{}
	// Deterministic draw: always pick the start of the weight range.
	controller := NewDeliveryController(loader, WithDeliveryRand(func(n int) int { return 0 }))

	events := collectDelivery(t, controller.Render(context.Background(), threeSources()))

	require.Len(t, events, 2)
	assert.Equal(t, DeliveryLoading, events[0].Kind)
	assert.Equal(t, "https://cdn-a.example.com/pw", events[0].Source.URL)
	assert.Equal(t, DeliveryLoaded, events[1].Kind)
}

func TestDeliveryFallbackAfterFailure(t *testing.T) {
	loader := &scriptedLoader{failing: map[string]bool{"https://cdn-a.example.com/pw": true}}
	controller := NewDeliveryController(loader, WithDeliveryRand(func(n int) int { return 0 }))

	events := collectDelivery(t, controller.Render(context.Background(), threeSources()))

	require.Len(t, events, 3)
	assert.Equal(t, DeliveryLoading, events[0].Kind)
	assert.Equal(t, DeliveryLoadingFallback, events[1].Kind)
	assert.Equal(t, "https://cdn-b.example.com/pw", events[1].Source.URL)
	assert.Equal(t, DeliveryLoaded, events[2].Kind)
}

func TestDeliveryNeverRepeatsACandidate(t *testing.T) {
	loader := &scriptedLoader{failing: map[string]bool{
		"https://cdn-a.example.com/pw": true,
		"https://cdn-b.example.com/pw": true,
		"https://cdn-c.example.com/pw": true,
	}}
	controller := NewDeliveryController(loader)

	events := collectDelivery(t, controller.Render(context.Background(), threeSources()))

	seen := map[string]int{}
	for _, url := range loader.loaded {
		seen[url]++
	}
	assert.Len(t, seen, 3)
	for url, count := range seen {
		assert.Equal(t, 1, count, url)
	}

	last := events[len(events)-1]
	require.Equal(t, DeliveryFailed, last.Kind)
	assert.Equal(t, WebviewErrAllURLsFailed, last.Err.Code)
	assert.ElementsMatch(t, []string{
		"https://cdn-a.example.com/pw",
		"https://cdn-b.example.com/pw",
		"https://cdn-c.example.com/pw",
	}, last.Err.URLs)
}

func TestDeliveryZeroWeightsDrawUniformly(t *testing.T) {
	config := CandidateSourceConfig{Sources: []CandidateSource{
		{URL: "https://cdn-a.example.com/pw", Weight: 0},
		{URL: "https://cdn-b.example.com/pw", Weight: 0},
	}}

	var drawMax int
	loader := &scriptedLoader{}
	controller := NewDeliveryController(loader, WithDeliveryRand(func(n int) int {
		drawMax = n
		return 1
	}))

	events := collectDelivery(t, controller.Render(context.Background(), config))

	// With no weight mass the draw is over the candidate count, not a
	// weight total.
	assert.Equal(t, 2, drawMax)
	assert.Equal(t, "https://cdn-b.example.com/pw", events[0].Source.URL)
}

func TestDeliveryZeroWeightOnlyPickedLast(t *testing.T) {
	config := CandidateSourceConfig{Sources: []CandidateSource{
		{URL: "https://weighted.example.com/pw", Weight: 1},
		{URL: "https://zero.example.com/pw", Weight: 0},
	}}
	loader := &scriptedLoader{failing: map[string]bool{"https://weighted.example.com/pw": true}}
	controller := NewDeliveryController(loader)

	collectDelivery(t, controller.Render(context.Background(), config))

	require.Len(t, loader.loaded, 2)
	assert.Equal(t, "https://weighted.example.com/pw", loader.loaded[0])
	assert.Equal(t, "https://zero.example.com/pw", loader.loaded[1])
}

func TestDeliveryEmptyCandidateSet(t *testing.T) {
	controller := NewDeliveryController(&scriptedLoader{})

	events := collectDelivery(t, controller.Render(context.Background(), CandidateSourceConfig{}))

	require.Len(t, events, 1)
	require.Equal(t, DeliveryFailed, events[0].Kind)
	assert.Equal(t, WebviewErrNoURLs, events[0].Err.Code)
}

func TestDeliveryMaxAttempts(t *testing.T) {
	config := threeSources()
	config.MaxAttempts = 2
	loader := &scriptedLoader{failing: map[string]bool{
		"https://cdn-a.example.com/pw": true,
		"https://cdn-b.example.com/pw": true,
		"https://cdn-c.example.com/pw": true,
	}}
	controller := NewDeliveryController(loader, WithDeliveryRand(func(n int) int { return 0 }))

	events := collectDelivery(t, controller.Render(context.Background(), config))

	assert.Len(t, loader.loaded, 2)
	last := events[len(events)-1]
	require.Equal(t, DeliveryFailed, last.Kind)
	assert.Equal(t, WebviewErrMaxAttemptsReached, last.Err.Code)
	// Tried URLs only, not the full candidate set.
	assert.Equal(t, []string{
		"https://cdn-a.example.com/pw",
		"https://cdn-b.example.com/pw",
	}, last.Err.URLs)
}

func TestDeliveryFailureCountPersistsAcrossRenders(t *testing.T) {
	config := threeSources()
	config.MaxAttempts = 3
	loader := &scriptedLoader{failing: map[string]bool{
		"https://cdn-a.example.com/pw": true,
		"https://cdn-b.example.com/pw": true,
		"https://cdn-c.example.com/pw": true,
	}}
	controller := NewDeliveryController(loader, WithDeliveryRand(func(n int) int { return 0 }))

	collectDelivery(t, controller.Render(context.Background(), config))
	assert.Len(t, loader.loaded, 3)

	// The attempt budget is spent; a reload of the same paywall fails
	// before touching any source.
	events := collectDelivery(t, controller.Render(context.Background(), config))
	assert.Len(t, loader.loaded, 3)
	assert.Equal(t, WebviewErrMaxAttemptsReached, events[len(events)-1].Err.Code)
}

func TestDeliveryFailureCountResetsOnSuccess(t *testing.T) {
	config := threeSources()
	config.MaxAttempts = 3
	loader := &scriptedLoader{failing: map[string]bool{
		"https://cdn-a.example.com/pw": true,
		"https://cdn-b.example.com/pw": true,
	}}
	controller := NewDeliveryController(loader, WithDeliveryRand(func(n int) int { return 0 }))

	events := collectDelivery(t, controller.Render(context.Background(), config))
	assert.Equal(t, DeliveryLoaded, events[len(events)-1].Kind)

	// Success reset the budget; a reload gets the full three attempts.
	loader.loaded = nil
	events = collectDelivery(t, controller.Render(context.Background(), config))
	assert.Len(t, loader.loaded, 3)
	assert.Equal(t, DeliveryLoaded, events[len(events)-1].Kind)
}

func TestDeliveryPerSourceTimeoutMovesOn(t *testing.T) {
	config := CandidateSourceConfig{Sources: []CandidateSource{
		{URL: "https://slow.example.com/pw", Weight: 10, TimeoutMS: 20},
		{URL: "https://fast.example.com/pw", Weight: 1},
	}}
	loader := &timeoutThenFastLoader{slowURL: "https://slow.example.com/pw"}
	controller := NewDeliveryController(loader, WithDeliveryRand(func(n int) int { return 0 }))

	events := collectDelivery(t, controller.Render(context.Background(), config))

	last := events[len(events)-1]
	assert.Equal(t, DeliveryLoaded, last.Kind)
	assert.Equal(t, "https://fast.example.com/pw", last.Source.URL)
}

type timeoutThenFastLoader struct {
	slowURL string
}

func (l *timeoutThenFastLoader) Load(ctx context.Context, source CandidateSource) error {
	if source.URL == l.slowURL {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func TestDeliveryCancelledContextIsTerminal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loader := &timeoutThenFastLoader{slowURL: "https://cdn-a.example.com/pw"}
	controller := NewDeliveryController(loader, WithDeliveryRand(func(n int) int { return 0 }))

	events := collectDelivery(t, controller.Render(ctx, threeSources()))

	last := events[len(events)-1]
	require.Equal(t, DeliveryFailed, last.Kind)
	assert.Equal(t, WebviewErrTimeout, last.Err.Code)
}

func TestAugmentRenderURL(t *testing.T) {
	t.Run("bare url", func(t *testing.T) {
		got, err := AugmentRenderURL("https://cdn.example.com/pw")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example.com/pw?platform=app&transport=sdk", got)
	})

	t.Run("existing query preserved", func(t *testing.T) {
		got, err := AugmentRenderURL("https://cdn.example.com/pw?variant=b")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example.com/pw?variant=b&platform=app&transport=sdk", got)
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := AugmentRenderURL("://not-a-url")
		require.Error(t, err)
	})
}

func TestDeliveryRetriesDuplicateURLs(t *testing.T) {
	loader := &scriptedLoader{failing: map[string]bool{"https://cdn-a.example.com/pw": true}}
	controller := NewDeliveryController(loader, WithDeliveryRand(func(n int) int { return 0 }))

	config := CandidateSourceConfig{
		Sources: []CandidateSource{
			{URL: "https://cdn-a.example.com/pw", Weight: 10},
			{URL: "https://cdn-a.example.com/pw", Weight: 5},
			{URL: "https://cdn-b.example.com/pw", Weight: 1},
		},
	}
	all := collectDelivery(t, controller.Render(context.Background(), config))

	// Each mirror of the duplicated URL gets its own attempt.
	assert.Equal(t, []string{
		"https://cdn-a.example.com/pw",
		"https://cdn-a.example.com/pw",
		"https://cdn-b.example.com/pw",
	}, loader.loaded)
	assert.Equal(t, DeliveryLoaded, all[len(all)-1].Kind)
}
