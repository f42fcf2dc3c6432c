package paywallkit

import (
	"context"
	"sync"
)

// paywallCache deduplicates concurrent paywall fetches and serves resolved
// paywalls on repeat lookups. It is owned by the Resolver and mutated only
// through its single-flight accessors; no other component writes to it.
type paywallCache struct {
	mu       sync.Mutex
	results  map[string]*Paywall
	inFlight map[string]*pendingFetch
}

// pendingFetch is the shared handle every caller of an in-flight key awaits.
// Exactly one owner resolves it, via complete or fail.
type pendingFetch struct {
	done    chan struct{}
	paywall *Paywall
	err     error
}

func newPaywallCache() *paywallCache {
	return &paywallCache{
		results:  make(map[string]*Paywall),
		inFlight: make(map[string]*pendingFetch),
	}
}

// cacheStatus represents the result of checking the cache.
type cacheStatus int

const (
	// statusMiss means no cached result and no in-flight fetch; the caller
	// now owns the in-flight marker and must call complete or fail.
	statusMiss cacheStatus = iota
	// statusHit means a cached paywall was found.
	statusHit
	// statusInFlight means another caller is fetching this key.
	statusInFlight
)

// checkAndMark atomically checks the cache and marks the key in-flight on a
// miss.
func (c *paywallCache) checkAndMark(key string) (cacheStatus, *Paywall, *pendingFetch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if paywall, ok := c.results[key]; ok {
		return statusHit, paywall, nil
	}

	if pending, ok := c.inFlight[key]; ok {
		return statusInFlight, nil, pending
	}

	pending := &pendingFetch{done: make(chan struct{})}
	c.inFlight[key] = pending
	return statusMiss, nil, pending
}

// wait blocks until the in-flight fetch resolves, respecting ctx. Every
// waiter observes the same paywall or the same error.
func (c *paywallCache) wait(ctx context.Context, pending *pendingFetch) (*Paywall, error) {
	select {
	case <-pending.done:
		return pending.paywall, pending.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// complete resolves the in-flight fetch, stores the paywall when store is
// true (debug and static results are never cached), and signals waiters.
func (c *paywallCache) complete(key string, paywall *Paywall, pending *pendingFetch, store bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if store {
		c.results[key] = paywall
	}
	delete(c.inFlight, key)

	pending.paywall = paywall
	close(pending.done)
}

// fail resolves the in-flight fetch with an error without caching anything.
// A later resolve for the same key starts a fresh fetch.
func (c *paywallCache) fail(key string, err error, pending *pendingFetch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, key)

	pending.err = err
	close(pending.done)
}

// reset clears all cached entries. In-flight fetches are left to finish.
func (c *paywallCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = make(map[string]*Paywall)
}
