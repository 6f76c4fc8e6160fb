// Package ratelimit throttles requests per client.
package ratelimit

import (
	"errors"
	"sync"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// Keyed holds one token bucket per key. The number of tracked keys is bounded;
// the least recently seen key loses its bucket first, which at worst hands that
// client a fresh burst.
type Keyed struct {
	limit rate.Limit
	burst int
	clock clock.Clock

	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
}

// NewKeyed returns a limiter allowing perSecond events per key with the given
// burst. perSecond <= 0 disables limiting and returns a nil *Keyed, whose
// Allow always succeeds.
func NewKeyed(perSecond float64, burst, size int, clk clock.Clock) (*Keyed, error) {
	if perSecond <= 0 {
		return nil, nil
	}
	if burst <= 0 {
		return nil, errors.New("ratelimit: burst must be > 0")
	}
	if clk == nil {
		clk = clock.New()
	}
	cache, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, err
	}
	return &Keyed{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		clock:    clk,
		limiters: cache,
	}, nil
}

// Allow reports whether one event for key may happen now.
func (k *Keyed) Allow(key string) bool {
	if k == nil {
		return true
	}

	k.mu.Lock()
	lim, ok := k.limiters.Get(key)
	if !ok {
		lim = rate.NewLimiter(k.limit, k.burst)
		k.limiters.Add(key, lim)
	}
	k.mu.Unlock()

	return lim.AllowN(k.clock.Now(), 1)
}

// Len returns the number of keys currently tracked.
func (k *Keyed) Len() int {
	if k == nil {
		return 0
	}
	return k.limiters.Len()
}
