package provider

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Default rate limits per provider (requests per second).
var defaultRateLimits = map[ProviderName]rate.Limit{
	NameSpotify:     20,
	NameLastFM:      5,
	NameDeezer:      5,
	NameMusicBrainz: 1,
}

// DefaultRateLimit returns the default requests per second for name, or 0
// when the provider is unknown.
func DefaultRateLimit(name ProviderName) float64 {
	return float64(defaultRateLimits[name])
}

// RateLimiterMap holds one rate.Limiter per provider. Limiters are
// independent: waiting on one provider never blocks another.
type RateLimiterMap struct {
	mu       sync.RWMutex
	limiters map[ProviderName]*rate.Limiter
}

// NewRateLimiterMap creates limiters for every known provider using the
// default rates and a burst of 1.
func NewRateLimiterMap() *RateLimiterMap {
	m := &RateLimiterMap{
		limiters: make(map[ProviderName]*rate.Limiter, len(defaultRateLimits)),
	}
	for name, limit := range defaultRateLimits {
		m.limiters[name] = rate.NewLimiter(limit, 1)
	}
	return m
}

// Set installs or replaces the limiter for name. A non-positive rate removes
// the limit; a burst below 1 is raised to 1.
func (m *RateLimiterMap) Set(name ProviderName, perSecond float64, burst int) {
	if burst < 1 {
		burst = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if perSecond <= 0 {
		delete(m.limiters, name)
		return
	}
	m.limiters[name] = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Limit returns the configured rate for name, or 0 when unlimited.
func (m *RateLimiterMap) Limit(name ProviderName) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if l, ok := m.limiters[name]; ok {
		return float64(l.Limit())
	}
	return 0
}

// Wait blocks until the rate limiter for the given provider allows a request,
// or the context is canceled.
func (m *RateLimiterMap) Wait(ctx context.Context, name ProviderName) error {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return limiter.Wait(ctx)
}
