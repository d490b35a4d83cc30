package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter hands out one token bucket per request host, so that cover
// downloads from the image CDN do not starve or get throttled by requests to
// any other host.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewHostLimiter creates a limiter allowing requestsPerSecond per host.
// A non-positive rate disables limiting entirely.
func NewHostLimiter(requestsPerSecond float64, burst int) *HostLimiter {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Wait blocks until a request to rawURL's host may proceed.
// Returns an error if the URL can't be parsed or the context is cancelled.
func (h *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("rate limit: invalid url %q: %w", rawURL, err)
	}

	limiter := h.forHost(u.Host)
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", u.Host, err)
	}
	return nil
}

// Hosts returns the number of hosts seen so far.
func (h *HostLimiter) Hosts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.limiters)
}

func (h *HostLimiter) forHost(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	limiter, ok := h.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(h.limit, h.burst)
		h.limiters[host] = limiter
	}
	return limiter
}
