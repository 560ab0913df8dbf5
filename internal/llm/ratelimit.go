package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited paces calls to an underlying Provider with a token bucket so a
// large batch does not flood a shared reasoning service.
type RateLimited struct {
	next    Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps p with a limiter allowing perMinute calls per minute.
func NewRateLimited(p Provider, perMinute int) *RateLimited {
	burst := perMinute
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    p,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst),
	}
}

// Name returns the wrapped provider's name.
func (r *RateLimited) Name() string { return r.next.Name() }

// Generate waits for a token, then delegates. A wait that would exceed the
// context deadline is reported as a transport error.
func (r *RateLimited) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.Generate(ctx, req)
}
