// Package ratelimit wraps a field provider with a token-bucket rate limit.
// Remote surrogate models meter queries; the wrapper keeps discovery runs
// inside the quota and backs off when the remote side says to retry later.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/corvid-labs/fieldlaw/internal/core/domain"
	"github.com/corvid-labs/fieldlaw/internal/core/ports/driven"
)

// Config holds rate limiting configuration for a provider.
type Config struct {
	// RequestsPerSecond is the sustained rate limit. One Evaluate call is
	// one request, however many points it carries.
	RequestsPerSecond float64

	// BurstSize is the maximum burst size.
	BurstSize int
}

// DefaultConfig is a conservative default for surrogate backends.
var DefaultConfig = Config{RequestsPerSecond: 5.0, BurstSize: 10}

// DefaultBackoff applies when the remote side signals a retry without
// saying how long to wait.
const DefaultBackoff = 60 * time.Second

// Provider rate-limits an inner field provider using a token bucket with an
// optional backoff window for throttled responses.
type Provider struct {
	mu      sync.Mutex
	inner   driven.FieldProvider
	limiter *rate.Limiter
	retryAt time.Time
}

// Ensure Provider implements the interface.
var _ driven.FieldProvider = (*Provider)(nil)

// New wraps the inner provider. Non-positive config fields fall back to
// DefaultConfig.
func New(inner driven.FieldProvider, cfg Config) *Provider {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultConfig.RequestsPerSecond
	}
	if cfg.BurstSize < 1 {
		cfg.BurstSize = DefaultConfig.BurstSize
	}
	return &Provider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
	}
}

// Evaluate blocks until the rate limit admits the request, then delegates to
// the inner provider.
func (p *Provider) Evaluate(ctx context.Context, points []domain.Point, derivatives []string) ([]domain.Sample, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Evaluate(ctx, points, derivatives)
}

// wait honors any backoff window first, then the token bucket.
func (p *Provider) wait(ctx context.Context) error {
	p.mu.Lock()
	retryAt := p.retryAt
	p.mu.Unlock()

	if until := time.Until(retryAt); until > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(until):
		}
	}
	return p.limiter.Wait(ctx)
}

// RecordBackoff opens a backoff window after a throttled response. A
// non-positive duration applies DefaultBackoff.
func (p *Provider) RecordBackoff(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = DefaultBackoff
	}
	p.mu.Lock()
	p.retryAt = time.Now().Add(retryAfter)
	p.mu.Unlock()
}

// Allow reports whether a request would be admitted right now, without
// blocking or consuming the inner provider.
func (p *Provider) Allow() bool {
	p.mu.Lock()
	retryAt := p.retryAt
	p.mu.Unlock()

	if time.Now().Before(retryAt) {
		return false
	}
	return p.limiter.Allow()
}
