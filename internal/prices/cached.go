package prices

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CachedProvider memoizes an upstream price for a TTL and degrades to the
// last known value, then to a configured fallback constant, when the
// upstream fails. CurrentPrice never returns an error: a price source outage
// must not abort trade analysis.
type CachedProvider struct {
	upstream Provider
	ttl      time.Duration
	fallback float64
	logger   zerolog.Logger

	mu        sync.Mutex
	price     float64
	fetchedAt time.Time
}

func NewCachedProvider(upstream Provider, ttl time.Duration, fallback float64, logger zerolog.Logger) *CachedProvider {
	return &CachedProvider{
		upstream: upstream,
		ttl:      ttl,
		fallback: fallback,
		logger:   logger,
	}
}

func (p *CachedProvider) CurrentPrice(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.fetchedAt.IsZero() && time.Since(p.fetchedAt) < p.ttl {
		return p.price, nil
	}

	price, err := p.upstream.CurrentPrice(ctx)
	if err != nil {
		if !p.fetchedAt.IsZero() {
			p.logger.Warn().Err(err).Float64("stale_price", p.price).Msg("Price fetch failed, using stale value")
			return p.price, nil
		}
		p.logger.Warn().Err(err).Float64("fallback", p.fallback).Msg("Price fetch failed, using fallback constant")
		return p.fallback, nil
	}

	p.price = price
	p.fetchedAt = time.Now()
	p.logger.Debug().Float64("price", price).Msg("Refreshed native asset price")
	return price, nil
}

// Refresh forces a fetch regardless of TTL; the scheduler calls this on its
// interval so analyses mostly hit a warm cache.
func (p *CachedProvider) Refresh(ctx context.Context) error {
	price, err := p.upstream.CurrentPrice(ctx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.price = price
	p.fetchedAt = time.Now()
	p.mu.Unlock()
	return nil
}
