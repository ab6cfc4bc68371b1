package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/wronghand/evmtracer/internal/prices"
)

// PriceRefreshScheduler keeps the cached native-asset USD price warm so
// analyses rarely block on the upstream price API.
type PriceRefreshScheduler struct {
	provider  *prices.CachedProvider
	interval  time.Duration
	scheduler gocron.Scheduler
	logger    zerolog.Logger
}

func NewPriceRefreshScheduler(provider *prices.CachedProvider, interval time.Duration, logger zerolog.Logger) (*PriceRefreshScheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	return &PriceRefreshScheduler{
		provider:  provider,
		interval:  interval,
		scheduler: s,
		logger:    logger.With().Str("component", "price-refresh-scheduler").Logger(),
	}, nil
}

func (s *PriceRefreshScheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.refresh, ctx),
		gocron.WithName("refresh-native-price"),
	)
	if err != nil {
		return err
	}

	s.logger.Info().Dur("interval", s.interval).Msg("Price refresh scheduler started")
	s.scheduler.Start()

	// Warm the cache immediately on startup
	go s.refresh(ctx)

	return nil
}

func (s *PriceRefreshScheduler) Stop() {
	s.logger.Info().Msg("Stopping price refresh scheduler")
	if err := s.scheduler.Shutdown(); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down scheduler")
	}
}

func (s *PriceRefreshScheduler) refresh(ctx context.Context) {
	start := time.Now()
	if err := s.provider.Refresh(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Native price refresh failed")
		return
	}
	s.logger.Debug().Dur("duration", time.Since(start)).Msg("Native price refreshed")
}
