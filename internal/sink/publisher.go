package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/centrifugal/gocent/v3"
	"github.com/rs/zerolog"

	"github.com/wronghand/evmtracer/internal/config"
	"github.com/wronghand/evmtracer/internal/tracer"
)

// Publisher pushes finished trade records to Centrifugo channels so clients
// can follow a token's trade feed live.
type Publisher struct {
	gc     *gocent.Client
	logger zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPublisher(cfg *config.PublisherConfig, logger zerolog.Logger) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		gc: gocent.New(gocent.Config{
			Addr: cfg.APIURL,
			Key:  cfg.APIKey,
		}),
		logger: logger.With().Str("component", "publisher").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// PublishReport fans each trade out to its base token's channel. Publishing
// is fire-and-forget; a failed publish is logged, never propagated.
func (p *Publisher) PublishReport(report *tracer.Report) {
	for _, trade := range report.Trades {
		p.publishTrade(trade)
	}
}

func (p *Publisher) publishTrade(trade *tracer.TradeEvent) {
	payload := map[string]any{
		"type":         "trade",
		"tx_hash":      trade.TxHash.Hex(),
		"block_number": trade.BlockNumber,
		"protocol":     string(trade.Protocol),
		"wallet":       strings.ToLower(trade.Wallet.Hex()),
		"base_token":   strings.ToLower(trade.BaseToken.Hex()),
		"side":         string(trade.Side),
		"amount_in":    trade.AmountIn,
		"amount_out":   trade.AmountOut,
		"price_usd":    trade.PriceUSD,
		"volume_usd":   trade.VolumeUSD,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to marshal trade payload")
		return
	}

	channel := fmt.Sprintf("dex.token.%s", strings.ToLower(trade.BaseToken.Hex()))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if _, err := p.gc.Publish(p.ctx, channel, payloadBytes); err != nil {
			if p.ctx.Err() != nil {
				return
			}
			p.logger.Warn().
				Err(err).
				Str("channel", channel).
				Msg("Failed to publish trade")
		}
	}()
}

// Close waits for in-flight publishes to finish.
func (p *Publisher) Close() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info().Msg("Publisher stopped")
}
