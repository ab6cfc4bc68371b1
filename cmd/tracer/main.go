package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/wronghand/evmtracer/internal/chain"
	"github.com/wronghand/evmtracer/internal/config"
	"github.com/wronghand/evmtracer/internal/events"
	"github.com/wronghand/evmtracer/internal/prices"
	"github.com/wronghand/evmtracer/internal/scheduler"
	"github.com/wronghand/evmtracer/internal/sink"
	"github.com/wronghand/evmtracer/internal/tracer"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)

	txHashes := flag.Args()
	if len(txHashes) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: tracer [-config config.yaml] <tx-hash> [tx-hash...]")
		os.Exit(1)
	}

	logger.Info().
		Str("version", "0.1.0").
		Str("chain", cfg.Chain.Name).
		Int("transactions", len(txHashes)).
		Msg("Starting EVM Chain Tracer")

	if err := run(cfg, logger, txHashes); err != nil {
		logger.Fatal().Err(err).Msg("Tracer failed")
	}
}

func run(cfg *config.Config, logger zerolog.Logger, txHashes []string) error {
	ctx := context.Background()

	client, err := chain.NewClient(cfg.Chain.RPCEndpoint, cfg.Chain.ChainID, logger.With().Str("component", "rpc").Logger())
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}
	defer client.Close()

	registry := events.NewRegistry(events.RegistryConfig{
		UniswapV2Factory: common.HexToAddress(cfg.Protocols.UniswapV2Factory),
		UniswapV3Factory: common.HexToAddress(cfg.Protocols.UniswapV3Factory),
		PancakeV2Factory: common.HexToAddress(cfg.Protocols.PancakeV2Factory),
		PancakeV3Factory: common.HexToAddress(cfg.Protocols.PancakeV3Factory),
		V4PoolManager:    common.HexToAddress(cfg.Protocols.V4PoolManager),
		Launchpad:        common.HexToAddress(cfg.Protocols.Launchpad),
	})

	poolReader, err := chain.NewPoolReader(client, logger.With().Str("component", "pool-reader").Logger())
	if err != nil {
		return fmt.Errorf("failed to create pool reader: %w", err)
	}
	tokenReader, err := chain.NewTokenReader(client, cfg.Chain.NativeSymbol, cfg.Chain.NativeDecimals, logger.With().Str("component", "token-reader").Logger())
	if err != nil {
		return fmt.Errorf("failed to create token reader: %w", err)
	}

	priceSource := prices.NewCachedProvider(
		prices.NewCoinGeckoClient(cfg.Pricing.CoinGeckoID),
		cfg.Pricing.CacheTTL,
		cfg.Pricing.FallbackUSD,
		logger.With().Str("component", "prices").Logger(),
	)

	refresher, err := scheduler.NewPriceRefreshScheduler(priceSource, cfg.Pricing.RefreshInterval, logger)
	if err != nil {
		return fmt.Errorf("failed to create price scheduler: %w", err)
	}
	if err := refresher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start price scheduler: %w", err)
	}
	defer refresher.Stop()

	var stablecoins []common.Address
	for _, s := range cfg.Chain.Stablecoins {
		stablecoins = append(stablecoins, common.HexToAddress(s))
	}

	t := tracer.New(client, registry, poolReader, tokenReader, priceSource, tracer.Params{
		WrappedNative:  common.HexToAddress(cfg.Chain.WrappedNative),
		Stablecoins:    stablecoins,
		NativeDecimals: cfg.Chain.NativeDecimals,
	}, logger)

	var store *sink.Store
	if cfg.Database.Enabled {
		store, err = sink.NewStore(ctx, &cfg.Database, logger.With().Str("component", "store").Logger())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	var publisher *sink.Publisher
	if cfg.Publisher.Enabled {
		publisher = sink.NewPublisher(&cfg.Publisher, logger)
		defer publisher.Close()
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	for _, raw := range txHashes {
		txHash := common.HexToHash(raw)
		report, err := t.AnalyzeTransaction(ctx, txHash)
		if err != nil {
			if errors.Is(err, chain.ErrTxNotFound) {
				logger.Error().Str("tx_hash", raw).Msg("Transaction not found")
				continue
			}
			return fmt.Errorf("failed to analyze %s: %w", raw, err)
		}

		if err := encoder.Encode(report); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		if store != nil && !report.Reverted {
			if err := store.SaveReport(ctx, report); err != nil {
				logger.Error().Err(err).Str("tx_hash", raw).Msg("Failed to persist report")
			}
		}
		if publisher != nil && !report.Reverted {
			publisher.PublishReport(report)
		}
	}

	return nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05.000",
		}
		logger = zerolog.New(output).Level(level).With().Timestamp().Caller().Logger()
	} else {
		logger = zerolog.New(os.Stdout).Level(level).With().Timestamp().Caller().Logger()
	}

	return logger
}
