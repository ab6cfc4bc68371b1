package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/wronghand/evmtracer/internal/config"
	"github.com/wronghand/evmtracer/internal/tracer"
)

// Store persists finished trade, liquidity and pool-creation records to
// Postgres.
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewStore(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConnections
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Msg("Connected to database")

	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) Close() {
	s.pool.Close()
	s.logger.Info().Msg("Database connection closed")
}

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	tx_hash TEXT NOT NULL,
	log_index BIGINT NOT NULL,
	block_number BIGINT NOT NULL,
	block_time TIMESTAMPTZ,
	wallet TEXT NOT NULL,
	protocol TEXT NOT NULL,
	pool TEXT,
	pool_id TEXT,
	input_token TEXT NOT NULL,
	input_symbol TEXT,
	output_token TEXT NOT NULL,
	output_symbol TEXT,
	amount_in NUMERIC,
	amount_out NUMERIC,
	base_token TEXT,
	side TEXT NOT NULL,
	price_native DOUBLE PRECISION,
	price_usd DOUBLE PRECISION,
	volume_usd DOUBLE PRECISION,
	price_source TEXT,
	low_confidence BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (tx_hash, log_index)
);

CREATE TABLE IF NOT EXISTS liquidity_events (
	tx_hash TEXT NOT NULL,
	log_index BIGINT NOT NULL,
	block_number BIGINT NOT NULL,
	block_time TIMESTAMPTZ,
	protocol TEXT NOT NULL,
	pool TEXT NOT NULL,
	kind TEXT NOT NULL,
	token0 TEXT NOT NULL,
	token1 TEXT NOT NULL,
	amount0 DOUBLE PRECISION,
	amount1 DOUBLE PRECISION,
	PRIMARY KEY (tx_hash, log_index)
);

CREATE TABLE IF NOT EXISTS pool_creations (
	tx_hash TEXT NOT NULL,
	log_index BIGINT NOT NULL,
	block_number BIGINT NOT NULL,
	block_time TIMESTAMPTZ,
	protocol TEXT NOT NULL,
	pool TEXT,
	pool_id TEXT,
	token0 TEXT NOT NULL,
	token1 TEXT NOT NULL,
	fee NUMERIC,
	tick_spacing NUMERIC,
	PRIMARY KEY (tx_hash, log_index)
);

CREATE INDEX IF NOT EXISTS idx_trades_wallet ON trades (wallet);
CREATE INDEX IF NOT EXISTS idx_trades_base_token ON trades (base_token);
`

// EnsureSchema creates the output tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// SaveReport upserts every record from one analyzed transaction. Re-analyzing
// the same transaction overwrites its rows rather than duplicating them.
func (s *Store) SaveReport(ctx context.Context, report *tracer.Report) error {
	for _, trade := range report.Trades {
		if err := s.saveTrade(ctx, trade); err != nil {
			return err
		}
	}
	for _, ev := range report.Liquidity {
		if err := s.saveLiquidity(ctx, ev); err != nil {
			return err
		}
	}
	for _, pc := range report.PoolsCreated {
		if err := s.savePoolCreation(ctx, pc); err != nil {
			return err
		}
	}

	s.logger.Debug().
		Str("tx_hash", report.TxHash.Hex()).
		Int("trades", len(report.Trades)).
		Msg("Report persisted")

	return nil
}

func (s *Store) saveTrade(ctx context.Context, t *tracer.TradeEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trades (
			tx_hash, log_index, block_number, block_time, wallet, protocol,
			pool, pool_id, input_token, input_symbol, output_token,
			output_symbol, amount_in, amount_out, base_token, side,
			price_native, price_usd, volume_usd, price_source, low_confidence
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		ON CONFLICT (tx_hash, log_index) DO UPDATE SET
			side = EXCLUDED.side,
			price_native = EXCLUDED.price_native,
			price_usd = EXCLUDED.price_usd,
			volume_usd = EXCLUDED.volume_usd,
			price_source = EXCLUDED.price_source,
			low_confidence = EXCLUDED.low_confidence`,
		t.TxHash.Hex(), t.LogIndex, t.BlockNumber, t.Timestamp, t.Wallet.Hex(),
		string(t.Protocol), t.Pool.Hex(), t.PoolID.Hex(),
		t.InputToken.Address.Hex(), t.InputToken.Symbol,
		t.OutputToken.Address.Hex(), t.OutputToken.Symbol,
		t.AmountIn, t.AmountOut, t.BaseToken.Hex(), string(t.Side),
		t.PriceNative, t.PriceUSD, t.VolumeUSD, string(t.PriceSource), t.LowConfidence,
	)
	if err != nil {
		return fmt.Errorf("failed to save trade %s/%d: %w", t.TxHash.Hex(), t.LogIndex, err)
	}
	return nil
}

func (s *Store) saveLiquidity(ctx context.Context, ev *tracer.LiquidityEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO liquidity_events (
			tx_hash, log_index, block_number, block_time, protocol, pool,
			kind, token0, token1, amount0, amount1
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (tx_hash, log_index) DO NOTHING`,
		ev.TxHash.Hex(), ev.LogIndex, ev.BlockNumber, ev.Timestamp,
		string(ev.Protocol), ev.Pool.Hex(), string(ev.Kind),
		ev.Token0.Address.Hex(), ev.Token1.Address.Hex(), ev.Amount0, ev.Amount1,
	)
	if err != nil {
		return fmt.Errorf("failed to save liquidity event %s/%d: %w", ev.TxHash.Hex(), ev.LogIndex, err)
	}
	return nil
}

func (s *Store) savePoolCreation(ctx context.Context, pc *tracer.PoolCreation) error {
	var fee, tickSpacing interface{}
	if pc.Fee != nil {
		fee = pc.Fee.String()
	}
	if pc.TickSpacing != nil {
		tickSpacing = pc.TickSpacing.String()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO pool_creations (
			tx_hash, log_index, block_number, block_time, protocol, pool,
			pool_id, token0, token1, fee, tick_spacing
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (tx_hash, log_index) DO NOTHING`,
		pc.TxHash.Hex(), pc.LogIndex, pc.BlockNumber, pc.Timestamp,
		string(pc.Protocol), pc.Pool.Hex(), pc.PoolID.Hex(),
		pc.Token0.Hex(), pc.Token1.Hex(), fee, tickSpacing,
	)
	if err != nil {
		return fmt.Errorf("failed to save pool creation %s/%d: %w", pc.TxHash.Hex(), pc.LogIndex, err)
	}
	return nil
}
