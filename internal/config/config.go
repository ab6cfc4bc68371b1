package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Chain     ChainConfig     `mapstructure:"chain"`
	Protocols ProtocolsConfig `mapstructure:"protocols"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ChainConfig describes the chain being traced. The wrapped-native address and
// native decimals drive pair heuristics and price normalization, so they must
// match the chain named here.
type ChainConfig struct {
	Name           string   `mapstructure:"name"`
	ChainID        int64    `mapstructure:"chain_id"`
	RPCEndpoint    string   `mapstructure:"rpc_endpoint"`
	NativeSymbol   string   `mapstructure:"native_symbol"`
	NativeDecimals uint8    `mapstructure:"native_decimals"`
	WrappedNative  string   `mapstructure:"wrapped_native"`
	Stablecoins    []string `mapstructure:"stablecoins"`
}

// ProtocolsConfig carries the per-protocol contract addresses for this chain.
// Empty addresses disable the corresponding event sources.
type ProtocolsConfig struct {
	UniswapV2Factory string `mapstructure:"uniswap_v2_factory"`
	UniswapV3Factory string `mapstructure:"uniswap_v3_factory"`
	PancakeV2Factory string `mapstructure:"pancake_v2_factory"`
	PancakeV3Factory string `mapstructure:"pancake_v3_factory"`
	V4PoolManager    string `mapstructure:"v4_pool_manager"`
	Launchpad        string `mapstructure:"launchpad"`
}

type PricingConfig struct {
	CoinGeckoID     string        `mapstructure:"coingecko_id"`
	FallbackUSD     float64       `mapstructure:"fallback_usd"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int32  `mapstructure:"max_connections"`
}

type PublisherConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIURL  string `mapstructure:"api_url"`
	APIKey  string `mapstructure:"api_key"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetEnvPrefix("TRACER")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("chain.name", "ethereum")
	viper.SetDefault("chain.chain_id", 1)
	viper.SetDefault("chain.native_symbol", "ETH")
	viper.SetDefault("chain.native_decimals", 18)
	viper.SetDefault("pricing.coingecko_id", "ethereum")
	viper.SetDefault("pricing.fallback_usd", 0)
	viper.SetDefault("pricing.cache_ttl", "1m")
	viper.SetDefault("pricing.refresh_interval", "1m")
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("publisher.enabled", false)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Chain.RPCEndpoint == "" {
		return nil, fmt.Errorf("chain.rpc_endpoint is required")
	}

	return &config, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}
