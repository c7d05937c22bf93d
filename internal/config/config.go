// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/fd1az/savings-bench/internal/apperror"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Log        LogConfig        `mapstructure:"log"`
	Tokens     TokensConfig     `mapstructure:"tokens"`
	Experiment ExperimentConfig `mapstructure:"experiment"`
	Primary    VenueConfig      `mapstructure:"primary"`
	Venues     VenuesConfig     `mapstructure:"venues"`
	DexAliases []DexAlias       `mapstructure:"dex_aliases"`
	Ethereum   EthereumConfig   `mapstructure:"ethereum"`
	Output     OutputConfig     `mapstructure:"output"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Health     HealthConfig     `mapstructure:"health"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// LogConfig configures the diagnostic log.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// TokensConfig points at the token sources. Primary is required; Secondary
// is optional and loses every conflict with Primary.
type TokensConfig struct {
	Primary   string `mapstructure:"primary"`
	Secondary string `mapstructure:"secondary"`
}

// ExperimentConfig describes the sweep.
type ExperimentConfig struct {
	Quote      string    `mapstructure:"quote"`
	Tokens     []string  `mapstructure:"tokens"` // empty means every tradable token
	TradeSizes []float64 `mapstructure:"trade_sizes"`
	Side       string    `mapstructure:"side"`
	// TokensOuter iterates tokens in the outer loop and sizes in the inner one.
	TokensOuter        bool `mapstructure:"tokens_outer"`
	Concurrency        int  `mapstructure:"concurrency"`
	WhitelistProbe     bool `mapstructure:"whitelist_probe"`
	MaxPrimaryFailures int  `mapstructure:"max_primary_failures"`
	TUIMode            bool `mapstructure:"-"` // Set at runtime, not from config file
}

// TradeSizesDecimal returns trade sizes as decimal.Decimal slice.
func (c *ExperimentConfig) TradeSizesDecimal() []decimal.Decimal {
	result := make([]decimal.Decimal, len(c.TradeSizes))
	for i, s := range c.TradeSizes {
		result[i] = decimal.NewFromFloat(s)
	}
	return result
}

// RetryConfig mirrors retry.Policy.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	RateLimitDelay time.Duration `mapstructure:"rate_limit_delay"`
}

// VenueConfig is shared by every venue.
type VenueConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Name              string        `mapstructure:"name"`
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	FeePct            float64       `mapstructure:"fee_pct"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Retry             RetryConfig   `mapstructure:"retry"`
}

// FeePctDecimal returns the fee in percent.
func (c *VenueConfig) FeePctDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.FeePct)
}

// VenuesConfig lists the comparison venues.
type VenuesConfig struct {
	OneInch VenueConfig   `mapstructure:"oneinch"`
	ZeroEx  VenueConfig   `mapstructure:"zeroex"`
	Binance BinanceConfig `mapstructure:"binance"`
	Uniswap UniswapConfig `mapstructure:"uniswap"`
}

// BinanceConfig adds the order-book settings.
type BinanceConfig struct {
	VenueConfig `mapstructure:",squash"`
	StreamURL   string        `mapstructure:"stream_url"` // wss://stream.binance.com:9443 or wss://stream.binance.us:9443 for US
	Stream      bool          `mapstructure:"stream"`
	Pairs       []string      `mapstructure:"pairs"`
	MinQty      float64       `mapstructure:"min_qty"` // 0 keeps the exchange LOT_SIZE minimum
	DepthLimit  int           `mapstructure:"depth_limit"`
	StaleAfter  time.Duration `mapstructure:"stale_after"`
}

// UniswapConfig holds the QuoterV2 settings.
type UniswapConfig struct {
	VenueConfig   `mapstructure:",squash"`
	QuoterAddress string `mapstructure:"quoter_address"`
	FeeTiers      []int  `mapstructure:"fee_tiers"`
}

// QuoterAddressHex returns the quoter address as common.Address.
func (c *UniswapConfig) QuoterAddressHex() common.Address {
	return common.HexToAddress(c.QuoterAddress)
}

// DexAlias adds spellings for one canonical DEX name. A list keeps the
// canonical name's case, which viper would lowercase as a map key.
type DexAlias struct {
	Canonical string   `mapstructure:"canonical"`
	Aliases   []string `mapstructure:"aliases"`
}

// EthereumConfig holds the node used by on-chain venues.
type EthereumConfig struct {
	HTTPURL string `mapstructure:"http_url"`
	ChainID uint64 `mapstructure:"chain_id"`
}

// OutputConfig holds the sink locations.
type OutputConfig struct {
	CSVPath    string `mapstructure:"csv_path"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceExporter  string `mapstructure:"trace_exporter"` // zipkin, otlp-grpc, otlp-http, stdout, console
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// HealthConfig configures the health server.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// SAVINGS_EXPERIMENT_QUOTE -> experiment.quote
	v.SetEnvPrefix("SAVINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// bindEnvVars adds the conventional unprefixed names.
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("app.environment", "SAVINGS_APP_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("log.level", "SAVINGS_LOG_LEVEL", "LOG_LEVEL")

	v.BindEnv("ethereum.http_url", "SAVINGS_ETHEREUM_HTTP_URL", "ETH_HTTP_URL")

	v.BindEnv("primary.api_key", "SAVINGS_PRIMARY_API_KEY")
	v.BindEnv("venues.oneinch.api_key", "SAVINGS_VENUES_ONEINCH_API_KEY", "ONEINCH_API_KEY")
	v.BindEnv("venues.zeroex.api_key", "SAVINGS_VENUES_ZEROEX_API_KEY", "ZEROEX_API_KEY")

	v.BindEnv("telemetry.enabled", "SAVINGS_TELEMETRY_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "SAVINGS_TELEMETRY_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "SAVINGS_TELEMETRY_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "savings-bench")
	v.SetDefault("app.environment", "development")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("tokens.primary", "")
	v.SetDefault("tokens.secondary", "")

	v.SetDefault("experiment.quote", "ETH")
	v.SetDefault("experiment.tokens", []string{})
	v.SetDefault("experiment.trade_sizes", []float64{0.1, 1, 10})
	v.SetDefault("experiment.side", "buy")
	v.SetDefault("experiment.tokens_outer", true)
	v.SetDefault("experiment.concurrency", 8)
	v.SetDefault("experiment.whitelist_probe", true)
	v.SetDefault("experiment.max_primary_failures", 5)

	setVenueDefaults(v, "primary", "Primary", "", true)
	v.SetDefault("primary.retry.max_attempts", 5)

	setVenueDefaults(v, "venues.oneinch", "1inch", "https://api.1inch.io/v4.0/1", false)
	setVenueDefaults(v, "venues.zeroex", "0x", "https://api.0x.org", false)

	setVenueDefaults(v, "venues.binance", "Binance", "https://api.binance.com", false)
	v.SetDefault("venues.binance.fee_pct", 0.1)
	v.SetDefault("venues.binance.stream_url", "wss://stream.binance.com:9443")
	v.SetDefault("venues.binance.stream", false)
	v.SetDefault("venues.binance.pairs", []string{"ETHUSDT", "ETHDAI"})
	v.SetDefault("venues.binance.min_qty", 0)
	v.SetDefault("venues.binance.depth_limit", 20)
	v.SetDefault("venues.binance.stale_after", "5s")
	v.SetDefault("venues.binance.requests_per_minute", 1200)

	// Uniswap V3 Mainnet defaults
	setVenueDefaults(v, "venues.uniswap", "Uniswap V3", "", false)
	v.SetDefault("venues.uniswap.quoter_address", "0x61fFE014bA17989E743c5F6cB21bF9697530B21e")
	v.SetDefault("venues.uniswap.fee_tiers", []int{500, 3000, 10000, 100})

	v.SetDefault("ethereum.http_url", "")
	v.SetDefault("ethereum.chain_id", 1)

	v.SetDefault("output.csv_path", "savings.csv")
	v.SetDefault("output.sqlite_path", "")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "savings-bench")
	v.SetDefault("telemetry.trace_exporter", "zipkin")
	v.SetDefault("telemetry.prometheus_port", 9090)

	v.SetDefault("health.enabled", false)
	v.SetDefault("health.port", 8081)
}

func setVenueDefaults(v *viper.Viper, prefix, name, baseURL string, enabled bool) {
	v.SetDefault(prefix+".enabled", enabled)
	v.SetDefault(prefix+".name", name)
	v.SetDefault(prefix+".base_url", baseURL)
	v.SetDefault(prefix+".api_key", "")
	v.SetDefault(prefix+".timeout", "10s")
	v.SetDefault(prefix+".fee_pct", 0)
	v.SetDefault(prefix+".requests_per_minute", 0)
	v.SetDefault(prefix+".retry.max_attempts", 3)
	v.SetDefault(prefix+".retry.base_delay", "500ms")
	v.SetDefault(prefix+".retry.rate_limit_delay", "5s")
}

// Validate validates the configuration. Every failure is a ConfigurationError.
func (c *Config) Validate() error {
	if c.Tokens.Primary == "" {
		return apperror.Configuration("tokens.primary is required")
	}
	if c.Primary.BaseURL == "" {
		return apperror.Configuration("primary.base_url is required")
	}
	if c.Primary.Name == "" {
		return apperror.Configuration("primary.name is required")
	}
	if c.Experiment.Quote == "" {
		return apperror.Configuration("experiment.quote is required")
	}
	if len(c.Experiment.TradeSizes) == 0 {
		return apperror.Configuration("experiment.trade_sizes cannot be empty")
	}
	for _, s := range c.Experiment.TradeSizes {
		if s <= 0 {
			return apperror.Configuration(fmt.Sprintf("experiment.trade_sizes must be positive, got %v", s))
		}
	}
	switch c.Experiment.Side {
	case "buy", "sell":
	default:
		return apperror.Configuration(fmt.Sprintf("experiment.side must be buy or sell, got %q", c.Experiment.Side))
	}
	if c.Experiment.Concurrency < 1 {
		return apperror.Configuration("experiment.concurrency must be at least 1")
	}
	if c.Experiment.MaxPrimaryFailures < 1 {
		return apperror.Configuration("experiment.max_primary_failures must be at least 1")
	}

	for _, vc := range []VenueConfig{c.Venues.OneInch, c.Venues.ZeroEx, c.Venues.Binance.VenueConfig} {
		if vc.Enabled && vc.BaseURL == "" {
			return apperror.Configuration(fmt.Sprintf("venue %s is enabled without base_url", vc.Name))
		}
	}
	if c.Venues.Binance.Enabled && c.Venues.Binance.Stream && len(c.Venues.Binance.Pairs) == 0 {
		return apperror.Configuration("venues.binance.pairs cannot be empty when streaming")
	}
	if c.Venues.Uniswap.Enabled {
		if c.Ethereum.HTTPURL == "" {
			return apperror.Configuration("ethereum.http_url is required for the uniswap venue")
		}
		if !common.IsHexAddress(c.Venues.Uniswap.QuoterAddress) {
			return apperror.Configuration(fmt.Sprintf("invalid venues.uniswap.quoter_address: %s", c.Venues.Uniswap.QuoterAddress))
		}
	}

	names := map[string]bool{c.Primary.Name: true}
	for _, vc := range c.ComparisonVenues() {
		if names[vc.Name] {
			return apperror.Configuration(fmt.Sprintf("duplicate venue name %q", vc.Name))
		}
		names[vc.Name] = true
	}

	for _, a := range c.DexAliases {
		if a.Canonical == "" {
			return apperror.Configuration("dex_aliases entry without canonical name")
		}
	}
	return nil
}

// ComparisonVenues returns the enabled comparison venues in their stable
// reporting order.
func (c *Config) ComparisonVenues() []VenueConfig {
	var out []VenueConfig
	for _, vc := range []VenueConfig{
		c.Venues.OneInch,
		c.Venues.ZeroEx,
		c.Venues.Uniswap.VenueConfig,
		c.Venues.Binance.VenueConfig,
	} {
		if vc.Enabled {
			out = append(out, vc)
		}
	}
	return out
}

// AliasGroups returns the configured aliases keyed by canonical name.
func (c *Config) AliasGroups() map[string][]string {
	groups := make(map[string][]string, len(c.DexAliases))
	for _, a := range c.DexAliases {
		groups[a.Canonical] = append(groups[a.Canonical], a.Aliases...)
	}
	return groups
}
