package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fd1az/savings-bench/internal/apperror"
)

const sampleYAML = `
tokens:
  primary: tokens.yaml
experiment:
  quote: DAI
  tokens: [ETH, WBTC]
  trade_sizes: [1, 100]
  side: sell
primary:
  name: Totle
  base_url: https://api.example.org
  retry:
    max_attempts: 4
venues:
  zeroex:
    enabled: true
    api_key: secret
  binance:
    enabled: true
    min_qty: 0.001
  uniswap:
    enabled: true
dex_aliases:
  - canonical: Uniswap V2
    aliases: [UNI2]
ethereum:
  http_url: http://localhost:8545
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Experiment.Quote != "DAI" || cfg.Experiment.Side != "sell" {
		t.Errorf("experiment = %+v", cfg.Experiment)
	}
	if got := cfg.Experiment.TradeSizesDecimal(); len(got) != 2 || got[1].String() != "100" {
		t.Errorf("TradeSizesDecimal() = %v", got)
	}
	if cfg.Experiment.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want default 8", cfg.Experiment.Concurrency)
	}
	if cfg.Primary.Retry.MaxAttempts != 4 {
		t.Errorf("Primary.Retry.MaxAttempts = %d, want 4", cfg.Primary.Retry.MaxAttempts)
	}
	if cfg.Primary.Timeout != 10*time.Second {
		t.Errorf("Primary.Timeout = %v, want 10s", cfg.Primary.Timeout)
	}
	if cfg.Venues.ZeroEx.BaseURL != "https://api.0x.org" || cfg.Venues.ZeroEx.APIKey != "secret" {
		t.Errorf("ZeroEx = %+v", cfg.Venues.ZeroEx)
	}
	if cfg.Venues.Binance.FeePct != 0.1 || cfg.Venues.Binance.MinQty != 0.001 {
		t.Errorf("Binance = %+v", cfg.Venues.Binance)
	}
	if len(cfg.Venues.Uniswap.FeeTiers) != 4 {
		t.Errorf("Uniswap.FeeTiers = %v", cfg.Venues.Uniswap.FeeTiers)
	}

	// The alias key keeps its case.
	groups := cfg.AliasGroups()
	if got := groups["Uniswap V2"]; len(got) != 1 || got[0] != "UNI2" {
		t.Errorf("AliasGroups() = %v", groups)
	}

	venues := cfg.ComparisonVenues()
	wantOrder := []string{"0x", "Uniswap V3", "Binance"}
	if len(venues) != len(wantOrder) {
		t.Fatalf("ComparisonVenues() = %d venues, want %d", len(venues), len(wantOrder))
	}
	for i, name := range wantOrder {
		if venues[i].Name != name {
			t.Errorf("ComparisonVenues()[%d] = %s, want %s", i, venues[i].Name, name)
		}
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SAVINGS_EXPERIMENT_QUOTE", "USDC")
	t.Setenv("ONEINCH_API_KEY", "k1")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Experiment.Quote != "USDC" {
		t.Errorf("Quote = %s, want USDC", cfg.Experiment.Quote)
	}
	if cfg.Venues.OneInch.APIKey != "k1" {
		t.Errorf("OneInch.APIKey = %q, want k1", cfg.Venues.OneInch.APIKey)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(writeConfig(t, sampleYAML))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing primary token source", func(c *Config) { c.Tokens.Primary = "" }},
		{"missing primary endpoint", func(c *Config) { c.Primary.BaseURL = "" }},
		{"no trade sizes", func(c *Config) { c.Experiment.TradeSizes = nil }},
		{"negative trade size", func(c *Config) { c.Experiment.TradeSizes = []float64{1, -2} }},
		{"bad side", func(c *Config) { c.Experiment.Side = "hold" }},
		{"zero concurrency", func(c *Config) { c.Experiment.Concurrency = 0 }},
		{"uniswap without node", func(c *Config) { c.Ethereum.HTTPURL = "" }},
		{"bad quoter", func(c *Config) { c.Venues.Uniswap.QuoterAddress = "nope" }},
		{"venue named like primary", func(c *Config) { c.Venues.ZeroEx.Name = "Totle" }},
		{"alias without canonical", func(c *Config) { c.DexAliases = append(c.DexAliases, DexAlias{Aliases: []string{"x"}}) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !apperror.HasCode(err, apperror.CodeConfigurationError) {
				t.Errorf("Validate() error = %v, want ConfigurationError", err)
			}
		})
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("Validate() on valid config = %v", err)
	}
}
