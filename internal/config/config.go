// Package config loads bot configuration from a YAML file, a .env file and
// the process environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"pump-cycle-bot/internal/domain"
	"pump-cycle-bot/internal/pumpfun"
)

// Config holds all bot configuration. Durations are milliseconds unless the
// field name says otherwise.
type Config struct {
	RPCEndpoint string `yaml:"rpc_endpoint"`
	WSEndpoint  string `yaml:"ws_endpoint"`
	WalletDir   string `yaml:"wallet_dir"`
	LedgerPath  string `yaml:"ledger_path"`

	MinPurchaseSOL     float64 `yaml:"min_purchase_sol"`
	MaxPurchaseSOL     float64 `yaml:"max_purchase_sol"`
	SlippageBps        int     `yaml:"slippage_bps"`
	FeeBps             int     `yaml:"fee_bps"`
	FeeBufferLamports  uint64  `yaml:"fee_buffer_lamports"`
	FeeReserveLamports uint64  `yaml:"fee_reserve_lamports"`

	SellTimeoutMs         int `yaml:"sell_timeout_ms"`
	MaxTransactionAgeSec  int `yaml:"max_transaction_age_sec"`
	ConfirmationTimeoutMs int `yaml:"confirmation_timeout_ms"`
	RetryAttempts         int `yaml:"retry_attempts"`
	RetryDelayMs          int `yaml:"retry_delay_ms"`
	RestartDelayMs        int `yaml:"restart_delay_ms"`
	ErrorRestartDelayMs   int `yaml:"error_restart_delay_ms"`

	ScanLimit           int    `yaml:"scan_limit"`
	ScanDelayMs         int    `yaml:"scan_delay_ms"`
	PollIntervalMs      int    `yaml:"poll_interval_ms"`
	SkipPreflight       bool   `yaml:"skip_preflight"`
	IndeterminatePolicy string `yaml:"indeterminate_policy"`

	Metadata Metadata `yaml:"metadata"`

	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"`
	MetricsAddr   string `yaml:"metrics_addr"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
}

// Metadata holds the pools the metadata generator draws from.
type Metadata struct {
	Names   []string `yaml:"names"`
	Symbols []string `yaml:"symbols"`
	URIs    []string `yaml:"uris"`
}

// Default returns the configuration used for fields a file does not set.
func Default() *Config {
	return &Config{
		WalletDir:             "wallets",
		LedgerPath:            "data/profits.json",
		MinPurchaseSOL:        0.05,
		MaxPurchaseSOL:        0.1,
		SlippageBps:           500,
		FeeBps:                100,
		FeeBufferLamports:     10_000_000,
		FeeReserveLamports:    5_000,
		SellTimeoutMs:         15_000,
		MaxTransactionAgeSec:  30,
		ConfirmationTimeoutMs: 60_000,
		RetryAttempts:         3,
		RetryDelayMs:          1_000,
		RestartDelayMs:        5_000,
		ErrorRestartDelayMs:   30_000,
		ScanLimit:             20,
		ScanDelayMs:           0,
		PollIntervalMs:        2_000,
		SkipPreflight:         true,
		IndeterminatePolicy:   string(domain.IndeterminateIgnore),
		LogLevel:              "info",
		LogFormat:             "text",
	}
}

// Load reads envFile (if present) into the environment, then the YAML file at
// path (if present) over the defaults, then applies environment overrides.
// The result is not validated.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, &domain.ConfigurationError{Field: path, Reason: err.Error()}
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.WSEndpoint == "" {
		cfg.WSEndpoint = deriveWSEndpoint(cfg.RPCEndpoint)
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"SOLANA_RPC_ENDPOINT":  &c.RPCEndpoint,
		"SOLANA_WS_ENDPOINT":   &c.WSEndpoint,
		"WALLET_DIR":           &c.WalletDir,
		"LEDGER_PATH":          &c.LedgerPath,
		"INDETERMINATE_POLICY": &c.IndeterminatePolicy,
		"POSTGRES_DSN":         &c.PostgresDSN,
		"CLICKHOUSE_DSN":       &c.ClickhouseDSN,
		"METRICS_ADDR":         &c.MetricsAddr,
		"LOG_LEVEL":            &c.LogLevel,
		"LOG_FORMAT":           &c.LogFormat,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SLIPPAGE_BPS":            &c.SlippageBps,
		"FEE_BPS":                 &c.FeeBps,
		"SELL_TIMEOUT_MS":         &c.SellTimeoutMs,
		"MAX_TRANSACTION_AGE_SEC": &c.MaxTransactionAgeSec,
		"CONFIRMATION_TIMEOUT_MS": &c.ConfirmationTimeoutMs,
		"RETRY_ATTEMPTS":          &c.RetryAttempts,
		"RETRY_DELAY_MS":          &c.RetryDelayMs,
	}
	for name, dst := range ints {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return &domain.ConfigurationError{Field: name, Reason: "not an integer"}
		}
		*dst = n
	}

	floats := map[string]*float64{
		"MIN_PURCHASE_SOL": &c.MinPurchaseSOL,
		"MAX_PURCHASE_SOL": &c.MaxPurchaseSOL,
	}
	for name, dst := range floats {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &domain.ConfigurationError{Field: name, Reason: "not a number"}
		}
		*dst = f
	}

	if v, ok := os.LookupEnv("FEE_BUFFER_LAMPORTS"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return &domain.ConfigurationError{Field: "FEE_BUFFER_LAMPORTS", Reason: "not a non-negative integer"}
		}
		c.FeeBufferLamports = n
	}
	if v, ok := os.LookupEnv("SKIP_PREFLIGHT"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &domain.ConfigurationError{Field: "SKIP_PREFLIGHT", Reason: "not a boolean"}
		}
		c.SkipPreflight = b
	}
	return nil
}

// deriveWSEndpoint maps http(s)://host to ws(s)://host.
func deriveWSEndpoint(rpc string) string {
	switch {
	case strings.HasPrefix(rpc, "https://"):
		return "wss://" + strings.TrimPrefix(rpc, "https://")
	case strings.HasPrefix(rpc, "http://"):
		return "ws://" + strings.TrimPrefix(rpc, "http://")
	}
	return ""
}

// Validate checks every option and returns the first problem as a
// *domain.ConfigurationError.
func (c *Config) Validate() error {
	fail := func(field, format string, args ...interface{}) error {
		return &domain.ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
	}

	if c.RPCEndpoint == "" {
		return fail("rpc_endpoint", "is required")
	}
	if u, err := url.Parse(c.RPCEndpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fail("rpc_endpoint", "must be an http(s) URL")
	}
	if c.WSEndpoint != "" {
		if u, err := url.Parse(c.WSEndpoint); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fail("ws_endpoint", "must be a ws(s) URL")
		}
	}
	if c.WalletDir == "" {
		return fail("wallet_dir", "is required")
	}
	if c.LedgerPath == "" {
		return fail("ledger_path", "is required")
	}

	if c.MinPurchaseSOL <= 0 {
		return fail("min_purchase_sol", "must be positive")
	}
	if c.MaxPurchaseSOL < c.MinPurchaseSOL {
		return fail("max_purchase_sol", "must be at least min_purchase_sol")
	}
	if c.SlippageBps < 0 || c.SlippageBps > pumpfun.MaxSlippageBps {
		return fail("slippage_bps", "must be in [0, %d]", pumpfun.MaxSlippageBps)
	}
	if c.FeeBps < 0 || c.FeeBps > 10_000 {
		return fail("fee_bps", "must be in [0, 10000]")
	}

	positive := []struct {
		field string
		v     int
	}{
		{"sell_timeout_ms", c.SellTimeoutMs},
		{"max_transaction_age_sec", c.MaxTransactionAgeSec},
		{"confirmation_timeout_ms", c.ConfirmationTimeoutMs},
		{"retry_attempts", c.RetryAttempts},
		{"scan_limit", c.ScanLimit},
		{"poll_interval_ms", c.PollIntervalMs},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return fail(p.field, "must be positive")
		}
	}
	nonNegative := []struct {
		field string
		v     int
	}{
		{"retry_delay_ms", c.RetryDelayMs},
		{"restart_delay_ms", c.RestartDelayMs},
		{"error_restart_delay_ms", c.ErrorRestartDelayMs},
		{"scan_delay_ms", c.ScanDelayMs},
	}
	for _, p := range nonNegative {
		if p.v < 0 {
			return fail(p.field, "must not be negative")
		}
	}

	switch domain.IndeterminatePolicy(c.IndeterminatePolicy) {
	case domain.IndeterminateIgnore, domain.IndeterminateLiquidate:
	default:
		return fail("indeterminate_policy", "must be %q or %q", domain.IndeterminateIgnore, domain.IndeterminateLiquidate)
	}

	for _, n := range c.Metadata.Names {
		if n == "" || len(n) > pumpfun.MaxNameLen {
			return fail("metadata.names", "%q must be 1..%d bytes", n, pumpfun.MaxNameLen)
		}
	}
	for _, s := range c.Metadata.Symbols {
		if s == "" || len(s) > pumpfun.MaxSymbolLen {
			return fail("metadata.symbols", "%q must be 1..%d bytes", s, pumpfun.MaxSymbolLen)
		}
	}
	for _, u := range c.Metadata.URIs {
		if u == "" || len(u) > pumpfun.MaxURILen {
			return fail("metadata.uris", "entries must be 1..%d bytes", pumpfun.MaxURILen)
		}
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fail("log_level", "%v", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fail("log_format", "must be text or json")
	}
	return nil
}

// MinPurchaseLamports converts the configured minimum purchase.
func (c *Config) MinPurchaseLamports() uint64 { return domain.SOLToLamports(c.MinPurchaseSOL) }

// MaxPurchaseLamports converts the configured maximum purchase.
func (c *Config) MaxPurchaseLamports() uint64 { return domain.SOLToLamports(c.MaxPurchaseSOL) }

func (c *Config) SellTimeout() time.Duration         { return ms(c.SellTimeoutMs) }
func (c *Config) MaxEventAge() time.Duration         { return time.Duration(c.MaxTransactionAgeSec) * time.Second }
func (c *Config) ConfirmationTimeout() time.Duration { return ms(c.ConfirmationTimeoutMs) }
func (c *Config) RetryDelay() time.Duration          { return ms(c.RetryDelayMs) }
func (c *Config) RestartDelay() time.Duration        { return ms(c.RestartDelayMs) }
func (c *Config) ErrorRestartDelay() time.Duration   { return ms(c.ErrorRestartDelayMs) }
func (c *Config) ScanDelay() time.Duration           { return ms(c.ScanDelayMs) }
func (c *Config) PollInterval() time.Duration        { return ms(c.PollIntervalMs) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
