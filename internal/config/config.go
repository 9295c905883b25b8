// Package config exposes the trader configuration: YAML layered over defaults,
// then environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"kalshi-trader/internal/classify"
	"kalshi-trader/internal/detector"
	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/execution"
	"kalshi-trader/internal/kalshi"
	"kalshi-trader/internal/logging"
	"kalshi-trader/internal/orchestrator"
	"kalshi-trader/internal/paper"
	"kalshi-trader/internal/position"
	"kalshi-trader/internal/strategy"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Trade sources.
const (
	TradeSourceREST   = "rest"
	TradeSourceStream = "stream"
)

// Environment overrides.
const (
	EnvAPIKeyID       = "KALSHI_API_KEY_ID"
	EnvPrivateKeyPath = "KALSHI_PRIVATE_KEY_PATH"
	EnvBaseURL        = "KALSHI_BASE_URL"
	EnvDryRun         = "DRY_RUN"
	EnvPostgresDSN    = "POSTGRES_DSN"
	EnvClickhouseDSN  = "CLICKHOUSE_DSN"
	EnvWebhookURL     = "WEBHOOK_URL"
	EnvLogLevel       = "LOG_LEVEL"
	EnvMetricsAddr    = "METRICS_ADDR"
	EnvStorage        = "STORAGE_BACKEND"
)

// App captures process-wide settings.
type App struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsAddr string `yaml:"metrics_addr"` // empty disables the metrics server
	DryRun      bool   `yaml:"dry_run"`
}

// Kalshi configures exchange connectivity.
type Kalshi struct {
	BaseURL        string        `yaml:"base_url"`
	StreamURL      string        `yaml:"stream_url"`
	APIKeyID       string        `yaml:"api_key_id"`
	PrivateKeyPath string        `yaml:"private_key_path"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RateLimit      float64       `yaml:"rate_limit"` // requests per second
	RateBurst      int           `yaml:"rate_burst"`
	MarketTTL      time.Duration `yaml:"market_ttl"`
	TradeSource    string        `yaml:"trade_source"`
}

// Authenticated reports whether signing credentials are configured.
func (k Kalshi) Authenticated() bool {
	return k.APIKeyID != "" && k.PrivateKeyPath != ""
}

// Storage selects where positions, cooldowns and the event log live.
type Storage struct {
	Backend       string `yaml:"backend"`
	Dir           string `yaml:"dir"` // file backend
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn"` // optional, receives the event log
	EventLogCap   int    `yaml:"event_log_cap"`
}

// Notify configures human notifications.
type Notify struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Config collects every configuration leaf.
type Config struct {
	App       App                                   `yaml:"app"`
	Kalshi    Kalshi                                `yaml:"kalshi"`
	Storage   Storage                               `yaml:"storage"`
	Notify    Notify                                `yaml:"notify"`
	Scanner   orchestrator.Config                   `yaml:"scanner"`
	Reversion detector.ReversionConfig              `yaml:"reversion"`
	Implied   detector.ImpliedConfig                `yaml:"implied"`
	Mention   detector.MentionConfig                `yaml:"mention"`
	Classify  classify.Rules                        `yaml:"classify"`
	Execution execution.Config                      `yaml:"execution"`
	Positions position.Config                       `yaml:"positions"`
	Exits     map[domain.SignalKind]strategy.Config `yaml:"exits"`
	Discovery kalshi.DiscoveryConfig                `yaml:"discovery"`
	Stream    kalshi.StreamConfig                   `yaml:"stream"`
	Paper     paper.Config                          `yaml:"paper"`
}

// Default returns the full default configuration.
func Default() *Config {
	return &Config{
		App: App{
			LogLevel:    "info",
			LogFormat:   logging.FormatJSON,
			MetricsAddr: ":9090",
		},
		Kalshi: Kalshi{
			BaseURL:     kalshi.DefaultBaseURL,
			StreamURL:   kalshi.DefaultStreamURL,
			Timeout:     kalshi.DefaultTimeout,
			MaxRetries:  kalshi.DefaultMaxRetries,
			RateLimit:   kalshi.DefaultRateLimit,
			RateBurst:   kalshi.DefaultRateLimit,
			MarketTTL:   kalshi.DefaultMarketTTL,
			TradeSource: TradeSourceREST,
		},
		Storage: Storage{
			Backend:     BackendFile,
			Dir:         "state",
			EventLogCap: 10000,
		},
		Notify: Notify{
			Timeout: 10 * time.Second,
		},
		Scanner:   orchestrator.DefaultConfig(),
		Reversion: detector.DefaultReversionConfig(),
		Implied:   detector.DefaultImpliedConfig(),
		Mention:   detector.DefaultMentionConfig(),
		Classify:  classify.DefaultRules(),
		Execution: execution.DefaultConfig(),
		Positions: position.DefaultConfig(),
		Exits:     strategy.DefaultConfigs(),
		Discovery: kalshi.DefaultDiscoveryConfig(),
		Stream:    kalshi.DefaultStreamConfig(),
		Paper:     paper.DefaultConfig(),
	}
}

// LoadEnvFile loads KEY=value pairs into the process environment.
// An empty path loads ./.env when present; a named file must exist.
// Variables already set are not overwritten.
func LoadEnvFile(path string) error {
	if path == "" {
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides, then each override in order, and validates the result.
// An empty path uses defaults only.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without consulting the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvAPIKeyID); v != "" {
		c.Kalshi.APIKeyID = v
	}
	if v := os.Getenv(EnvPrivateKeyPath); v != "" {
		c.Kalshi.PrivateKeyPath = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.Kalshi.BaseURL = v
	}
	if v := os.Getenv(EnvDryRun); v != "" {
		dry, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, EnvDryRun, v, err)
		}
		c.App.DryRun = dry
	}
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv(EnvClickhouseDSN); v != "" {
		c.Storage.ClickhouseDSN = v
	}
	if v := os.Getenv(EnvStorage); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv(EnvWebhookURL); v != "" {
		c.Notify.WebhookURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.App.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvMetricsAddr); ok {
		c.App.MetricsAddr = v
	}
	return nil
}

// Validate checks the configuration for values the trader cannot run with.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch strings.ToLower(c.App.LogFormat) {
	case logging.FormatJSON, logging.FormatConsole:
	default:
		bad("app.log_format %q (want json or console)", c.App.LogFormat)
	}

	if c.Kalshi.BaseURL == "" {
		bad("kalshi.base_url is empty")
	}
	if !c.App.DryRun && !c.Kalshi.Authenticated() {
		bad("live trading requires %s and %s", EnvAPIKeyID, EnvPrivateKeyPath)
	}
	if c.Kalshi.RateLimit <= 0 {
		bad("kalshi.rate_limit must be positive")
	}
	switch c.Kalshi.TradeSource {
	case TradeSourceREST:
	case TradeSourceStream:
		if c.Kalshi.StreamURL == "" {
			bad("kalshi.stream_url is required for the stream trade source")
		}
	default:
		bad("kalshi.trade_source %q (want rest or stream)", c.Kalshi.TradeSource)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Storage.Dir == "" {
			bad("storage.dir is required for the file backend")
		}
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			bad("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		bad("storage.backend %q (want memory, file or postgres)", c.Storage.Backend)
	}

	s := c.Scanner
	if s.ScanInterval <= 0 || s.MentionInterval <= 0 || s.ErrorBackoff <= 0 {
		bad("scanner intervals must be positive")
	}
	if s.TradeLookback < c.Reversion.Window {
		bad("scanner.trade_lookback %s is shorter than reversion.window %s", s.TradeLookback, c.Reversion.Window)
	}
	for name, lim := range map[string]orchestrator.KindLimits{"reversion": s.Reversion, "implied": s.Implied} {
		if !lim.Enabled {
			continue
		}
		if lim.Sizing.MaxBet <= 0 || lim.Sizing.MinBet > lim.Sizing.MaxBet {
			bad("scanner.%s.sizing: min_bet %d must not exceed a positive max_bet %d", name, lim.Sizing.MinBet, lim.Sizing.MaxBet)
		}
		if lim.Sizing.DepthFraction <= 0 || lim.Sizing.DepthFraction > 1 {
			bad("scanner.%s.sizing.depth_fraction %.2f outside (0, 1]", name, lim.Sizing.DepthFraction)
		}
	}
	if s.Mention.Enabled && s.Mention.Bet <= 0 {
		bad("scanner.mention.bet must be positive")
	}

	if c.Mention.MinNoPrice < domain.MinPrice || c.Mention.MaxNoPrice >= domain.MaxPrice || c.Mention.MinNoPrice > c.Mention.MaxNoPrice {
		bad("mention no price band [%d, %d] invalid", c.Mention.MinNoPrice, c.Mention.MaxNoPrice)
	}
	if c.Execution.MaxSlippage < 0 || c.Execution.MaxRetries < 0 {
		bad("execution.max_slippage and execution.max_retries must not be negative")
	}
	if _, err := strategy.SetFromConfig(c.Exits); err != nil {
		bad("exits: %v", err)
	}

	return errors.Join(errs...)
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	cp := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	cp.Kalshi.APIKeyID = mask(c.Kalshi.APIKeyID)
	cp.Storage.PostgresDSN = mask(c.Storage.PostgresDSN)
	cp.Storage.ClickhouseDSN = mask(c.Storage.ClickhouseDSN)
	cp.Notify.WebhookURL = mask(c.Notify.WebhookURL)
	return &cp
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal yaml: %w", err)
	}
	return data, nil
}
