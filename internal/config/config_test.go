package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kalshi-trader/internal/classify"
	"kalshi-trader/internal/domain"
	"kalshi-trader/internal/strategy"
)

func TestDefault_ValidInDryRun(t *testing.T) {
	cfg := Default()
	cfg.App.DryRun = true
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 300*time.Second, cfg.Scanner.ScanInterval)
	assert.Equal(t, 120*time.Second, cfg.Scanner.MentionInterval)
	assert.Equal(t, 60*time.Second, cfg.Scanner.ErrorBackoff)
	assert.Equal(t, 40, cfg.Scanner.Mention.MaxPositions)
	assert.Equal(t, 10, cfg.Scanner.Mention.MaxResting)
	assert.Equal(t, domain.Cents(1000), cfg.Scanner.Mention.EventCap)
	assert.Equal(t, domain.Cents(100), cfg.Scanner.MinBalance)
	assert.Equal(t, domain.AllKinds, cfg.Scanner.Enabled())
}

func TestDefault_LiveNeedsCredentials(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), EnvAPIKeyID)

	cfg.Kalshi.APIKeyID = "key"
	cfg.Kalshi.PrivateKeyPath = "/keys/kalshi.pem"
	assert.NoError(t, cfg.Validate())
}

func TestLoad_LayersOverDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "console", cfg.App.LogFormat)
	assert.True(t, cfg.App.DryRun)
	assert.Equal(t, TradeSourceStream, cfg.Kalshi.TradeSource)
	assert.Equal(t, 5.0, cfg.Kalshi.RateLimit)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)

	assert.Equal(t, time.Minute, cfg.Scanner.ScanInterval)
	assert.Equal(t, 120*time.Second, cfg.Scanner.MentionInterval, "untouched default")
	assert.False(t, cfg.Scanner.Reversion.Enabled)
	assert.Equal(t, 20, cfg.Scanner.Reversion.MaxPositions, "sibling fields keep defaults")
	assert.Equal(t, domain.Cents(500), cfg.Scanner.Mention.Bet)
	assert.Equal(t, 4, cfg.Scanner.Mention.MaxResting)

	assert.Equal(t, 12*time.Hour, cfg.Mention.MaxCloseHorizon)
	assert.Equal(t, 2*time.Hour, cfg.Mention.Windows[classify.Mention].Before)
	assert.Contains(t, cfg.Mention.Windows, classify.MentionLive, "other windows kept")

	assert.Equal(t, strategy.TypeStopLoss, cfg.Exits[domain.KindReversion].Type)
	assert.Equal(t, strategy.TypeHoldToSettle, cfg.Exits[domain.KindMention].Type)
	assert.Equal(t, domain.Cents(2500), cfg.Paper.StartingCash)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvDryRun, "false")
	t.Setenv(EnvAPIKeyID, "abc-123")
	t.Setenv(EnvPrivateKeyPath, "/keys/kalshi.pem")
	t.Setenv(EnvBaseURL, "https://demo-api.kalshi.co/trade-api/v2")
	t.Setenv(EnvPostgresDSN, "postgres://trader@db/kalshi")
	t.Setenv(EnvClickhouseDSN, "clickhouse://ch:9000/default")
	t.Setenv(EnvWebhookURL, "https://discord.example/webhook")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvStorage, BackendPostgres)
	t.Setenv(EnvMetricsAddr, "")

	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)

	assert.False(t, cfg.App.DryRun)
	assert.Equal(t, "abc-123", cfg.Kalshi.APIKeyID)
	assert.Equal(t, "/keys/kalshi.pem", cfg.Kalshi.PrivateKeyPath)
	assert.Equal(t, "https://demo-api.kalshi.co/trade-api/v2", cfg.Kalshi.BaseURL)
	assert.Equal(t, BackendPostgres, cfg.Storage.Backend)
	assert.Equal(t, "postgres://trader@db/kalshi", cfg.Storage.PostgresDSN)
	assert.Equal(t, "clickhouse://ch:9000/default", cfg.Storage.ClickhouseDSN)
	assert.Equal(t, "https://discord.example/webhook", cfg.Notify.WebhookURL)
	assert.Equal(t, "warn", cfg.App.LogLevel)
	assert.Empty(t, cfg.App.MetricsAddr)
}

func TestLoad_BadDryRunValue(t *testing.T) {
	t.Setenv(EnvDryRun, "maybe")
	_, err := Load("")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "nope.yaml"))
	assert.Error(t, err)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("scanner:\n  scan_intervall: 10s\n"))
	assert.Error(t, err)

	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default().Scanner, cfg.Scanner)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.App.DryRun = true
	cfg.App.LogFormat = "xml"
	cfg.Kalshi.TradeSource = "carrier-pigeon"
	cfg.Storage.Backend = BackendPostgres
	cfg.Scanner.Implied.Sizing.MinBet = 500
	cfg.Scanner.Mention.Bet = 0
	cfg.Exits[domain.KindReversion] = strategy.Config{Type: "martingale"}

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	msg := err.Error()
	for _, want := range []string{"log_format", "trade_source", "postgres_dsn", "implied.sizing", "mention.bet", "exits"} {
		assert.Contains(t, msg, want)
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Kalshi.APIKeyID = "secret-key"
	cfg.Storage.PostgresDSN = "postgres://u:p@h/db"
	cfg.Notify.WebhookURL = ""

	r := cfg.Redacted()
	assert.Equal(t, "***", r.Kalshi.APIKeyID)
	assert.Equal(t, "***", r.Storage.PostgresDSN)
	assert.Empty(t, r.Notify.WebhookURL)
	assert.Equal(t, "secret-key", cfg.Kalshi.APIKeyID, "original untouched")

	data, err := r.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret-key")
	assert.Contains(t, string(data), "scan_interval: 5m0s")
}

func TestLoadEnvFile(t *testing.T) {
	const key = "KALSHI_TRADER_CONFIG_TEST"
	t.Cleanup(func() { os.Unsetenv(key) })

	path := filepath.Join(t.TempDir(), "trader.env")
	require.NoError(t, os.WriteFile(path, []byte(key+"=from-file\n"), 0o600))

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv(key))

	assert.Error(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
	assert.NoError(t, LoadEnvFile(""))
}

func TestLoad_OverridesBeforeValidation(t *testing.T) {
	t.Setenv(EnvDryRun, "false")
	_, err := Load("")
	require.ErrorIs(t, err, ErrInvalid)

	cfg, err := Load("", func(c *Config) { c.App.DryRun = true })
	require.NoError(t, err)
	assert.True(t, cfg.App.DryRun)
}
