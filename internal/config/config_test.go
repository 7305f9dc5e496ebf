package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadEmptyFileGetsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "hawkeye-1", cfg.General.InstanceID)
	assert.Equal(t, ":8080", cfg.General.ListenAddr)
	assert.Equal(t, 1, cfg.Trading.MaxOpenPositions)
	assert.Equal(t, 70, cfg.Safety.Threshold)
	assert.Equal(t, 0.6, cfg.Entry.MinConfidence)
	assert.Equal(t, 75, cfg.Cascade.MinVirality)
	assert.True(t, cfg.Execution.DryRun)
	assert.True(t, cfg.Execution.UseTips)
	assert.Equal(t, 0.05, cfg.Execution.AmountSOL)
	assert.Equal(t, float64(300), cfg.Exits.Rules.TakeProfitPct)
	assert.True(t, cfg.Exits.Rules.TrailingStop)
	assert.False(t, cfg.Telegram.Enabled)
	assert.False(t, cfg.ClickHouse.Enabled)
}

func TestLoadOverridesKeepUnsetDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
safety:
  threshold: 80
  min_holders: 100
execution:
  dry_run: false
  amount_sol: 0.1
exits:
  rules:
    trailing_distance_pct: 15
`))
	require.NoError(t, err)

	assert.Equal(t, 80, cfg.Safety.Threshold)
	assert.Equal(t, 100, cfg.Safety.MinHolders)
	// Unset fields in a present section keep their defaults.
	assert.Equal(t, float64(60), cfg.Safety.MaxTopHolderPct)
	assert.False(t, cfg.Execution.DryRun)
	assert.True(t, cfg.Execution.UseTips)
	assert.Equal(t, 0.1, cfg.Execution.AmountSOL)
	assert.Equal(t, float64(15), cfg.Exits.Rules.TrailingDistancePct)
	assert.Equal(t, float64(300), cfg.Exits.Rules.TakeProfitPct)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TG_TOKEN_TEST", "123456:secret")

	cfg, err := Load(writeConfig(t, `
telegram:
  enabled: true
  bot_token: ${TG_TOKEN_TEST}
  chat_id: "42"
`))
	require.NoError(t, err)

	assert.True(t, cfg.Telegram.Enabled)
	assert.Equal(t, "123456:secret", cfg.Telegram.BotToken)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "safety: [not a map"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "safety threshold out of range",
			mutate:  func(c *Config) { c.Safety.Threshold = 150 },
			wantMsg: "safety.threshold",
		},
		{
			name:    "confidence above one",
			mutate:  func(c *Config) { c.Entry.MinConfidence = 1.5 },
			wantMsg: "min_confidence",
		},
		{
			name:    "negative buy size",
			mutate:  func(c *Config) { c.Execution.AmountSOL = -0.05 },
			wantMsg: "amount_sol",
		},
		{
			name:    "zero open positions",
			mutate:  func(c *Config) { c.Trading.MaxOpenPositions = 0 },
			wantMsg: "max_open_positions",
		},
		{
			name:    "zero stop loss",
			mutate:  func(c *Config) { c.Exits.Rules.StopLossPct = 0 },
			wantMsg: "stop_loss_pct",
		},
		{
			name:    "malformed feed program id",
			mutate:  func(c *Config) { c.Feed.ProgramIDs = []string{"not-a-base58-0OIl-address"} },
			wantMsg: "feed.program_ids",
		},
		{
			name:    "short feed program id",
			mutate:  func(c *Config) { c.Feed.ProgramIDs = []string{"abc"} },
			wantMsg: "feed.program_ids",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestConverters(t *testing.T) {
	cfg := Default()
	cfg.Chain.TimeoutMs = 2500
	cfg.Dedup.TTLSeconds = 300
	cfg.Execution.TipSOL = 0.02

	rpc := cfg.Chain.RPC()
	assert.Equal(t, "2.5s", rpc.Timeout.String())

	seen := cfg.Dedup.Seen()
	assert.Equal(t, "5m0s", seen.TTL.String())

	gw := cfg.Execution.Gateway()
	assert.Equal(t, "0.02", gw.TipSOL.String())
	assert.Equal(t, "0.05", gw.AmountSOL.String())
}
