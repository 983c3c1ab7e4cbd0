package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGetYamlOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
quote: BUSD
max_positions: 3
min_order: "25"
turnover_threshold: "500000"
profit_target: 5.0
stop_loss: -2.0
buy_cooldown: 30m
daily_cron: "0 6 * * *"
web_addr: ":9090"
`)

	cfg, err := getYaml(path)
	require.NoError(t, err)

	assert.Equal(t, "BUSD", cfg.Quote)
	assert.Equal(t, 3, cfg.MaxPositions)
	assert.True(t, cfg.MinOrder.Equal(decimal.NewFromInt(25)))
	assert.True(t, cfg.TurnoverThreshold.Equal(decimal.NewFromInt(500000)))
	assert.InDelta(t, 5.0, cfg.ProfitTarget, 1e-9)
	assert.InDelta(t, -2.0, cfg.StopLoss, 1e-9)
	assert.Equal(t, ":9090", cfg.WebAddr)

	// unset fields keep defaults
	assert.True(t, cfg.MinImportValue.Equal(defaults().MinImportValue))
	assert.Equal(t, defaults().DBPath, cfg.DBPath)
}

func TestGetYamlPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `quote: USDT`)

	cfg, err := getYaml(path)
	require.NoError(t, err)
	assert.Equal(t, defaults().MaxPositions, cfg.MaxPositions)
	assert.Equal(t, defaults().DailyCron, cfg.DailyCron)
}

func TestGetYamlRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"positive stop loss", "stop_loss: 2.0"},
		{"negative profit target", "profit_target: -1.0"},
		{"malformed min order", `min_order: "abc"`},
		{"malformed turnover", `turnover_threshold: "xyz"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := getYaml(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestGetYamlMissingFile(t *testing.T) {
	_, err := getYaml(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
