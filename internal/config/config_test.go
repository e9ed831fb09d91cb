package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultsAreSane(t *testing.T) {
	d := Defaults()
	assert.True(t, d.TradeEnabled)
	assert.Equal(t, 10, d.TradeTopTokens)
	assert.Equal(t, 0.1, d.PortfolioRebalanceThreshold)
	assert.Equal(t, 128.0, d.HarvestBalanceMultiplier)
}

func TestApplyEnvOverridesDefaults(t *testing.T) {
	os.Setenv("TRADE_TOP_TOKENS", "5")
	os.Setenv("TRADE_ENABLED", "false")
	defer os.Unsetenv("TRADE_TOP_TOKENS")
	defer os.Unsetenv("TRADE_ENABLED")

	s := Defaults()
	applyEnv(&s)

	assert.Equal(t, 5, s.TradeTopTokens)
	assert.False(t, s.TradeEnabled)
}

func TestApplyEnvIgnoresUnsetKeys(t *testing.T) {
	os.Unsetenv("TRADE_VOLATILITY_DAYS")
	s := Defaults()
	applyEnv(&s)
	assert.Equal(t, 7, s.TradeVolatilityDays)
}
