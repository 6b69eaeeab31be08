package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerConfigWithDefaults(t *testing.T) {
	cfg := TriggerConfig{}.WithDefaults()
	require.Equal(t, DefaultTriggerConfig(), cfg, "zero config must resolve to the defaults")

	custom := TriggerConfig{
		Window:    time.Hour,
		BatchSize: 10,
	}.WithDefaults()
	assert.Equal(t, time.Hour, custom.Window)
	assert.Equal(t, 10, custom.BatchSize)
	assert.Equal(t, DefaultTriggerConfig().SweepInterval, custom.SweepInterval, "unset values must fall back")
}

func TestTriggerConfigWithDefaults_ZeroPaceDelayIsAllowed(t *testing.T) {
	// PaceDelay zero means no pacing; only negative values fall back.
	cfg := TriggerConfig{Window: time.Hour, PaceDelay: 0}.WithDefaults()
	assert.Equal(t, time.Duration(0), cfg.PaceDelay)

	negative := TriggerConfig{PaceDelay: -1}.WithDefaults()
	assert.Equal(t, DefaultTriggerConfig().PaceDelay, negative.PaceDelay)
}

func TestStaticTriggerConfigHolder(t *testing.T) {
	holder := NewStaticTriggerConfigHolder(TriggerConfig{Window: 2 * time.Hour})
	assert.Equal(t, 2*time.Hour, holder.Current().Window)

	var nilHolder *TriggerConfigHolder
	assert.Equal(t, DefaultTriggerConfig(), nilHolder.Current(), "nil holder must serve defaults")
}

func TestNormalizeSweepMode(t *testing.T) {
	assert.Equal(t, SweepModeExternal, normalizeSweepMode(" External "))
	assert.Equal(t, SweepModeInternal, normalizeSweepMode("anything-else"))
	assert.Equal(t, SweepModeInternal, normalizeSweepMode(""))
}
