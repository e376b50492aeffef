package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/toy-stream-chat/internal/config"
)

func TestLogConfig_UsesConfiguredLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"

	logCfg := logConfig(cfg)
	assert.Equal(t, zerolog.ErrorLevel, logCfg.Level)
	assert.Equal(t, "chat-cli", logCfg.App)
}

func TestLogConfig_FlagOverridesFile(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"

	cfg, err := cfg.WithOverrides(config.Overrides{LogLevel: "debug"})
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, logConfig(cfg).Level)
}

func TestLogConfig_FallsBackToWarn(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = ""

	assert.Equal(t, zerolog.WarnLevel, logConfig(cfg).Level)
}
