// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment variables that override the configured logger.
const (
	EnvLogLevel   = "CHAT_LOG_LEVEL"
	EnvLogNoColor = "CHAT_LOG_NOCOLOR"
)

// Profile selects a set of logging defaults.
type Profile int

const (
	// ProfileRuntime logs at info with color, for the binaries.
	ProfileRuntime Profile = iota
	// ProfileTest logs everything down to debug without color.
	ProfileTest
)

// Config describes where and how much to log.
type Config struct {
	App     string
	Level   zerolog.Level
	NoColor bool
	// Output defaults to stderr.
	Output io.Writer
}

var configureOnce sync.Once

// DefaultConfig returns the settings for profile.
func DefaultConfig(profile Profile) Config {
	cfg := Config{App: "chat", Level: zerolog.InfoLevel}
	if profile == ProfileTest {
		cfg.Level = zerolog.DebugLevel
		cfg.NoColor = true
	}
	return cfg
}

// Configure installs cfg as the global logger, once per process. Env
// overrides win over cfg.
func Configure(cfg Config) zerolog.Logger {
	configureOnce.Do(func() {
		applyEnvOverrides(&cfg)
		log.Logger = New(cfg)
		zerolog.SetGlobalLevel(cfg.Level)
	})
	return log.Logger
}

// New builds a console logger without touching global state.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	output := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    cfg.NoColor,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(output).Level(cfg.Level).With().Timestamp()
	if cfg.App != "" {
		logger = logger.Str("app", cfg.App)
	}
	return logger.Logger()
}

// OpenFile opens path for appending log lines. The TUI logs there because
// it owns the terminal.
func OpenFile(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

// ParseLevel maps a level name to a zerolog level. ok is false for unknown
// or empty names.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
