// Package config loads client and stream-server settings from a TOML file,
// then lets environment variables override them.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"github.com/omochice/toy-stream-chat/pkg/protocol"
)

// Config holds every setting of the chat client and the stream server.
type Config struct {
	Server       ServerConfig       `toml:"server"`
	UI           UIConfig           `toml:"ui"`
	Log          LogConfig          `toml:"log"`
	StreamServer StreamServerConfig `toml:"stream_server"`
}

// ServerConfig describes the remote AI server the client talks to.
type ServerConfig struct {
	URL          string        `toml:"url"`
	DialTimeout  time.Duration `toml:"dial_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
	// Codec is "sentinel", "envelope" or "envelope+binary".
	Codec string `toml:"codec"`
	// MaxMessageSize caps one inbound message, in bytes.
	MaxMessageSize int64 `toml:"max_message_size"`
}

// UIConfig controls how replies are rendered.
type UIConfig struct {
	WordWrap int `toml:"word_wrap"`
	// Style is a glamour style name ("auto", "dark", "light", "notty", ...).
	Style string `toml:"style"`
	// CodeStyle is a chroma style used when markdown rendering falls back.
	CodeStyle string `toml:"code_style"`
}

// LogConfig controls log verbosity and destination.
type LogConfig struct {
	Level string `toml:"level"`
	// File receives TUI logs; the line-mode client logs to stderr.
	File string `toml:"file"`
}

// StreamServerConfig configures the development stream server.
type StreamServerConfig struct {
	Listen     string        `toml:"listen"`
	ChunkDelay time.Duration `toml:"chunk_delay"`
	Codec      string        `toml:"codec"`
}

// envOverlay lists the environment overrides. Empty values leave the file
// setting alone.
type envOverlay struct {
	ServerURL   string        `env:"CHAT_SERVER_URL"`
	DialTimeout time.Duration `env:"CHAT_DIAL_TIMEOUT"`
	Codec       string        `env:"CHAT_CODEC"`
	LogLevel    string        `env:"CHAT_LOG_LEVEL"`
	LogFile     string        `env:"CHAT_LOG_FILE"`
	Listen      string        `env:"CHAT_LISTEN"`
	ChunkDelay  time.Duration `env:"CHAT_CHUNK_DELAY"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Server: ServerConfig{
			URL:            "ws://localhost:8080/ws",
			DialTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			Codec:          protocol.CodecSentinel,
			MaxMessageSize: 64 << 10,
		},
		UI: UIConfig{
			WordWrap:  80,
			Style:     "auto",
			CodeStyle: "monokai",
		},
		Log: LogConfig{
			Level: "info",
			File:  "chat.log",
		},
		StreamServer: StreamServerConfig{
			Listen:     ":8080",
			ChunkDelay: 40 * time.Millisecond,
			Codec:      protocol.CodecSentinel,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadToml(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadToml(path string, out *Config) error {
	meta, err := toml.DecodeFile(path, out)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config load failed (%s): %w", path, err)
		}
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("config parse failed (%s): unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var overlay envOverlay
	if _, err := env.UnmarshalFromEnviron(&overlay); err != nil {
		return fmt.Errorf("config env failed: %w", err)
	}
	if overlay.ServerURL != "" {
		cfg.Server.URL = overlay.ServerURL
	}
	if overlay.DialTimeout > 0 {
		cfg.Server.DialTimeout = overlay.DialTimeout
	}
	if overlay.Codec != "" {
		cfg.Server.Codec = overlay.Codec
		cfg.StreamServer.Codec = overlay.Codec
	}
	if overlay.LogLevel != "" {
		cfg.Log.Level = overlay.LogLevel
	}
	if overlay.LogFile != "" {
		cfg.Log.File = overlay.LogFile
	}
	if overlay.Listen != "" {
		cfg.StreamServer.Listen = overlay.Listen
	}
	if overlay.ChunkDelay > 0 {
		cfg.StreamServer.ChunkDelay = overlay.ChunkDelay
	}
	return nil
}

// LoadDotEnv loads .env style files into the environment. Variables that
// are already set win. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config env file failed (%s): %w", path, err)
		}
	}
	return nil
}

// Overrides holds command-line values. Zero values keep the loaded setting.
type Overrides struct {
	ServerURL  string
	Codec      string
	LogLevel   string
	LogFile    string
	Listen     string
	ChunkDelay time.Duration
}

// WithOverrides applies o on top of c and validates the result.
func (c Config) WithOverrides(o Overrides) (Config, error) {
	if o.ServerURL != "" {
		c.Server.URL = o.ServerURL
	}
	if o.Codec != "" {
		c.Server.Codec = o.Codec
		c.StreamServer.Codec = o.Codec
	}
	if o.LogLevel != "" {
		c.Log.Level = o.LogLevel
	}
	if o.LogFile != "" {
		c.Log.File = o.LogFile
	}
	if o.Listen != "" {
		c.StreamServer.Listen = o.Listen
	}
	if o.ChunkDelay > 0 {
		c.StreamServer.ChunkDelay = o.ChunkDelay
	}
	if err := Validate(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the settings both binaries depend on.
func Validate(cfg Config) error {
	if err := ValidateServerURL(cfg.Server.URL); err != nil {
		return err
	}
	if cfg.Server.DialTimeout < 0 || cfg.Server.WriteTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	if cfg.Server.MaxMessageSize < 0 {
		return fmt.Errorf("server max_message_size must not be negative")
	}
	if _, err := protocol.NewCodec(cfg.Server.Codec); err != nil {
		return fmt.Errorf("server codec invalid: %w", err)
	}
	if _, err := protocol.NewCodec(cfg.StreamServer.Codec); err != nil {
		return fmt.Errorf("stream_server codec invalid: %w", err)
	}
	if cfg.UI.WordWrap < 0 {
		return fmt.Errorf("ui word_wrap must not be negative")
	}
	if strings.TrimSpace(cfg.StreamServer.Listen) == "" {
		return fmt.Errorf("stream_server listen is required")
	}
	return nil
}

// ValidateServerURL accepts ws:// and wss:// URLs with a host.
func ValidateServerURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("server url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("server url invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server url must use ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("server url missing host")
	}
	return nil
}
