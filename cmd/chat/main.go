package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/omochice/toy-stream-chat/internal/chat"
	"github.com/omochice/toy-stream-chat/internal/config"
	"github.com/omochice/toy-stream-chat/internal/logging"
	"github.com/omochice/toy-stream-chat/internal/render"
	transportws "github.com/omochice/toy-stream-chat/internal/transport/ws"
	"github.com/omochice/toy-stream-chat/internal/ui"
	"github.com/omochice/toy-stream-chat/pkg/protocol"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chat: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to a TOML config file")
	serverURL := flag.String("server", "", "WebSocket URL of the AI server (e.g., ws://localhost:8080/ws)")
	codecName := flag.String("codec", "", "Wire format: sentinel or envelope")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFile := flag.String("log-file", "", "File to write logs to")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	cfg, err = cfg.WithOverrides(config.Overrides{
		ServerURL: *serverURL,
		Codec:     *codecName,
		LogLevel:  *logLevel,
		LogFile:   *logFile,
	})
	if err != nil {
		return err
	}

	// The TUI owns the terminal, so logs go to a file.
	f, err := logging.OpenFile(cfg.Log.File)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	logCfg := logging.DefaultConfig(logging.ProfileRuntime)
	logCfg.Output = f
	logCfg.NoColor = true
	if lvl, ok := logging.ParseLevel(cfg.Log.Level); ok {
		logCfg.Level = lvl
	}
	logger := logging.Configure(logCfg)

	codec, err := protocol.NewCodec(cfg.Server.Codec)
	if err != nil {
		return err
	}

	var program *tea.Program
	session := chat.NewSession(
		transportws.NewDialer(cfg.Server.URL, cfg.Server.DialTimeout,
			transportws.WithMaxMessageSize(cfg.Server.MaxMessageSize)),
		chat.WithLogger(logger),
		chat.WithCodec(codec),
		chat.WithWriteTimeout(cfg.Server.WriteTimeout),
		chat.WithStateObserver(func(state chat.State, err error) {
			program.Send(ui.StateMsg{State: state, Err: err})
		}),
	)
	defer session.Disconnect()

	model := ui.New(session, render.Options{
		Style:     cfg.UI.Style,
		WordWrap:  cfg.UI.WordWrap,
		CodeStyle: cfg.UI.CodeStyle,
	}, ui.WithLogger(logger), ui.WithConnectOnStart())

	program = tea.NewProgram(model, tea.WithAltScreen())
	logger.Info().Str("server", cfg.Server.URL).Str("codec", codec.Name()).Msg("starting chat")
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("chat ui failed: %w", err)
	}
	return nil
}
