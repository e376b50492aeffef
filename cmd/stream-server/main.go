package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/omochice/toy-stream-chat/internal/config"
	"github.com/omochice/toy-stream-chat/internal/logging"
	"github.com/omochice/toy-stream-chat/internal/server"
	"github.com/omochice/toy-stream-chat/pkg/protocol"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML config file")
	listen := flag.String("listen", "", "Address to listen on (e.g., :8080)")
	codecName := flag.String("codec", "", "Wire format: sentinel, envelope or envelope+binary")
	chunkDelay := flag.Duration("chunk-delay", 0, "Pause between streamed words (e.g., 40ms)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		log.Fatal().Err(err).Msg("failed to load .env")
	}
	cfg, err := config.Load(*configPath)
	if err == nil {
		cfg, err = cfg.WithOverrides(config.Overrides{
			Listen:     *listen,
			Codec:      *codecName,
			ChunkDelay: *chunkDelay,
			LogLevel:   *logLevel,
		})
	}
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	logCfg := logging.DefaultConfig(logging.ProfileRuntime)
	logCfg.App = "stream-server"
	if lvl, ok := logging.ParseLevel(cfg.Log.Level); ok {
		logCfg.Level = lvl
	}
	logger := logging.Configure(logCfg)

	codec, err := protocol.NewCodec(cfg.StreamServer.Codec)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid codec")
	}

	srv := server.New(cfg.StreamServer.Listen,
		server.WithCodec(codec),
		server.WithResponder(server.EchoResponder{Delay: cfg.StreamServer.ChunkDelay}),
		server.WithLogger(logger),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, server.ErrServerStopped) {
			logger.Fatal().Err(err).Msg("server error")
		}
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		srv.Stop()
	}
}
