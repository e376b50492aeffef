package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/omochice/toy-stream-chat/internal/chat"
	"github.com/omochice/toy-stream-chat/internal/config"
	"github.com/omochice/toy-stream-chat/internal/logging"
	"github.com/omochice/toy-stream-chat/internal/render"
	transportws "github.com/omochice/toy-stream-chat/internal/transport/ws"
	"github.com/omochice/toy-stream-chat/pkg/protocol"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chat-cli: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to a TOML config file")
	serverURL := flag.String("server", "", "WebSocket URL of the AI server (e.g., ws://localhost:8080/ws)")
	codecName := flag.String("codec", "", "Wire format: sentinel or envelope")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
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
	})
	if err != nil {
		return err
	}

	logger := logging.Configure(logConfig(cfg))

	codec, err := protocol.NewCodec(cfg.Server.Codec)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := chat.NewSession(
		transportws.NewDialer(cfg.Server.URL, cfg.Server.DialTimeout,
			transportws.WithMaxMessageSize(cfg.Server.MaxMessageSize)),
		chat.WithLogger(logger),
		chat.WithCodec(codec),
		chat.WithWriteTimeout(cfg.Server.WriteTimeout),
		chat.WithStateObserver(func(state chat.State, err error) {
			if err != nil && state == chat.StateDisconnected {
				fmt.Fprintf(os.Stderr, "*** connection lost: %v ***\n", err)
			}
		}),
	)

	if err := session.Connect(ctx); err != nil {
		return err
	}
	defer session.Disconnect()

	var renderer *render.Renderer
	width := 0
	if term.IsTerminal(int(os.Stdout.Fd())) {
		width, _, _ = term.GetSize(int(os.Stdout.Fd()))
		wrap := cfg.UI.WordWrap
		if width > 0 && width < wrap {
			wrap = width
		}
		renderer, err = render.New(render.Options{Style: cfg.UI.Style, WordWrap: wrap, CodeStyle: cfg.UI.CodeStyle})
		if err != nil {
			logger.Warn().Err(err).Msg("markdown rendering disabled")
			renderer = nil
		}
	}

	fmt.Fprintf(os.Stderr, "Connected to %s. Type a message, /stop, /clear or /quit.\n", cfg.Server.URL)

	c := &cli{
		session: session,
		out:     &printer{out: os.Stdout, renderer: renderer, width: width},
		lines:   readLines(os.Stdin),
	}
	return c.loop(ctx)
}

// logConfig builds the stderr logger settings. log.level from the file,
// env or -log-level wins; without one the client stays quiet below warn.
func logConfig(cfg config.Config) logging.Config {
	logCfg := logging.DefaultConfig(logging.ProfileRuntime)
	logCfg.App = "chat-cli"
	logCfg.Level = zerolog.WarnLevel
	if lvl, ok := logging.ParseLevel(cfg.Log.Level); ok {
		logCfg.Level = lvl
	}
	return logCfg
}

type cli struct {
	session *chat.Session
	out     *printer
	lines   <-chan string
}

// loop handles input lines until /quit, end of input or ctx ends.
func (c *cli) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-c.lines:
			if !ok {
				return nil
			}
			quit, err := c.handleLine(ctx, line)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func (c *cli) handleLine(ctx context.Context, line string) (bool, error) {
	text := strings.TrimSpace(line)
	switch text {
	case "":
		return false, nil
	case "/quit", "/exit":
		return true, nil
	case "/stop":
		return false, c.session.StopGeneration(ctx)
	case "/clear":
		return false, c.session.ClearConversation(ctx)
	}

	ex, err := c.session.Send(ctx, line, chat.Callbacks{
		OnUpdate:   c.out.update,
		OnComplete: c.out.complete,
		OnError:    c.out.fail,
	})
	if err != nil {
		return false, err
	}
	return c.await(ctx, ex)
}

// await waits for ex while still accepting /stop and /quit.
func (c *cli) await(ctx context.Context, ex *chat.Exchange) (bool, error) {
	for {
		select {
		case <-ex.Done():
			_, err := ex.Wait(ctx)
			var connErr *chat.ConnectionError
			if errors.As(err, &connErr) {
				return true, err
			}
			return false, err
		case <-ctx.Done():
			// Cancelling ctx already stops the exchange.
			<-ex.Done()
			return true, nil
		case line, ok := <-c.lines:
			if !ok {
				<-ex.Done()
				return true, nil
			}
			switch strings.TrimSpace(line) {
			case "/stop":
				if err := c.session.StopGeneration(ctx); err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
				}
			case "/quit", "/exit":
				_ = c.session.StopGeneration(ctx)
				<-ex.Done()
				return true, nil
			default:
				fmt.Fprintln(os.Stderr, "a reply is still streaming, /stop to stop it")
			}
		}
	}
}

func readLines(f *os.File) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}
