// Package server implements a development stream server: it accepts chat
// clients over WebSocket and streams replies in the same wire format as the
// remote AI server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	transportws "github.com/omochice/toy-stream-chat/internal/transport/ws"
	"github.com/omochice/toy-stream-chat/pkg/protocol"
)

// ErrServerStopped is returned by Start after Stop.
var ErrServerStopped = errors.New("server stopped")

// Path is where the server accepts WebSocket upgrades.
const Path = "/ws"

// Option configures a Server.
type Option func(*Server)

// WithCodec sets the wire format. The default is the sentinel codec.
func WithCodec(codec protocol.Codec) Option {
	return func(s *Server) { s.codec = codec }
}

// WithResponder replaces the default EchoResponder.
func WithResponder(r Responder) Option {
	return func(s *Server) { s.responder = r }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// Server represents a WebSocket stream server
type Server struct {
	address   string
	codec     protocol.Codec
	responder Responder
	logger    zerolog.Logger

	listener net.Listener
	server   *http.Server
	hub      *hub

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	quit     chan struct{}
	stopOnce sync.Once
	ready    chan struct{}
	wg       sync.WaitGroup
}

// New creates a new Server instance
func New(address string, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		address:   address,
		codec:     protocol.SentinelCodec{},
		responder: EchoResponder{},
		logger:    log.Logger.With().Str("component", "stream-server").Logger(),
		hub:       newHub(),
		ctx:       ctx,
		cancel:    cancel,
		quit:      make(chan struct{}),
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start listens and serves until Stop is called, then returns
// ErrServerStopped.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleWebSocket)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	select {
	case <-s.quit:
		s.mu.Unlock()
		listener.Close()
		return ErrServerStopped
	default:
	}
	s.listener = listener
	s.server = srv
	close(s.ready)
	s.mu.Unlock()

	s.logger.Info().Str("addr", listener.Addr().String()).Str("codec", s.codec.Name()).Msg("stream server started")

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start server: %w", err)
	case <-s.quit:
		return ErrServerStopped
	}
}

// Ready is closed once the server is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Stop stops the server and waits for every connection to finish.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		close(s.quit)
		srv := s.server
		s.mu.Unlock()

		s.cancel()
		if srv != nil {
			srv.Close()
		}
		s.hub.closeAll()
		s.wg.Wait()
		s.logger.Info().Msg("stream server stopped")
	})
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// URL returns the WebSocket URL clients should dial.
func (s *Server) URL() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	return "ws://" + addr + Path
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	return s.hub.count()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := transportws.Upgrade(w, r)
	if err != nil {
		s.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}

	s.mu.Lock()
	select {
	case <-s.quit:
		s.mu.Unlock()
		conn.Close()
		return
	default:
	}
	s.wg.Add(1)
	s.mu.Unlock()

	c := newClient(s.ctx, conn, s.codec, s.responder, s.logger)
	s.hub.register(c)
	c.logger.Info().Msg("client connected")

	go func() {
		defer s.wg.Done()
		defer func() {
			s.hub.unregister(c)
			conn.Close()
			c.logger.Info().Msg("client disconnected")
		}()
		c.serve()
	}()
}
