package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/omochice/toy-stream-chat/pkg/protocol"
)

// streamBuffer is the channel capacity used by Stream.
const streamBuffer = 16

// State is the connection state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// StateObserver is told about every state change. err is set when the
// change was caused by a failure.
type StateObserver func(state State, err error)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithCodec selects the wire format. The default is protocol.SentinelCodec.
func WithCodec(codec protocol.Codec) Option {
	return func(s *Session) { s.codec = codec }
}

// WithStateObserver registers fn for state changes. fn must not block.
func WithStateObserver(fn StateObserver) Option {
	return func(s *Session) { s.observer = fn }
}

// WithWriteTimeout bounds each frame write when the caller's context has no
// deadline of its own.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Session) { s.writeTimeout = d }
}

// WithIDGenerator replaces the exchange id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Session) { s.newID = fn }
}

// Session owns one connection to the AI server and mediates at most one
// outstanding exchange on it. All methods are safe for concurrent use.
type Session struct {
	dialer       Dialer
	codec        protocol.Codec
	logger       zerolog.Logger
	observer     StateObserver
	writeTimeout time.Duration
	newID        func() string

	// lifecycle serializes Connect and Disconnect.
	lifecycle sync.Mutex

	mu         sync.Mutex
	state      State
	conn       Conn
	gen        uint64
	pending    *Exchange
	stopReader context.CancelFunc
}

// NewSession creates a disconnected Session that dials through dialer.
func NewSession(dialer Dialer, opts ...Option) *Session {
	s := &Session{
		dialer:       dialer,
		codec:        protocol.SentinelCodec{},
		logger:       log.Logger,
		writeTimeout: 10 * time.Second,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "chat").Str("addr", dialer.Addr()).Logger()
	return s
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending reports whether an exchange is outstanding.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Connect opens the transport. An existing connection is torn down first.
// Returns a *ConnectionError if the transport fails before it is open.
func (s *Session) Connect(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.teardown(ErrDisconnected)
	s.setState(StateConnecting, nil)

	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		cerr := &ConnectionError{Op: "dial", Addr: s.dialer.Addr(), Err: err}
		s.logger.Warn().Err(err).Msg("connect failed")
		s.setState(StateDisconnected, cerr)
		return cerr
	}

	readCtx, stop := context.WithCancel(context.Background())

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.conn = conn
	s.state = StateConnected
	s.stopReader = stop
	s.mu.Unlock()

	s.logger.Info().Str("remote", conn.RemoteAddr()).Msg("connected")
	s.notify(StateConnected, nil)

	go s.readLoop(readCtx, conn, gen)
	return nil
}

// Disconnect closes the transport. A pending exchange ends with a
// *ConnectionError wrapping ErrDisconnected. No-op when already disconnected.
func (s *Session) Disconnect() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.teardown(ErrDisconnected) {
		s.logger.Info().Msg("disconnected")
	}
}

// teardown closes the current connection, if any, and fails its exchange
// with cause. Callers hold s.lifecycle.
func (s *Session) teardown(cause error) bool {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return false
	}
	s.state = StateClosing
	s.conn = nil
	s.gen++
	stop := s.stopReader
	s.stopReader = nil
	ex := s.pending
	s.pending = nil
	s.mu.Unlock()

	s.notify(StateClosing, nil)

	if ex != nil {
		ex.fail(&ConnectionError{Op: "close", Addr: s.dialer.Addr(), Err: cause})
	}
	stop()
	if err := conn.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("close failed")
	}

	s.setState(StateDisconnected, nil)
	return true
}

// Send writes text as one frame and opens an exchange whose events go to cb.
// It returns once the frame is written. Cancelling ctx cancels the exchange
// the same way StopGeneration does.
func (s *Session) Send(ctx context.Context, text string, cb Callbacks) (*Exchange, error) {
	return s.send(ctx, text, cb.sink())
}

// SendMessage sends text and waits for the reply. onUpdate gets the growing
// reply after every chunk; onComplete gets the final text once. Either may be
// nil.
func (s *Session) SendMessage(ctx context.Context, text string, onUpdate, onComplete func(string)) (string, error) {
	ex, err := s.Send(ctx, text, Callbacks{OnUpdate: onUpdate, OnComplete: onComplete})
	if err != nil {
		return "", err
	}
	// ctx cancellation completes the exchange, so waiting on it is bounded.
	return ex.Wait(context.Background())
}

// Stream sends text and returns the exchange's events as a channel. The
// channel always ends with exactly one Done or Error event and is then
// closed. The consumer must drain it or cancel ctx; once ctx is cancelled and
// the buffer is full, chunks are dropped to make room for the final event,
// which carries the full text anyway.
func (s *Session) Stream(ctx context.Context, text string) (<-chan StreamEvent, error) {
	out := make(chan StreamEvent, streamBuffer)
	ex, err := s.send(ctx, text, func(ev StreamEvent) {
		select {
		case out <- ev:
			return
		default:
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			if !ev.terminal() {
				return
			}
			// The sink is the only sender, so after taking one queued
			// event there is room for the final one.
			select {
			case <-out:
			default:
			}
			out <- ev
		}
	})
	if err != nil {
		return nil, err
	}
	go func() {
		<-ex.Done()
		close(out)
	}()
	return out, nil
}

func (s *Session) send(ctx context.Context, text string, sink func(StreamEvent)) (*Exchange, error) {
	s.mu.Lock()
	if s.state != StateConnected || s.conn == nil {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	if strings.TrimSpace(text) == "" {
		s.mu.Unlock()
		return nil, ErrEmptyMessage
	}
	if s.pending != nil {
		s.mu.Unlock()
		return nil, ErrExchangePending
	}
	ex := newExchange(s.newID(), sink, s.logger)
	s.pending = ex
	conn := s.conn
	s.mu.Unlock()

	payload, err := s.codec.EncodeMessage(ex.id, text)
	if err == nil {
		err = s.write(ctx, conn, payload)
	}
	if err != nil {
		s.mu.Lock()
		if s.pending == ex {
			s.pending = nil
		}
		s.mu.Unlock()

		serr := &SendError{Frame: "message", Err: err}
		ex.abandon(serr)
		s.logger.Warn().Err(err).Str("exchange", ex.id).Msg("send failed")
		return nil, serr
	}

	s.logger.Debug().Str("exchange", ex.id).Int("bytes", len(payload)).Msg("message sent")
	ex.start()
	ex.watch(ctx, func() {
		if s.cancelPending(ex) {
			s.sendStopAfterCancel(ex.id)
		}
	})
	return ex, nil
}

// StopGeneration asks the server to stop and completes the pending exchange,
// if any, with the text received so far. Frames still arriving for it are
// discarded. The local cancellation happens even if the control frame cannot
// be written; that failure is returned as a *SendError.
func (s *Session) StopGeneration(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateConnected || s.conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	conn := s.conn
	ex := s.pending
	s.mu.Unlock()

	id := ""
	if ex != nil {
		id = ex.id
		s.cancelPending(ex)
	}
	return s.sendControl(ctx, conn, id, protocol.ControlStopGeneration)
}

// ClearConversation asks the server to forget the conversation. It refuses
// while a reply is streaming.
func (s *Session) ClearConversation(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateConnected || s.conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if s.pending != nil {
		s.mu.Unlock()
		return ErrExchangePending
	}
	conn := s.conn
	s.mu.Unlock()

	return s.sendControl(ctx, conn, "", protocol.ControlClearConversation)
}

func (s *Session) sendControl(ctx context.Context, conn Conn, id string, ct protocol.ControlType) error {
	payload, err := s.codec.EncodeControl(id, ct)
	if err == nil {
		err = s.write(ctx, conn, payload)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("control", ct.String()).Msg("control frame failed")
		return &SendError{Frame: ct.String(), Err: err}
	}
	s.logger.Debug().Str("control", ct.String()).Msg("control frame sent")
	return nil
}

// cancelPending completes ex as cancelled if it is still the pending exchange.
func (s *Session) cancelPending(ex *Exchange) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != ex {
		return false
	}
	s.pending = nil
	ex.complete(true)
	s.logger.Info().Str("exchange", ex.id).Msg("generation cancelled")
	return true
}

// sendStopAfterCancel tells the server to stop after a context cancellation.
// Failures are logged only: nobody is waiting for this frame.
func (s *Session) sendStopAfterCancel(id string) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	if err := s.sendControl(context.Background(), conn, id, protocol.ControlStopGeneration); err != nil {
		s.logger.Debug().Err(err).Msg("stop after cancel not delivered")
	}
}

func (s *Session) write(ctx context.Context, conn Conn, payload []byte) error {
	if _, ok := ctx.Deadline(); !ok && s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}
	return conn.Write(ctx, payload)
}

func (s *Session) readLoop(ctx context.Context, conn Conn, gen uint64) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			s.handleDrop(conn, gen, err)
			return
		}
		s.handleFrame(gen, data)
	}
}

// handleFrame routes one inbound frame to the pending exchange.
func (s *Session) handleFrame(gen uint64, data []byte) {
	frame, err := s.codec.DecodeFrame(data)
	if err != nil {
		s.logger.Debug().Err(err).Msg("frame decoded leniently")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return
	}
	ex := s.pending
	if ex == nil {
		s.logger.Debug().Int("bytes", len(data)).Msg("discarding frame with no pending exchange")
		return
	}
	if frame.ID != "" && frame.ID != ex.id {
		s.logger.Debug().Str("frame", frame.ID).Str("exchange", ex.id).Msg("discarding stale frame")
		return
	}

	if frame.Done {
		s.pending = nil
		ex.complete(false)
		s.logger.Debug().Str("exchange", ex.id).Msg("reply complete")
		return
	}
	ex.appendChunk(frame.Text)
}

// handleDrop reacts to the reader failing. Drops of connections that were
// already torn down deliberately are ignored.
func (s *Session) handleDrop(conn Conn, gen uint64, err error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.conn = nil
	s.state = StateDisconnected
	stop := s.stopReader
	s.stopReader = nil
	ex := s.pending
	s.pending = nil
	s.mu.Unlock()

	cerr := &ConnectionError{Op: "read", Addr: s.dialer.Addr(), Err: err}
	s.logger.Warn().Err(err).Msg("connection lost")

	if ex != nil {
		ex.fail(cerr)
	}
	if stop != nil {
		stop()
	}
	_ = conn.Close()
	s.notify(StateDisconnected, cerr)
}

func (s *Session) setState(state State, err error) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.notify(state, err)
}

func (s *Session) notify(state State, err error) {
	if s.observer != nil {
		s.observer(state, err)
	}
}
