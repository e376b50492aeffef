// Package ws provides the WebSocket transport for the chat client and the
// development stream server, built on gobwas/ws.
package ws

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

const (
	// closeTimeout bounds how long Close waits to write the close frame.
	closeTimeout = time.Second

	// DefaultMaxMessageSize caps inbound messages when no option is given.
	DefaultMaxMessageSize int64 = 64 << 10
)

// ErrMessageTooLarge is returned by Read when an inbound message exceeds the
// size limit. The connection cannot be read from afterwards.
var ErrMessageTooLarge = errors.New("ws: message too large")

// Option configures a connection.
type Option func(*options)

type options struct {
	maxMessageSize int64
}

// WithMaxMessageSize caps the payload size of one inbound message, summed
// over its fragments. n <= 0 keeps the default.
func WithMaxMessageSize(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxMessageSize = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{maxMessageSize: DefaultMaxMessageSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Conn adapts a gobwas/ws connection to chat.Conn.
// Reads must come from a single goroutine; writes may be concurrent.
type Conn struct {
	conn       net.Conn
	reader     io.Reader
	state      ws.State
	remoteAddr string
	maxSize    int64

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// newConn wraps conn. reader may be a buffered reader left over from the
// handshake; nil means read from conn directly.
func newConn(conn net.Conn, reader io.Reader, state ws.State, o options) *Conn {
	if reader == nil {
		reader = conn
	}
	return &Conn{
		conn:       conn,
		reader:     reader,
		state:      state,
		remoteAddr: conn.RemoteAddr().String(),
		maxSize:    o.maxMessageSize,
	}
}

// Read implements chat.Conn.
// Returns the payload of the next text or binary message. Ping and close
// frames are answered internally; a close from the peer surfaces as a
// wsutil.ClosedError.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	data, err := c.readData()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return data, nil
}

func (c *Conn) readData() ([]byte, error) {
	rd := wsutil.Reader{
		Source:         c.reader,
		State:          c.state,
		CheckUTF8:      true,
		MaxFrameSize:   c.maxSize,
		OnIntermediate: c.handleControl,
	}
	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			if errors.Is(err, wsutil.ErrFrameTooLarge) {
				return nil, ErrMessageTooLarge
			}
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := c.handleControl(hdr, &rd); err != nil {
				return nil, err
			}
			continue
		}
		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := rd.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		return c.readMessage(&rd)
	}
}

// readMessage reads the rest of the current message, fragments included,
// refusing to buffer more than maxSize bytes.
func (c *Conn) readMessage(rd *wsutil.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(rd, c.maxSize+1))
	if err != nil {
		if errors.Is(err, wsutil.ErrFrameTooLarge) {
			return nil, ErrMessageTooLarge
		}
		return nil, err
	}
	if int64(len(data)) > c.maxSize {
		return nil, ErrMessageTooLarge
	}
	return data, nil
}

// handleControl answers ping and close frames. The reply is assembled in
// memory first so it reaches the socket in one locked write.
func (c *Conn) handleControl(hdr ws.Header, r io.Reader) error {
	var reply bytes.Buffer
	handler := wsutil.ControlHandler{
		Src:                 r,
		Dst:                 &reply,
		State:               c.state,
		DisableSrcCiphering: true,
	}
	err := handler.Handle(hdr)

	if reply.Len() > 0 {
		c.writeMu.Lock()
		_, werr := c.conn.Write(reply.Bytes())
		c.writeMu.Unlock()
		if err == nil && werr != nil {
			err = werr
		}
	}
	return err
}

// Write implements chat.Conn.
// Writes a single text message.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	return c.WriteMessage(ctx, ws.OpText, data)
}

// WriteBinary writes a single binary message.
func (c *Conn) WriteBinary(ctx context.Context, data []byte) error {
	return c.WriteMessage(ctx, ws.OpBinary, data)
}

// WriteMessage writes one message with the given opcode, honouring the
// context deadline.
func (c *Conn) WriteMessage(ctx context.Context, op ws.OpCode, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return wsutil.WriteMessage(c.conn, c.state, op, data)
}

// Close implements chat.Conn.
// Sends a normal-closure frame and closes the socket. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(closeTimeout))
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = wsutil.WriteMessage(c.conn, c.state, ws.OpClose, body)
		c.writeMu.Unlock()

		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// IsClosed reports whether err means the peer closed the connection, either
// with a close frame or by dropping the socket.
func IsClosed(err error) bool {
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
