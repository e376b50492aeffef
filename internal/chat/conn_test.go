package chat_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/omochice/toy-stream-chat/internal/chat"
)

// mockConn is a scripted implementation of chat.Conn for testing.
// Frames pushed with deliver are returned by Read in order; drop makes the
// next Read fail.
type mockConn struct {
	readCh     chan []byte
	dropCh     chan error
	reads      atomic.Int32
	writtenMu  sync.Mutex
	written    [][]byte
	writeErr   error
	closed     atomic.Bool
	remoteAddr string
}

func newMockConn(addr string) *mockConn {
	return &mockConn{
		readCh:     make(chan []byte, 64),
		dropCh:     make(chan error, 1),
		remoteAddr: addr,
	}
}

func (m *mockConn) Read(ctx context.Context) ([]byte, error) {
	m.reads.Add(1)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-m.dropCh:
		return nil, err
	case data, ok := <-m.readCh:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	}
}

func (m *mockConn) Write(ctx context.Context, data []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	if m.closed.Load() {
		return errors.New("use of closed connection")
	}
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	m.written = append(m.written, copied)
	return nil
}

func (m *mockConn) Close() error {
	m.closed.Store(true)
	return nil
}

func (m *mockConn) RemoteAddr() string {
	return m.remoteAddr
}

func (m *mockConn) deliver(frames ...string) {
	for _, f := range frames {
		m.readCh <- []byte(f)
	}
}

func (m *mockConn) drop(err error) {
	m.dropCh <- err
}

// readsAtLeast reports whether Read has been entered n times, i.e. the
// first n-1 frames have been handled by the session.
func (m *mockConn) readsAtLeast(n int32) bool {
	return m.reads.Load() >= n
}

func (m *mockConn) GetWritten() []string {
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	out := make([]string, len(m.written))
	for i, w := range m.written {
		out[i] = string(w)
	}
	return out
}

// mockDialer hands out queued connections, or fails with err.
type mockDialer struct {
	mu    sync.Mutex
	conns []*mockConn
	err   error
	dials int
}

func (d *mockDialer) Dial(ctx context.Context) (chat.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	if len(d.conns) == 0 {
		return nil, errors.New("connection refused")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *mockDialer) Addr() string {
	return "ws://mock/ws"
}

// Compile-time checks that the mocks implement the chat interfaces
var (
	_ chat.Conn   = (*mockConn)(nil)
	_ chat.Dialer = (*mockDialer)(nil)
)
