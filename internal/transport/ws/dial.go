package ws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gobwas/ws"

	"github.com/omochice/toy-stream-chat/internal/chat"
)

// Dialer opens client connections to one fixed WebSocket URL.
type Dialer struct {
	url     string
	timeout time.Duration
	opts    options
}

var _ chat.Dialer = (*Dialer)(nil)

// NewDialer creates a Dialer for url. A zero timeout means no limit beyond
// the context passed to Dial.
func NewDialer(url string, timeout time.Duration, opts ...Option) *Dialer {
	return &Dialer{url: url, timeout: timeout, opts: buildOptions(opts)}
}

// Addr implements chat.Dialer.
func (d *Dialer) Addr() string {
	return d.url
}

// Dial implements chat.Dialer.
// Returns once the opening handshake has completed.
func (d *Dialer) Dial(ctx context.Context) (chat.Conn, error) {
	dialer := ws.Dialer{Timeout: d.timeout}
	conn, br, _, err := dialer.Dial(ctx, d.url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", d.url, err)
	}
	// br holds frames the server sent right after the handshake, if any.
	if br != nil {
		return newConn(conn, br, ws.StateClientSide, d.opts), nil
	}
	return newConn(conn, nil, ws.StateClientSide, d.opts), nil
}

// Upgrade accepts a WebSocket handshake on the server side.
func Upgrade(w http.ResponseWriter, r *http.Request, opts ...Option) (*Conn, error) {
	conn, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}
	return newConn(conn, rw.Reader, ws.StateServerSide, buildOptions(opts)), nil
}
