// Package chat implements the streaming chat session: one connection to the
// AI server and at most one outstanding request/response exchange on it.
package chat

import "context"

// Conn abstracts a bidirectional message connection.
// This interface isolates transport details from session logic.
type Conn interface {
	// Read reads a single inbound message frame.
	// Returns an error once the connection is closed or broken.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single text frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Dialer opens connections to the session's one remote endpoint.
type Dialer interface {
	// Dial returns once the transport is open. An error means the transport
	// failed or closed before reaching the open state.
	Dial(ctx context.Context) (Conn, error)

	// Addr returns the endpoint address for errors and logs.
	Addr() string
}
