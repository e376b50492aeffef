package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when an operation needs an open connection.
	ErrNotConnected = errors.New("not connected to server")

	// ErrEmptyMessage is returned when the message is blank after trimming.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrExchangePending is returned when a message is sent (or the
	// conversation cleared) while a reply is still streaming.
	ErrExchangePending = errors.New("a reply is still streaming")

	// ErrDisconnected is the cause recorded when the caller closes the
	// connection under a pending exchange.
	ErrDisconnected = errors.New("disconnected by client")
)

// ConnectionError reports that the transport failed to open or broke while open.
type ConnectionError struct {
	// Op is "dial", "read" or "close".
	Op   string
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// SendError reports that the transport rejected an outbound frame.
type SendError struct {
	// Frame names what was being sent: "message" or a control type.
	Frame string
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send %s: %v", e.Frame, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
