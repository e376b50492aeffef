package ui

import (
	"github.com/omochice/toy-stream-chat/internal/chat"
)

// StateMsg reports a session state change. Send it to the program from the
// session's state observer.
type StateMsg struct {
	State chat.State
	Err   error
}

type connectedMsg struct {
	err error
}

// streamStartedMsg carries the event channel of a new exchange.
type streamStartedMsg struct {
	events <-chan chat.StreamEvent
	err    error
}

type streamEventMsg struct {
	event  chat.StreamEvent
	events <-chan chat.StreamEvent
}

type controlDoneMsg struct {
	action  string
	cleared bool
	err     error
}

type copiedMsg struct {
	what string
	err  error
}
