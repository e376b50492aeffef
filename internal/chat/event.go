package chat

// EventKind tags a StreamEvent.
type EventKind int

const (
	EventChunk EventKind = iota
	EventDone
	EventError
)

// String returns the string representation of EventKind
func (k EventKind) String() string {
	switch k {
	case EventChunk:
		return "CHUNK"
	case EventDone:
		return "DONE"
	case EventError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// StreamEvent is what the presentation layer receives per inbound frame.
type StreamEvent struct {
	Kind EventKind

	// Text is the accumulated reply: the growing text for a chunk, the full
	// text for Done and whatever had arrived for Error.
	Text string

	// Delta is the sanitised text this chunk added.
	Delta string

	// Cancelled marks a Done produced by cancellation rather than the
	// terminal marker.
	Cancelled bool

	Err error
}

func (ev StreamEvent) terminal() bool {
	return ev.Kind != EventChunk
}

// Callbacks receive the events of one exchange, in arrival order, on a
// goroutine owned by the exchange. Any of them may be nil. After OnComplete
// or OnError nothing else is called.
type Callbacks struct {
	// OnUpdate gets the accumulated text so far; each call supersedes the
	// previous one.
	OnUpdate   func(partial string)
	OnComplete func(full string)
	OnError    func(err error)
}

func (cb Callbacks) sink() func(StreamEvent) {
	return func(ev StreamEvent) {
		switch ev.Kind {
		case EventChunk:
			if cb.OnUpdate != nil {
				cb.OnUpdate(ev.Text)
			}
		case EventDone:
			if cb.OnComplete != nil {
				cb.OnComplete(ev.Text)
			}
		case EventError:
			if cb.OnError != nil {
				cb.OnError(ev.Err)
			}
		}
	}
}
