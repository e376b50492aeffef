package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Exchange is one request and its streamed reply.
//
// Events are queued by the session while it holds its lock and handed to the
// sink by a goroutine owned by the exchange, so callbacks run outside any
// session lock and may call back into the session.
type Exchange struct {
	id     string
	sink   func(StreamEvent)
	logger zerolog.Logger

	mu        sync.Mutex
	buf       strings.Builder
	queue     []StreamEvent
	closed    bool
	cancelled bool
	result    string
	err       error
	unwatch   func() bool

	wake chan struct{}
	done chan struct{}
}

func newExchange(id string, sink func(StreamEvent), logger zerolog.Logger) *Exchange {
	return &Exchange{
		id:     id,
		sink:   sink,
		logger: logger.With().Str("exchange", id).Logger(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// ID returns the exchange identifier.
func (ex *Exchange) ID() string {
	return ex.id
}

// Done is closed after the final event has been delivered.
func (ex *Exchange) Done() <-chan struct{} {
	return ex.done
}

// Cancelled reports whether the exchange ended by cancellation.
func (ex *Exchange) Cancelled() bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.cancelled
}

// Wait blocks until the exchange ends and returns the reply text. A cancelled
// exchange resolves successfully with the text received so far. If ctx ends
// first, Wait returns ctx.Err() and the exchange keeps running.
func (ex *Exchange) Wait(ctx context.Context) (string, error) {
	select {
	case <-ex.done:
		ex.mu.Lock()
		defer ex.mu.Unlock()
		return ex.result, ex.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// start launches delivery. Events queued before start are kept.
func (ex *Exchange) start() {
	go ex.deliver()
}

// watch runs fn once if ctx ends before the exchange does.
func (ex *Exchange) watch(ctx context.Context, fn func()) {
	if ctx.Done() == nil {
		return
	}
	stop := context.AfterFunc(ctx, fn)

	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.closed {
		stop()
		return
	}
	ex.unwatch = stop
}

// appendChunk adds text to the reply and queues an update.
func (ex *Exchange) appendChunk(text string) bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.closed {
		return false
	}
	ex.buf.WriteString(text)
	ex.pushLocked(StreamEvent{Kind: EventChunk, Text: ex.buf.String(), Delta: text})
	return true
}

// complete ends the exchange successfully with the text accumulated so far.
func (ex *Exchange) complete(cancelled bool) bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.closed {
		return false
	}
	ex.closeLocked()
	ex.cancelled = cancelled
	ex.result = ex.buf.String()
	ex.pushLocked(StreamEvent{Kind: EventDone, Text: ex.result, Cancelled: cancelled})
	return true
}

// fail ends the exchange with err.
func (ex *Exchange) fail(err error) bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.closed {
		return false
	}
	ex.closeLocked()
	ex.result = ex.buf.String()
	ex.err = err
	ex.pushLocked(StreamEvent{Kind: EventError, Text: ex.result, Err: err})
	return true
}

// abandon ends an exchange that never started delivering. No callback runs.
func (ex *Exchange) abandon(err error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.closed {
		return
	}
	ex.closeLocked()
	ex.err = err
	ex.queue = nil
	close(ex.done)
}

func (ex *Exchange) closeLocked() {
	ex.closed = true
	if ex.unwatch != nil {
		ex.unwatch()
		ex.unwatch = nil
	}
}

func (ex *Exchange) pushLocked(ev StreamEvent) {
	ex.queue = append(ex.queue, ev)
	select {
	case ex.wake <- struct{}{}:
	default:
	}
}

func (ex *Exchange) deliver() {
	defer close(ex.done)
	for range ex.wake {
		ex.mu.Lock()
		events := ex.queue
		ex.queue = nil
		ex.mu.Unlock()

		for _, ev := range events {
			ex.dispatch(ev)
			if ev.terminal() {
				return
			}
		}
	}
}

func (ex *Exchange) dispatch(ev StreamEvent) {
	defer func() {
		if r := recover(); r != nil {
			ex.logger.Error().Interface("panic", r).Str("event", ev.Kind.String()).Msg("stream callback panicked")
		}
	}()
	ex.sink(ev)
}
