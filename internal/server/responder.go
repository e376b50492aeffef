package server

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Turn is one completed prompt and reply in a connection's conversation.
type Turn struct {
	Prompt string
	Reply  string
	// Stopped marks a reply cut short by stop_generation.
	Stopped bool
}

// Responder produces the reply to prompt. It calls emit once per chunk, in
// order, and should return promptly once ctx is done. An error from emit
// must be returned.
type Responder interface {
	Respond(ctx context.Context, history []Turn, prompt string, emit func(chunk string) error) error
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, history []Turn, prompt string, emit func(chunk string) error) error

// Respond implements Responder.
func (f ResponderFunc) Respond(ctx context.Context, history []Turn, prompt string, emit func(chunk string) error) error {
	return f(ctx, history, prompt, emit)
}

// EchoResponder streams the prompt back word by word, prefixed with the turn
// number, pausing Delay before each chunk.
type EchoResponder struct {
	Delay time.Duration
}

// Respond implements Responder.
func (r EchoResponder) Respond(ctx context.Context, history []Turn, prompt string, emit func(chunk string) error) error {
	reply := fmt.Sprintf("[%d] %s", len(history)+1, prompt)
	for _, word := range strings.SplitAfter(reply, " ") {
		if err := sleep(ctx, r.Delay); err != nil {
			return err
		}
		if err := emit(word); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
