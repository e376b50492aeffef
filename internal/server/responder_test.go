package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, r Responder, ctx context.Context, history []Turn, prompt string) ([]string, error) {
	t.Helper()
	var chunks []string
	err := r.Respond(ctx, history, prompt, func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	return chunks, err
}

func TestEchoResponder(t *testing.T) {
	chunks, err := collect(t, EchoResponder{}, context.Background(), []Turn{{Prompt: "a", Reply: "b"}}, "how are you")
	require.NoError(t, err)
	assert.Equal(t, []string{"[2] ", "how ", "are ", "you"}, chunks)
}

func TestEchoResponder_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chunks, err := collect(t, EchoResponder{Delay: time.Second}, ctx, nil, "never sent")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, chunks)
}

func TestEchoResponder_ReturnsEmitError(t *testing.T) {
	boom := errors.New("write failed")
	calls := 0
	err := EchoResponder{}.Respond(context.Background(), nil, "a b c", func(string) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}
