package server

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	transportws "github.com/omochice/toy-stream-chat/internal/transport/ws"
	"github.com/omochice/toy-stream-chat/pkg/protocol"
)

// client is one WebSocket connection and its conversation.
type client struct {
	conn   *transportws.Conn
	codec  protocol.Codec
	resp   Responder
	ctx    context.Context
	logger zerolog.Logger

	mu      sync.Mutex
	history []Turn

	// reply is only touched by the read loop.
	reply *reply
}

// reply is one running response.
type reply struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

func newClient(ctx context.Context, conn *transportws.Conn, codec protocol.Codec, resp Responder, logger zerolog.Logger) *client {
	return &client{
		conn:   conn,
		codec:  codec,
		resp:   resp,
		ctx:    ctx,
		logger: logger.With().Str("remote", conn.RemoteAddr()).Logger(),
	}
}

// serve reads requests until the connection drops or ctx ends.
func (c *client) serve() {
	defer c.stopReply("")

	for {
		data, err := c.conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil && !transportws.IsClosed(err) {
				c.logger.Warn().Err(err).Msg("read failed")
			}
			return
		}

		req, err := c.codec.DecodeRequest(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("discarding request")
			continue
		}

		switch req.Kind {
		case protocol.RequestMessage:
			c.logger.Debug().Str("exchange", req.ID).Int("bytes", len(req.Text)).Msg("message received")
			c.startReply(req)
		case protocol.RequestControl:
			c.handleControl(req)
		}
	}
}

func (c *client) handleControl(req protocol.Request) {
	switch req.Control {
	case protocol.ControlStopGeneration:
		if c.stopReply(req.ID) {
			c.logger.Info().Str("exchange", req.ID).Msg("generation stopped")
		}
	case protocol.ControlClearConversation:
		c.stopReply("")
		c.mu.Lock()
		c.history = nil
		c.mu.Unlock()
		c.logger.Info().Msg("conversation cleared")
	}
}

// startReply supersedes any running reply and streams a new one.
func (c *client) startReply(req protocol.Request) {
	c.stopReply("")

	ctx, cancel := context.WithCancel(c.ctx)
	r := &reply{id: req.ID, cancel: cancel, done: make(chan struct{})}
	c.reply = r

	c.mu.Lock()
	history := slices.Clone(c.history)
	c.mu.Unlock()

	go c.stream(ctx, r, history, req.Text)
}

// stopReply cancels the running reply and waits for it. A non-empty id must
// match the running reply. Reports whether a reply was stopped.
func (c *client) stopReply(id string) bool {
	r := c.reply
	if r == nil {
		return false
	}
	if id != "" && r.id != "" && id != r.id {
		return false
	}
	c.reply = nil

	select {
	case <-r.done:
		return false
	default:
	}
	r.cancel()
	<-r.done
	return true
}

func (c *client) stream(ctx context.Context, r *reply, history []Turn, prompt string) {
	defer close(r.done)
	defer r.cancel()

	var out strings.Builder
	err := c.resp.Respond(ctx, history, prompt, func(chunk string) error {
		data, err := c.codec.EncodeChunk(r.id, chunk)
		if err != nil {
			return err
		}
		if err := c.write(ctx, data); err != nil {
			return err
		}
		out.WriteString(chunk)
		return nil
	})

	stopped := ctx.Err() != nil
	c.mu.Lock()
	c.history = append(c.history, Turn{Prompt: prompt, Reply: out.String(), Stopped: stopped})
	c.mu.Unlock()

	if stopped {
		return
	}
	if err != nil {
		// The client is still waiting, so the reply is ended anyway.
		c.logger.Error().Err(err).Str("exchange", r.id).Msg("responder failed")
	}

	data, err := c.codec.EncodeDone(r.id)
	if err == nil {
		err = c.write(ctx, data)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn().Err(err).Str("exchange", r.id).Msg("failed to finish reply")
		return
	}
	c.logger.Debug().Str("exchange", r.id).Int("bytes", out.Len()).Msg("reply complete")
}

func (c *client) write(ctx context.Context, data []byte) error {
	if c.codec.Binary() {
		return c.conn.WriteBinary(ctx, data)
	}
	return c.conn.Write(ctx, data)
}
