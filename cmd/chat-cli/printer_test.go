package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/omochice/toy-stream-chat/internal/render"
)

func TestPrinter_PrintsDeltas(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{out: &buf}

	p.update("Hel")
	p.update("Hello")
	p.update("Hello, world")
	p.complete("Hello, world")

	assert.Equal(t, "Hello, world\n", buf.String())
	assert.Empty(t, p.printed)
}

func TestPrinter_CompleteWithoutUpdates(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{out: &buf}

	p.complete("")
	assert.Equal(t, "\n", buf.String())
}

func TestPrinter_RendersAfterCompletion(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{out: &buf, renderer: render.Plain("monokai"), width: 80}

	p.update("```go\n")
	p.complete("```go\nx := 1\n```")

	out := buf.String()
	assert.Contains(t, out, "\x1b[2F\x1b[J")
	assert.Contains(t, out, ":=")
}

func TestPrinter_Fail(t *testing.T) {
	var buf bytes.Buffer
	p := &printer{out: &buf}

	p.update("partial")
	p.fail(errors.New("dropped"))
	assert.Equal(t, "partial\n[reply interrupted: dropped]\n", buf.String())
	assert.Empty(t, p.printed)

	buf.Reset()
	p.fail(errors.New("refused"))
	assert.Equal(t, "[reply interrupted: refused]\n", buf.String())
}

func TestRowsUsed(t *testing.T) {
	assert.Equal(t, 1, rowsUsed("", 80))
	assert.Equal(t, 1, rowsUsed("short", 80))
	assert.Equal(t, 3, rowsUsed("a\nb\nc", 80))
	assert.Equal(t, 3, rowsUsed("1234567890", 4))
	assert.Equal(t, 2, rowsUsed("abc\n", 0))
}
