package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_Markdown(t *testing.T) {
	r, err := New(Options{Style: "notty", WordWrap: 80, CodeStyle: "monokai"})
	require.NoError(t, err)

	out := r.Markdown("# Title\n\nSome **bold** text and $x^2$.")
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "bold")
	assert.Contains(t, out, "x^2")
	assert.NotContains(t, out, "$x^2$")

	assert.Empty(t, r.Markdown("  \n"))
}

func TestNew_UnknownStyle(t *testing.T) {
	_, err := New(Options{Style: "/nonexistent/style.json"})
	assert.Error(t, err)
}

func TestPlain_HighlightsCode(t *testing.T) {
	r := Plain("monokai")

	out := r.Markdown("Intro\n```go\nx := 1\n```\nOutro")
	assert.Contains(t, out, "Intro\n")
	assert.Contains(t, out, "Outro")
	assert.Contains(t, out, ":=")
	assert.Contains(t, out, "\x1b[")
	assert.NotContains(t, out, "```")
}

func TestHighlight(t *testing.T) {
	out := Highlight("package main\n", "go", "monokai")
	assert.Contains(t, out, "package")
	assert.Contains(t, out, "\x1b[")

	out = Highlight("hello world", "no-such-language", "no-such-style")
	assert.Contains(t, out, "hello")
}
