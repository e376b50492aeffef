// Package render turns assistant replies into terminal output: markdown via
// glamour, math as code, and chroma highlighting when glamour is unavailable.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Options configures a Renderer.
type Options struct {
	// Style is a glamour style name or a path to a style file. Empty or
	// "auto" picks one from the terminal background.
	Style     string
	WordWrap  int
	CodeStyle string
}

// Renderer renders markdown for the terminal. Not safe for concurrent use.
type Renderer struct {
	md        *glamour.TermRenderer
	codeStyle string
}

// New builds a glamour-backed renderer.
func New(opts Options) (*Renderer, error) {
	style := glamour.WithAutoStyle()
	if opts.Style != "" && opts.Style != "auto" {
		style = glamour.WithStylePath(opts.Style)
	}
	md, err := glamour.NewTermRenderer(
		style,
		glamour.WithWordWrap(opts.WordWrap),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return &Renderer{md: md, codeStyle: opts.CodeStyle}, nil
}

// Plain returns a renderer that only highlights code blocks.
func Plain(codeStyle string) *Renderer {
	return &Renderer{codeStyle: codeStyle}
}

// Markdown renders text. Math is converted first. If glamour fails the text
// is returned with its code blocks highlighted.
func (r *Renderer) Markdown(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	text = ConvertMath(text)
	if r.md != nil {
		out, err := r.md.Render(text)
		if err == nil {
			return out
		}
	}
	return r.fallback(text)
}

func (r *Renderer) fallback(text string) string {
	var b strings.Builder
	for _, seg := range splitFences(text) {
		if !seg.code {
			b.WriteString(seg.text)
			continue
		}
		b.WriteString(Highlight(seg.block.Code, seg.block.Language, r.codeStyle))
		if !strings.HasSuffix(seg.block.Code, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
