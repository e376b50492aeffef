package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/omochice/toy-stream-chat/internal/render"
)

// printer writes a streamed reply. Each update only prints what was added.
// With a renderer the raw text is replaced by rendered markdown once the
// reply is complete.
type printer struct {
	out      io.Writer
	renderer *render.Renderer
	width    int

	printed string
}

func (p *printer) update(partial string) {
	delta := partial
	if strings.HasPrefix(partial, p.printed) {
		delta = partial[len(p.printed):]
	}
	fmt.Fprint(p.out, delta)
	p.printed = partial
}

func (p *printer) complete(full string) {
	p.update(full)
	defer func() { p.printed = "" }()

	if p.renderer == nil || strings.TrimSpace(full) == "" {
		fmt.Fprintln(p.out)
		return
	}
	p.erase()
	fmt.Fprint(p.out, p.renderer.Markdown(full))
}

// fail ends a reply that broke off, leaving what was printed in place.
func (p *printer) fail(err error) {
	if p.printed != "" {
		fmt.Fprintln(p.out)
	}
	fmt.Fprintf(p.out, "[reply interrupted: %v]\n", err)
	p.printed = ""
}

// erase moves the cursor back over the raw reply and clears it.
func (p *printer) erase() {
	rows := rowsUsed(p.printed, p.width)
	if rows > 1 {
		fmt.Fprintf(p.out, "\x1b[%dF", rows-1)
	} else {
		fmt.Fprint(p.out, "\r")
	}
	fmt.Fprint(p.out, "\x1b[J")
}

// rowsUsed counts the terminal rows text occupies at the given width.
func rowsUsed(text string, width int) int {
	rows := 0
	for _, line := range strings.Split(text, "\n") {
		w := lipgloss.Width(line)
		if width <= 0 || w <= width {
			rows++
			continue
		}
		rows += (w + width - 1) / width
	}
	return rows
}
