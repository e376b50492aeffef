package render

import (
	"regexp"
	"strings"
)

// CodeBlock is one fenced block of a reply.
type CodeBlock struct {
	Language string
	Code     string
	// Closed is false for a block still being streamed.
	Closed bool
}

// CodeBlocks returns the fenced code blocks in text, in order.
func CodeBlocks(text string) []CodeBlock {
	var blocks []CodeBlock
	for _, seg := range splitFences(text) {
		if seg.code {
			blocks = append(blocks, seg.block)
		}
	}
	return blocks
}

var (
	displayMath = regexp.MustCompile(`(?s)\$\$(.+?)\$\$`)
	// Inline math may not start or end with a space, so "$5 and $10" is
	// left alone.
	inlineMath = regexp.MustCompile(`\$([^\s$](?:[^$\n]*[^\s$])?)\$`)
)

// ConvertMath rewrites $$…$$ as fenced latex blocks and $…$ as inline code,
// outside existing code blocks.
func ConvertMath(text string) string {
	if !strings.Contains(text, "$") {
		return text
	}
	var b strings.Builder
	for _, seg := range splitFences(text) {
		if seg.code {
			b.WriteString(seg.text)
			continue
		}
		prose := displayMath.ReplaceAllStringFunc(seg.text, func(m string) string {
			body := strings.TrimSpace(m[2 : len(m)-2])
			return "\n```latex\n" + body + "\n```\n"
		})
		prose = inlineMath.ReplaceAllString(prose, "`$1`")
		b.WriteString(prose)
	}
	return b.String()
}

type segment struct {
	text  string
	code  bool
	block CodeBlock
}

// splitFences cuts text into prose and fenced code segments. Joining the
// segment texts gives back text.
func splitFences(text string) []segment {
	var (
		segs   []segment
		cur    strings.Builder
		body   strings.Builder
		inCode bool
		fence  string
		lang   string
	)

	flushProse := func() {
		if cur.Len() > 0 {
			segs = append(segs, segment{text: cur.String()})
			cur.Reset()
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !inCode {
			if marker, info, ok := openFence(trimmed); ok {
				flushProse()
				inCode = true
				fence = marker
				lang = info
				body.Reset()
			}
			cur.WriteString(line)
			continue
		}

		cur.WriteString(line)
		if strings.HasPrefix(trimmed, fence) && strings.Trim(trimmed, fence[:1]) == "" {
			segs = append(segs, segment{
				text:  cur.String(),
				code:  true,
				block: CodeBlock{Language: lang, Code: body.String(), Closed: true},
			})
			cur.Reset()
			inCode = false
			continue
		}
		body.WriteString(line)
	}

	if inCode {
		segs = append(segs, segment{
			text:  cur.String(),
			code:  true,
			block: CodeBlock{Language: lang, Code: body.String()},
		})
		return segs
	}
	flushProse()
	return segs
}

// openFence reports whether line opens a fenced block and returns the fence
// marker and the info string's first word.
func openFence(line string) (marker, lang string, ok bool) {
	for _, ch := range []string{"`", "~"} {
		if !strings.HasPrefix(line, ch+ch+ch) {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, ch))
		info := strings.TrimSpace(line[n:])
		if ch == "`" && strings.Contains(info, "`") {
			return "", "", false
		}
		if fields := strings.Fields(info); len(fields) > 0 {
			lang = fields[0]
		}
		return line[:n], lang, true
	}
	return "", "", false
}
