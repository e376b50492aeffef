package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeBlocks(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []CodeBlock
	}{
		{
			name: "none",
			text: "just prose",
			want: nil,
		},
		{
			name: "one with language",
			text: "Try this:\n```go\nfmt.Println(\"hi\")\n```\nDone.",
			want: []CodeBlock{{Language: "go", Code: "fmt.Println(\"hi\")\n", Closed: true}},
		},
		{
			name: "two blocks and tilde fence",
			text: "```\na\n```\ntext\n~~~python\nb\nc\n~~~\n",
			want: []CodeBlock{
				{Code: "a\n", Closed: true},
				{Language: "python", Code: "b\nc\n", Closed: true},
			},
		},
		{
			name: "still streaming",
			text: "```sh\nls -la\n",
			want: []CodeBlock{{Language: "sh", Code: "ls -la\n"}},
		},
		{
			name: "longer closing fence",
			text: "```js\nx\n`````\n",
			want: []CodeBlock{{Language: "js", Code: "x\n", Closed: true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeBlocks(tt.text))
		})
	}
}

func TestSplitFences_PreservesText(t *testing.T) {
	text := "a\n```go\nx := 1\n```\nb $x$\n```\nunclosed"
	var b strings.Builder
	for _, seg := range splitFences(text) {
		b.WriteString(seg.text)
	}
	assert.Equal(t, text, b.String())
}

func TestConvertMath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "no math", in: "plain", want: "plain"},
		{name: "inline", in: "area is $\\pi r^2$ here", want: "area is `\\pi r^2` here"},
		{name: "display", in: "see $$ E = mc^2 $$ now", want: "see \n```latex\nE = mc^2\n```\n now"},
		{name: "prices untouched", in: "costs $5 and $10", want: "costs $5 and $10"},
		{name: "inside code untouched", in: "```sh\necho $HOME$\n```\n", want: "```sh\necho $HOME$\n```\n"},
		{name: "multi-line display", in: "$$\na\nb\n$$", want: "\n```latex\na\nb\n```\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConvertMath(tt.in))
		})
	}
}
