package telegram

import "testing"

func TestMarkdownToHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "emphasis",
			in:   "**bold** and *italic*",
			want: "<b>bold</b> and <i>italic</i>",
		},
		{
			name: "code span escapes html",
			in:   "compare `x < y` here",
			want: "compare <code>x &lt; y</code> here",
		},
		{
			name: "heading becomes bold",
			in:   "# Standings",
			want: "<b>Standings</b>",
		},
		{
			name: "link",
			in:   "[site](https://example.com)",
			want: `<a href="https://example.com">site</a>`,
		},
		{
			name: "autolink",
			in:   "<https://example.com>",
			want: `<a href="https://example.com">https://example.com</a>`,
		},
		{
			name: "bullet list",
			in:   "- first\n- second",
			want: "• first\n• second",
		},
		{
			name: "ordered list",
			in:   "1. first\n2. second",
			want: "1. first\n2. second",
		},
		{
			name: "fenced code keeps language",
			in:   "```go\nx := 1\n```",
			want: "<pre><code class=\"language-go\">x := 1\n</code></pre>",
		},
		{
			name: "raw html is escaped",
			in:   "a <b>bold</b> tag",
			want: "a &lt;b&gt;bold&lt;/b&gt; tag",
		},
		{
			name: "blockquote",
			in:   "> quoted",
			want: "▎quoted",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MarkdownToHTML(tt.in); got != tt.want {
				t.Errorf("MarkdownToHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
