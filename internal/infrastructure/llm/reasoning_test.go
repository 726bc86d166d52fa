package llm

import "testing"

func TestStripReasoning(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "no tags passes through",
			in:   "The answer is 4.",
			want: "The answer is 4.",
		},
		{
			name: "think block removed",
			in:   "<think>2+2, carry nothing</think>The answer is 4.",
			want: "The answer is 4.",
		},
		{
			name: "block in the middle",
			in:   "Sure. <think>recall the date</think>It was 1969.",
			want: "Sure. It was 1969.",
		},
		{
			name: "multiple blocks",
			in:   "A<think>x</think>B<thinking>y</thinking>C",
			want: "ABC",
		},
		{
			name: "unclosed tag swallows tail",
			in:   "Here you go.<think>actually wait",
			want: "Here you go.",
		},
		{
			name: "case insensitive with attributes",
			in:   `<THINK depth="2">hmm</THINK>Done.`,
			want: "Done.",
		},
		{
			name: "thought variant",
			in:   "<thought>silent</thought>Spoken.",
			want: "Spoken.",
		},
		{
			name: "stray closing tag dropped",
			in:   "left</think>right",
			want: "leftright",
		},
		{
			name: "fenced code preserved",
			in:   "```\n<think>not stripped</think>\n```\nAfter.",
			want: "```\n<think>not stripped</think>\n```\nAfter.",
		},
		{
			name: "inline code preserved",
			in:   "Wrap it in `<think>` tags.",
			want: "Wrap it in `<think>` tags.",
		},
		{
			name: "entirely reasoning becomes empty",
			in:   "<think>all of this is internal</think>",
			want: "",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripReasoning(tc.in); got != tc.want {
				t.Errorf("StripReasoning(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
