package llm

import (
	"regexp"
	"strings"
)

// Local reasoning models (DeepSeek-R1, Qwen3 and friends) interleave a
// thinking monologue with the answer, wrapped in <think> style tags.
// The router strips those blocks so the monologue never reaches a user.

// reasoningQuickRe is the cheap pre-check; most completions carry no tags.
var reasoningQuickRe = regexp.MustCompile(`(?i)<\s*/?\s*(?:think(?:ing)?|thought)\b`)

// reasoningTagRe matches opening and closing tags. Group 1 captures "/"
// on a closing tag.
var reasoningTagRe = regexp.MustCompile(`(?i)<\s*(/?)\s*(?:think(?:ing)?|thought)\b[^<>]*>`)

var inlineCodeRe = regexp.MustCompile("`+[^`]+`+")

// StripReasoning removes thinking blocks from a completion. Tags inside
// fenced or inline code are left alone so an answer about the tags
// themselves survives intact. An unclosed tag swallows the rest of the
// text rather than leak a partial monologue.
func StripReasoning(text string) string {
	if text == "" || !reasoningQuickRe.MatchString(text) {
		return text
	}

	code := codeSpans(text)
	matches := reasoningTagRe.FindAllStringSubmatchIndex(text, -1)

	var out strings.Builder
	out.Grow(len(text))

	last := 0
	inThinking := false
	for _, m := range matches {
		start, end := m[0], m[1]
		closing := m[2] != m[3]

		if insideSpan(start, code) {
			continue
		}

		if !inThinking {
			out.WriteString(text[last:start])
			if !closing {
				inThinking = true
			}
		} else if closing {
			inThinking = false
		}
		last = end
	}
	if !inThinking {
		out.WriteString(text[last:])
	}
	return strings.TrimSpace(out.String())
}

type span struct{ start, end int }

func insideSpan(pos int, spans []span) bool {
	for _, s := range spans {
		if pos >= s.start && pos < s.end {
			return true
		}
	}
	return false
}

// codeSpans locates fenced blocks and inline code so tag stripping can
// skip them. RE2 has no backreferences, so fences are scanned by hand.
func codeSpans(text string) []span {
	spans := fencedSpans(text, "```")
	spans = append(spans, fencedSpans(text, "~~~")...)
	for _, m := range inlineCodeRe.FindAllStringIndex(text, -1) {
		if !insideSpan(m[0], spans) {
			spans = append(spans, span{m[0], m[1]})
		}
	}
	return spans
}

func fencedSpans(text, fence string) []span {
	var spans []span
	offset := 0
	for offset < len(text) {
		idx := strings.Index(text[offset:], fence)
		if idx < 0 {
			break
		}
		start := offset + idx
		// Opening fence must sit at the start of a line.
		if start > 0 && text[start-1] != '\n' {
			offset = start + len(fence)
			continue
		}
		lineEnd := strings.Index(text[start:], "\n")
		if lineEnd < 0 {
			spans = append(spans, span{start, len(text)})
			break
		}
		closeAt := closingFence(text, start+lineEnd+1, fence)
		if closeAt < 0 {
			// Unclosed fence, rest of the text counts as code.
			spans = append(spans, span{start, len(text)})
			break
		}
		end := closeAt + len(fence)
		if nl := strings.Index(text[end:], "\n"); nl >= 0 {
			end += nl + 1
		} else {
			end = len(text)
		}
		spans = append(spans, span{start, end})
		offset = end
	}
	return spans
}

func closingFence(text string, from int, fence string) int {
	pos := from
	for pos < len(text) {
		idx := strings.Index(text[pos:], fence)
		if idx < 0 {
			return -1
		}
		cand := pos + idx
		if cand == 0 || text[cand-1] == '\n' {
			return cand
		}
		pos = cand + len(fence)
	}
	return -1
}
