package telegram

import (
	"strings"
	"unicode/utf8"
)

// Telegram rejects messages over 4096 characters. Chunks are cut from
// the markdown source, so the budget keeps headroom for the tag
// overhead HTML rendering adds.
const (
	MessageLimit = 4096
	chunkBudget  = MessageLimit - 512
)

// ChunkMessage splits markdown into pieces that fit a single Telegram
// message after rendering. Splits prefer paragraph breaks, then lines,
// then sentence ends; a split landing inside a code fence closes the
// fence and reopens it in the next chunk.
func ChunkMessage(text string) []string {
	if len(text) <= chunkBudget {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > chunkBudget {
		cut := splitPoint(remaining, chunkBudget)
		chunk := remaining[:cut]
		remaining = strings.TrimLeft(remaining[cut:], " \t\r\n")

		if strings.Count(chunk, "```")%2 == 1 {
			chunk += "\n```"
			remaining = "```\n" + remaining
		}
		chunks = append(chunks, chunk)
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

// splitPoint finds a cut position at or below max. Boundaries past the
// halfway mark win so chunks stay reasonably full.
func splitPoint(text string, max int) int {
	if idx := strings.LastIndex(text[:max], "\n\n"); idx >= max/2 {
		return idx
	}
	if idx := strings.LastIndex(text[:max], "\n"); idx >= max/2 {
		return idx
	}
	if idx := strings.LastIndex(text[:max], ". "); idx >= max/2 {
		return idx + 1
	}
	if idx := strings.LastIndex(text[:max], " "); idx >= max/3 {
		return idx
	}

	// Forced cut. Back off to a rune boundary.
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return cut
}
