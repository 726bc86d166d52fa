package llm

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	maxSentences     = 5
	maxDataSentences = 6
)

var digitPattern = regexp.MustCompile(`\d`)

// SplitSentences splits text on terminal punctuation followed by
// whitespace. Decimal points and mid-token dots survive because a
// boundary needs trailing whitespace or end of text.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Absorb a terminator run ("?!", "...").
		j := i
		for j+1 < len(runes) && (runes[j+1] == '.' || runes[j+1] == '!' || runes[j+1] == '?') {
			j++
		}
		if j+1 < len(runes) && !unicode.IsSpace(runes[j+1]) {
			i = j
			continue
		}
		if s := strings.TrimSpace(string(runes[start : j+1])); s != "" {
			sentences = append(sentences, s)
		}
		i = j
		start = j + 1
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// LimitSentences caps completion length: 5 sentences normally, 6 when
// the text carries numeric tokens. When truncation would drop the final
// sentence of a numeric answer and that sentence holds numbers, it is
// kept so a stat answer is not cut off before its figures.
func LimitSentences(text string) string {
	sentences := SplitSentences(text)

	limit := maxSentences
	dataDriven := digitPattern.MatchString(text)
	if dataDriven {
		limit = maxDataSentences
	}
	if len(sentences) <= limit {
		return strings.TrimSpace(text)
	}

	last := sentences[len(sentences)-1]
	if dataDriven && digitPattern.MatchString(last) {
		kept := make([]string, 0, limit)
		kept = append(kept, sentences[:limit-1]...)
		kept = append(kept, last)
		return strings.Join(kept, " ")
	}
	return strings.Join(sentences[:limit], " ")
}
