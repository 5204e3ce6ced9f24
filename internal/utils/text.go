package utils

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// SplitMessage breaks text into chunks of at most maxLen runes so each fits
// inside a single Telegram message. It prefers paragraph, line, sentence and
// word boundaries, but only when the break lands past 70% of the window so
// chunks stay reasonably full. Chunks after the first carry a continuation
// header.
func SplitMessage(text string, maxLen int) []string {
	if utf8.RuneCountInString(text) <= maxLen {
		return []string{text}
	}
	var chunks []string
	remaining := []rune(text)
	for len(remaining) > 0 {
		if len(remaining) <= maxLen {
			chunks = append(chunks, string(remaining))
			break
		}
		window := string(remaining[:maxLen])
		splitAt := maxLen
		for _, sep := range []string{"\n\n", "\n", ". ", " "} {
			if pos := lastRuneIndex(window, sep); pos > maxLen*7/10 {
				splitAt = pos + utf8.RuneCountInString(sep)
				break
			}
		}
		chunks = append(chunks, string(remaining[:splitAt]))
		remaining = remaining[splitAt:]
	}
	for i := 1; i < len(chunks); i++ {
		chunks[i] = fmt.Sprintf("(continuação %d):\n\n%s", i+1, chunks[i])
	}
	return chunks
}

// lastRuneIndex reports the rune offset of the last occurrence of sep, or -1.
func lastRuneIndex(s, sep string) int {
	pos := strings.LastIndex(s, sep)
	if pos < 0 {
		return -1
	}
	return utf8.RuneCountInString(s[:pos])
}
