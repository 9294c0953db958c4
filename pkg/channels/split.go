package channels

import (
	"strings"
	"unicode/utf8"
)

const (
	slackChunkRunes    = 3900
	discordChunkRunes  = 1900
	telegramChunkRunes = 3900
)

// splitMessage breaks text into chunks of at most maxRunes, preferring line
// breaks and then spaces in the back half of each window. Blank input yields
// no chunks.
func splitMessage(text string, maxRunes int) []string {
	if maxRunes <= 0 {
		maxRunes = slackChunkRunes
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return []string{}
	}

	runes := []rune(text)
	chunks := make([]string, 0, len(runes)/maxRunes+1)

	for len(runes) > 0 {
		if len(runes) <= maxRunes {
			if chunk := strings.TrimSpace(string(runes)); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		split := bestSplitIndex(runes, maxRunes)
		if chunk := strings.TrimSpace(string(runes[:split])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[split:]
	}

	return chunks
}

func bestSplitIndex(runes []rune, maxRunes int) int {
	if len(runes) <= maxRunes {
		return len(runes)
	}

	minSearch := maxRunes / 2

	for i := maxRunes; i >= minSearch; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	for i := maxRunes; i >= minSearch; i-- {
		if runes[i-1] == ' ' || runes[i-1] == '\t' {
			return i
		}
	}

	return maxRunes
}

func runeCount(s string) int {
	return utf8.RuneCountInString(s)
}
