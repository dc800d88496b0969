package report

import (
	"strings"
)

// WrapText greedily fills lines: a word joins the current line while the
// line still measures within maxWidth, otherwise the line is flushed. Words
// wider than maxWidth on their own are broken by rune.
func WrapText(text string, maxWidth float64, measure func(string) float64) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	current := ""

	for _, word := range words {
		if measure(word) > maxWidth {
			if current != "" {
				lines = append(lines, current)
				current = ""
			}
			pieces := breakWord(word, maxWidth, measure)
			lines = append(lines, pieces[:len(pieces)-1]...)
			current = pieces[len(pieces)-1]
			continue
		}

		if current == "" {
			current = word
			continue
		}

		candidate := current + " " + word
		if measure(candidate) <= maxWidth {
			current = candidate
			continue
		}

		lines = append(lines, current)
		current = word
	}

	if current != "" {
		lines = append(lines, current)
	}

	return lines
}

// WrapParagraphs wraps each line break separated paragraph on its own.
func WrapParagraphs(text string, maxWidth float64, measure func(string) float64) []string {
	var lines []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		wrapped := WrapText(para, maxWidth, measure)
		if len(wrapped) == 0 {
			wrapped = []string{""}
		}
		lines = append(lines, wrapped...)
	}

	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func breakWord(word string, maxWidth float64, measure func(string) float64) []string {
	var pieces []string
	var current []rune

	for _, r := range word {
		next := append(current, r)
		if len(current) > 0 && measure(string(next)) > maxWidth {
			pieces = append(pieces, string(current))
			current = []rune{r}
			continue
		}
		current = next
	}

	return append(pieces, string(current))
}
