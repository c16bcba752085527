// Package textnorm provides unicode-aware text normalization for lyrics
// scanning and catalog search queries.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	punctRegex      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Fold lowercases text, decomposes accented characters to their base form
// and collapses punctuation and whitespace. "Mötley Crüe!" -> "motley crue".
func Fold(text string) string {
	text = norm.NFKD.String(text)

	var result strings.Builder
	for _, r := range text {
		if !unicode.IsMark(r) {
			result.WriteRune(r)
		}
	}
	text = result.String()

	text = punctRegex.ReplaceAllString(text, " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")

	text = strings.ToLower(text)
	return strings.TrimSpace(text)
}

// ContainsTerm reports whether the folded text contains term as a whole
// word or phrase. Both sides are folded before matching.
func ContainsTerm(text, term string) bool {
	folded := " " + Fold(text) + " "
	needle := " " + Fold(term) + " "
	return strings.Contains(folded, needle)
}
