package store

import "strings"

// Tokenize lowercases text and splits it on Unicode whitespace. Punctuation
// stays attached to words, so "data." and "data" are different terms.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
