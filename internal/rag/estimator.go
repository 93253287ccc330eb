package rag

import "unicode"

// TokenEstimator approximates how many model tokens a text costs.
type TokenEstimator interface {
	Estimate(text string) int
}

// CharClassEstimator charges one token per 1.5 wide runes (Han, Hiragana, Katakana, Hangul)
// and one token per 4 other runes, rounded up. It approximates a tokenizer; it is not one.
type CharClassEstimator struct{}

// Estimate returns the approximate token count of text.
func (CharClassEstimator) Estimate(text string) int {
	var wide, narrow int
	for _, r := range text {
		if isWide(r) {
			wide++
		} else {
			narrow++
		}
	}
	// wide/1.5 + narrow/4 over a common denominator of 12.
	return (wide*8 + narrow*3 + 11) / 12
}

func isWide(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
