package rag

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperjump/sakuin/internal/models"
)

const maxSuggestions = 3

// suggest proposes follow-up queries from the most frequent result terms missing from the query.
// Terms must be longer than two runes; ties break alphabetically.
func suggest(query string, results []*models.SemanticSearchResult) []string {
	inQuery := make(map[string]struct{})
	for _, t := range terms(query) {
		inQuery[t] = struct{}{}
	}
	freq := make(map[string]int)
	for _, r := range results {
		for _, t := range terms(r.Content) {
			if utf8.RuneCountInString(t) <= 2 {
				continue
			}
			if _, ok := inQuery[t]; ok {
				continue
			}
			freq[t]++
		}
	}
	ranked := make([]string, 0, len(freq))
	for t := range freq {
		ranked = append(ranked, t)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if freq[ranked[i]] != freq[ranked[j]] {
			return freq[ranked[i]] > freq[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	if len(ranked) > maxSuggestions {
		ranked = ranked[:maxSuggestions]
	}
	out := make([]string, len(ranked))
	q := strings.TrimSpace(query)
	for i, t := range ranked {
		out[i] = q + " " + t
	}
	return out
}

func terms(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
