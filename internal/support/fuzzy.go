package support

import (
	"math"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
)

var wordSplit = regexp.MustCompile(`[^a-z0-9]+`)

// words lowercases s and splits it on anything that is not a letter or digit.
func words(s string) []string {
	var out []string
	for _, w := range wordSplit.Split(strings.ToLower(s), -1) {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// similarity is 1 - distance/longer length.
func similarity(a, b string) float64 {
	maxLen := math.Max(float64(len(a)), float64(len(b)))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein.ComputeDistance(a, b))/maxLen
}

// mentions reports whether text contains keyword, either as a substring or as
// a word one edit away. Short keywords only match exactly.
func mentions(text string, tokens []string, keyword string) bool {
	if strings.Contains(text, keyword) {
		return true
	}
	if len(keyword) < 5 {
		return false
	}
	for _, w := range tokens {
		if levenshtein.ComputeDistance(w, keyword) <= 1 {
			return true
		}
	}
	return false
}

// titleScore ranks a title against a query: each query word contributes its
// best similarity to any title word, counted only from 0.6 up.
func titleScore(query []string, title string) float64 {
	titleWords := words(title)
	var score float64
	for _, q := range query {
		best := 0.0
		for _, t := range titleWords {
			if s := similarity(q, t); s > best {
				best = s
			}
		}
		if best >= 0.6 {
			score += best
		}
	}
	return score
}
