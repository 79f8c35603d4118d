// Package match ranks source candidates against a free-text query.
//
// It is a pure function so the conversational flow can be tested without it
// and vice versa. Scoring is word-level: a candidate word counts when it is
// within a bounded edit distance of any query word, and candidates are ranked
// by total count over their name and slug, cut to the top five.
package match

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxResults = 5

type Candidate struct {
	ID   int64
	Name string
	Slug string
}

// Normalize lowercases and strips diacritics so "Öğrenci" matches "ogrenci".
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Top returns up to five candidates ranked by match score against query.
// Candidates with zero score are omitted; ties keep input order.
func Top(query string, candidates []Candidate) []Candidate {
	q := Normalize(query)
	if strings.TrimSpace(q) == "" {
		return nil
	}

	type scored struct {
		c     Candidate
		score int
	}
	var matched []scored
	for _, c := range candidates {
		s := wordScore(Normalize(c.Name), q) + wordScore(Normalize(c.Slug), q)
		if s > 0 {
			matched = append(matched, scored{c: c, score: s})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].score > matched[j].score
	})
	if len(matched) > maxResults {
		matched = matched[:maxResults]
	}

	out := make([]Candidate, len(matched))
	for i, m := range matched {
		out[i] = m.c
	}
	return out
}

// wordScore counts candidate words lying within a bounded edit distance of any
// query word. The bound scales with the query word: min(2, len/2), so short
// words must match nearly exactly.
func wordScore(candidate, query string) int {
	candidateWords := strings.Fields(candidate)
	queryWords := strings.Fields(query)

	score := 0
	for _, cw := range candidateWords {
		for _, qw := range queryWords {
			maxDist := len([]rune(qw)) / 2
			if maxDist > 2 {
				maxDist = 2
			}
			if levenshtein(cw, qw) <= maxDist {
				score++
			}
		}
	}
	return score
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
