package search

import (
	"sort"
	"strings"

	"github.com/keyward/go/internal/vault"
)

// Span is a rune range of a label that matched the query
type Span struct {
	Start int
	End   int
}

// Match is a ranked record
type Match struct {
	Record *vault.Password
	Score  float64
	Spans  []Span
}

// Engine ranks records against a query by their label
type Engine struct {
	maxResults int
}

// NewEngine creates a ranking engine returning at most 100 matches
func NewEngine() *Engine {
	return &Engine{maxResults: 100}
}

// SetMaxResults limits the number of matches returned
func (e *Engine) SetMaxResults(n int) {
	e.maxResults = n
}

// Rank scores every record against query, best first. An empty query keeps
// the input order.
func (e *Engine) Rank(query string, records []*vault.Password) []Match {
	query = strings.ToLower(strings.TrimSpace(query))

	var matches []Match
	for _, p := range records {
		if query == "" {
			matches = append(matches, Match{Record: p})
			continue
		}
		if score, spans := score(query, p.Label()); score > 0 {
			matches = append(matches, Match{Record: p, Score: score, Spans: spans})
		}
	}

	if query != "" {
		sort.SliceStable(matches, func(i, j int) bool {
			if matches[i].Score != matches[j].Score {
				return matches[i].Score > matches[j].Score
			}
			return strings.ToLower(matches[i].Record.Label()) < strings.ToLower(matches[j].Record.Label())
		})
	}

	if e.maxResults > 0 && len(matches) > e.maxResults {
		matches = matches[:e.maxResults]
	}
	return matches
}

// score rates label against a lowercased query: exact 100, prefix 90,
// substring 80 down to 50, subsequence 10 and up, otherwise 0.
func score(query, label string) (float64, []Span) {
	runes := []rune(strings.ToLower(label))
	q := []rune(query)
	target := string(runes)

	if target == query {
		return 100, []Span{{0, len(runes)}}
	}
	if strings.HasPrefix(target, query) {
		return 90, []Span{{0, len(q)}}
	}
	if idx := strings.Index(target, query); idx >= 0 {
		start := len([]rune(target[:idx]))
		s := 80 - float64(start)*2
		if s < 50 {
			s = 50
		}
		return s, []Span{{start, start + len(q)}}
	}

	return subsequence(q, runes)
}

func subsequence(q, target []rune) (float64, []Span) {
	if len(q) == 0 || len(target) == 0 {
		return 0, nil
	}

	var positions []int
	total, streak := 0.0, 0
	qi := 0
	for ti := 0; ti < len(target) && qi < len(q); ti++ {
		if target[ti] != q[qi] {
			streak = 0
			continue
		}
		positions = append(positions, ti)
		streak++
		total += 2 + float64(streak)*0.5
		qi++
	}
	if qi < len(q) {
		return 0, nil
	}

	s := total * float64(len(q)) / float64(len(target)) * 20
	if s < 10 {
		s = 10
	}
	if s > 49 {
		s = 49
	}
	return s, spans(positions)
}

func spans(positions []int) []Span {
	var out []Span
	for _, p := range positions {
		if n := len(out); n > 0 && out[n-1].End == p {
			out[n-1].End = p + 1
			continue
		}
		out = append(out, Span{p, p + 1})
	}
	return out
}
