package search

import (
	"strings"

	"github.com/keyward/go/internal/vault"
)

// Filter keeps the records whose name, account name or category contains
// term, ignoring case. An empty term keeps everything.
func Filter(records []*vault.Password, term string) []*vault.Password {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		out := make([]*vault.Password, len(records))
		copy(out, records)
		return out
	}

	var out []*vault.Password
	for _, p := range records {
		if containsFold(p.Name, term) || containsFold(p.AccountName(), term) || containsFold(string(p.Category), term) {
			out = append(out, p)
		}
	}
	return out
}

func containsFold(s, lowerTerm string) bool {
	return strings.Contains(strings.ToLower(s), lowerTerm)
}
