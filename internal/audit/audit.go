package audit

import (
	"math"
	"time"

	"github.com/keyward/go/internal/strength"
	"github.com/keyward/go/internal/vault"
)

const (
	// MaxPasswordAgeDays is the age in days past which a password counts as old
	MaxPasswordAgeDays = 90

	// MinCriteria is the number of criteria a password must meet to not be weak
	MinCriteria = 3

	// issuesPerRecord is the worst case number of issues one record can carry
	issuesPerRecord = 3
)

// Bucket is one labelled count of a distribution
type Bucket struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Snapshot is the derived report for one state of the vault. It is never
// persisted and holds references into the audited record set.
type Snapshot struct {
	SecurityScore        int               `json:"securityScore"`
	Total                int               `json:"total"`
	Weak                 []*vault.Password `json:"-"`
	Old                  []*vault.Password `json:"-"`
	Duplicates           []*vault.Password `json:"-"`
	StrengthDistribution []Bucket          `json:"strengthDistribution"`
	CategoryDistribution []Bucket          `json:"categoryDistribution"`
}

// Issue names the sets a record can belong to
type Issue string

const (
	IssueWeak      Issue = "weak"
	IssueOld       Issue = "old"
	IssueDuplicate Issue = "duplicate"
)

// Issues lists the sets containing the record with the given id
func (s Snapshot) Issues(id string) []Issue {
	var issues []Issue
	if containsID(s.Weak, id) {
		issues = append(issues, IssueWeak)
	}
	if containsID(s.Old, id) {
		issues = append(issues, IssueOld)
	}
	if containsID(s.Duplicates, id) {
		issues = append(issues, IssueDuplicate)
	}
	return issues
}

// Flagged returns every record in at least one set, in first-seen order
func (s Snapshot) Flagged() []*vault.Password {
	seen := make(map[*vault.Password]bool)
	var out []*vault.Password
	for _, set := range [][]*vault.Password{s.Weak, s.Old, s.Duplicates} {
		for _, p := range set {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// Set returns the records of one issue kind
func (s Snapshot) Set(issue Issue) []*vault.Password {
	switch issue {
	case IssueWeak:
		return s.Weak
	case IssueOld:
		return s.Old
	case IssueDuplicate:
		return s.Duplicates
	}
	return nil
}

// Auditor classifies a full record set. It keeps no state between calls.
type Auditor struct {
	now func() time.Time
}

// NewAuditor creates an auditor using the wall clock
func NewAuditor() *Auditor {
	return &Auditor{now: time.Now}
}

// NewAuditorWithClock creates an auditor with a custom clock
func NewAuditorWithClock(now func() time.Time) *Auditor {
	return &Auditor{now: now}
}

// Audit computes the snapshot of records. An empty set scores 0.
func (a *Auditor) Audit(records []*vault.Password) Snapshot {
	if len(records) == 0 {
		return Snapshot{}
	}

	now := a.now()
	cutoff := now.AddDate(0, 0, -MaxPasswordAgeDays)

	snap := Snapshot{Total: len(records)}
	seen := make(map[string]bool, len(records))
	strengthCounts := [4]int{}
	devices, applications := 0, 0

	for _, p := range records {
		met := Criteria(p.Password)
		if met < MinCriteria {
			snap.Weak = append(snap.Weak, p)
		}
		strengthCounts[strengthBucket(met)]++

		if !p.CreatedAt.IsZero() && p.CreatedAt.Before(cutoff) {
			snap.Old = append(snap.Old, p)
		}

		// The first record with a given value is not a duplicate
		if seen[p.Password] {
			snap.Duplicates = append(snap.Duplicates, p)
		} else {
			seen[p.Password] = true
		}

		switch p.Category {
		case vault.CategoryDevice:
			devices++
		case vault.CategoryApplication:
			applications++
		}
	}

	issues := len(snap.Weak) + len(snap.Old) + len(snap.Duplicates)
	score := 100 - float64(issues)/float64(len(records)*issuesPerRecord)*100
	snap.SecurityScore = int(math.Floor(math.Max(0, score) + 0.5))

	snap.StrengthDistribution = nonZero([]Bucket{
		{Name: "Weak", Count: strengthCounts[0]},
		{Name: "Moderate", Count: strengthCounts[1]},
		{Name: "Strong", Count: strengthCounts[2]},
		{Name: "Very Strong", Count: strengthCounts[3]},
	})
	snap.CategoryDistribution = nonZero([]Bucket{
		{Name: "Devices", Count: devices},
		{Name: "Applications", Count: applications},
	})

	return snap
}

// AgeReport partitions records by whole days since creation. Records without
// a creation time are skipped; empty buckets are kept.
func (a *Auditor) AgeReport(records []*vault.Password) []Bucket {
	buckets := []Bucket{
		{Name: "0-30 days"},
		{Name: "31-90 days"},
		{Name: "91-180 days"},
		{Name: "181+ days"},
	}

	now := a.now()
	for _, p := range records {
		if p.CreatedAt.IsZero() {
			continue
		}

		days := int(math.Floor(now.Sub(p.CreatedAt).Hours() / 24))
		switch {
		case days <= 30:
			buckets[0].Count++
		case days <= 90:
			buckets[1].Count++
		case days <= 180:
			buckets[2].Count++
		default:
			buckets[3].Count++
		}
	}

	return buckets
}

// Criteria counts how many of uppercase, lowercase, digit, symbol and
// length >= 12 the password meets
func Criteria(pw string) int {
	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			symbol = true
		}
	}

	met := 0
	for _, ok := range []bool{upper, lower, digit, symbol, strength.Length(pw) >= 12} {
		if ok {
			met++
		}
	}
	return met
}

// IsWeak reports whether a password fails the weak-password criterion
func IsWeak(pw string) bool {
	return Criteria(pw) < MinCriteria
}

func strengthBucket(met int) int {
	switch {
	case met <= 2:
		return 0
	case met == 3:
		return 1
	case met == 4:
		return 2
	}
	return 3
}

func nonZero(buckets []Bucket) []Bucket {
	var out []Bucket
	for _, b := range buckets {
		if b.Count > 0 {
			out = append(out, b)
		}
	}
	return out
}

func containsID(records []*vault.Password, id string) bool {
	for _, p := range records {
		if p.ID == id {
			return true
		}
	}
	return false
}
