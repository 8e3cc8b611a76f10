package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/keyward/go/internal/audit"
	"github.com/keyward/go/internal/strength"
	"github.com/keyward/go/internal/vault"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	goodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	fairStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	poorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

// recordRef identifies a record in reports without its value
type recordRef struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	AccountName string         `json:"accountName,omitempty"`
	Category    vault.Category `json:"category"`
}

func refs(records []*vault.Password) []recordRef {
	out := make([]recordRef, 0, len(records))
	for _, p := range records {
		out = append(out, recordRef{ID: p.ID, Name: p.Name, AccountName: p.AccountName(), Category: p.Category})
	}
	return out
}

// auditReport is the machine-readable audit output
type auditReport struct {
	SecurityScore        int            `json:"securityScore"`
	Total                int            `json:"total"`
	Weak                 []recordRef    `json:"weak"`
	Old                  []recordRef    `json:"old"`
	Duplicates           []recordRef    `json:"duplicates"`
	StrengthDistribution []audit.Bucket `json:"strengthDistribution"`
	CategoryDistribution []audit.Bucket `json:"categoryDistribution"`
	AgeDistribution      []audit.Bucket `json:"ageDistribution"`
}

func newAuditReport(snap audit.Snapshot, age []audit.Bucket) auditReport {
	nonNil := func(b []audit.Bucket) []audit.Bucket {
		if b == nil {
			return []audit.Bucket{}
		}
		return b
	}
	return auditReport{
		SecurityScore:        snap.SecurityScore,
		Total:                snap.Total,
		Weak:                 refs(snap.Weak),
		Old:                  refs(snap.Old),
		Duplicates:           refs(snap.Duplicates),
		StrengthDistribution: nonNil(snap.StrengthDistribution),
		CategoryDistribution: nonNil(snap.CategoryDistribution),
		AgeDistribution:      nonNil(age),
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func scoreStyle(score int) lipgloss.Style {
	switch {
	case score >= 80:
		return goodStyle
	case score >= 50:
		return fairStyle
	}
	return poorStyle
}

// renderAudit writes the human-readable audit report
func renderAudit(w io.Writer, r auditReport) {
	if r.Total == 0 {
		fmt.Fprintln(w, "The vault is empty, nothing to audit")
		return
	}

	fmt.Fprintf(w, "Security score: %s\n", scoreStyle(r.SecurityScore).Render(fmt.Sprintf("%d/100", r.SecurityScore)))
	fmt.Fprintf(w, "Passwords:      %d\n\n", r.Total)

	sections := []struct {
		title string
		hint  string
		items []recordRef
	}{
		{"Weak passwords", "fewer than 3 of: upper, lower, digit, symbol, 12+ characters", r.Weak},
		{"Old passwords", fmt.Sprintf("created more than %d days ago", audit.MaxPasswordAgeDays), r.Old},
		{"Reused passwords", "same value as an earlier password", r.Duplicates},
	}
	for _, s := range sections {
		fmt.Fprintf(w, "%s (%d)  %s\n", headerStyle.Render(s.title), len(s.items), dimStyle.Render(s.hint))
		for _, item := range s.items {
			fmt.Fprintf(w, "  - %s\n", refLabel(item))
		}
		fmt.Fprintln(w)
	}

	renderBuckets(w, "Strength", r.StrengthDistribution, r.Total)
	renderBuckets(w, "Categories", r.CategoryDistribution, r.Total)
	renderBuckets(w, "Age", r.AgeDistribution, r.Total)

	if flagged := len(r.Weak) + len(r.Old) + len(r.Duplicates); flagged > 0 {
		fmt.Fprintln(w, dimStyle.Render("Run 'keyward fix' to replace a flagged password"))
	}
}

func refLabel(r recordRef) string {
	if r.AccountName != "" {
		return fmt.Sprintf("%s (%s)", r.Name, r.AccountName)
	}
	return r.Name
}

func renderBuckets(w io.Writer, title string, buckets []audit.Bucket, total int) {
	fmt.Fprintln(w, headerStyle.Render(title))
	const width = 20
	for _, b := range buckets {
		filled := 0
		if total > 0 {
			filled = b.Count * width / total
		}
		bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
		fmt.Fprintf(w, "  %-12s %s %d\n", b.Name, bar, b.Count)
	}
	fmt.Fprintln(w)
}

// renderList writes records as a table with their strength and issues
func renderList(w io.Writer, records []*vault.Password, snap audit.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tACCOUNT\tCATEGORY\tSTRENGTH\tISSUES\tUPDATED")
	for _, p := range records {
		account := p.AccountName()
		if account == "" {
			account = "-"
		}
		updated := "-"
		if !p.UpdatedAt.IsZero() {
			updated = p.UpdatedAt.Local().Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateString(p.Name, 30),
			truncateString(account, 30),
			p.Category,
			strength.Score(p.Password).Label,
			issueSummary(snap.Issues(p.ID)),
			updated)
	}
	tw.Flush()
}

// issueSummary renders the audit issues of a record, e.g. "weak, old"
func issueSummary(issues []audit.Issue) string {
	if len(issues) == 0 {
		return "-"
	}
	names := make([]string, len(issues))
	for i, issue := range issues {
		names[i] = string(issue)
	}
	return strings.Join(names, ", ")
}

// truncateString truncates a string to the specified length
func truncateString(s string, length int) string {
	runes := []rune(s)
	if len(runes) <= length {
		return s
	}
	return string(runes[:length-3]) + "..."
}
