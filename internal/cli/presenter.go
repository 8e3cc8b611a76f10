package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/keyward/go/internal/clipboard"
	"github.com/keyward/go/internal/generator"
	"github.com/keyward/go/internal/remediation"
	"github.com/keyward/go/internal/strength"
	"github.com/keyward/go/internal/vault"
)

var (
	labelStyle   = lipgloss.NewStyle().Bold(true)
	secretStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// terminalPresenter shows granted operations on the terminal
type terminalPresenter struct {
	clip *clipboard.Manager
	copy bool

	// generate replaces the prompt for a new value in fixes
	generate *generator.Policy
}

func (p *terminalPresenter) Reveal(_ context.Context, record *vault.Password) error {
	fmt.Fprintf(stdout, "%s %s\n", labelStyle.Render("Name:"), record.Name)
	if account := record.AccountName(); account != "" {
		fmt.Fprintf(stdout, "%s %s\n", labelStyle.Render("Account:"), account)
	}
	if url := record.URL(); url != "" {
		fmt.Fprintf(stdout, "%s %s\n", labelStyle.Render("URL:"), url)
	}
	fmt.Fprintf(stdout, "%s %s\n", labelStyle.Render("Strength:"), strength.Meter(strength.Score(record.Password), 20))

	if p.copy {
		p.offerCopy(record.Password)
		return nil
	}
	fmt.Fprintf(stdout, "%s %s\n", labelStyle.Render("Password:"), secretStyle.Render(record.Password))
	return nil
}

func (p *terminalPresenter) History(_ context.Context, record *vault.Password, entries []vault.HistoryEntry) error {
	if len(entries) == 0 {
		fmt.Fprintf(stdout, "No previous passwords for %s\n", record.Label())
		return nil
	}

	fmt.Fprintf(stdout, "Previous passwords for %s (newest first):\n", record.Label())
	for _, e := range entries {
		fmt.Fprintf(stdout, "  %s  %s\n", dimStyle.Render(e.CreatedAt.Local().Format("2006-01-02 15:04")), secretStyle.Render(e.Value))
	}
	return nil
}

// Edit asks for a new value until one is saved or the user enters nothing
func (p *terminalPresenter) Edit(ctx context.Context, edit *remediation.Edit) error {
	current := edit.Current()
	fmt.Fprintf(stdout, "Fixing %s\n", current.Label())
	fmt.Fprintf(stdout, "  Current strength: %s\n", strength.Meter(strength.Score(current.Password), 20))

	for {
		value, err := p.nextValue()
		if err != nil {
			return err
		}
		if value == "" {
			fmt.Fprintln(stdout, "Cancelled, password unchanged")
			return nil
		}

		updated, err := edit.Save(ctx, value)
		if errors.Is(err, vault.ErrValidation) {
			fmt.Fprintf(stderr, "%v\n", err)
			continue
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(stdout, "  New strength:     %s\n", strength.Meter(strength.Score(updated.Password), 20))
		fmt.Fprintln(stdout, successStyle.Render("Password updated, previous value kept in history"))
		if p.generate != nil {
			p.offerCopy(updated.Password)
		}
		return nil
	}
}

func (p *terminalPresenter) nextValue() (string, error) {
	if p.generate != nil {
		return generator.New().Generate(*p.generate)
	}

	value, err := promptPassword("New password (empty to cancel): ")
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if value == "" {
		return "", nil
	}
	fmt.Fprintf(stdout, "  %s\n", strength.Meter(strength.Score(value), 20))

	again, err := promptPassword("Repeat new password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if again != value {
		fmt.Fprintln(stderr, "Passwords do not match")
		return p.nextValue()
	}
	return value, nil
}

func (p *terminalPresenter) offerCopy(value string) {
	if p.clip == nil {
		fmt.Fprintf(stdout, "%s %s\n", labelStyle.Render("Password:"), secretStyle.Render(value))
		return
	}
	if err := p.clip.Copy(value); err != nil {
		fmt.Fprintf(stderr, "Warning: failed to copy to clipboard: %v\n", err)
		fmt.Fprintf(stdout, "%s %s\n", labelStyle.Render("Password:"), secretStyle.Render(value))
		return
	}
	fmt.Fprintf(stdout, "Password copied to clipboard (will auto-clear in %v)\n", p.clip.ClearDelay())
}
