package search

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/keyward/go/internal/vault"
)

// PickerRows is the number of matches shown at once
const PickerRows = 7

// Annotate returns a short note shown next to a record, e.g. its audit issues
type Annotate func(*vault.Password) string

var (
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("32")).Bold(true)
	queryStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("238"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("14"))
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
	metaStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	markStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	noteStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	emptyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Italic(true)
)

// Picker is the bubbletea model of the interactive record picker
type Picker struct {
	engine   *Engine
	records  []*vault.Password
	annotate Annotate
	query    []rune
	matches  []Match
	cursor   int
	chosen   *vault.Password
	quitting bool
}

// NewPicker creates a picker over records
func NewPicker(records []*vault.Password, annotate Annotate) *Picker {
	p := &Picker{
		engine:   NewEngine(),
		records:  records,
		annotate: annotate,
	}
	p.refresh()
	return p
}

// Init implements tea.Model
func (p *Picker) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (p *Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}

	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		p.quitting = true
		return p, tea.Quit
	case tea.KeyEnter:
		if m := p.Selected(); m != nil {
			p.chosen = m.Record
		}
		p.quitting = true
		return p, tea.Quit
	case tea.KeyUp, tea.KeyCtrlP:
		p.Move(-1)
	case tea.KeyDown, tea.KeyCtrlN:
		p.Move(1)
	case tea.KeyBackspace:
		p.Backspace()
	case tea.KeyRunes, tea.KeySpace:
		p.Type(key.Runes...)
	}
	return p, nil
}

// Type appends runes to the query
func (p *Picker) Type(r ...rune) {
	p.query = append(p.query, r...)
	p.refresh()
}

// Backspace drops the last rune of the query
func (p *Picker) Backspace() {
	if len(p.query) == 0 {
		return
	}
	p.query = p.query[:len(p.query)-1]
	p.refresh()
}

// Move shifts the cursor, wrapping around
func (p *Picker) Move(delta int) {
	n := p.visible()
	if n == 0 {
		return
	}
	p.cursor = ((p.cursor+delta)%n + n) % n
}

// Selected returns the match under the cursor
func (p *Picker) Selected() *Match {
	if p.cursor < 0 || p.cursor >= p.visible() {
		return nil
	}
	return &p.matches[p.cursor]
}

// Chosen returns the record picked with enter, or nil when cancelled
func (p *Picker) Chosen() *vault.Password {
	return p.chosen
}

func (p *Picker) refresh() {
	p.matches = p.engine.Rank(string(p.query), p.records)
	p.cursor = 0
}

func (p *Picker) visible() int {
	if len(p.matches) < PickerRows {
		return len(p.matches)
	}
	return PickerRows
}

// View implements tea.Model
func (p *Picker) View() string {
	if p.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(promptStyle.Render("Search: "))
	b.WriteString(queryStyle.Render(string(p.query)))
	b.WriteString("█\n\n")

	if p.visible() == 0 {
		b.WriteString(emptyStyle.Render("No matching passwords"))
		b.WriteString("\n")
	}
	for i := 0; i < p.visible(); i++ {
		b.WriteString(p.row(p.matches[i], i == p.cursor))
		b.WriteString("\n")
	}
	if more := len(p.matches) - p.visible(); more > 0 {
		b.WriteString(metaStyle.Render(fmt.Sprintf("... %d more", more)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(metaStyle.Render("↑/↓ move, enter select, esc cancel"))
	return b.String()
}

func (p *Picker) row(m Match, selected bool) string {
	label := m.Record.Label()
	meta := metaStyle.Render(string(m.Record.Category))
	if p.annotate != nil {
		if note := p.annotate(m.Record); note != "" {
			meta += " " + noteStyle.Render(note)
		}
	}

	if selected {
		return selectedStyle.Render(" "+label+" ") + " " + meta
	}
	return "  " + labelStyle.Render(mark(label, m.Spans)) + " " + meta
}

func mark(label string, spans []Span) string {
	if len(spans) == 0 {
		return label
	}
	runes := []rune(label)
	var b strings.Builder
	pos := 0
	for _, s := range spans {
		if s.End > len(runes) {
			break
		}
		b.WriteString(string(runes[pos:s.Start]))
		b.WriteString(markStyle.Render(string(runes[s.Start:s.End])))
		pos = s.End
	}
	b.WriteString(string(runes[pos:]))
	return b.String()
}

// Pick runs the picker on the terminal and returns the chosen record, or nil
// when the user cancelled
func Pick(records []*vault.Password, annotate Annotate) (*vault.Password, error) {
	picker := NewPicker(records, annotate)
	final, err := tea.NewProgram(picker).Run()
	if err != nil {
		return nil, fmt.Errorf("error running picker: %w", err)
	}
	return final.(*Picker).Chosen(), nil
}
