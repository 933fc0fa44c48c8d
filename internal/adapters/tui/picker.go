// Package tui holds the interactive unit picker used to choose which roster
// units receive assignments.
package tui

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/okian/trainingbot/internal/domain/roster"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#6BCB77")).MarginBottom(1)
	cursorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFD479"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6BCB77"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).MarginTop(1)
)

type unitRow struct {
	name  string
	staff int
}

// Picker is a bubbletea model listing units as checkboxes.
type Picker struct {
	rows      []unitRow
	selected  map[string]bool
	cursor    int
	done      bool
	cancelled bool
}

// NewPicker lists the units of r in alphabetical order with preselected
// ticked. Preselected names match case-insensitively.
func NewPicker(r roster.Roster, preselected []string) *Picker {
	staff := make(map[string]int, len(r.Units))
	for _, u := range r.Units {
		staff[u.Name] += len(u.Personnel)
	}
	p := &Picker{selected: make(map[string]bool)}
	for _, name := range r.UnitNames() {
		if len(p.rows) > 0 && p.rows[len(p.rows)-1].name == name {
			continue
		}
		p.rows = append(p.rows, unitRow{name: name, staff: staff[name]})
		if slices.ContainsFunc(preselected, func(s string) bool { return strings.EqualFold(strings.TrimSpace(s), name) }) {
			p.selected[name] = true
		}
	}
	return p
}

// Init implements tea.Model.
func (p *Picker) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (p *Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}
	switch key.String() {
	case "ctrl+c", "esc", "q":
		p.cancelled = true
		return p, tea.Quit
	case "enter":
		p.done = true
		return p, tea.Quit
	case "up", "k":
		if p.cursor > 0 {
			p.cursor--
		}
	case "down", "j":
		if p.cursor < len(p.rows)-1 {
			p.cursor++
		}
	case " ", "x":
		if len(p.rows) > 0 {
			name := p.rows[p.cursor].name
			p.selected[name] = !p.selected[name]
		}
	case "a":
		for _, r := range p.rows {
			p.selected[r.name] = true
		}
	case "n":
		clear(p.selected)
	}
	return p, nil
}

// View implements tea.Model.
func (p *Picker) View() string {
	if p.done || p.cancelled {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Select units for today's training"))
	b.WriteString("\n")
	for i, r := range p.rows {
		box := "[ ]"
		if p.selected[r.name] {
			box = selectedStyle.Render("[x]")
		}
		line := fmt.Sprintf("%s %s %s", box, r.name, dimStyle.Render(fmt.Sprintf("(%d)", r.staff)))
		if i == p.cursor {
			line = cursorStyle.Render(">") + " " + line
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("space toggle · a all · n none · enter save · q cancel"))
	return b.String()
}

// Selected returns the ticked units in display order. No ticks means every
// unit is included.
func (p *Picker) Selected() []string {
	out := make([]string, 0, len(p.selected))
	for _, r := range p.rows {
		if p.selected[r.name] {
			out = append(out, r.name)
		}
	}
	return out
}

// Cancelled reports whether the operator quit without saving.
func (p *Picker) Cancelled() bool { return p.cancelled }

// Pick runs the picker on in/out and returns the chosen units.
func Pick(ctx context.Context, r roster.Roster, preselected []string, in io.Reader, out io.Writer) ([]string, error) {
	if len(r.Units) == 0 {
		return nil, ErrNoUnits
	}
	p := NewPicker(r, preselected)
	prog := tea.NewProgram(p, tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	if _, err := prog.Run(); err != nil {
		return nil, fmt.Errorf("run unit picker: %w", err)
	}
	if p.Cancelled() {
		return nil, ErrCancelled
	}
	return p.Selected(), nil
}
