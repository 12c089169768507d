package views

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/geodrill/internal/engine/geo"
	"github.com/rendis/geodrill/internal/model"
	"github.com/rendis/geodrill/internal/tui/styles"
)

type dirEntry struct {
	name   string
	levels int // normalized layers found directly inside
}

// FilePickerModel browses directories and opens the ones holding
// normalized boundary layers.
type FilePickerModel struct {
	dir     string
	entries []dirEntry
	cursor  int
	err     error
}

func NewFilePickerModel(start string) FilePickerModel {
	if start == "" {
		start, _ = os.Getwd()
	}
	abs, err := filepath.Abs(start)
	if err == nil {
		start = abs
	}
	m := FilePickerModel{dir: start}
	m.loadDir()
	return m
}

// canonicalLevels counts the normalized layer files in dir.
func canonicalLevels(dir string) int {
	n := 0
	for _, l := range model.RegionLevels {
		if _, err := os.Stat(filepath.Join(dir, geo.CanonicalFileName(l))); err == nil {
			n++
		}
	}
	return n
}

func (m *FilePickerModel) loadDir() {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.entries = []dirEntry{{name: ".", levels: canonicalLevels(m.dir)}}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || !e.IsDir() {
			continue
		}
		m.entries = append(m.entries, dirEntry{name: name, levels: canonicalLevels(filepath.Join(m.dir, name))})
	}
	m.cursor = 0
}

func (m FilePickerModel) Init() tea.Cmd {
	return nil
}

func (m FilePickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.entries)-1 {
				m.cursor++
			}
		case "enter", "right", "l":
			if m.cursor >= len(m.entries) {
				return m, nil
			}
			entry := m.entries[m.cursor]
			fullPath := filepath.Join(m.dir, entry.name)
			if entry.levels > 0 && msg.String() == "enter" {
				return m, func() tea.Msg {
					return NavigateToDashboard{DataDir: fullPath}
				}
			}
			if entry.name != "." {
				m.dir = fullPath
				m.loadDir()
			}
		case "backspace", "left", "h":
			parent := filepath.Dir(m.dir)
			if parent != m.dir {
				m.dir = parent
				m.loadDir()
			}
		case "esc":
			return m, func() tea.Msg { return NavigateToHome{} }
		}
	}
	return m, nil
}

func (m FilePickerModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("Open Data Dir"))
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).Render(m.dir))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error: %v", m.err)))
		return styles.Border.Render(b.String())
	}

	// Show max 15 items
	start := 0
	if m.cursor > 12 {
		start = m.cursor - 12
	}
	end := min(start+15, len(m.entries))

	for i := start; i < end; i++ {
		entry := m.entries[i]
		cursor := "  "
		style := styles.InactiveItem
		if i == m.cursor {
			cursor = "> "
			style = styles.ActiveItem
		}

		icon := "📁 "
		tag := ""
		if entry.levels > 0 {
			icon = "🗺  "
			tag = lipgloss.NewStyle().Foreground(styles.Success).
				Render(fmt.Sprintf("  %d/%d layers", entry.levels, len(model.RegionLevels)))
		}

		b.WriteString(fmt.Sprintf("%s%s%s%s\n", cursor, icon, style.Render(entry.name), tag))
	}

	b.WriteString("\n")
	b.WriteString(styles.StatusBar.Render("enter open • → into dir • ← parent dir • esc back"))

	return styles.Border.Render(b.String())
}
