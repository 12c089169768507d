package views

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/geodrill/internal/tui/styles"
)

type menuItem struct {
	key   string
	label string
	desc  string
}

type HomeModel struct {
	items      []menuItem
	cursor     int
	defaultDir string
	version    string
	err        error
}

func NewHomeModel(defaultDir, version string) HomeModel {
	return HomeModel{
		defaultDir: defaultDir,
		version:    version,
		items: []menuItem{
			{key: "o", label: "Open Dashboard", desc: "Drill into " + defaultDir},
			{key: "l", label: "Browse Data Dirs", desc: "Pick a directory of normalized boundaries"},
			{key: "r", label: "Recent Data Dirs", desc: "Reopen a recent directory"},
			{key: "q", label: "Quit", desc: "Exit geodrill"},
		},
	}
}

// WithError shows err above the menu, e.g. after a data dir failed to open.
func (m HomeModel) WithError(err error) HomeModel {
	m.err = err
	return m
}

func (m HomeModel) Init() tea.Cmd {
	return nil
}

func (m HomeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case "enter":
			return m, m.handleSelect()
		case "o":
			m.cursor = 0
			return m, m.handleSelect()
		case "l":
			m.cursor = 1
			return m, m.handleSelect()
		case "r":
			m.cursor = 2
			return m, m.handleSelect()
		case "q":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m HomeModel) handleSelect() tea.Cmd {
	switch m.cursor {
	case 0:
		dir := m.defaultDir
		return func() tea.Msg {
			return NavigateToDashboard{DataDir: dir}
		}
	case 1:
		return func() tea.Msg {
			return NavigateToLoad{}
		}
	case 2:
		return func() tea.Msg {
			return NavigateToRecent{}
		}
	case 3:
		return tea.Quit
	}
	return nil
}

func (m HomeModel) View() string {
	var b strings.Builder

	logo := lipgloss.NewStyle().
		Foreground(styles.Primary).
		Bold(true).
		Render("  geodrill")

	version := lipgloss.NewStyle().
		Foreground(styles.Muted).
		Render(" " + m.version)

	tagline := lipgloss.NewStyle().
		Foreground(styles.Secondary).
		Italic(true).
		Render("  Administrative boundary KPI drill-down")

	b.WriteString(logo + version + "\n")
	b.WriteString(tagline + "\n\n")

	if m.err != nil {
		b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
	}

	for i, item := range m.items {
		cursor := "  "
		style := styles.InactiveItem
		if i == m.cursor {
			cursor = "> "
			style = styles.ActiveItem
		}

		key := lipgloss.NewStyle().
			Foreground(styles.Secondary).
			Bold(true).
			Render(fmt.Sprintf("[%s]", item.key))

		label := style.Render(item.label)
		desc := lipgloss.NewStyle().
			Foreground(styles.Muted).
			Render(" - " + item.desc)

		b.WriteString(fmt.Sprintf("%s%s %s%s\n", cursor, key, label, desc))
	}

	b.WriteString("\n")
	b.WriteString(styles.StatusBar.Render("↑↓ navigate • enter select • q quit"))

	return styles.Border.Render(b.String())
}

// NavigateToLoad opens the data directory browser.
type NavigateToLoad struct{}
