package views

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/rendis/geodrill/internal/engine/geo"
	"github.com/rendis/geodrill/internal/model"
	"github.com/rendis/geodrill/internal/tui/styles"
)

// RecentEntry is a remembered data dir with the levels it had when last opened.
type RecentEntry struct {
	Path     string
	Levels   []string
	OpenedAt time.Time
}

type dirState int

const (
	dirReady dirState = iota
	dirChanged
	dirNoLayers
	dirMissing
)

func (s dirState) String() string {
	switch s {
	case dirChanged:
		return "changed"
	case dirNoLayers:
		return "no layers"
	case dirMissing:
		return "missing"
	default:
		return "ready"
	}
}

func (s dirState) openable() bool {
	return s == dirReady || s == dirChanged
}

type recentDir struct {
	RecentEntry
	present []string
	state   dirState
}

// checkDir compares the canonical layers on disk with the recorded ones.
func checkDir(e RecentEntry) recentDir {
	d := recentDir{RecentEntry: e}
	info, err := os.Stat(e.Path)
	if err != nil || !info.IsDir() {
		d.state = dirMissing
		return d
	}
	for _, l := range model.RegionLevels {
		if _, err := os.Stat(filepath.Join(e.Path, geo.CanonicalFileName(l))); err == nil {
			d.present = append(d.present, l.String())
		}
	}
	switch {
	case len(d.present) == 0:
		d.state = dirNoLayers
	case !slices.Equal(d.present, e.Levels):
		d.state = dirChanged
	}
	return d
}

// RecentModel lists recently opened data dirs with the state of their
// layers today. Dirs that can no longer be opened stay listed until
// forgotten.
type RecentModel struct {
	dirs  []recentDir
	table table.Model
	note  string
}

func NewRecentModel(entries []RecentEntry) RecentModel {
	dirs := make([]recentDir, 0, len(entries))
	for _, e := range entries {
		dirs = append(dirs, checkDir(e))
	}

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Dir", Width: 20},
			{Title: "Levels", Width: 22},
			{Title: "Opened", Width: 14},
			{Title: "State", Width: 9},
		}),
		table.WithFocused(true),
		table.WithHeight(min(max(len(dirs), 1), 10)),
	)
	t.SetStyles(tableStyles())

	rows := make([]table.Row, 0, len(dirs))
	for _, d := range dirs {
		levels := d.present
		if d.state == dirMissing {
			levels = d.Levels
		}
		rows = append(rows, table.Row{
			truncate(filepath.Base(d.Path), 20),
			strings.Join(levels, "/"),
			humanize.Time(d.OpenedAt),
			d.state.String(),
		})
	}
	t.SetRows(rows)
	if len(rows) > 0 && t.Cursor() < 0 {
		t.SetCursor(0)
	}
	return RecentModel{dirs: dirs, table: t}
}

func (m RecentModel) Init() tea.Cmd {
	return nil
}

func (m RecentModel) selected() (recentDir, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.dirs) {
		return recentDir{}, false
	}
	return m.dirs[i], true
}

func (m RecentModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "esc":
			return m, func() tea.Msg { return NavigateToHome{} }
		case "enter":
			d, ok := m.selected()
			if !ok {
				return m, nil
			}
			if !d.state.openable() {
				m.note = fmt.Sprintf("%s: %s, press x to forget it", filepath.Base(d.Path), d.state)
				return m, nil
			}
			return m, func() tea.Msg { return NavigateToDashboard{DataDir: d.Path} }
		case "x":
			d, ok := m.selected()
			if !ok {
				return m, nil
			}
			return m, func() tea.Msg { return ForgetRecent{Path: d.Path} }
		}
		m.note = ""
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m RecentModel) View() string {
	var b strings.Builder
	muted := lipgloss.NewStyle().Foreground(styles.Muted)

	b.WriteString(styles.Title.Render("Recent Data Dirs"))
	b.WriteString("\n")

	if len(m.dirs) == 0 {
		b.WriteString(muted.Italic(true).Render("No recent data directories"))
		b.WriteString("\n")
		b.WriteString(styles.StatusBar.Render("esc back"))
		return styles.Border.Render(b.String())
	}

	b.WriteString(m.table.View())
	b.WriteString("\n")
	if d, ok := m.selected(); ok {
		b.WriteString(muted.Render(d.Path))
		if d.state == dirChanged {
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Warning).Render(
				"  was " + strings.Join(d.Levels, "/")))
		}
		b.WriteString("\n")
	}
	if m.note != "" {
		b.WriteString(styles.ErrorText.Render(m.note))
		b.WriteString("\n")
	}
	b.WriteString(styles.StatusBar.Render("↑↓ navigate • enter open • x forget • esc back"))

	return styles.Border.Render(b.String())
}

// NavigateToRecent signals navigation to the recent data dirs view.
type NavigateToRecent struct{}

// ForgetRecent drops a data dir from the recent list.
type ForgetRecent struct {
	Path string
}
