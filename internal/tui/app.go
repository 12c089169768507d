package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/geodrill/internal/logger"
	"github.com/rendis/geodrill/internal/tui/views"
)

type viewID int

const (
	viewHome viewID = iota
	viewDashboard
	viewFilePicker
	viewRecent
)

// Opener builds the dashboard for one data directory.
type Opener func(dataDir string) (views.DashboardParams, error)

// App is the root bubbletea model.
type App struct {
	open        Opener
	log         *logger.Logger
	defaultDir  string
	currentView viewID
	width       int
	height      int
	home        views.HomeModel
	dashboard   views.DashboardModel
	filePicker  views.FilePickerModel
	recent      views.RecentModel
}

func NewApp(open Opener, defaultDir, version string, log *logger.Logger) App {
	if log == nil {
		log = logger.Nop()
	}
	return App{
		open:        open,
		log:         log,
		defaultDir:  defaultDir,
		currentView: viewHome,
		home:        views.NewHomeModel(defaultDir, version),
	}
}

func (a App) Init() tea.Cmd {
	return a.home.Init()
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
	case views.NavigateToHome:
		a.currentView = viewHome
		return a, nil
	case views.NavigateToLoad:
		a.currentView = viewFilePicker
		a.filePicker = views.NewFilePickerModel(a.defaultDir)
		return a, a.filePicker.Init()
	case views.NavigateToDashboard:
		params, err := a.open(msg.DataDir)
		if err != nil {
			a.log.Error("opening data dir", "dir", msg.DataDir, "error", err)
			a.home = a.home.WithError(err)
			a.currentView = viewHome
			return a, nil
		}
		a.home = a.home.WithError(nil)
		var levels []string
		for _, l := range params.Boundaries.Levels() {
			levels = append(levels, l.String())
		}
		if err := SaveRecent(msg.DataDir, levels); err != nil {
			a.log.Warn("saving recent dirs", "error", err)
		}
		a.currentView = viewDashboard
		a.dashboard = views.NewDashboardModel(params)
		return a, tea.Batch(a.dashboard.Init(), a.sizeCmd())
	case views.NavigateToRecent:
		a.currentView = viewRecent
		a.recent = views.NewRecentModel(recentEntries())
		return a, a.recent.Init()
	case views.ForgetRecent:
		if err := RemoveRecent(msg.Path); err != nil {
			a.log.Warn("forgetting recent dir", "dir", msg.Path, "error", err)
		}
		a.recent = views.NewRecentModel(recentEntries())
		return a, nil
	}

	var cmd tea.Cmd
	switch a.currentView {
	case viewHome:
		var m tea.Model
		m, cmd = a.home.Update(msg)
		a.home = m.(views.HomeModel)
	case viewDashboard:
		var m tea.Model
		m, cmd = a.dashboard.Update(msg)
		a.dashboard = m.(views.DashboardModel)
	case viewFilePicker:
		var m tea.Model
		m, cmd = a.filePicker.Update(msg)
		a.filePicker = m.(views.FilePickerModel)
	case viewRecent:
		var m tea.Model
		m, cmd = a.recent.Update(msg)
		a.recent = m.(views.RecentModel)
	}

	return a, cmd
}

func (a App) View() string {
	var content string
	switch a.currentView {
	case viewHome:
		content = a.home.View()
	case viewDashboard:
		content = a.dashboard.View()
	case viewFilePicker:
		content = a.filePicker.View()
	case viewRecent:
		content = a.recent.View()
	}

	return lipgloss.Place(
		a.width, a.height,
		lipgloss.Center, lipgloss.Top,
		content,
	)
}

func recentEntries() []views.RecentEntry {
	var out []views.RecentEntry
	for _, e := range LoadRecent() {
		out = append(out, views.RecentEntry{Path: e.Path, Levels: e.Levels, OpenedAt: e.OpenedAt})
	}
	return out
}

// sizeCmd sends a WindowSizeMsg so newly created views get the current terminal size.
func (a App) sizeCmd() tea.Cmd {
	w, h := a.width, a.height
	return func() tea.Msg {
		return tea.WindowSizeMsg{Width: w, Height: h}
	}
}

// Run starts the TUI.
func Run(open Opener, defaultDir, version string, log *logger.Logger) error {
	p := tea.NewProgram(NewApp(open, defaultDir, version, log), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
