package views

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/paulmach/orb"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/rendis/geodrill/internal/config"
	"github.com/rendis/geodrill/internal/engine/drilldown"
	"github.com/rendis/geodrill/internal/engine/geo"
	"github.com/rendis/geodrill/internal/engine/stats"
	"github.com/rendis/geodrill/internal/logger"
	"github.com/rendis/geodrill/internal/model"
	"github.com/rendis/geodrill/internal/tui/components"
	"github.com/rendis/geodrill/internal/tui/styles"
)

// DashboardParams is everything the dashboard needs for one data directory.
type DashboardParams struct {
	DataDir    string
	Session    *drilldown.Session
	Boundaries *geo.BoundaryStore
	Metrics    []config.Metric
	Periods    []string
	Classes    int
	Log        *logger.Logger
}

// DashboardModel shows the region map, the region table and the detail
// panels for the current drill-down level.
type DashboardModel struct {
	p         DashboardParams
	ctx       context.Context
	table     table.Model
	filter    textinput.Model
	filtering bool
	spinner   spinner.Model
	mapView   components.MapView

	regions     []model.CanonicalRegion
	visible     []model.CanonicalRegion
	shown       bool
	shownLevel  model.Level
	shownParent string

	width     int
	height    int
	exportMsg string
}

type loadResultMsg struct {
	result drilldown.Result
}

func NewDashboardModel(p DashboardParams) DashboardModel {
	if p.Log == nil {
		p.Log = logger.Nop()
	}
	filter := textinput.New()
	filter.Placeholder = "Type to filter..."
	filter.CharLimit = 30

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(styles.Secondary)

	t := table.New(
		table.WithColumns(regionColumns(0)),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	t.SetStyles(tableStyles())

	m := DashboardModel{
		p:       p,
		ctx:     context.Background(),
		table:   t,
		filter:  filter,
		spinner: sp,
		mapView: components.NewMapView(60, 18),
	}
	m.refresh()
	return m
}

func (m DashboardModel) Init() tea.Cmd {
	return tea.Batch(m.loadCmd(m.p.Session.Sync()), m.spinner.Tick)
}

// loadCmd runs each load as its own command so no load waits on another.
func (m DashboardModel) loadCmd(loads []drilldown.Load) tea.Cmd {
	if len(loads) == 0 {
		return nil
	}
	ctx := m.ctx
	cmds := make([]tea.Cmd, 0, len(loads))
	for _, l := range loads {
		cmds = append(cmds, func() tea.Msg {
			return loadResultMsg{result: l.Run(ctx)}
		})
	}
	return tea.Batch(cmds...)
}

func (m DashboardModel) machine() *drilldown.Machine {
	return m.p.Session.Machine()
}

func (m DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loadResultMsg:
		if !m.p.Session.Apply(msg.result) {
			m.p.Log.Debug("dropped stale result", "kind", string(msg.result.Kind))
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m DashboardModel) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.filter.SetValue("")
		fallthrough
	case "enter", "tab":
		m.filtering = false
		m.filter.Blur()
		m.refresh()
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.refresh()
	return m, cmd
}

func (m DashboardModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var loads []drilldown.Load
	st := m.machine().State()

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "q":
		return m, func() tea.Msg { return NavigateToHome{} }
	case "esc":
		if st.Level == model.LevelNation {
			return m, func() tea.Msg { return NavigateToHome{} }
		}
		loads = m.p.Session.DrillUp()
	case "backspace", "u":
		loads = m.p.Session.DrillUp()
	case "enter":
		if r, ok := m.current(); ok {
			loads = m.p.Session.DrillDownFromMap(r.Code, r.Name)
		}
	case " ":
		if r, ok := m.current(); ok {
			loads = m.p.Session.SelectRegionWithName(r.Code, r.Name)
		}
	case "d":
		loads = m.p.Session.DrillDown()
	case "m":
		if len(m.p.Metrics) > 0 {
			loads = m.p.Session.SetMetric(m.p.Metrics[nextIndex(metricKeys(m.p.Metrics), st.Metric)].Key)
		}
	case "t":
		if len(m.p.Periods) > 0 {
			loads = m.p.Session.SetTime(m.p.Periods[nextIndex(m.p.Periods, st.Time)])
		}
	case "/":
		m.filtering = true
		m.filter.Focus()
		return m, textinput.Blink
	case "+", "=":
		m.mapView.ZoomIn()
	case "-":
		m.mapView.ZoomOut()
	case "0":
		m.mapView.ZoomReset()
	case "shift+up":
		m.mapView.Pan(1, 0)
	case "shift+down":
		m.mapView.Pan(-1, 0)
	case "shift+left":
		m.mapView.Pan(0, -1)
	case "shift+right":
		m.mapView.Pan(0, 1)
	case "e":
		m.exportCSV()
	default:
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		if r, ok := m.current(); ok {
			m.machine().Hover(r.Code)
		}
		m.refresh()
		return m, cmd
	}

	m.refresh()
	return m, m.loadCmd(loads)
}

func metricKeys(ms []config.Metric) []string {
	keys := make([]string, len(ms))
	for i, mt := range ms {
		keys[i] = mt.Key
	}
	return keys
}

// nextIndex is the index after cur in list, wrapping, or 0 when cur is absent.
func nextIndex(list []string, cur string) int {
	for i, v := range list {
		if v == cur {
			return (i + 1) % len(list)
		}
	}
	return 0
}

func (m DashboardModel) current() (model.CanonicalRegion, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.visible) {
		return model.CanonicalRegion{}, false
	}
	return m.visible[i], true
}

func (m DashboardModel) metricLabel(key string) string {
	for _, mt := range m.p.Metrics {
		if mt.Key == key {
			return mt.Label
		}
	}
	return key
}

// refresh re-derives the map and table from the machine state and the
// session view. Boundaries are swapped only when the level or scope moved.
func (m *DashboardModel) refresh() {
	st := m.machine().State()
	parent := st.ParentFilter()
	moved := !m.shown || st.Level != m.shownLevel || parent != m.shownParent
	if moved {
		m.shown, m.shownLevel, m.shownParent = true, st.Level, parent
		m.regions = geo.SortedByName(m.p.Boundaries.Children(st.Level, parent))
		m.mapView.SetShapes(shapesOf(m.regions), m.p.Classes)
	}

	kpi := m.currentKPI(st)
	m.mapView.SetClasses(kpi.Class, m.p.Classes)
	selected := st.SelectedRegion
	if st.Selection != nil {
		selected = st.Selection.Code
	}
	m.mapView.SetSelected(selected)
	m.mapView.SetHovered(st.HoveredRegion)
	m.buildRows(kpi)
	// The cursor can only move once rows exist.
	if moved && len(m.visible) > 0 {
		m.table.SetCursor(0)
	}
}

// currentKPI returns the loaded KPI layer when it belongs to what is on screen.
func (m DashboardModel) currentKPI(st model.NavigationState) *drilldown.KPIView {
	kpi := m.p.Session.View().KPI
	if kpi == nil || kpi.Level != st.Level || kpi.Parent != st.ParentFilter() {
		return nil
	}
	return kpi
}

func shapesOf(regions []model.CanonicalRegion) []components.Shape {
	shapes := make([]components.Shape, 0, len(regions))
	for _, r := range regions {
		var polys []orb.Polygon
		switch g := r.Geometry.(type) {
		case orb.Polygon:
			polys = []orb.Polygon{g}
		case orb.MultiPolygon:
			polys = g
		}
		s := components.Shape{Code: r.Code, Class: -1}
		for _, poly := range polys {
			for _, ring := range poly {
				pts := make([]components.Point, len(ring))
				for i, p := range ring {
					pts[i] = components.Point{Lat: p.Lat(), Lng: p.Lon()}
				}
				s.Rings = append(s.Rings, pts)
			}
		}
		shapes = append(shapes, s)
	}
	return shapes
}

// foldText strips diacritics and lowercases for filtering.
func foldText(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(func(r rune) bool {
		return unicode.Is(unicode.Mn, r)
	}), norm.NFC)
	result, _, _ := transform.String(t, strings.ToLower(s))
	return result
}

func (m *DashboardModel) buildRows(kpi *drilldown.KPIView) {
	byCode := make(map[string]model.KPIRecord)
	if kpi != nil {
		for _, r := range kpi.Records {
			byCode[r.RegionCode] = r
		}
	}

	needle := foldText(strings.TrimSpace(m.filter.Value()))
	m.visible = make([]model.CanonicalRegion, 0, len(m.regions))
	rows := make([]table.Row, 0, len(m.regions))
	for _, reg := range m.regions {
		if needle != "" && !strings.Contains(foldText(reg.Name), needle) && !strings.HasPrefix(reg.Code, needle) {
			continue
		}
		m.visible = append(m.visible, reg)
		rec, ok := byCode[reg.Code]
		status, class := "", ""
		if ok {
			status = string(rec.Status)
			if c := kpi.Class(reg.Code); c >= 0 {
				class = fmt.Sprintf("%d", c+1)
			}
		}
		rows = append(rows, table.Row{
			reg.Code,
			truncate(reg.Name, 18),
			model.FormatValue(rec.Value),
			model.FormatValue(rec.ChangeRate),
			status,
			class,
		})
	}
	m.table.SetRows(rows)
	switch {
	case len(rows) == 0:
	case m.table.Cursor() < 0:
		m.table.SetCursor(0)
	case m.table.Cursor() >= len(rows):
		m.table.SetCursor(len(rows) - 1)
	}
}

func regionColumns(extra int) []table.Column {
	return []table.Column{
		{Title: "Code", Width: 10},
		{Title: "Name", Width: 18 + extra},
		{Title: "Value", Width: 9},
		{Title: "Change", Width: 8},
		{Title: "Status", Width: 9},
		{Title: "Class", Width: 5},
	}
}

func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.Muted).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.Secondary)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(styles.Primary).
		Bold(true)
	return s
}

func (m *DashboardModel) mapSize() (int, int) {
	w := m.width*3/5 - 4
	if w < 30 {
		w = 30
	}
	h := m.height/2 - 2
	if h < 8 {
		h = 8
	}
	return w, h
}

func (m *DashboardModel) updateLayout() {
	if m.width <= 0 {
		return
	}
	m.mapView.SetSize(m.mapSize())
	_, mapH := m.mapSize()
	tableH := m.height - mapH - 12
	if tableH < 5 {
		tableH = 5
	}
	m.table.SetHeight(tableH)
	extra := m.width - 80
	if extra < 0 {
		extra = 0
	}
	m.table.SetColumns(regionColumns(extra / 2))
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return string(r[:max])
	}
	return string(r[:max-1]) + "…"
}

func (m DashboardModel) busy(v drilldown.View) bool {
	if m.machine().State().IsDrillingDown {
		return true
	}
	for _, l := range v.Loading {
		if l {
			return true
		}
	}
	return false
}

func (m DashboardModel) View() string {
	st := m.machine().State()
	v := m.p.Session.View()

	var b strings.Builder
	header := styles.Title.Render("geodrill")
	summary := lipgloss.NewStyle().Foreground(styles.Muted).
		Render("  " + m.machine().FiltersSummary(m.metricLabel(st.Metric)))
	b.WriteString(header + summary)
	if m.busy(v) {
		b.WriteString(" " + m.spinner.View())
	}
	b.WriteString("\n")

	mapW, mapH := m.mapSize()
	mapBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Muted).
		Render(m.mapView.View())
	mapBox = lipgloss.JoinVertical(lipgloss.Left, mapBox, m.legend(m.currentKPI(st)))

	detailW := m.width - mapW - 6
	if detailW < 30 {
		detailW = 30
	}
	detail := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Muted).
		Padding(0, 1).
		Width(detailW).
		Height(mapH).
		Render(m.viewDetail(st, v, detailW-2))

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, mapBox, " ", detail))
	b.WriteString("\n")

	filterStyle := lipgloss.NewStyle().Foreground(styles.Muted)
	if m.filtering {
		filterStyle = lipgloss.NewStyle().Foreground(styles.Primary)
	}
	b.WriteString(filterStyle.Render("Filter: ") + m.filter.View() + "\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")

	if m.exportMsg != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Success).Render(m.exportMsg))
		b.WriteString("\n")
	}

	statusText := "↑↓ region • enter drill • space select • u up • d down • m metric • t period • / filter • +/- zoom • e export • q home"
	if m.filtering {
		statusText = "type to filter • enter done • esc clear"
	}
	b.WriteString(styles.StatusBar.Render(statusText))
	return b.String()
}

func (m DashboardModel) legend(kpi *drilldown.KPIView) string {
	if kpi == nil || len(kpi.Breaks) == 0 {
		return lipgloss.NewStyle().Foreground(styles.Muted).Render("no classes")
	}
	n := len(kpi.Breaks) + 1
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		label := "<" + model.FormatValue(&kpi.Breaks[0])
		switch {
		case i == n-1:
			label = "≥" + model.FormatValue(&kpi.Breaks[n-2])
		case i > 0:
			label = model.FormatValue(&kpi.Breaks[i-1]) + "–"
		}
		parts = append(parts, lipgloss.NewStyle().Foreground(styles.ClassColor(i, n)).Render("■ "+label))
	}
	return strings.Join(parts, " ")
}

func (m DashboardModel) viewDetail(st model.NavigationState, v drilldown.View, w int) string {
	var b strings.Builder
	muted := lipgloss.NewStyle().Foreground(styles.Muted)

	if st.Selection == nil {
		b.WriteString(muted.Italic(true).Render("Select a region"))
		b.WriteString("\n")
	} else {
		b.WriteString(styles.Subtitle.Render(fmt.Sprintf("%s (%s)", st.Selection.Name, st.Selection.Code)))
		b.WriteString(muted.Render(" " + st.Selection.Level.String()))
		b.WriteString("\n")
		for _, mt := range m.p.Metrics {
			s, ok := v.Summaries[mt.Key]
			if !ok {
				continue
			}
			line := fmt.Sprintf("%-10s %8s", truncate(mt.Label, 10), model.FormatValue(s.Value))
			if d := s.Delta(); d != nil {
				line += muted.Render(fmt.Sprintf(" (%+.2f vs avg)", *d))
			}
			b.WriteString(line + "\n")
		}
		if len(v.Trend) > 0 && v.TrendRegion == st.Selection.Code {
			vals := make([]*float64, len(v.Trend))
			for i, p := range v.Trend {
				vals[i] = p.Value
			}
			b.WriteString(muted.Render("trend ") + components.Sparkline(vals))
			b.WriteString(muted.Render(fmt.Sprintf(" %s→%s", v.Trend[0].Time, v.Trend[len(v.Trend)-1].Time)))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")

	source := "local"
	if v.RankingRemote {
		source = "remote"
	}
	b.WriteString(styles.Subtitle.Render("Ranking") + muted.Render(" ("+source+")") + "\n")
	for i, e := range firstN(v.Ranking.Top, 5) {
		b.WriteString(fmt.Sprintf("%2d %-*s %s\n", i+1, w-14, truncate(e.RegionName, w-14), model.FormatValue(e.Value)))
	}
	if len(v.Ranking.Bottom) > 0 {
		b.WriteString(muted.Render(" …") + "\n")
		for _, e := range firstN(v.Ranking.Bottom, 3) {
			b.WriteString(fmt.Sprintf("   %-*s %s\n", w-14, truncate(e.RegionName, w-14), model.FormatValue(e.Value)))
		}
	}

	if kpi := m.currentKPI(st); kpi != nil || v.Errors[drilldown.KindKPI] != nil {
		b.WriteString("\n")
		if kpi == nil {
			kpi = v.KPI
		}
		if kpi != nil {
			j := kpi.Join
			b.WriteString(muted.Render(fmt.Sprintf("join %d/%d (%.0f%%)", j.MatchedCount, j.GeoCount, j.Ratio()*100)))
			b.WriteString("\n")
		}
	}
	for _, k := range drilldown.Kinds {
		if err := v.Errors[k]; err != nil {
			b.WriteString(styles.ErrorText.Render(truncate(fmt.Sprintf("%s: %v", k, err), w)))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func firstN(entries []model.RankEntry, n int) []model.RankEntry {
	if len(entries) > n {
		return entries[:n]
	}
	return entries
}

func (m *DashboardModel) exportCSV() {
	st := m.machine().State()
	kpi := m.currentKPI(st)
	if kpi == nil || len(kpi.Records) == 0 {
		m.exportMsg = "Nothing to export"
		return
	}
	q := stats.Query{Level: st.Level, Metric: st.Metric, Time: st.Time}
	name := fmt.Sprintf("kpi_%s_%s_%s.csv", st.Level.DataLevel(), st.Metric, st.Time)
	if kpi.Parent != "" {
		name = fmt.Sprintf("kpi_%s_%s_%s_%s.csv", st.Level.DataLevel(), kpi.Parent, st.Metric, st.Time)
	}
	csvPath := filepath.Join(m.p.DataDir, name)

	f, err := os.Create(csvPath)
	if err != nil {
		m.exportMsg = fmt.Sprintf("Export error: %v", err)
		return
	}
	defer f.Close()

	if err := stats.WriteCSV(f, q, kpi.Records); err != nil {
		m.exportMsg = fmt.Sprintf("Export error: %v", err)
		return
	}
	m.exportMsg = fmt.Sprintf("Exported %d rows to %s", len(kpi.Records), csvPath)
}

// NavigateToDashboard opens the dashboard on a data directory.
type NavigateToDashboard struct {
	DataDir string
}

// NavigateToHome returns to the main menu.
type NavigateToHome struct{}
