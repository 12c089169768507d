package views

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/geodrill/internal/config"
	"github.com/rendis/geodrill/internal/engine/drilldown"
	"github.com/rendis/geodrill/internal/engine/geo"
	"github.com/rendis/geodrill/internal/engine/stats"
	"github.com/rendis/geodrill/internal/model"
)

func box(level model.Level, code, name, parent string, x, y float64) model.CanonicalRegion {
	return model.CanonicalRegion{
		Code: code, Name: name, ParentCode: parent, Level: level,
		Geometry: orb.Polygon{{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y}}},
	}
}

func testParams(t *testing.T) DashboardParams {
	t.Helper()
	store := geo.NewBoundaryStore(map[model.Level][]model.CanonicalRegion{
		model.LevelSido: {
			box(model.LevelSido, "11", "서울특별시", "", 126, 37),
			box(model.LevelSido, "26", "부산광역시", "", 128, 35),
			box(model.LevelSido, "41", "경기도", "", 127, 36),
		},
		model.LevelSigungu: {
			box(model.LevelSigungu, "41110", "수원시", "41", 127, 36),
			box(model.LevelSigungu, "41130", "성남시", "41", 127.5, 36),
			box(model.LevelSigungu, "11010", "종로구", "11", 126, 37),
		},
	})
	syn := stats.NewSynthetic(store).WithClock(func() time.Time {
		return time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	})
	metrics := []config.Metric{{Key: "a", Label: "Metric A"}, {Key: "b", Label: "Metric B"}}
	session := drilldown.NewSession(drilldown.NewMachine("a", "2025-12"), drilldown.Deps{
		Boundaries: store,
		KPI:        syn,
		Ranking:    syn,
		Trend:      syn,
		Metrics:    []string{"a", "b"},
		Classes:    3,
	})
	return DashboardParams{
		DataDir:    t.TempDir(),
		Session:    session,
		Boundaries: store,
		Metrics:    metrics,
		Periods:    []string{"2025-11", "2025-12"},
		Classes:    3,
	}
}

// drain runs cmd and every command it leads to, feeding load results back
// into the model. Spinner ticks are dropped so nothing sleeps.
func drain(m tea.Model, cmd tea.Cmd) tea.Model {
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case loadResultMsg:
			var next tea.Cmd
			m, next = m.Update(msg)
			queue = append(queue, next)
		}
	}
	return m
}

func press(m tea.Model, key string) (tea.Model, tea.Cmd) {
	var msg tea.KeyMsg
	switch key {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	return m.Update(msg)
}

func pressAndDrain(m tea.Model, key string) tea.Model {
	m, cmd := press(m, key)
	return drain(m, cmd)
}

func TestDashboardDrillsThroughLevels(t *testing.T) {
	p := testParams(t)
	var m tea.Model = NewDashboardModel(p)
	m = drain(m, m.Init())

	d := m.(DashboardModel)
	require.Len(t, d.visible, 3)
	assert.Equal(t, "41", d.visible[0].Code, "rows sorted by name")
	require.NotNil(t, d.currentKPI(p.Session.Machine().State()))

	m = pressAndDrain(m, "enter")
	st := p.Session.Machine().State()
	assert.Equal(t, model.LevelSido, st.Level)
	assert.Equal(t, "41", st.SelectedSido)
	assert.False(t, st.IsDrillingDown)

	m = pressAndDrain(m, "enter")
	st = p.Session.Machine().State()
	assert.Equal(t, model.LevelSigungu, st.Level)
	d = m.(DashboardModel)
	require.Len(t, d.visible, 2)
	assert.Equal(t, "41130", d.visible[0].Code)
	kpi := d.currentKPI(st)
	require.NotNil(t, kpi)
	assert.Equal(t, "41", kpi.Parent)

	m = pressAndDrain(m, "u")
	assert.Equal(t, model.LevelSido, p.Session.Machine().State().Level)
	assert.Len(t, m.(DashboardModel).visible, 3)

	m = pressAndDrain(m, "u")
	_, cmd := press(m, "esc")
	require.NotNil(t, cmd)
	assert.IsType(t, NavigateToHome{}, cmd())
}

func TestDashboardCursorStartsOnFirstRow(t *testing.T) {
	p := testParams(t)
	d := NewDashboardModel(p)
	assert.Equal(t, 0, d.table.Cursor(), "cursor valid before any load")

	var m tea.Model = d
	m = drain(m, m.Init())
	d = m.(DashboardModel)
	assert.Equal(t, 0, d.table.Cursor())
	cur, ok := d.current()
	require.True(t, ok)
	assert.Equal(t, "41", cur.Code)

	m, _ = press(m, "down")
	m = pressAndDrain(m, "enter")
	d = m.(DashboardModel)
	assert.Equal(t, model.LevelSido, p.Session.Machine().State().Level)
	assert.Equal(t, 0, d.table.Cursor(), "cursor resets when the level changes")

	m, _ = press(m, "down")
	m = pressAndDrain(m, "enter")
	d = m.(DashboardModel)
	assert.Equal(t, model.LevelSigungu, p.Session.Machine().State().Level)
	assert.Equal(t, "26", p.Session.Machine().State().SelectedSido)
	assert.Empty(t, d.visible, "부산 has no sigungu in the fixture")
	_, ok = d.current()
	assert.False(t, ok)

	m = pressAndDrain(m, "u")
	d = m.(DashboardModel)
	assert.Equal(t, 0, d.table.Cursor())
	cur, ok = d.current()
	require.True(t, ok)
	assert.Equal(t, "41", cur.Code)
}

func TestDashboardSelectAndHover(t *testing.T) {
	p := testParams(t)
	var m tea.Model = NewDashboardModel(p)
	m = drain(m, m.Init())

	m, _ = press(m, "down")
	assert.Equal(t, "26", p.Session.Machine().State().HoveredRegion)

	m = pressAndDrain(m, " ")
	st := p.Session.Machine().State()
	require.NotNil(t, st.Selection)
	assert.Equal(t, "26", st.Selection.Code)
	v := p.Session.View()
	assert.Equal(t, "26", v.TrendRegion)
	assert.Contains(t, v.Summaries, "b")

	out := m.View()
	assert.Contains(t, out, "geodrill")
	assert.Contains(t, out, "부산광역시 (26)")
	assert.Contains(t, out, "Metric A")
}

func TestDashboardMetricAndPeriodCycle(t *testing.T) {
	p := testParams(t)
	var m tea.Model = NewDashboardModel(p)
	m = drain(m, m.Init())

	m = pressAndDrain(m, "m")
	assert.Equal(t, "b", p.Session.Machine().State().Metric)
	m = pressAndDrain(m, "m")
	assert.Equal(t, "a", p.Session.Machine().State().Metric)

	pressAndDrain(m, "t")
	assert.Equal(t, "2025-11", p.Session.Machine().State().Time)
}

func TestDashboardFilter(t *testing.T) {
	p := testParams(t)
	var m tea.Model = NewDashboardModel(p)
	m = drain(m, m.Init())

	m, _ = press(m, "/")
	for _, r := range "부산" {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	d := m.(DashboardModel)
	require.Len(t, d.visible, 1)
	assert.Equal(t, "26", d.visible[0].Code)

	m, _ = press(m, "esc")
	assert.Len(t, m.(DashboardModel).visible, 3)
}

func TestDashboardExport(t *testing.T) {
	p := testParams(t)
	var m tea.Model = NewDashboardModel(p)
	m = drain(m, m.Init())

	m, _ = press(m, "e")
	assert.Contains(t, m.(DashboardModel).exportMsg, "Exported 3 rows")

	data, err := os.ReadFile(filepath.Join(p.DataDir, "kpi_sido_a_2025-12.csv"))
	require.NoError(t, err)
	assert.Equal(t, 4, len(strings.Split(strings.TrimSpace(string(data)), "\n")))
}

func TestNextIndex(t *testing.T) {
	assert.Equal(t, 1, nextIndex([]string{"a", "b"}, "a"))
	assert.Equal(t, 0, nextIndex([]string{"a", "b"}, "b"))
	assert.Equal(t, 0, nextIndex([]string{"a", "b"}, "zz"))
	assert.Equal(t, "ab…", truncate("abcd", 3))
	assert.Equal(t, "abc", truncate("abc", 3))
}
