// Package drilldown holds the navigation state of the dashboard and
// coordinates the loads each navigation change triggers.
package drilldown

import (
	"strings"
	"sync"

	"github.com/rendis/geodrill/internal/model"
)

// Machine is the drill-down state machine. Levels move strictly one step
// at a time between nation and emd. It does no I/O; it only hands out
// request ids that loads use to tell whether they are still current.
type Machine struct {
	mu     sync.Mutex
	st     model.NavigationState
	meta   map[string]model.RegionMeta
	lastID model.RequestID
}

func NewMachine(metric, period string) *Machine {
	return &Machine{
		st:   model.NavigationState{Level: model.LevelNation, Metric: metric, Time: period},
		meta: make(map[string]model.RegionMeta),
	}
}

// State returns a snapshot.
func (m *Machine) State() model.NavigationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.st
	if st.Selection != nil {
		sel := *st.Selection
		st.Selection = &sel
	}
	return st
}

func (m *Machine) SetMetric(metric string) {
	m.mu.Lock()
	m.st.Metric = metric
	m.mu.Unlock()
}

func (m *Machine) SetTime(period string) {
	m.mu.Lock()
	m.st.Time = period
	m.mu.Unlock()
}

// Hover records the region under the cursor; "" clears it.
func (m *Machine) Hover(code string) {
	m.mu.Lock()
	m.st.HoveredRegion = code
	m.mu.Unlock()
}

// SetRegionMeta merges region names and parents into the lookup table.
func (m *Machine) SetRegionMeta(meta []model.RegionMeta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rm := range meta {
		m.meta[rm.Code] = rm
	}
}

// RegionName returns the known name for code, or "".
func (m *Machine) RegionName(code string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta[code].Name
}

// SelectRegion selects code at the current level, looking its name up in
// the region meta. An empty code clears the selection and keeps the level.
func (m *Machine) SelectRegion(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selectLocked(code, m.meta[code].Name)
}

// SelectRegionWithName is SelectRegion with a caller-supplied name.
func (m *Machine) SelectRegionWithName(code, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selectLocked(code, name)
}

func (m *Machine) selectLocked(code, name string) {
	if code == "" {
		m.st.SelectedRegion = ""
		m.st.Selection = nil
		return
	}
	sel := &model.Selection{Code: code, Name: name, Level: m.st.Level.DataLevel()}
	switch m.st.Level {
	case model.LevelNation, model.LevelSido:
		m.st.SelectedSido = code
		m.st.SelectedSigungu = ""
	case model.LevelSigungu:
		m.st.SelectedSigungu = code
	}
	m.st.SelectedRegion = code
	m.st.Selection = sel
}

// ancestorLevel is the level whose selected code scopes the regions shown at l.
func ancestorLevel(l model.Level) model.Level {
	if l == model.LevelEmd {
		return model.LevelSigungu
	}
	return model.LevelSido
}

func (m *Machine) selectorLocked(l model.Level) string {
	if l == model.LevelSigungu {
		return m.st.SelectedSigungu
	}
	return m.st.SelectedSido
}

// resolveAncestorLocked finds the code at level anc that contains code:
// code itself when it is of that level, else its parent chain in the
// region meta, else the currently selected ancestor when code extends it.
func (m *Machine) resolveAncestorLocked(code string, anc model.Level) string {
	seen := 0
	for c := code; c != "" && seen < len(model.RegionLevels); seen++ {
		rm, ok := m.meta[c]
		if !ok {
			break
		}
		if rm.Level == anc {
			return c
		}
		c = rm.ParentCode
	}
	if sel := m.selectorLocked(anc); sel != "" && len(code) > len(sel) && strings.HasPrefix(code, sel) {
		return sel
	}
	return code
}

// DrillDownFromMap handles a click on a map feature: it moves one level
// down, scopes the new level to the clicked feature's ancestor, marks the
// drill as pending and returns its request id. At the deepest level it
// only selects code and returns 0.
func (m *Machine) DrillDownFromMap(code, name string) model.RequestID {
	m.mu.Lock()
	defer m.mu.Unlock()

	if code == "" {
		return 0
	}
	if m.st.Level == model.LevelEmd {
		m.st.SelectedRegion = code
		m.st.Selection = &model.Selection{Code: code, Name: name, Level: model.LevelEmd}
		return 0
	}

	next := m.st.Level.Next()
	anc := ancestorLevel(next)
	ancestor := m.resolveAncestorLocked(code, anc)

	switch anc {
	case model.LevelSido:
		if ancestor != m.st.SelectedSido {
			m.st.SelectedSigungu = ""
		}
		m.st.SelectedSido = ancestor
	case model.LevelSigungu:
		m.st.SelectedSigungu = ancestor
		if sido := m.resolveAncestorLocked(ancestor, model.LevelSido); sido != ancestor {
			m.st.SelectedSido = sido
		}
	}

	selLevel := next
	if rm, ok := m.meta[code]; ok {
		selLevel = rm.Level
	} else if code == ancestor {
		selLevel = anc
	}
	if code == ancestor {
		m.st.SelectedRegion = ""
	} else {
		m.st.SelectedRegion = code
	}
	if name == "" {
		name = m.meta[code].Name
	}
	m.st.Selection = &model.Selection{Code: code, Name: name, Level: selLevel}

	m.lastID++
	m.st.Level = next
	m.st.PendingRequestID = m.lastID
	m.st.IsDrillingDown = true
	return m.lastID
}

// DrillDown moves one level down when the ancestor that scopes the next
// level is selected. Otherwise it does nothing.
func (m *Machine) DrillDown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.st.Level == model.LevelEmd {
		return
	}
	next := m.st.Level.Next()
	if m.selectorLocked(ancestorLevel(next)) == "" {
		return
	}
	m.st.Level = next
	m.st.SelectedRegion = ""
}

// DrillUp moves one level up and re-selects the ancestor recorded for the
// level returned to.
func (m *Machine) DrillUp() {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.st.Level {
	case model.LevelEmd:
		m.st.Level = model.LevelSigungu
		m.st.SelectedRegion = m.st.SelectedSigungu
	case model.LevelSigungu:
		m.st.Level = model.LevelSido
		m.st.SelectedRegion = m.st.SelectedSido
	case model.LevelSido:
		m.st.Level = model.LevelNation
		m.st.SelectedRegion = m.st.SelectedSido
	}
}

// EndDrilldown clears the pending drill only when id is still the pending
// one; a late response for a superseded drill changes nothing.
func (m *Machine) EndDrilldown(id model.RequestID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == 0 || m.st.PendingRequestID != id {
		return false
	}
	m.st.PendingRequestID = 0
	m.st.IsDrillingDown = false
	return true
}

const (
	labelNation  = "전국"
	labelSido    = "시도"
	labelSigungu = "시군구"
	labelEmd     = "읍면동"
)

func (m *Machine) nameLocked(code, placeholder string) string {
	if code == "" {
		return placeholder
	}
	if n := m.meta[code].Name; n != "" {
		return n
	}
	return code
}

// RegionPath is the breadcrumb from the nation down to the current level.
func (m *Machine) RegionPath() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := []string{labelNation}
	if m.st.Level >= model.LevelSido {
		path = append(path, m.nameLocked(m.st.SelectedSido, labelSido))
	}
	if m.st.Level >= model.LevelSigungu {
		path = append(path, m.nameLocked(m.st.SelectedSigungu, labelSigungu))
	}
	if m.st.Level >= model.LevelEmd {
		path = append(path, m.nameLocked(m.st.SelectedRegion, labelEmd))
	}
	return path
}

// RegionPathLabel joins RegionPath with arrows.
func (m *Machine) RegionPathLabel() string {
	return strings.Join(m.RegionPath(), " → ")
}

// FiltersSummary describes the active period, metric and region path.
func (m *Machine) FiltersSummary(metricLabel string) string {
	st := m.State()
	if metricLabel == "" {
		metricLabel = st.Metric
	}
	return strings.Join(append([]string{st.Time, metricLabel}, m.RegionPath()...), " · ")
}
