package model

// RequestID identifies one drill-down load. Zero means no pending request.
type RequestID uint64

// Selection is the region currently shown in detail panels.
type Selection struct {
	Code  string
	Name  string
	Level Level
}

// NavigationState is a snapshot of the drill-down state machine.
type NavigationState struct {
	Level            Level
	SelectedSido     string
	SelectedSigungu  string
	SelectedRegion   string
	PendingRequestID RequestID
	IsDrillingDown   bool
	Selection        *Selection
	HoveredRegion    string
	Metric           string
	Time             string
}

// ParentFilter returns the ancestor code that scopes records at the
// current level, or "" when the level is not scoped.
func (s NavigationState) ParentFilter() string {
	switch s.Level {
	case LevelSigungu:
		return s.SelectedSido
	case LevelEmd:
		return s.SelectedSigungu
	}
	return ""
}
