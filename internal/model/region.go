package model

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// Level is an administrative level in the drill-down hierarchy.
type Level int

const (
	LevelNation Level = iota
	LevelSido
	LevelSigungu
	LevelEmd
)

// RegionLevels are the levels that carry boundary features, top-down.
var RegionLevels = []Level{LevelSido, LevelSigungu, LevelEmd}

func (l Level) String() string {
	switch l {
	case LevelNation:
		return "nation"
	case LevelSido:
		return "sido"
	case LevelSigungu:
		return "sigungu"
	case LevelEmd:
		return "emd"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel accepts the canonical names plus the aliases used by the
// upstream boundary and statistics sources.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nation", "national", "":
		return LevelNation, nil
	case "sido":
		return LevelSido, nil
	case "sigungu":
		return LevelSigungu, nil
	case "emd", "eup", "eupmyeon", "eupmyeondong":
		return LevelEmd, nil
	}
	return LevelNation, fmt.Errorf("unknown level %q", s)
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	v, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Valid reports whether l is one of the four known levels.
func (l Level) Valid() bool {
	return l >= LevelNation && l <= LevelEmd
}

// Next returns the level one step down, or l itself at the deepest level.
func (l Level) Next() Level {
	if l >= LevelEmd {
		return LevelEmd
	}
	return l + 1
}

// Prev returns the level one step up, or l itself at the top.
func (l Level) Prev() Level {
	if l <= LevelNation {
		return LevelNation
	}
	return l - 1
}

// Parent returns the region level that contains regions of level l.
// Only sigungu and emd have a parent level.
func (l Level) Parent() (Level, bool) {
	switch l {
	case LevelSigungu:
		return LevelSido, true
	case LevelEmd:
		return LevelSigungu, true
	}
	return LevelNation, false
}

// DataLevel maps a navigation level to the level whose boundaries and
// records are displayed. The nation view shows provinces.
func (l Level) DataLevel() Level {
	if l == LevelNation {
		return LevelSido
	}
	return l
}

// CanonicalRegion is a boundary feature after normalization.
type CanonicalRegion struct {
	Code       string
	Name       string
	ParentCode string // empty only for the top level
	Level      Level
	Geometry   orb.Geometry
	Properties map[string]interface{}
}

// LevelSchema is the detected mapping of raw property names for one level.
type LevelSchema struct {
	CodeKey         string `json:"code_key" yaml:"code_key"`
	NameKey         string `json:"name_key" yaml:"name_key"`
	ParentKey       string `json:"parent_key,omitempty" yaml:"parent_key,omitempty"`
	ModalCodeLength int    `json:"modal_code_length" yaml:"modal_code_length"`
}

// HasParentKey reports whether an explicit parent field was detected.
func (s LevelSchema) HasParentKey() bool {
	return s.ParentKey != ""
}

// RegionMeta is the lightweight view of a region kept by the navigation
// state for names and parent lookups.
type RegionMeta struct {
	Code       string
	Name       string
	ParentCode string
	Level      Level
}

// Meta returns the lightweight view of r.
func (r CanonicalRegion) Meta() RegionMeta {
	return RegionMeta{Code: r.Code, Name: r.Name, ParentCode: r.ParentCode, Level: r.Level}
}
