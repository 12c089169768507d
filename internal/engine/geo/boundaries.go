package geo

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/rendis/geodrill/internal/model"
)

//go:embed geodata/sample/*.geojson
var sampleFS embed.FS

// SampleSources returns the embedded raw boundary layers: three provinces
// with their municipalities and sub-municipalities, keyed the way the
// national statistics shapefiles key them.
func SampleSources() (map[model.Level]*geojson.FeatureCollection, error) {
	out := make(map[model.Level]*geojson.FeatureCollection, len(model.RegionLevels))
	for _, level := range model.RegionLevels {
		name := "geodata/sample/" + CanonicalFileName(level)
		data, err := sampleFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("reading embedded %s: %w", name, err)
		}
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("parsing embedded %s: %w", name, err)
		}
		out[level] = fc
	}
	return out, nil
}

// BoundaryStore indexes canonical regions per level. It is read-only after
// construction and safe for concurrent use.
type BoundaryStore struct {
	regions map[model.Level][]model.CanonicalRegion
	byCode  map[model.Level]map[string]int
}

// NewBoundaryStore indexes the given regions. Duplicate codes keep the first.
func NewBoundaryStore(byLevel map[model.Level][]model.CanonicalRegion) *BoundaryStore {
	bs := &BoundaryStore{
		regions: make(map[model.Level][]model.CanonicalRegion, len(byLevel)),
		byCode:  make(map[model.Level]map[string]int, len(byLevel)),
	}
	for level, regions := range byLevel {
		idx := make(map[string]int, len(regions))
		kept := make([]model.CanonicalRegion, 0, len(regions))
		for _, r := range regions {
			if _, dup := idx[r.Code]; dup {
				continue
			}
			idx[r.Code] = len(kept)
			kept = append(kept, r)
		}
		bs.regions[level] = kept
		bs.byCode[level] = idx
	}
	return bs
}

// LoadBoundaryStore reads the canonical files written by the normalize
// command. The province layer is required; lower layers are optional.
func LoadBoundaryStore(dir string) (*BoundaryStore, error) {
	byLevel := make(map[model.Level][]model.CanonicalRegion)
	for _, level := range model.RegionLevels {
		path := filepath.Join(dir, CanonicalFileName(level))
		if _, err := os.Stat(path); err != nil {
			if level == model.LevelSido {
				return nil, fmt.Errorf("boundary layer %s: %w", level, err)
			}
			continue
		}
		fc, err := ReadFeatureCollection(path)
		if err != nil {
			return nil, err
		}
		byLevel[level] = FromFeatureCollection(fc, level)
	}
	return NewBoundaryStore(byLevel), nil
}

// Levels returns the levels that have at least one region, top-down.
func (bs *BoundaryStore) Levels() []model.Level {
	var out []model.Level
	for _, l := range model.RegionLevels {
		if len(bs.regions[l]) > 0 {
			out = append(out, l)
		}
	}
	return out
}

// Regions returns every region displayed at level. The nation view shows provinces.
func (bs *BoundaryStore) Regions(level model.Level) []model.CanonicalRegion {
	return bs.regions[level.DataLevel()]
}

// Children returns the regions at level whose parent is parentCode, or all
// regions at level when parentCode is empty.
func (bs *BoundaryStore) Children(level model.Level, parentCode string) []model.CanonicalRegion {
	all := bs.Regions(level)
	if parentCode == "" {
		return all
	}
	var out []model.CanonicalRegion
	for _, r := range all {
		if r.ParentCode == parentCode {
			out = append(out, r)
		}
	}
	return out
}

// Codes returns the region codes displayed at level, scoped to parentCode
// when it is non-empty.
func (bs *BoundaryStore) Codes(level model.Level, parentCode string) []string {
	regions := bs.Children(level, parentCode)
	codes := make([]string, 0, len(regions))
	for _, r := range regions {
		codes = append(codes, r.Code)
	}
	return codes
}

// Region looks up one region by level and code.
func (bs *BoundaryStore) Region(level model.Level, code string) (model.CanonicalRegion, bool) {
	level = level.DataLevel()
	i, ok := bs.byCode[level][code]
	if !ok {
		return model.CanonicalRegion{}, false
	}
	return bs.regions[level][i], true
}

// Lookup finds a region by code at any level, deepest level first.
func (bs *BoundaryStore) Lookup(code string) (model.CanonicalRegion, bool) {
	code = strings.TrimSpace(code)
	for i := len(model.RegionLevels) - 1; i >= 0; i-- {
		if r, ok := bs.Region(model.RegionLevels[i], code); ok {
			return r, true
		}
	}
	return model.CanonicalRegion{}, false
}

// Meta returns the name/parent view of every region at every level.
func (bs *BoundaryStore) Meta() []model.RegionMeta {
	var out []model.RegionMeta
	for _, l := range model.RegionLevels {
		for _, r := range bs.regions[l] {
			out = append(out, r.Meta())
		}
	}
	return out
}

// Polygon returns the region outline as a MultiPolygon.
func (bs *BoundaryStore) Polygon(level model.Level, code string) (orb.MultiPolygon, error) {
	r, ok := bs.Region(level, code)
	if !ok {
		return nil, fmt.Errorf("region %q not found at level %s", code, level)
	}
	switch g := r.Geometry.(type) {
	case orb.MultiPolygon:
		return g, nil
	case orb.Polygon:
		return orb.MultiPolygon{g}, nil
	default:
		return nil, fmt.Errorf("unexpected geometry type %T for %q", g, code)
	}
}

// Extent returns the bounding box of the regions displayed at level under
// parentCode, which is what a map view should fit to.
func (bs *BoundaryStore) Extent(level model.Level, parentCode string) Bounds {
	return RegionBounds(bs.Children(level, parentCode))
}

// SortedByName returns regions ordered by name then code, for lists.
func SortedByName(regions []model.CanonicalRegion) []model.CanonicalRegion {
	out := make([]model.CanonicalRegion, len(regions))
	copy(out, regions)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Code < out[j].Code
	})
	return out
}
