package geo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/rendis/geodrill/internal/model"
)

// Canonical property names written on every normalized feature.
const (
	PropCode   = "region_code"
	PropName   = "region_name"
	PropParent = "parent_code"
	PropLevel  = "level"
)

// ReadFeatureCollection decodes a GeoJSON FeatureCollection from disk.
func ReadFeatureCollection(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return fc, nil
}

// WriteFeatureCollection encodes fc to path, creating parent directories.
func WriteFeatureCollection(path string, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ToFeatureCollection serializes canonical regions. Feature ids are region codes.
func ToFeatureCollection(regions []model.CanonicalRegion) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range regions {
		f := geojson.NewFeature(r.Geometry)
		f.ID = r.Code
		props := make(geojson.Properties, len(r.Properties)+4)
		for k, v := range r.Properties {
			props[k] = v
		}
		props[PropCode] = r.Code
		props[PropName] = r.Name
		if r.ParentCode != "" {
			props[PropParent] = r.ParentCode
		} else {
			props[PropParent] = nil
		}
		props[PropLevel] = r.Level.String()
		f.Properties = props
		fc.Append(f)
	}
	return fc
}

// FromFeatureCollection reads back a collection written by ToFeatureCollection.
// Features without a region code are skipped.
func FromFeatureCollection(fc *geojson.FeatureCollection, level model.Level) []model.CanonicalRegion {
	regions := make([]model.CanonicalRegion, 0, len(fc.Features))
	for _, f := range fc.Features {
		code := f.Properties.MustString(PropCode, "")
		if code == "" {
			continue
		}
		regions = append(regions, model.CanonicalRegion{
			Code:       code,
			Name:       f.Properties.MustString(PropName, ""),
			ParentCode: f.Properties.MustString(PropParent, ""),
			Level:      level,
			Geometry:   f.Geometry,
			Properties: f.Properties,
		})
	}
	return regions
}

// CanonicalFileName is the file a normalized level is written to.
func CanonicalFileName(level model.Level) string {
	return level.String() + ".geojson"
}

var levelHints = []struct {
	level model.Level
	hints []string
}{
	// emd first: "submunicipalities" also contains "municipalities".
	{model.LevelEmd, []string{"emd", "eupmyeondong", "submunicipalities", "dong"}},
	{model.LevelSigungu, []string{"sigungu", "municipalities", "sig"}},
	{model.LevelSido, []string{"sido", "provinces", "ctprvn"}},
}

// FindLevelFiles maps each level to the GeoJSON source file in dir whose
// name mentions it. Levels without a file are absent from the result.
func FindLevelFiles(dir string) (map[model.Level]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".geojson" || ext == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	files := make(map[model.Level]string)
	for _, name := range names {
		lower := strings.ToLower(name)
		for _, lh := range levelHints {
			if !containsAny(lower, lh.hints) {
				continue
			}
			if _, ok := files[lh.level]; !ok {
				files[lh.level] = filepath.Join(dir, name)
			}
			break
		}
	}
	return files, nil
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
