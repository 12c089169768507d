// Package normalize turns raw boundary layers into canonical regions and
// validates that every level joins onto the level above it.
package normalize

import (
	"strings"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/text/unicode/norm"

	"github.com/rendis/geodrill/internal/engine/geo"
	"github.com/rendis/geodrill/internal/engine/schema"
	"github.com/rendis/geodrill/internal/model"
)

// Layer is the outcome of normalizing one raw layer.
type Layer struct {
	Regions    []model.CanonicalRegion
	EmptyCodes int      // features skipped for lacking a code
	Duplicates []string // codes seen more than once; first occurrence kept
}

// NormalizeLayer converts raw features to canonical regions using the
// detected schema. For levels with a parent, a feature without an explicit
// parent value gets the first parentModalLength characters of its region
// code. Features with an off-length code are kept.
func NormalizeLayer(level model.Level, features []*geojson.Feature, s model.LevelSchema, parentModalLength int) Layer {
	var out Layer
	seen := make(map[string]bool, len(features))
	_, hasParent := level.Parent()

	for _, f := range features {
		code, ok := schema.Stringify(f.Properties[s.CodeKey])
		if !ok {
			out.EmptyCodes++
			continue
		}
		if seen[code] {
			out.Duplicates = append(out.Duplicates, code)
			continue
		}
		seen[code] = true

		name, _ := schema.Stringify(f.Properties[s.NameKey])
		name = CleanName(name)

		var parent string
		if hasParent {
			parent = parentCode(f, code, s.ParentKey, parentModalLength)
		}

		props := make(map[string]interface{}, len(f.Properties)+4)
		for k, v := range f.Properties {
			props[k] = v
		}
		props[geo.PropCode] = code
		props[geo.PropName] = name
		if parent != "" {
			props[geo.PropParent] = parent
		} else {
			props[geo.PropParent] = nil
		}
		props[geo.PropLevel] = level.String()

		out.Regions = append(out.Regions, model.CanonicalRegion{
			Code:       code,
			Name:       name,
			ParentCode: parent,
			Level:      level,
			Geometry:   f.Geometry,
			Properties: props,
		})
	}
	return out
}

// parentCode prefers the explicit parent value and falls back to the code
// prefix per feature, so a parent key present on only some features still
// leaves the rest joinable. A code exactly parentLen long is its own prefix.
func parentCode(f *geojson.Feature, code, parentKey string, parentLen int) string {
	if parentKey != "" {
		if p, ok := schema.Stringify(f.Properties[parentKey]); ok && p != "" {
			return p
		}
	}
	if parentLen <= 0 || len(code) < parentLen {
		return ""
	}
	return code[:parentLen]
}

// CleanName trims and NFC-normalizes a region name. Hangul in some source
// files is stored decomposed and would otherwise not compare equal.
func CleanName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
