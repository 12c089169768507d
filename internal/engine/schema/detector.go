// Package schema detects which raw property names carry the region code,
// name and parent code of a boundary layer.
package schema

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb/geojson"

	"github.com/rendis/geodrill/internal/config"
	"github.com/rendis/geodrill/internal/model"
)

const (
	numericWeight = 0.7
	lengthWeight  = 0.3
	scoreEpsilon  = 1e-9
)

// SchemaDetectionError means no candidate key is usable as the code or
// name field of a level. Normalization of that level cannot proceed.
type SchemaDetectionError struct {
	Level     model.Level
	Field     string // "code" or "name"
	BestKey   string
	BestScore float64
	Features  int
}

func (e *SchemaDetectionError) Error() string {
	if e.BestKey == "" {
		return fmt.Sprintf("schema detection for %s: no candidate %s key present in %d features", e.Level, e.Field, e.Features)
	}
	return fmt.Sprintf("schema detection for %s: best %s key %q scored %.3f, below threshold",
		e.Level, e.Field, e.BestKey, e.BestScore)
}

// CodeScore is the evaluation of one candidate code key.
type CodeScore struct {
	Key          string
	Distinct     int
	NumericRatio float64
	ModalLength  int
	ModalRatio   float64
	Score        float64
}

// NameScore is the evaluation of one candidate name key.
type NameScore struct {
	Key   string
	Ratio float64
}

// Detector scores candidate keys against a rule set.
type Detector struct {
	rules config.Rules
}

func NewDetector(rules config.Rules) *Detector {
	return &Detector{rules: rules}
}

// ScoreCodeValues scores a set of distinct code values. Exported so the
// scoring can be exercised without features.
func ScoreCodeValues(values []string) CodeScore {
	cs := CodeScore{Distinct: len(values)}
	if len(values) == 0 {
		return cs
	}
	numeric := 0
	lengths := make(map[int]int)
	for _, v := range values {
		if isDigits(v) {
			numeric++
		}
		lengths[len(v)]++
	}
	modalCount := 0
	for l, n := range lengths {
		// shorter length wins a tie
		if n > modalCount || (n == modalCount && l < cs.ModalLength) {
			cs.ModalLength, modalCount = l, n
		}
	}
	total := float64(len(values))
	cs.NumericRatio = float64(numeric) / total
	cs.ModalRatio = float64(modalCount) / total
	cs.Score = numericWeight*cs.NumericRatio + lengthWeight*cs.ModalRatio
	return cs
}

// CodeScores evaluates every configured code key, in candidate order.
func (d *Detector) CodeScores(features []*geojson.Feature) []CodeScore {
	out := make([]CodeScore, 0, len(d.rules.CodeKeys))
	for _, key := range d.rules.CodeKeys {
		cs := ScoreCodeValues(distinctValues(features, key))
		cs.Key = key
		out = append(out, cs)
	}
	return out
}

// NameScores evaluates every configured name key, in candidate order.
func (d *Detector) NameScores(features []*geojson.Feature) []NameScore {
	out := make([]NameScore, 0, len(d.rules.NameKeys))
	for _, key := range d.rules.NameKeys {
		out = append(out, NameScore{Key: key, Ratio: nonEmptyRatio(features, key)})
	}
	return out
}

// DetectCode picks the code key for level. Ties go to the key with more
// distinct values, then to the earlier candidate.
func (d *Detector) DetectCode(level model.Level, features []*geojson.Feature) (CodeScore, error) {
	var best CodeScore
	found := false
	for _, cs := range d.CodeScores(features) {
		if cs.Distinct == 0 {
			continue
		}
		if !found || cs.Score > best.Score+scoreEpsilon ||
			(math.Abs(cs.Score-best.Score) <= scoreEpsilon && cs.Distinct > best.Distinct) {
			best = cs
			found = true
		}
	}
	if !found || best.Score < d.rules.MinCodeScore {
		return best, &SchemaDetectionError{Level: level, Field: "code", BestKey: best.Key, BestScore: best.Score, Features: len(features)}
	}
	return best, nil
}

// DetectName picks the name key with the highest non-empty fraction.
func (d *Detector) DetectName(level model.Level, features []*geojson.Feature) (NameScore, error) {
	var best NameScore
	for _, ns := range d.NameScores(features) {
		if ns.Ratio > best.Ratio+scoreEpsilon {
			best = ns
		}
	}
	if best.Key == "" || best.Ratio < d.rules.MinNameScore {
		return best, &SchemaDetectionError{Level: level, Field: "name", BestKey: best.Key, BestScore: best.Ratio, Features: len(features)}
	}
	return best, nil
}

// DetectParent returns the explicit parent key for a layer whose parent
// level has codes of expectedLength, or "" when none qualifies and parent
// codes must be derived from code prefixes.
func (d *Detector) DetectParent(features []*geojson.Feature, codeKey string, expectedLength int) string {
	if expectedLength <= 0 {
		return ""
	}
	bestKey, bestRatio := "", 0.0
	for _, key := range d.rules.ParentKeys {
		if key == codeKey {
			continue
		}
		values := presentValues(features, key)
		if len(values) == 0 {
			continue
		}
		numeric, atLength := 0, 0
		for _, v := range values {
			if isDigits(v) {
				numeric++
			}
			if len(v) == expectedLength {
				atLength++
			}
		}
		numericRatio := float64(numeric) / float64(len(values))
		lengthRatio := float64(atLength) / float64(len(values))
		if numericRatio > d.rules.ParentNumericRatio && lengthRatio > d.rules.ParentLengthRatio && lengthRatio > bestRatio+scoreEpsilon {
			bestKey, bestRatio = key, lengthRatio
		}
	}
	return bestKey
}

// Detect runs code and name detection plus parent detection for a layer.
// parentModalLength is the parent level's modal code length, 0 for the top level.
func (d *Detector) Detect(level model.Level, features []*geojson.Feature, parentModalLength int) (model.LevelSchema, error) {
	code, err := d.DetectCode(level, features)
	if err != nil {
		return model.LevelSchema{}, err
	}
	name, err := d.DetectName(level, features)
	if err != nil {
		return model.LevelSchema{}, err
	}
	return model.LevelSchema{
		CodeKey:         code.Key,
		NameKey:         name.Key,
		ParentKey:       d.DetectParent(features, code.Key, parentModalLength),
		ModalCodeLength: code.ModalLength,
	}, nil
}

func distinctValues(features []*geojson.Feature, key string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range features {
		v, ok := Stringify(f.Properties[key])
		if !ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func presentValues(features []*geojson.Feature, key string) []string {
	var out []string
	for _, f := range features {
		if v, ok := Stringify(f.Properties[key]); ok {
			out = append(out, v)
		}
	}
	return out
}

func nonEmptyRatio(features []*geojson.Feature, key string) float64 {
	if len(features) == 0 {
		return 0
	}
	n := 0
	for _, f := range features {
		if _, ok := Stringify(f.Properties[key]); ok {
			n++
		}
	}
	return float64(n) / float64(len(features))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
