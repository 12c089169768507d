package schema

import (
	"errors"
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/geodrill/internal/config"
	"github.com/rendis/geodrill/internal/model"
)

func features(props ...map[string]interface{}) []*geojson.Feature {
	out := make([]*geojson.Feature, 0, len(props))
	for _, p := range props {
		f := geojson.NewFeature(orb.Point{127, 37})
		f.Properties = p
		out = append(out, f)
	}
	return out
}

func TestDetectsSIGCDAsCodeKey(t *testing.T) {
	var props []map[string]interface{}
	for i := 0; i < 20; i++ {
		props = append(props, map[string]interface{}{
			"SIG_CD":     fmt.Sprintf("%d", 11010+i*10),
			"SIG_KOR_NM": fmt.Sprintf("구-%d", i),
			"SIG_ENG_NM": fmt.Sprintf("Gu-%d", i),
			"OBJECTID":   i + 1,
		})
	}
	d := NewDetector(config.DefaultRules())

	s, err := d.Detect(model.LevelSigungu, features(props...), 2)
	require.NoError(t, err)
	assert.Equal(t, "SIG_CD", s.CodeKey)
	assert.Equal(t, 5, s.ModalCodeLength)
	assert.Equal(t, "SIG_KOR_NM", s.NameKey)
	assert.Empty(t, s.ParentKey, "no explicit parent field, derive from prefix")
}

func TestNumericCodesAreStringified(t *testing.T) {
	fs := features(
		map[string]interface{}{"code": 11.0, "name": "서울"},
		map[string]interface{}{"code": 26.0, "name": "부산"},
		map[string]interface{}{"code": 41.0, "name": "경기"},
	)
	d := NewDetector(config.DefaultRules())
	s, err := d.Detect(model.LevelSido, fs, 0)
	require.NoError(t, err)
	assert.Equal(t, "code", s.CodeKey)
	assert.Equal(t, 2, s.ModalCodeLength)
}

func TestDetectParentKey(t *testing.T) {
	var props []map[string]interface{}
	for i := 0; i < 10; i++ {
		props = append(props, map[string]interface{}{
			"adm_cd":      fmt.Sprintf("110%02d", i),
			"adm_nm":      "x",
			"parent_code": "11",
		})
	}
	d := NewDetector(config.DefaultRules())
	s, err := d.Detect(model.LevelSigungu, features(props...), 2)
	require.NoError(t, err)
	assert.Equal(t, "adm_cd", s.CodeKey)
	assert.Equal(t, "parent_code", s.ParentKey)

	// wrong length for the parent level: rejected
	s, err = d.Detect(model.LevelSigungu, features(props...), 5)
	require.NoError(t, err)
	assert.Empty(t, s.ParentKey)

	// top level never has a parent key
	assert.Empty(t, d.DetectParent(features(props...), "adm_cd", 0))
}

func TestParentKeyNeedsNumericValues(t *testing.T) {
	var props []map[string]interface{}
	for i := 0; i < 10; i++ {
		parent := "11"
		if i < 2 {
			parent = "AB"
		}
		props = append(props, map[string]interface{}{"code": fmt.Sprintf("110%02d", i), "name": "x", "parent": parent})
	}
	d := NewDetector(config.DefaultRules())
	assert.Empty(t, d.DetectParent(features(props...), "code", 2), "80% numeric is not enough")
}

func TestSchemaDetectionErrors(t *testing.T) {
	d := NewDetector(config.DefaultRules())

	_, err := d.Detect(model.LevelEmd, features(map[string]interface{}{"foo": "bar"}), 5)
	var sde *SchemaDetectionError
	require.True(t, errors.As(err, &sde))
	assert.Equal(t, "code", sde.Field)
	assert.Equal(t, model.LevelEmd, sde.Level)
	assert.Contains(t, err.Error(), "emd")

	_, err = d.Detect(model.LevelSido, features(
		map[string]interface{}{"code": "11"},
		map[string]interface{}{"code": "26"},
	), 0)
	require.True(t, errors.As(err, &sde))
	assert.Equal(t, "name", sde.Field)
}

func TestCodeScoreRejectsBelowThreshold(t *testing.T) {
	rules := config.DefaultRules()
	rules.MinCodeScore = 0.8
	d := NewDetector(rules)
	// names as codes: not numeric, mixed lengths
	_, err := d.DetectCode(model.LevelSido, features(
		map[string]interface{}{"code": "Seoul"},
		map[string]interface{}{"code": "Busan-si"},
	))
	var sde *SchemaDetectionError
	require.True(t, errors.As(err, &sde))
	assert.Equal(t, "code", sde.BestKey)
}

func TestCodeTieBreaks(t *testing.T) {
	rules := config.DefaultRules()
	rules.CodeKeys = []string{"a", "b"}
	d := NewDetector(rules)
	fs := features(
		map[string]interface{}{"a": "11", "b": "11"},
		map[string]interface{}{"a": "11", "b": "26"},
	)
	cs, err := d.DetectCode(model.LevelSido, fs)
	require.NoError(t, err)
	assert.Equal(t, "b", cs.Key, "equal score, more distinct values wins")

	fs = features(
		map[string]interface{}{"a": "11", "b": "21"},
		map[string]interface{}{"a": "26", "b": "26"},
	)
	cs, err = d.DetectCode(model.LevelSido, fs)
	require.NoError(t, err)
	assert.Equal(t, "a", cs.Key, "full tie keeps candidate order")
}

func TestScoreCodeValues(t *testing.T) {
	cs := ScoreCodeValues([]string{"11", "26", "41", "4113"})
	assert.Equal(t, 2, cs.ModalLength)
	assert.InDelta(t, 1.0, cs.NumericRatio, 1e-9)
	assert.InDelta(t, 0.75, cs.ModalRatio, 1e-9)
	assert.InDelta(t, 0.7+0.3*0.75, cs.Score, 1e-9)

	cs = ScoreCodeValues([]string{"11", "11010"})
	assert.Equal(t, 2, cs.ModalLength, "shorter length wins a tie")

	assert.Zero(t, ScoreCodeValues(nil).Score)
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
		ok   bool
	}{
		{"  11010 ", "11010", true},
		{11010.0, "11010", true},
		{1.5, "1.5", true},
		{42, "42", true},
		{nil, "", false},
		{"   ", "", false},
	}
	for _, tt := range tests {
		got, ok := Stringify(tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.ok, ok)
	}
}
