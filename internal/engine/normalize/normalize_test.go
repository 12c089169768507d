package normalize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/geodrill/internal/config"
	"github.com/rendis/geodrill/internal/engine/geo"
	"github.com/rendis/geodrill/internal/model"
)

func feature(props map[string]interface{}) *geojson.Feature {
	f := geojson.NewFeature(orb.Polygon{{{127, 37}, {127.1, 37}, {127.1, 37.1}, {127, 37}}})
	f.Properties = props
	return f
}

func TestNormalizeLayerDerivesParentFromPrefix(t *testing.T) {
	s := model.LevelSchema{CodeKey: "SIG_CD", NameKey: "SIG_KOR_NM", ModalCodeLength: 5}
	layer := NormalizeLayer(model.LevelSigungu, []*geojson.Feature{
		feature(map[string]interface{}{"SIG_CD": 11010.0, "SIG_KOR_NM": " 종로구 ", "region_code": "bogus"}),
		feature(map[string]interface{}{"SIG_CD": "2611", "SIG_KOR_NM": "중구"}),
	}, s, 2)

	require.Len(t, layer.Regions, 2)
	r := layer.Regions[0]
	assert.Equal(t, "11010", r.Code)
	assert.Equal(t, "종로구", r.Name)
	assert.Equal(t, "11", r.ParentCode)
	assert.Equal(t, model.LevelSigungu, r.Level)
	assert.Equal(t, "11010", r.Properties[geo.PropCode], "canonical value wins over source key")
	assert.Equal(t, 11010.0, r.Properties["SIG_CD"], "source properties preserved")
	assert.Equal(t, "sigungu", r.Properties[geo.PropLevel])

	assert.Equal(t, "2611", layer.Regions[1].Code, "off-length code still normalized")
	assert.Equal(t, "26", layer.Regions[1].ParentCode)
}

func TestNormalizeLayerExplicitParentAndTopLevel(t *testing.T) {
	s := model.LevelSchema{CodeKey: "code", NameKey: "name", ParentKey: "parent"}
	layer := NormalizeLayer(model.LevelEmd, []*geojson.Feature{
		feature(map[string]interface{}{"code": "11010101", "name": "청운효자동", "parent": "11010"}),
	}, s, 5)
	assert.Equal(t, "11010", layer.Regions[0].ParentCode)

	top := NormalizeLayer(model.LevelSido, []*geojson.Feature{
		feature(map[string]interface{}{"code": "11", "name": "서울"}),
	}, model.LevelSchema{CodeKey: "code", NameKey: "name"}, 0)
	assert.Empty(t, top.Regions[0].ParentCode)
	assert.Nil(t, top.Regions[0].Properties[geo.PropParent])
}

func TestNormalizeLayerSkipsEmptyAndDuplicateCodes(t *testing.T) {
	s := model.LevelSchema{CodeKey: "code", NameKey: "name"}
	layer := NormalizeLayer(model.LevelSido, []*geojson.Feature{
		feature(map[string]interface{}{"code": "11", "name": "a"}),
		feature(map[string]interface{}{"code": "11", "name": "b"}),
		feature(map[string]interface{}{"name": "c"}),
	}, s, 0)
	assert.Len(t, layer.Regions, 1)
	assert.Equal(t, "a", layer.Regions[0].Name)
	assert.Equal(t, []string{"11"}, layer.Duplicates)
	assert.Equal(t, 1, layer.EmptyCodes)
}

func TestCleanNameComposesHangul(t *testing.T) {
	decomposed := "\u1109\u1165\u110b\u116e\u11af"
	assert.Equal(t, "서울", CleanName("  "+decomposed+" "))
}

func regions(level model.Level, parents ...string) []model.CanonicalRegion {
	out := make([]model.CanonicalRegion, 0, len(parents))
	for i, p := range parents {
		out = append(out, model.CanonicalRegion{Code: fmt.Sprintf("%s%03d", p, i), ParentCode: p, Level: level})
	}
	return out
}

func TestCheckCoverageFull(t *testing.T) {
	parents := map[string]struct{}{"11": {}, "26": {}}
	res, err := CheckCoverage(model.LevelSigungu, regions(model.LevelSigungu, "11", "11", "26"), parents, DefaultCoverageThreshold)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Ratio)
	assert.Equal(t, 3, res.Matched)
	assert.Empty(t, res.BrokenCodes)
}

func TestCheckCoverageBelowThreshold(t *testing.T) {
	var ps []string
	for i := 0; i < 95; i++ {
		ps = append(ps, "11")
	}
	for i := 0; i < 5; i++ {
		ps = append(ps, "99")
	}
	parents := map[string]struct{}{"11": {}}
	children := regions(model.LevelSigungu, ps...)
	children = append(children, model.CanonicalRegion{Code: "x", ParentCode: "", Level: model.LevelSigungu})

	res, err := CheckCoverage(model.LevelSigungu, children, parents, DefaultCoverageThreshold)
	require.Error(t, err)
	assert.Less(t, res.Ratio, 0.95)
	assert.Len(t, res.BrokenCodes, 6)

	var ce *CoverageError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 95, ce.Matched)
	assert.Equal(t, 101, ce.Total)
	assert.Len(t, ce.Sample, 6)
	assert.Contains(t, err.Error(), "sigungu")
}

func TestCheckCoverageSampleBounded(t *testing.T) {
	var ps []string
	for i := 0; i < 30; i++ {
		ps = append(ps, "99")
	}
	_, err := CheckCoverage(model.LevelEmd, regions(model.LevelEmd, ps...), map[string]struct{}{}, DefaultCoverageThreshold)
	var ce *CoverageError
	require.True(t, errors.As(err, &ce))
	assert.Len(t, ce.Sample, 10)
	assert.Zero(t, ce.Ratio)
}

func TestCheckCoverageEmptyChildren(t *testing.T) {
	res, err := CheckCoverage(model.LevelEmd, nil, map[string]struct{}{}, DefaultCoverageThreshold)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Ratio)
}

func TestPipelineOnSampleData(t *testing.T) {
	src, err := geo.SampleSources()
	require.NoError(t, err)

	res, err := NewPipeline(config.DefaultRules(), nil).Run(context.Background(), Sources(src))
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []model.Level{model.LevelSido, model.LevelSigungu, model.LevelEmd}, res.Levels())

	assert.Equal(t, "CTPRVN_CD", res.Schemas[model.LevelSido].CodeKey)
	assert.Equal(t, "SIG_CD", res.Schemas[model.LevelSigungu].CodeKey)
	assert.Equal(t, 5, res.Schemas[model.LevelSigungu].ModalCodeLength)
	assert.Equal(t, "EMD_CD", res.Schemas[model.LevelEmd].CodeKey)
	assert.Equal(t, 8, res.Schemas[model.LevelEmd].ModalCodeLength)

	assert.Len(t, res.Regions[model.LevelSido], 3)
	assert.Len(t, res.Regions[model.LevelEmd], 48)
	assert.Equal(t, "11010", res.Regions[model.LevelEmd][0].ParentCode)

	require.Len(t, res.Coverage, 2)
	for _, c := range res.Coverage {
		assert.Equal(t, 1.0, c.Ratio)
	}
	require.Len(t, res.Reports, 3)
	assert.Equal(t, geo.ProjectionWGS84, res.Reports[0].Projection)
	assert.Equal(t, map[string]int{"Polygon": 3}, res.Reports[0].GeometryTypes)
	assert.Empty(t, res.Reports[2].Warnings())
}

func TestPipelineAbortsOnBrokenParents(t *testing.T) {
	sido := geojson.NewFeatureCollection()
	sido.Append(feature(map[string]interface{}{"code": "11", "name": "서울"}))
	sig := geojson.NewFeatureCollection()
	for i := 0; i < 10; i++ {
		prefix := "11"
		if i == 0 {
			prefix = "26"
		}
		sig.Append(feature(map[string]interface{}{"code": fmt.Sprintf("%s%03d", prefix, i), "name": "gu"}))
	}

	res, err := NewPipeline(config.DefaultRules(), nil).Run(context.Background(), Sources{
		model.LevelSido:    sido,
		model.LevelSigungu: sig,
	})
	var ce *CoverageError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []string{"26000"}, ce.Sample)
	require.NotNil(t, res)
	assert.Len(t, res.Reports, 2, "reports survive a failed run")
}

func TestPipelineNeedsParentLayer(t *testing.T) {
	sig := geojson.NewFeatureCollection()
	sig.Append(feature(map[string]interface{}{"code": "11010", "name": "gu"}))
	_, err := NewPipeline(config.DefaultRules(), nil).Run(context.Background(), Sources{model.LevelSigungu: sig})
	assert.Error(t, err)

	_, err = NewPipeline(config.DefaultRules(), nil).Run(context.Background(), Sources{})
	assert.Error(t, err)
}

func TestNormalizeLayerFallsBackToPrefixPerFeature(t *testing.T) {
	s := model.LevelSchema{CodeKey: "code", NameKey: "name", ParentKey: "parent"}
	layer := NormalizeLayer(model.LevelSigungu, []*geojson.Feature{
		feature(map[string]interface{}{"code": "11010", "name": "a", "parent": "11"}),
		feature(map[string]interface{}{"code": "26010", "name": "b"}),
		feature(map[string]interface{}{"code": "41110", "name": "c", "parent": ""}),
		feature(map[string]interface{}{"code": "41", "name": "d"}),
		feature(map[string]interface{}{"code": "4", "name": "e"}),
	}, s, 2)

	require.Len(t, layer.Regions, 5)
	parents := make([]string, 0, 5)
	for _, r := range layer.Regions {
		parents = append(parents, r.ParentCode)
	}
	assert.Equal(t, []string{"11", "26", "41", "41", ""}, parents)
}

func TestPipelineSparseParentKeyKeepsCoverage(t *testing.T) {
	sido := geojson.NewFeatureCollection()
	for i := range 10 {
		sido.Append(feature(map[string]interface{}{"CTPRVN_CD": fmt.Sprint(11 + i), "CTP_KOR_NM": fmt.Sprintf("sido%d", i)}))
	}
	sig := geojson.NewFeatureCollection()
	for i := range 100 {
		props := map[string]interface{}{
			"SIG_CD":     fmt.Sprintf("%d%03d", 11+i%10, i),
			"SIG_KOR_NM": fmt.Sprintf("gu%d", i),
		}
		if i < 5 {
			props["PARENT"] = fmt.Sprint(11 + i%10)
		}
		sig.Append(feature(props))
	}

	res, err := NewPipeline(config.DefaultRules(), nil).Run(context.Background(), Sources{
		model.LevelSido:    sido,
		model.LevelSigungu: sig,
	})
	require.NoError(t, err)
	assert.Equal(t, "PARENT", res.Schemas[model.LevelSigungu].ParentKey)
	require.Len(t, res.Coverage, 1)
	assert.Equal(t, 1.0, res.Coverage[0].Ratio)
}

func TestBuildReportWithoutGeometry(t *testing.T) {
	f := geojson.NewFeature(nil)
	f.Properties = map[string]interface{}{"code": "11", "name": "서울"}
	s := model.LevelSchema{CodeKey: "code", NameKey: "name", ModalCodeLength: 2}
	raw := []*geojson.Feature{f}
	rep := BuildReport(model.LevelSido, raw, s, NormalizeLayer(model.LevelSido, raw, s, 0))

	assert.Nil(t, rep.Bounds)
	assert.Equal(t, map[string]int{"null": 1}, rep.GeometryTypes)
	data, err := json.Marshal(rep)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"bounds":null`)

	withGeom := BuildReport(model.LevelSido, []*geojson.Feature{feature(f.Properties)}, s, Layer{})
	require.NotNil(t, withGeom.Bounds)
	assert.Equal(t, 127.0, withGeom.Bounds.MinLon)
}
