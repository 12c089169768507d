package normalize

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/rendis/geodrill/internal/engine/geo"
	"github.com/rendis/geodrill/internal/model"
)

const reportSampleSize = 10

// LayerReport summarizes one normalized level for triage.
type LayerReport struct {
	Level          model.Level       `json:"level"`
	Schema         model.LevelSchema `json:"schema"`
	FeatureCount   int               `json:"feature_count"`
	RegionCount    int               `json:"region_count"`
	GeometryTypes  map[string]int    `json:"geometry_types"`
	CodeLengths    map[int]int       `json:"code_lengths"`
	Bounds         *geo.Bounds       `json:"bounds"` // nil when no feature has geometry
	Projection     geo.Projection    `json:"projection"`
	OffLength      int               `json:"off_length"`
	OffLengthCodes []string          `json:"off_length_codes,omitempty"`
	DuplicateCodes []string          `json:"duplicate_codes,omitempty"`
	EmptyCodes     int               `json:"empty_codes"`
}

// BuildReport inspects the raw layer and its normalized output.
func BuildReport(level model.Level, raw []*geojson.Feature, s model.LevelSchema, layer Layer) LayerReport {
	rep := LayerReport{
		Level:          level,
		Schema:         s,
		FeatureCount:   len(raw),
		RegionCount:    len(layer.Regions),
		GeometryTypes:  make(map[string]int),
		CodeLengths:    make(map[int]int),
		DuplicateCodes: layer.Duplicates,
		EmptyCodes:     layer.EmptyCodes,
	}
	b := geo.EmptyBounds()
	for _, f := range raw {
		if f.Geometry == nil {
			rep.GeometryTypes["null"]++
			continue
		}
		rep.GeometryTypes[f.Geometry.GeoJSONType()]++
		b = b.Union(geo.GeometryBounds(f.Geometry))
	}
	rep.Projection = geo.DetectProjection(b)
	if !b.IsEmpty() {
		rep.Bounds = &b
	}

	for _, r := range layer.Regions {
		rep.CodeLengths[len(r.Code)]++
		if len(r.Code) != s.ModalCodeLength {
			rep.OffLength++
			if len(rep.OffLengthCodes) < reportSampleSize {
				rep.OffLengthCodes = append(rep.OffLengthCodes, r.Code)
			}
		}
	}
	return rep
}

// Warnings lists the findings worth surfacing in logs.
func (r LayerReport) Warnings() []string {
	var w []string
	if r.Projection != geo.ProjectionWGS84 {
		w = append(w, fmt.Sprintf("coordinates look %s, expected wgs84 lon/lat", r.Projection))
	}
	if r.OffLength > 0 {
		w = append(w, fmt.Sprintf("%d codes differ from modal length %d", r.OffLength, r.Schema.ModalCodeLength))
	}
	if len(r.DuplicateCodes) > 0 {
		w = append(w, fmt.Sprintf("%d duplicate codes dropped", len(r.DuplicateCodes)))
	}
	if r.EmptyCodes > 0 {
		w = append(w, fmt.Sprintf("%d features without a code skipped", r.EmptyCodes))
	}
	return w
}

// WriteText prints a human-readable report.
func (r LayerReport) WriteText(w io.Writer) {
	fmt.Fprintf(w, "[%s] features=%d regions=%d code=%s name=%s parent=%s modal_len=%d\n",
		r.Level, r.FeatureCount, r.RegionCount, r.Schema.CodeKey, r.Schema.NameKey,
		orDash(r.Schema.ParentKey), r.Schema.ModalCodeLength)
	fmt.Fprintf(w, "  geometry: %s\n", formatCounts(r.GeometryTypes))
	lengths := make(map[string]int, len(r.CodeLengths))
	for l, n := range r.CodeLengths {
		lengths[fmt.Sprintf("%d", l)] = n
	}
	fmt.Fprintf(w, "  code lengths: %s\n", formatCounts(lengths))
	if r.Bounds != nil {
		fmt.Fprintf(w, "  bounds: [%.4f, %.4f, %.4f, %.4f] (%s)\n",
			r.Bounds.MinLon, r.Bounds.MinLat, r.Bounds.MaxLon, r.Bounds.MaxLat, r.Projection)
	}
	for _, warn := range r.Warnings() {
		fmt.Fprintf(w, "  warning: %s\n", warn)
	}
}

func formatCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
