package geo

import (
	"encoding/json"
	"math"

	"github.com/paulmach/orb"

	"github.com/rendis/geodrill/internal/model"
)

// Bounds is a longitude/latitude extent.
type Bounds struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// EmptyBounds returns an inverted box that any point will grow.
func EmptyBounds() Bounds {
	return Bounds{
		MinLon: math.Inf(1), MinLat: math.Inf(1),
		MaxLon: math.Inf(-1), MaxLat: math.Inf(-1),
	}
}

// IsEmpty reports whether no coordinate has been seen.
func (b Bounds) IsEmpty() bool {
	return b.MinLon > b.MaxLon || b.MinLat > b.MaxLat
}

func (b *Bounds) extend(lon, lat float64) {
	if math.IsNaN(lon) || math.IsNaN(lat) {
		return
	}
	b.MinLon = math.Min(b.MinLon, lon)
	b.MinLat = math.Min(b.MinLat, lat)
	b.MaxLon = math.Max(b.MaxLon, lon)
	b.MaxLat = math.Max(b.MaxLat, lat)
}

// Union returns the smallest box containing both b and o.
func (b Bounds) Union(o Bounds) Bounds {
	if o.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return o
	}
	b.extend(o.MinLon, o.MinLat)
	b.extend(o.MaxLon, o.MaxLat)
	return b
}

// Bound converts to an orb bound.
func (b Bounds) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinLon, b.MinLat}, Max: orb.Point{b.MaxLon, b.MaxLat}}
}

// CoordinateBounds walks an arbitrarily nested coordinate array and returns
// its extent. It accepts decoded JSON ([]any of []any of float64, ...),
// plain float slices and orb geometries. Positions are [lon, lat, ...].
func CoordinateBounds(coords any) Bounds {
	b := EmptyBounds()
	walkCoords(coords, &b)
	return b
}

// GeometryBounds returns the extent of one or many geometries.
func GeometryBounds(geoms ...orb.Geometry) Bounds {
	b := EmptyBounds()
	for _, g := range geoms {
		walkCoords(g, &b)
	}
	return b
}

// RegionBounds returns the extent of a set of canonical regions.
func RegionBounds(regions []model.CanonicalRegion) Bounds {
	b := EmptyBounds()
	for _, r := range regions {
		walkCoords(r.Geometry, &b)
	}
	return b
}

func walkCoords(coords any, b *Bounds) {
	switch v := coords.(type) {
	case nil:
	case orb.Point:
		b.extend(v[0], v[1])
	case orb.MultiPoint:
		for _, p := range v {
			b.extend(p[0], p[1])
		}
	case orb.LineString:
		for _, p := range v {
			b.extend(p[0], p[1])
		}
	case orb.Ring:
		for _, p := range v {
			b.extend(p[0], p[1])
		}
	case orb.MultiLineString:
		for _, ls := range v {
			walkCoords(ls, b)
		}
	case orb.Polygon:
		for _, r := range v {
			walkCoords(r, b)
		}
	case orb.MultiPolygon:
		for _, p := range v {
			walkCoords(p, b)
		}
	case orb.Collection:
		for _, g := range v {
			walkCoords(g, b)
		}
	case orb.Bound:
		b.extend(v.Min[0], v.Min[1])
		b.extend(v.Max[0], v.Max[1])
	case []float64:
		if len(v) >= 2 {
			b.extend(v[0], v[1])
		}
	case [][]float64:
		for _, p := range v {
			walkCoords(p, b)
		}
	case []any:
		if len(v) == 0 {
			return
		}
		if lon, ok := number(v[0]); ok {
			if len(v) < 2 {
				return
			}
			if lat, ok := number(v[1]); ok {
				b.extend(lon, lat)
			}
			return
		}
		for _, c := range v {
			walkCoords(c, b)
		}
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Projection is a guess at the coordinate reference of a layer.
type Projection string

const (
	ProjectionWGS84   Projection = "wgs84"
	ProjectionSwapped Projection = "swapped"
	ProjectionMeters  Projection = "meters"
)

// DetectProjection sniffs whether a layer looks like lon/lat degrees,
// lat/lon with the axes swapped, or a projected metric system. It only
// classifies; nothing is reprojected.
func DetectProjection(b Bounds) Projection {
	if b.IsEmpty() {
		return ProjectionWGS84
	}
	if math.Abs(b.MinLon) > 1000 || math.Abs(b.MaxLon) > 1000 ||
		math.Abs(b.MinLat) > 1000 || math.Abs(b.MaxLat) > 1000 {
		return ProjectionMeters
	}
	latOut := math.Abs(b.MinLat) > 90 || math.Abs(b.MaxLat) > 90
	lonFitsLat := math.Abs(b.MinLon) <= 90 && math.Abs(b.MaxLon) <= 90
	if latOut && lonFitsLat {
		return ProjectionSwapped
	}
	return ProjectionWGS84
}
