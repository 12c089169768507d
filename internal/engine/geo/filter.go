package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/rendis/geodrill/internal/model"
)

// Locate returns the region at level under parentCode whose outline
// contains pt. Points are [lon, lat].
func (bs *BoundaryStore) Locate(level model.Level, parentCode string, pt orb.Point) (model.CanonicalRegion, bool) {
	for _, r := range bs.Children(level, parentCode) {
		if contains(r.Geometry, pt) {
			return r, true
		}
	}
	return model.CanonicalRegion{}, false
}

// LocatePath resolves pt top-down through every loaded level and returns
// the chain of containing regions, province first.
func (bs *BoundaryStore) LocatePath(pt orb.Point) []model.CanonicalRegion {
	var path []model.CanonicalRegion
	parent := ""
	for _, level := range model.RegionLevels {
		r, ok := bs.Locate(level, parent, pt)
		if !ok {
			break
		}
		path = append(path, r)
		parent = r.Code
	}
	return path
}

func contains(g orb.Geometry, pt orb.Point) bool {
	switch poly := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(poly, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(poly, pt)
	case orb.Collection:
		for _, c := range poly {
			if contains(c, pt) {
				return true
			}
		}
	}
	return false
}
