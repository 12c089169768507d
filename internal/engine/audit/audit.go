// Package audit cross-checks boundary codes against statistical records.
package audit

import (
	"fmt"

	"github.com/rendis/geodrill/internal/model"
)

// DefaultJoinThreshold is the minimum share of boundary regions that must
// find a statistical record.
const DefaultJoinThreshold = 0.9

const sampleSize = 5

// Report is the outcome of one join audit.
type Report struct {
	Level          model.Level `json:"level"`
	GeoCount       int         `json:"geo_count"`
	KPICount       int         `json:"kpi_count"`
	MatchedCount   int         `json:"matched_count"`
	MissingFromKPI []string    `json:"missing_from_kpi"`
	UnmatchedKPI   []string    `json:"unmatched_kpi"`
}

// Ratio is matched records per boundary region; 1 when there are no regions.
func (r Report) Ratio() float64 {
	if r.GeoCount == 0 {
		return 1
	}
	return float64(r.MatchedCount) / float64(r.GeoCount)
}

// JoinMismatchError means boundaries and records do not share a code
// scheme. The level must not be rendered from these records.
type JoinMismatchError struct {
	Report    Report
	Threshold float64
}

func (e *JoinMismatchError) Error() string {
	r := e.Report
	return fmt.Sprintf("join for %s matched %d of %d regions (%d records, need %.0f%%); missing from kpi: %v; unmatched kpi: %v",
		r.Level, r.MatchedCount, r.GeoCount, r.KPICount, e.Threshold*100, r.MissingFromKPI, r.UnmatchedKPI)
}

// Auditor runs join audits against a fixed threshold.
type Auditor struct {
	threshold float64
}

func NewAuditor(threshold float64) *Auditor {
	if threshold <= 0 {
		threshold = DefaultJoinThreshold
	}
	return &Auditor{threshold: threshold}
}

// Audit compares boundary codes with record codes for one level. Matched
// counts records whose code is a boundary code. Fewer matches than
// threshold*len(geoCodes) returns the report with a *JoinMismatchError.
func (a *Auditor) Audit(level model.Level, geoCodes []string, records []model.KPIRecord) (Report, error) {
	rep := Report{Level: level, GeoCount: len(geoCodes), KPICount: len(records)}

	geo := make(map[string]struct{}, len(geoCodes))
	for _, c := range geoCodes {
		geo[c] = struct{}{}
	}
	kpi := make(map[string]struct{}, len(records))
	for _, r := range records {
		kpi[r.RegionCode] = struct{}{}
		if _, ok := geo[r.RegionCode]; ok {
			rep.MatchedCount++
		} else if len(rep.UnmatchedKPI) < sampleSize {
			rep.UnmatchedKPI = append(rep.UnmatchedKPI, r.RegionCode)
		}
	}
	for _, c := range geoCodes {
		if _, ok := kpi[c]; !ok && len(rep.MissingFromKPI) < sampleSize {
			rep.MissingFromKPI = append(rep.MissingFromKPI, c)
		}
	}

	if float64(rep.MatchedCount) < a.threshold*float64(rep.GeoCount) {
		return rep, &JoinMismatchError{Report: rep, Threshold: a.threshold}
	}
	return rep, nil
}

// RegionCodes extracts codes from canonical regions.
func RegionCodes(regions []model.CanonicalRegion) []string {
	out := make([]string, 0, len(regions))
	for _, r := range regions {
		out = append(out, r.Code)
	}
	return out
}
