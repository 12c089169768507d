package normalize

import (
	"fmt"

	"github.com/rendis/geodrill/internal/model"
)

// DefaultCoverageThreshold is the minimum fraction of child regions whose
// parent code must resolve.
const DefaultCoverageThreshold = 0.95

const coverageSampleSize = 10

// CoverageResult reports how well one child level joins onto its parent level.
type CoverageResult struct {
	Level       model.Level
	Total       int
	Matched     int
	Ratio       float64
	BrokenCodes []string
}

// CoverageError aborts a normalization run: too many child regions point at
// parent codes that do not exist.
type CoverageError struct {
	Level     model.Level
	Ratio     float64
	Matched   int
	Total     int
	Threshold float64
	Sample    []string
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("parent coverage for %s is %.4f (%d/%d), below %.2f; broken codes: %v",
		e.Level, e.Ratio, e.Matched, e.Total, e.Threshold, e.Sample)
}

// CodeSet builds a membership set of region codes.
func CodeSet(regions []model.CanonicalRegion) map[string]struct{} {
	set := make(map[string]struct{}, len(regions))
	for _, r := range regions {
		set[r.Code] = struct{}{}
	}
	return set
}

// CheckCoverage computes the share of children whose parent code is in
// parents. An empty child set has full coverage. A ratio under threshold
// returns the result together with a *CoverageError.
func CheckCoverage(level model.Level, children []model.CanonicalRegion, parents map[string]struct{}, threshold float64) (CoverageResult, error) {
	res := CoverageResult{Level: level, Total: len(children), Ratio: 1}
	for _, c := range children {
		if _, ok := parents[c.ParentCode]; ok && c.ParentCode != "" {
			res.Matched++
			continue
		}
		res.BrokenCodes = append(res.BrokenCodes, c.Code)
	}
	if res.Total > 0 {
		res.Ratio = float64(res.Matched) / float64(res.Total)
	}
	if res.Ratio < threshold {
		sample := res.BrokenCodes
		if len(sample) > coverageSampleSize {
			sample = sample[:coverageSampleSize]
		}
		return res, &CoverageError{
			Level:     level,
			Ratio:     res.Ratio,
			Matched:   res.Matched,
			Total:     res.Total,
			Threshold: threshold,
			Sample:    append([]string(nil), sample...),
		}
	}
	return res, nil
}
