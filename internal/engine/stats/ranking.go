package stats

import (
	"sort"
	"strings"

	"github.com/rendis/geodrill/internal/model"
)

// DefaultRankingLimit bounds each side of a locally computed ranking.
const DefaultRankingLimit = 20

// ComputeRanking sorts records with a value by value and returns the
// highest and lowest limit entries. Equal values order by region code.
func ComputeRanking(records []model.KPIRecord, limit int) model.Ranking {
	if limit <= 0 {
		limit = DefaultRankingLimit
	}
	var withValue []model.KPIRecord
	for _, r := range records {
		if r.HasValue() {
			withValue = append(withValue, r)
		}
	}
	sort.SliceStable(withValue, func(i, j int) bool {
		a, b := *withValue[i].Value, *withValue[j].Value
		if a != b {
			return a > b
		}
		return withValue[i].RegionCode < withValue[j].RegionCode
	})

	entry := func(r model.KPIRecord) model.RankEntry {
		return model.RankEntry{RegionCode: r.RegionCode, RegionName: r.RegionName, Value: r.Value}
	}
	rk := model.Ranking{Top: []model.RankEntry{}, Bottom: []model.RankEntry{}}
	for i := 0; i < len(withValue) && i < limit; i++ {
		rk.Top = append(rk.Top, entry(withValue[i]))
	}
	for i := len(withValue) - 1; i >= 0 && len(rk.Bottom) < limit; i-- {
		rk.Bottom = append(rk.Bottom, entry(withValue[i]))
	}
	return rk
}

// FilterByParent keeps the records whose code starts with parent. An
// empty parent keeps everything.
func FilterByParent(records []model.KPIRecord, parent string) []model.KPIRecord {
	if parent == "" {
		return records
	}
	out := make([]model.KPIRecord, 0, len(records))
	for _, r := range records {
		if strings.HasPrefix(r.RegionCode, parent) {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the record for code.
func Find(records []model.KPIRecord, code string) (model.KPIRecord, bool) {
	for _, r := range records {
		if r.RegionCode == code {
			return r, true
		}
	}
	return model.KPIRecord{}, false
}

// Average is the mean of the records that carry a value, or nil.
func Average(records []model.KPIRecord) *float64 {
	sum, n := 0.0, 0
	for _, r := range records {
		if r.HasValue() {
			sum += *r.Value
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return model.Float(sum / float64(n))
}

// Summary is one metric's figures for the selected region plus the
// average over the records in view.
type Summary struct {
	Value      *float64
	ChangeRate *float64
	Percentile *float64
	Avg        *float64
}

// Delta is the selected value minus the average, or nil.
func (s Summary) Delta() *float64 {
	if s.Value == nil || s.Avg == nil {
		return nil
	}
	return model.Float(*s.Value - *s.Avg)
}

// Summarize builds a Summary for code over records.
func Summarize(records []model.KPIRecord, code string) Summary {
	s := Summary{Avg: Average(records)}
	if code == "" {
		return s
	}
	if r, ok := Find(records, code); ok {
		s.Value, s.ChangeRate, s.Percentile = r.Value, r.ChangeRate, r.Percentile
	}
	return s
}
