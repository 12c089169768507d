package stats

import (
	"context"
	"math"
	"time"

	"github.com/rendis/geodrill/internal/model"
)

// RegionLister is the part of the boundary store the synthetic source needs.
type RegionLister interface {
	Regions(level model.Level) []model.CanonicalRegion
}

// Synthetic derives deterministic records from the boundary regions
// themselves. It is the last tier behind the real sources, so the
// dashboard always has something to color.
type Synthetic struct {
	regions RegionLister
	now     func() time.Time
}

func NewSynthetic(regions RegionLister) *Synthetic {
	return &Synthetic{regions: regions, now: time.Now}
}

// WithClock replaces the clock used for computed_at and trend months.
func (s *Synthetic) WithClock(now func() time.Time) *Synthetic {
	s.now = now
	return s
}

func codeHash(code, metric string) int {
	h := 0
	for i := 0; i < len(code); i++ {
		h += int(code[i])
	}
	for i := 0; i < len(metric); i++ {
		h += int(metric[i])
	}
	return h
}

func syntheticValue(hash int) float64 {
	return 30 + float64(hash%70)/100*70
}

func statusFor(percentile float64) model.Status {
	switch {
	case percentile < 33:
		return model.StatusNormal
	case percentile < 66:
		return model.StatusWarning
	}
	return model.StatusCritical
}

// Record builds the synthetic record for one region.
func (s *Synthetic) Record(r model.CanonicalRegion, metric string) model.KPIRecord {
	h := codeHash(r.Code, metric)
	value := syntheticValue(h)
	percentile := math.Floor(value)
	change := float64((h*7)%50)/10 - 2.5
	return model.KPIRecord{
		RegionCode: r.Code,
		RegionName: r.Name,
		Value:      model.Float(value),
		ChangeRate: model.Float(change),
		Percentile: model.Float(percentile),
		Status:     statusFor(percentile),
		ComputedAt: s.now().UTC().Truncate(time.Second),
	}
}

func (s *Synthetic) FetchKPI(ctx context.Context, q Query) ([]model.KPIRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	regions := s.regions.Regions(q.Level)
	out := make([]model.KPIRecord, 0, len(regions))
	for _, r := range regions {
		out = append(out, s.Record(r, q.Metric))
	}
	return out, nil
}

func (s *Synthetic) FetchRanking(ctx context.Context, q Query) (*model.Ranking, error) {
	recs, err := s.FetchKPI(ctx, q)
	if err != nil {
		return nil, err
	}
	r := ComputeRanking(recs, DefaultRankingLimit)
	return &r, nil
}

const trendMonths = 12

// FetchTrend returns the last twelve months ending at the current month.
func (s *Synthetic) FetchTrend(ctx context.Context, q TrendQuery) ([]model.TrendPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.RegionCode == "" {
		return nil, nil
	}
	h := codeHash(q.RegionCode, q.Metric)
	base := syntheticValue(h)
	now := s.now().UTC()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -(trendMonths - 1), 0)
	out := make([]model.TrendPoint, 0, trendMonths)
	for i := 0; i < trendMonths; i++ {
		wobble := float64((h+i*13)%11-5) * 0.5
		out = append(out, model.TrendPoint{
			Time:  first.AddDate(0, i, 0).Format("2006-01"),
			Value: model.Float(base + wobble),
		})
	}
	return out, nil
}

// History returns per-month records for the months ending at the clock's
// month. Each value is the region's trend point for that month, so a
// store seeded from History serves the same trend the synthetic source
// would.
func (s *Synthetic) History(ctx context.Context, level model.Level, metric string, months int) (map[string][]model.KPIRecord, error) {
	if months <= 0 || months > trendMonths {
		months = trendMonths
	}
	out := make(map[string][]model.KPIRecord, months)
	for _, r := range s.regions.Regions(level) {
		pts, err := s.FetchTrend(ctx, TrendQuery{Level: level, Metric: metric, RegionCode: r.Code})
		if err != nil {
			return nil, err
		}
		base := s.Record(r, metric)
		for _, p := range pts[len(pts)-months:] {
			rec := base
			rec.Value = p.Value
			pct := math.Floor(*p.Value)
			rec.Percentile = model.Float(pct)
			rec.Status = statusFor(pct)
			out[p.Time] = append(out[p.Time], rec)
		}
	}
	return out, nil
}
