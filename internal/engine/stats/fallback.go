package stats

import (
	"context"
	"errors"

	"github.com/rendis/geodrill/internal/logger"
	"github.com/rendis/geodrill/internal/metrics"
	"github.com/rendis/geodrill/internal/model"
)

var errEmpty = errors.New("empty result")

// Fallback is a two-tier source. The primary answers when it returns no
// error and a non-empty result; otherwise the secondary answers. A nil
// primary always defers to the secondary.
type Fallback struct {
	Primary   KPISource
	Secondary KPISource
	Log       *logger.Logger
}

func (f *Fallback) FetchKPI(ctx context.Context, q Query) ([]model.KPIRecord, error) {
	if f.Primary != nil {
		recs, err := f.Primary.FetchKPI(ctx, q)
		if err == nil && len(recs) > 0 {
			return recs, nil
		}
		noteFallback(f.Log, "kpi", q.String(), err)
	}
	return f.Secondary.FetchKPI(ctx, q)
}

func noteFallback(log *logger.Logger, kind, key string, err error) {
	if err == nil {
		err = errEmpty
	}
	metrics.SourceFallbacks.WithLabelValues(kind).Inc()
	if log != nil {
		log.Warn("primary source failed, using fallback", "kind", kind, "query", key, "error", err)
	}
}

// TrendFallback is the trend counterpart of Fallback with the same precedence.
type TrendFallback struct {
	Primary   TrendSource
	Secondary TrendSource
	Log       *logger.Logger
}

func (f *TrendFallback) FetchTrend(ctx context.Context, q TrendQuery) ([]model.TrendPoint, error) {
	if f.Primary != nil {
		pts, err := f.Primary.FetchTrend(ctx, q)
		if err == nil && len(pts) > 0 {
			return pts, nil
		}
		noteFallback(f.Log, "trend", q.RegionCode, err)
	}
	if f.Secondary == nil {
		return nil, nil
	}
	return f.Secondary.FetchTrend(ctx, q)
}

// RankingOrLocal asks src for a ranking and, when src is nil, fails or
// returns an empty ranking, ranks the kpi records scoped to parent itself.
// remote reports which path answered.
func RankingOrLocal(ctx context.Context, src RankingSource, kpi KPISource, q Query, parent string, limit int) (ranking model.Ranking, remote bool, err error) {
	if src != nil {
		r, rerr := src.FetchRanking(ctx, q)
		if rerr == nil && r != nil && (len(r.Top) > 0 || len(r.Bottom) > 0) {
			return *r, true, nil
		}
		noteFallback(nil, "ranking", q.String(), rerr)
	}
	recs, err := kpi.FetchKPI(ctx, q)
	if err != nil {
		return model.Ranking{}, false, err
	}
	return ComputeRanking(FilterByParent(recs, parent), limit), false, nil
}
