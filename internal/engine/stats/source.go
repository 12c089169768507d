// Package stats provides statistical record sources and the helpers that
// scope, rank and summarize their records.
package stats

import (
	"context"
	"fmt"

	"github.com/rendis/geodrill/internal/model"
)

// Query selects KPI records or a ranking.
type Query struct {
	Level  model.Level
	Metric string
	Time   string
}

func (q Query) String() string {
	return fmt.Sprintf("%s:%s:%s", q.Level.DataLevel(), q.Metric, q.Time)
}

// TrendQuery selects one region's time series.
type TrendQuery struct {
	Level      model.Level
	Metric     string
	RegionCode string
}

type KPISource interface {
	FetchKPI(ctx context.Context, q Query) ([]model.KPIRecord, error)
}

type RankingSource interface {
	FetchRanking(ctx context.Context, q Query) (*model.Ranking, error)
}

type TrendSource interface {
	FetchTrend(ctx context.Context, q TrendQuery) ([]model.TrendPoint, error)
}

// TransientLoadError is a recoverable failure of one fetch. Callers fall
// back to another source or surface it next to the affected panel.
type TransientLoadError struct {
	Source string
	Op     string
	Err    error
}

func (e *TransientLoadError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Source, e.Op, e.Err)
}

func (e *TransientLoadError) Unwrap() error {
	return e.Err
}

// APILevel is the level name the statistics API expects.
func APILevel(l model.Level) string {
	switch l {
	case model.LevelSigungu:
		return "sigungu"
	case model.LevelEmd:
		return "eupmyeondong"
	}
	return "sido"
}
