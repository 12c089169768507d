package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/geodrill/internal/engine/stats"
	"github.com/rendis/geodrill/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "kpi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	computed := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	q := stats.Query{Level: model.LevelSigungu, Metric: "dementia_risk_score", Time: "2025-12"}

	n, err := s.InsertBatch(q, []model.KPIRecord{
		{RegionCode: "11020", RegionName: "중구", Value: model.Float(40), Status: model.StatusWarning, ComputedAt: computed},
		{RegionCode: "11010", RegionName: "종로구", Value: model.Float(55.5), ChangeRate: model.Float(-1.2), Percentile: model.Float(55)},
		{RegionCode: "11030", RegionName: "용산구"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	recs, err := s.FetchKPI(ctx, q)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "11010", recs[0].RegionCode, "ordered by code")
	assert.Equal(t, 55.5, *recs[0].Value)
	assert.Equal(t, -1.2, *recs[0].ChangeRate)
	assert.Equal(t, model.StatusNormal, recs[0].Status)
	assert.True(t, recs[0].ComputedAt.IsZero())

	assert.Equal(t, model.StatusWarning, recs[1].Status)
	assert.True(t, computed.Equal(recs[1].ComputedAt))
	assert.Nil(t, recs[2].Value)

	other, err := s.FetchKPI(ctx, stats.Query{Level: model.LevelSigungu, Metric: "facility_count", Time: "2025-12"})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStoreUpsertAndNationLevel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	q := stats.Query{Level: model.LevelNation, Metric: "m", Time: "2025-12"}

	_, err := s.InsertBatch(q, []model.KPIRecord{{RegionCode: "11", Value: model.Float(1)}})
	require.NoError(t, err)
	_, err = s.InsertBatch(q, []model.KPIRecord{{RegionCode: "11", Value: model.Float(2)}})
	require.NoError(t, err)

	count, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// nation is stored and read as sido
	recs, err := s.FetchKPI(ctx, stats.Query{Level: model.LevelSido, Metric: "m", Time: "2025-12"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 2.0, *recs[0].Value)
}

func TestStoreTrendAndPeriods(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i, period := range []string{"2025-11", "2025-10", "2025-12"} {
		_, err := s.InsertBatch(stats.Query{Level: model.LevelSido, Metric: "m", Time: period},
			[]model.KPIRecord{{RegionCode: "11", Value: model.Float(float64(i))}, {RegionCode: "26", Value: model.Float(9)}})
		require.NoError(t, err)
	}

	pts, err := s.FetchTrend(ctx, stats.TrendQuery{Level: model.LevelSido, Metric: "m", RegionCode: "11"})
	require.NoError(t, err)
	require.Len(t, pts, 3)
	assert.Equal(t, "2025-10", pts[0].Time)
	assert.Equal(t, 1.0, *pts[0].Value)
	assert.Equal(t, "2025-12", pts[2].Time)

	periods, err := s.Periods(ctx, model.LevelSido, "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-10", "2025-11", "2025-12"}, periods)
}

func TestStoreIsAKPISource(t *testing.T) {
	var _ stats.KPISource = (*Store)(nil)
	var _ stats.TrendSource = (*Store)(nil)
}
