package stats

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/geodrill/internal/model"
)

type fakeKPI struct {
	recs  []model.KPIRecord
	err   error
	calls int
}

func (f *fakeKPI) FetchKPI(_ context.Context, _ Query) ([]model.KPIRecord, error) {
	f.calls++
	return f.recs, f.err
}

type fakeTrend struct {
	pts []model.TrendPoint
	err error
}

func (f *fakeTrend) FetchTrend(_ context.Context, _ TrendQuery) ([]model.TrendPoint, error) {
	return f.pts, f.err
}

type fakeRanking struct {
	r   *model.Ranking
	err error
}

func (f *fakeRanking) FetchRanking(_ context.Context, _ Query) (*model.Ranking, error) {
	return f.r, f.err
}

type listRegions []model.CanonicalRegion

func (l listRegions) Regions(model.Level) []model.CanonicalRegion { return l }

func rec(code string, v float64) model.KPIRecord {
	return model.KPIRecord{RegionCode: code, RegionName: "r" + code, Value: model.Float(v)}
}

var q = Query{Level: model.LevelSigungu, Metric: "dementia_risk_score", Time: "2025-12"}

func TestHTTPClientFetchKPI(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Path + "?" + r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		fmt.Fprint(w, `[{"region_code":11010,"region_name":"종로구","value":51.5,"status":"alert","computed_at":"2025-12-01T00:00:00Z"}]`)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", time.Second)
	recs, err := c.FetchKPI(context.Background(), Query{Level: model.LevelEmd, Metric: "m", Time: "2025-12"})
	require.NoError(t, err)
	assert.Equal(t, "/api/geo/kpi?level=eupmyeondong&metric=m&time=2025-12", got)
	require.Len(t, recs, 1)
	assert.Equal(t, "11010", recs[0].RegionCode)
	assert.Equal(t, model.StatusCritical, recs[0].Status)
	assert.Equal(t, 51.5, *recs[0].Value)
	assert.Nil(t, recs[0].ChangeRate)
}

func TestHTTPClientErrorsAreTransient(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"html", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html></html>")
		}},
		{"garbage", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, "{not json")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewHTTPClient(srv.URL, time.Second).FetchTrend(context.Background(), TrendQuery{RegionCode: "11"})
			var tle *TransientLoadError
			require.True(t, errors.As(err, &tle))
			assert.Equal(t, "/api/geo/trend", tle.Op)
		})
	}
}

func TestHTTPClientFetchRanking(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"top":[{"region_code":"11","region_name":"서울","value":9}],"bottom":[]}`)
	}))
	defer srv.Close()

	r, err := NewHTTPClient(srv.URL, 0).FetchRanking(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, r.Top, 1)
	assert.Equal(t, "11", r.Top[0].RegionCode)
}

func TestFallbackPrecedence(t *testing.T) {
	secondary := &fakeKPI{recs: []model.KPIRecord{rec("2", 2)}}

	primary := &fakeKPI{recs: []model.KPIRecord{rec("1", 1)}}
	got, err := (&Fallback{Primary: primary, Secondary: secondary}).FetchKPI(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, "1", got[0].RegionCode)
	assert.Zero(t, secondary.calls)

	primary = &fakeKPI{err: &TransientLoadError{Source: "http", Op: "kpi", Err: errors.New("down")}}
	got, err = (&Fallback{Primary: primary, Secondary: secondary}).FetchKPI(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, "2", got[0].RegionCode)

	primary = &fakeKPI{}
	got, err = (&Fallback{Primary: primary, Secondary: secondary}).FetchKPI(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, "2", got[0].RegionCode, "empty primary result defers to secondary")

	got, err = (&Fallback{Secondary: secondary}).FetchKPI(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestTrendFallback(t *testing.T) {
	pts := []model.TrendPoint{{Time: "2025-01", Value: model.Float(1)}}
	f := &TrendFallback{Primary: &fakeTrend{err: errors.New("x")}, Secondary: &fakeTrend{pts: pts}}
	got, err := f.FetchTrend(context.Background(), TrendQuery{RegionCode: "11"})
	require.NoError(t, err)
	assert.Equal(t, pts, got)

	got, err = (&TrendFallback{Primary: &fakeTrend{}}).FetchTrend(context.Background(), TrendQuery{RegionCode: "11"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRankingOrLocal(t *testing.T) {
	kpi := &fakeKPI{recs: []model.KPIRecord{rec("11010", 3), rec("11020", 9), rec("26110", 5)}}

	r, remote, err := RankingOrLocal(context.Background(), nil, kpi, q, "11", 20)
	require.NoError(t, err)
	assert.False(t, remote)
	require.Len(t, r.Top, 2)
	assert.Equal(t, "11020", r.Top[0].RegionCode)
	assert.Equal(t, "11010", r.Bottom[0].RegionCode)

	r, remote, err = RankingOrLocal(context.Background(), &fakeRanking{r: &model.Ranking{}}, kpi, q, "", 20)
	require.NoError(t, err)
	assert.False(t, remote, "empty remote ranking degrades to local")
	assert.Len(t, r.Top, 3)

	remoteR := &model.Ranking{Top: []model.RankEntry{{RegionCode: "99"}}}
	r, remote, err = RankingOrLocal(context.Background(), &fakeRanking{r: remoteR}, kpi, q, "", 20)
	require.NoError(t, err)
	assert.True(t, remote)
	assert.Equal(t, "99", r.Top[0].RegionCode)

	_, _, err = RankingOrLocal(context.Background(), &fakeRanking{err: errors.New("x")}, &fakeKPI{err: errors.New("y")}, q, "", 20)
	assert.Error(t, err)
}

func TestComputeRanking(t *testing.T) {
	var recs []model.KPIRecord
	for i := 0; i < 30; i++ {
		recs = append(recs, rec(fmt.Sprintf("%02d", i), float64(i)))
	}
	recs = append(recs, model.KPIRecord{RegionCode: "nil"})

	r := ComputeRanking(recs, 20)
	require.Len(t, r.Top, 20)
	require.Len(t, r.Bottom, 20)
	assert.Equal(t, "29", r.Top[0].RegionCode)
	assert.Equal(t, "00", r.Bottom[0].RegionCode)
	for i := 1; i < len(r.Top); i++ {
		assert.GreaterOrEqual(t, *r.Top[i-1].Value, *r.Top[i].Value)
	}

	empty := ComputeRanking(nil, 0)
	assert.NotNil(t, empty.Top)
	assert.Empty(t, empty.Top)
}

func TestFilterByParentAndSummaries(t *testing.T) {
	recs := []model.KPIRecord{rec("11010", 10), rec("11020", 20), rec("26110", 60)}
	assert.Len(t, FilterByParent(recs, ""), 3)
	scoped := FilterByParent(recs, "11")
	assert.Len(t, scoped, 2)

	s := Summarize(scoped, "11020")
	assert.Equal(t, 20.0, *s.Value)
	assert.Equal(t, 15.0, *s.Avg)
	assert.Equal(t, 5.0, *s.Delta())

	s = Summarize(scoped, "")
	assert.Nil(t, s.Value)
	assert.Nil(t, s.Delta())
	assert.Nil(t, Average(nil))
}

func TestSyntheticIsDeterministic(t *testing.T) {
	clock := func() time.Time { return time.Date(2025, 12, 15, 9, 0, 0, 0, time.UTC) }
	regions := listRegions{{Code: "11", Name: "서울"}, {Code: "26", Name: "부산"}}
	s := NewSynthetic(regions).WithClock(clock)

	a, err := s.FetchKPI(context.Background(), q)
	require.NoError(t, err)
	b, err := s.FetchKPI(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	require.Len(t, a, 2)

	for _, r := range a {
		assert.GreaterOrEqual(t, *r.Value, 30.0)
		assert.Less(t, *r.Value, 100.0)
		assert.Equal(t, statusFor(*r.Percentile), r.Status)
		assert.Equal(t, clock(), r.ComputedAt)
	}

	other, err := s.FetchKPI(context.Background(), Query{Level: q.Level, Metric: "facility_count"})
	require.NoError(t, err)
	assert.NotEqual(t, *a[0].Value, *other[0].Value, "metrics differ")

	trend, err := s.FetchTrend(context.Background(), TrendQuery{Metric: "m", RegionCode: "11"})
	require.NoError(t, err)
	require.Len(t, trend, 12)
	assert.Equal(t, "2025-01", trend[0].Time)
	assert.Equal(t, "2025-12", trend[11].Time)

	none, err := s.FetchTrend(context.Background(), TrendQuery{})
	require.NoError(t, err)
	assert.Empty(t, none)

	rk, err := s.FetchRanking(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, rk.Top, 2)
}

func TestSyntheticHistoryMatchesTrend(t *testing.T) {
	clock := func() time.Time { return time.Date(2025, 12, 15, 9, 0, 0, 0, time.UTC) }
	regions := listRegions{{Code: "11", Name: "서울"}, {Code: "26", Name: "부산"}}
	s := NewSynthetic(regions).WithClock(clock)

	hist, err := s.History(context.Background(), model.LevelSido, "m", 3)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Contains(t, hist, "2025-10")
	assert.NotContains(t, hist, "2025-09")

	trend, err := s.FetchTrend(context.Background(), TrendQuery{Metric: "m", RegionCode: "26"})
	require.NoError(t, err)
	dec := hist["2025-12"]
	require.Len(t, dec, 2)
	assert.Equal(t, "26", dec[1].RegionCode)
	assert.Equal(t, *trend[11].Value, *dec[1].Value)
	assert.Equal(t, statusFor(*dec[1].Percentile), dec[1].Status)

	all, err := s.History(context.Background(), model.LevelSido, "m", 0)
	require.NoError(t, err)
	assert.Len(t, all, 12)
}

func TestSyntheticStatus(t *testing.T) {
	assert.Equal(t, model.StatusNormal, statusFor(32))
	assert.Equal(t, model.StatusWarning, statusFor(33))
	assert.Equal(t, model.StatusWarning, statusFor(65))
	assert.Equal(t, model.StatusCritical, statusFor(66))
}

func TestCachedKPIPassThrough(t *testing.T) {
	src := &fakeKPI{recs: []model.KPIRecord{rec("11", 1)}}
	c := NewCachedKPI(src, nil, "api", time.Minute, nil)
	got, err := c.FetchKPI(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.NoError(t, c.Invalidate(context.Background(), model.LevelSido, "m"))
}

func TestCachedKPIUnreachableRedisDegrades(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	defer rdb.Close()

	src := &fakeKPI{recs: []model.KPIRecord{rec("11", 1)}}
	got, err := NewCachedKPI(src, rdb, "api", time.Minute, nil).FetchKPI(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, src.calls)
}

func TestCachedKPIReadThroughPerScope(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	api := &fakeKPI{recs: []model.KPIRecord{rec("11010", 1)}}
	c := NewCachedKPI(api, rdb, "api:http://stats", time.Minute, nil)
	for range 2 {
		got, err := c.FetchKPI(ctx, q)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "11010", got[0].RegionCode)
	}
	assert.Equal(t, 1, api.calls, "second read served from redis")
	assert.Equal(t, time.Minute, mr.TTL(CacheKey("api:http://stats", q)))

	db := &fakeKPI{recs: []model.KPIRecord{rec("26010", 2)}}
	other := NewCachedKPI(db, rdb, "sqlite:/data/kpi.db", time.Minute, nil)
	got, err := other.FetchKPI(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, "26010", got[0].RegionCode, "scopes never share entries")

	require.NoError(t, c.Invalidate(ctx, q.Level, q.Metric))
	assert.False(t, mr.Exists(CacheKey("api:http://stats", q)))
	assert.True(t, mr.Exists(CacheKey("sqlite:/data/kpi.db", q)), "other scopes untouched")
	_, err = c.FetchKPI(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2, api.calls)

	empty := NewCachedKPI(&fakeKPI{}, rdb, "api:empty", time.Minute, nil)
	_, err = empty.FetchKPI(ctx, q)
	require.NoError(t, err)
	assert.False(t, mr.Exists(CacheKey("api:empty", q)), "empty answers are not cached")
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "geodrill:kpi:api:http://x|sido:m:2025-12",
		CacheKey("api:http://x", Query{Level: model.LevelNation, Metric: "m", Time: "2025-12"}))
	assert.Equal(t, `a\*b\[1\]`, escapeGlob("a*b[1]"))
	assert.Equal(t, "eupmyeondong", APILevel(model.LevelEmd))
	assert.Equal(t, "sido", APILevel(model.LevelNation))
}

func TestNewRedisClientDisabled(t *testing.T) {
	rdb, err := NewRedisClient(context.Background(), "", "", 0)
	require.NoError(t, err)
	assert.Nil(t, rdb)
}

func TestWriteCSV(t *testing.T) {
	var buf strings.Builder
	computed := time.Date(2025, 12, 1, 9, 0, 0, 0, time.UTC)
	err := WriteCSV(&buf, Query{Level: model.LevelNation, Metric: "m", Time: "2025-12"}, []model.KPIRecord{
		{RegionCode: "11", RegionName: "서울특별시", Value: model.Float(42.5), Status: model.StatusCritical, ComputedAt: computed},
		{RegionCode: "26", RegionName: "부산, 광역시"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "level,metric,period,region_code,region_name,value,change_rate,percentile,status,computed_at", lines[0])
	assert.Equal(t, "sido,m,2025-12,11,서울특별시,42.5,,,critical,2025-12-01T09:00:00Z", lines[1])
	assert.Equal(t, `sido,m,2025-12,26,"부산, 광역시",,,,normal,`, lines[2])
}
