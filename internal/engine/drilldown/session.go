package drilldown

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rendis/geodrill/internal/engine/audit"
	"github.com/rendis/geodrill/internal/engine/classify"
	"github.com/rendis/geodrill/internal/engine/geo"
	"github.com/rendis/geodrill/internal/engine/stats"
	"github.com/rendis/geodrill/internal/logger"
	"github.com/rendis/geodrill/internal/metrics"
	"github.com/rendis/geodrill/internal/model"
)

// Kind names one of the independent loads a navigation change can trigger.
type Kind string

const (
	KindMeta      Kind = "meta"
	KindKPI       Kind = "kpi"
	KindRanking   Kind = "ranking"
	KindTrend     Kind = "trend"
	KindSummaries Kind = "summaries"
)

// Kinds lists every load kind in issue order.
var Kinds = []Kind{KindMeta, KindKPI, KindRanking, KindTrend, KindSummaries}

// Load is an issued, not yet run, asynchronous load. Token ties its
// result to the state that issued it.
type Load struct {
	Kind  Kind
	Token uint64
	Run   func(ctx context.Context) Result
}

// Result is what a Load produced. Only the field matching Kind is set.
type Result struct {
	Kind      Kind
	Token     uint64
	RequestID model.RequestID

	Meta          []model.RegionMeta
	KPI           *KPIView
	Ranking       model.Ranking
	RankingRemote bool
	Trend         []model.TrendPoint
	TrendRegion   string
	Summaries     map[string]stats.Summary

	Err error
}

// KPIView is the classified KPI layer for the current level and scope.
type KPIView struct {
	Level   model.Level
	Parent  string
	Records []model.KPIRecord
	Breaks  []float64
	Classes map[string]int
	Join    audit.Report
}

// Class returns the class index for code, or -1 when it has no value.
func (v *KPIView) Class(code string) int {
	if v == nil {
		return -1
	}
	if c, ok := v.Classes[code]; ok {
		return c
	}
	return -1
}

// View is the loaded data the dashboard renders. Errors are scoped to the
// load kind that produced them.
type View struct {
	KPI           *KPIView
	Ranking       model.Ranking
	RankingRemote bool
	Trend         []model.TrendPoint
	TrendRegion   string
	Summaries     map[string]stats.Summary
	Errors        map[Kind]error
	Loading       map[Kind]bool
}

// Deps are the data sources a Session loads from. Boundaries and KPI are
// required; Ranking and Trend may be nil.
type Deps struct {
	Boundaries   *geo.BoundaryStore
	KPI          stats.KPISource
	Ranking      stats.RankingSource
	Trend        stats.TrendSource
	Auditor      *audit.Auditor
	Metrics      []string
	Classes      int
	RankingLimit int
	Log          *logger.Logger
}

// Session drives a Machine and keeps the most recent result of each load
// kind. Every navigation change re-derives each kind's inputs; kinds whose
// inputs changed get a new token and a new Load. A result is applied only
// when its token is still the newest for its kind.
type Session struct {
	mu     sync.Mutex
	m      *Machine
	deps   Deps
	tokens map[Kind]uint64
	inputs map[Kind]string
	view   View
}

func NewSession(m *Machine, deps Deps) *Session {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Auditor == nil {
		deps.Auditor = audit.NewAuditor(audit.DefaultJoinThreshold)
	}
	if deps.Classes < 2 {
		deps.Classes = 5
	}
	if deps.RankingLimit <= 0 {
		deps.RankingLimit = stats.DefaultRankingLimit
	}
	return &Session{
		m:      m,
		deps:   deps,
		tokens: make(map[Kind]uint64),
		inputs: make(map[Kind]string),
		view: View{
			Errors:  make(map[Kind]error),
			Loading: make(map[Kind]bool),
		},
	}
}

func (s *Session) Machine() *Machine { return s.m }

// inputsFor fingerprints the state a load kind depends on.
func inputsFor(k Kind, st model.NavigationState) string {
	switch k {
	case KindMeta:
		return st.Level.String()
	case KindKPI, KindRanking:
		return fmt.Sprint(st.Level, st.Metric, st.Time, st.SelectedSido, st.SelectedSigungu)
	case KindTrend:
		code, level := "", ""
		if st.Selection != nil {
			code, level = st.Selection.Code, st.Selection.Level.String()
		}
		return fmt.Sprint(code, level, st.Metric, st.Level)
	case KindSummaries:
		code := ""
		if st.Selection != nil {
			code = st.Selection.Code
		}
		return fmt.Sprint(st.Level, st.Time, st.SelectedSido, st.SelectedSigungu, code)
	}
	return ""
}

// Sync issues a Load for every kind whose inputs changed since the last
// call. The first call issues every kind.
func (s *Session) Sync() []Load {
	st := s.m.State()

	s.mu.Lock()
	defer s.mu.Unlock()

	var loads []Load
	for _, k := range Kinds {
		in := inputsFor(k, st)
		if prev, ok := s.inputs[k]; ok && prev == in {
			continue
		}
		s.inputs[k] = in
		s.tokens[k]++
		s.view.Loading[k] = true
		metrics.LoadsIssued.WithLabelValues(string(k)).Inc()
		loads = append(loads, Load{Kind: k, Token: s.tokens[k], Run: s.runner(k, s.tokens[k], st)})
	}
	if len(loads) > 0 {
		s.deps.Log.Debug("loads issued", "count", len(loads), "level", st.Level.String())
	}
	return loads
}

func (s *Session) SelectRegion(code string) []Load {
	s.m.SelectRegion(code)
	return s.Sync()
}

func (s *Session) SelectRegionWithName(code, name string) []Load {
	s.m.SelectRegionWithName(code, name)
	return s.Sync()
}

func (s *Session) DrillDownFromMap(code, name string) []Load {
	s.m.DrillDownFromMap(code, name)
	return s.Sync()
}

func (s *Session) DrillDown() []Load {
	s.m.DrillDown()
	return s.Sync()
}

func (s *Session) DrillUp() []Load {
	s.m.DrillUp()
	return s.Sync()
}

func (s *Session) SetMetric(metric string) []Load {
	s.m.SetMetric(metric)
	return s.Sync()
}

func (s *Session) SetTime(period string) []Load {
	s.m.SetTime(period)
	return s.Sync()
}

// Apply stores r if it is the newest result for its kind and reports
// whether it did. Stale results are dropped without touching state.
func (s *Session) Apply(r Result) bool {
	s.mu.Lock()
	if r.Token != s.tokens[r.Kind] {
		s.mu.Unlock()
		metrics.StaleDiscards.WithLabelValues(string(r.Kind)).Inc()
		s.deps.Log.Debug("stale load discarded", "kind", string(r.Kind), "token", r.Token)
		return false
	}

	s.view.Loading[r.Kind] = false
	if r.Err != nil {
		s.view.Errors[r.Kind] = r.Err
		metrics.LoadErrors.WithLabelValues(string(r.Kind)).Inc()
		s.deps.Log.Warn("load failed", "kind", string(r.Kind), "error", r.Err)
	} else {
		delete(s.view.Errors, r.Kind)
	}

	switch r.Kind {
	case KindKPI:
		s.view.KPI = r.KPI
	case KindRanking:
		s.view.Ranking, s.view.RankingRemote = r.Ranking, r.RankingRemote
	case KindTrend:
		s.view.Trend, s.view.TrendRegion = r.Trend, r.TrendRegion
	case KindSummaries:
		s.view.Summaries = r.Summaries
	}
	s.mu.Unlock()

	metrics.LoadsApplied.WithLabelValues(string(r.Kind)).Inc()
	switch r.Kind {
	case KindMeta:
		s.m.SetRegionMeta(r.Meta)
	case KindKPI:
		s.m.EndDrilldown(r.RequestID)
	}
	return true
}

// View returns a copy of the loaded data.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.view
	v.Errors = make(map[Kind]error, len(s.view.Errors))
	for k, e := range s.view.Errors {
		v.Errors[k] = e
	}
	v.Loading = make(map[Kind]bool, len(s.view.Loading))
	for k, l := range s.view.Loading {
		v.Loading[k] = l
	}
	return v
}

// RunAll runs loads concurrently and applies their results in completion
// order. It is how callers without an event loop drive a Session.
func (s *Session) RunAll(ctx context.Context, loads []Load) {
	g, ctx := errgroup.WithContext(ctx)
	for _, l := range loads {
		g.Go(func() error {
			s.Apply(l.Run(ctx))
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Session) runner(k Kind, token uint64, st model.NavigationState) func(context.Context) Result {
	d := s.deps
	q := stats.Query{Level: st.Level, Metric: st.Metric, Time: st.Time}
	parent := st.ParentFilter()

	switch k {
	case KindMeta:
		return func(ctx context.Context) Result {
			r := Result{Kind: k, Token: token}
			for _, reg := range d.Boundaries.Regions(st.Level) {
				r.Meta = append(r.Meta, reg.Meta())
			}
			if dl := st.Level.DataLevel(); dl != model.LevelEmd {
				for _, reg := range d.Boundaries.Regions(dl.Next()) {
					r.Meta = append(r.Meta, reg.Meta())
				}
			}
			return r
		}

	case KindKPI:
		pending := st.PendingRequestID
		return func(ctx context.Context) Result {
			r := Result{Kind: k, Token: token, RequestID: pending}
			r.KPI, r.Err = loadKPI(ctx, d, q, parent)
			return r
		}

	case KindRanking:
		return func(ctx context.Context) Result {
			r := Result{Kind: k, Token: token}
			r.Ranking, r.RankingRemote, r.Err = stats.RankingOrLocal(ctx, d.Ranking, d.KPI, q, parent, d.RankingLimit)
			return r
		}

	case KindTrend:
		sel := st.Selection
		return func(ctx context.Context) Result {
			r := Result{Kind: k, Token: token}
			if sel == nil || d.Trend == nil {
				return r
			}
			r.TrendRegion = sel.Code
			r.Trend, r.Err = d.Trend.FetchTrend(ctx, stats.TrendQuery{Level: sel.Level, Metric: st.Metric, RegionCode: sel.Code})
			return r
		}

	case KindSummaries:
		code := ""
		if st.Selection != nil {
			code = st.Selection.Code
		}
		return func(ctx context.Context) Result {
			r := Result{Kind: k, Token: token}
			r.Summaries, r.Err = loadSummaries(ctx, d, q, parent, code)
			return r
		}
	}
	return func(context.Context) Result { return Result{Kind: k, Token: token} }
}

// loadKPI fetches, scopes, audits and classifies the KPI layer. A join
// mismatch returns the audit report with no records so the level is not
// rendered against boundaries it does not match.
func loadKPI(ctx context.Context, d Deps, q stats.Query, parent string) (*KPIView, error) {
	recs, err := d.KPI.FetchKPI(ctx, q)
	if err != nil {
		return nil, err
	}
	recs = stats.FilterByParent(recs, parent)
	view := &KPIView{Level: q.Level, Parent: parent}

	rep, err := d.Auditor.Audit(q.Level.DataLevel(), d.Boundaries.Codes(q.Level, parent), recs)
	view.Join = rep
	if err != nil {
		var jm *audit.JoinMismatchError
		if errors.As(err, &jm) {
			d.Log.Warn("kpi join below threshold", "level", q.Level.String(), "parent", parent,
				"matched", rep.MatchedCount, "geo", rep.GeoCount, "missing", rep.MissingFromKPI)
		}
		return view, err
	}

	values := make([]*float64, 0, len(recs))
	for _, rec := range recs {
		values = append(values, rec.Value)
	}
	// Map legends use nearest-rank quantiles so every break is an observed value.
	breaks, err := classify.Breaks(classify.Values(values), classify.Options{
		Method:        classify.MethodQuantile,
		Classes:       d.Classes,
		Interpolation: classify.NearestRank,
	})
	if err != nil {
		return view, err
	}
	view.Records = recs
	view.Breaks = breaks
	view.Classes = make(map[string]int, len(recs))
	for _, rec := range recs {
		if rec.HasValue() {
			view.Classes[rec.RegionCode] = classify.ClassOf(*rec.Value, breaks)
		}
	}
	return view, nil
}

// loadSummaries computes the selected region's figures for every metric.
// Any failing metric fails the whole load.
func loadSummaries(ctx context.Context, d Deps, q stats.Query, parent, code string) (map[string]stats.Summary, error) {
	results := make([]stats.Summary, len(d.Metrics))
	g, ctx := errgroup.WithContext(ctx)
	for i, metric := range d.Metrics {
		g.Go(func() error {
			recs, err := d.KPI.FetchKPI(ctx, stats.Query{Level: q.Level, Metric: metric, Time: q.Time})
			if err != nil {
				return fmt.Errorf("summary %s: %w", metric, err)
			}
			results[i] = stats.Summarize(stats.FilterByParent(recs, parent), code)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return map[string]stats.Summary{}, err
	}
	out := make(map[string]stats.Summary, len(d.Metrics))
	for i, metric := range d.Metrics {
		out[metric] = results[i]
	}
	return out, nil
}
