package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rendis/geodrill/internal/config"
	"github.com/rendis/geodrill/internal/engine/audit"
	"github.com/rendis/geodrill/internal/engine/drilldown"
	"github.com/rendis/geodrill/internal/engine/geo"
	"github.com/rendis/geodrill/internal/engine/stats"
	"github.com/rendis/geodrill/internal/engine/storage"
	"github.com/rendis/geodrill/internal/logger"
	"github.com/rendis/geodrill/internal/model"
	"github.com/rendis/geodrill/internal/tui/views"
)

// sources is the tiered statistics stack for one boundary store:
// API first when configured, then the sqlite database, then synthetic
// values derived from the boundaries. Redis caches the API and database
// tiers individually; fallback answers are never cached.
type sources struct {
	KPI     stats.KPISource
	Ranking stats.RankingSource
	Trend   stats.TrendSource
}

// backends are the long-lived connections shared by every opened data dir.
type backends struct {
	cfg   *config.Config
	log   *logger.Logger
	store *storage.Store
	rdb   *redis.Client
}

// connect opens whatever backends the config names. Missing ones are
// skipped with a warning; none of them is required.
func connect(ctx context.Context, cfg *config.Config, log *logger.Logger) *backends {
	b := &backends{cfg: cfg, log: log}
	if _, err := os.Stat(cfg.DBPath); err == nil {
		store, err := storage.NewStore(cfg.DBPath)
		if err != nil {
			log.Warn("kpi database unavailable", "db", cfg.DBPath, "error", err)
		} else {
			b.store = store
		}
	} else {
		log.Info("no kpi database, using synthetic values", "db", cfg.DBPath)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	rdb, err := stats.NewRedisClient(pingCtx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		log.Warn("kpi cache disabled", "error", err)
	}
	b.rdb = rdb
	return b
}

func (b *backends) sources(bs *geo.BoundaryStore) sources {
	syn := stats.NewSynthetic(bs)

	var local stats.KPISource = syn
	var localTrend stats.TrendSource = syn
	if b.store != nil {
		local = &stats.Fallback{Primary: b.cached(b.store, storeScope(b.cfg.DBPath)), Secondary: syn, Log: b.log}
		localTrend = &stats.TrendFallback{Primary: b.store, Secondary: syn, Log: b.log}
	}

	out := sources{KPI: local, Trend: localTrend}
	if b.cfg.APIBase != "" {
		api := stats.NewHTTPClient(b.cfg.APIBase, 10*time.Second)
		out.KPI = &stats.Fallback{Primary: b.cached(api, apiScope(b.cfg.APIBase)), Secondary: local, Log: b.log}
		out.Trend = &stats.TrendFallback{Primary: api, Secondary: localTrend, Log: b.log}
		out.Ranking = api
	}
	return out
}

// cached puts the redis cache in front of one primary tier.
func (b *backends) cached(src stats.KPISource, scope string) stats.KPISource {
	if b.rdb == nil {
		return src
	}
	return stats.NewCachedKPI(src, b.rdb, scope, b.cfg.CacheTTL, b.log)
}

func apiScope(base string) string {
	return "api:" + strings.TrimRight(base, "/")
}

func storeScope(dbPath string) string {
	if abs, err := filepath.Abs(dbPath); err == nil {
		dbPath = abs
	}
	return "sqlite:" + dbPath
}

// periods lists the selectable periods: stored ones when the database has
// any, else just the configured period.
func (b *backends) periods(ctx context.Context, metric string) []string {
	if b.store != nil {
		ps, err := b.store.Periods(ctx, model.LevelSido, metric)
		if err != nil {
			b.log.Warn("listing periods", "error", err)
		} else if len(ps) > 0 {
			return ps
		}
	}
	return []string{b.cfg.Time}
}

func (b *backends) Close() {
	if b.store != nil {
		_ = b.store.Close()
	}
	if b.rdb != nil {
		_ = b.rdb.Close()
	}
}

type opener struct {
	*backends
}

func newOpener(cfg *config.Config, log *logger.Logger) *opener {
	return &opener{backends: connect(context.Background(), cfg, log)}
}

// Open loads the canonical layers under dataDir and builds a fresh
// drill-down session over them.
func (o *opener) Open(dataDir string) (views.DashboardParams, error) {
	bs, err := geo.LoadBoundaryStore(dataDir)
	if err != nil {
		return views.DashboardParams{}, err
	}
	if len(bs.Levels()) == 0 {
		return views.DashboardParams{}, errors.New("no boundary layers found")
	}
	cfg := o.cfg
	src := o.sources(bs)
	session := drilldown.NewSession(drilldown.NewMachine(cfg.Metric, cfg.Time), drilldown.Deps{
		Boundaries: bs,
		KPI:        src.KPI,
		Ranking:    src.Ranking,
		Trend:      src.Trend,
		Auditor:    audit.NewAuditor(cfg.Rules.JoinThreshold),
		Metrics:    cfg.Rules.MetricKeys(),
		Classes:    cfg.Classes,
		Log:        o.log.With("data", dataDir),
	})
	o.log.Info("data dir opened", "dir", dataDir, "levels", fmt.Sprint(bs.Levels()))
	return views.DashboardParams{
		DataDir:    dataDir,
		Session:    session,
		Boundaries: bs,
		Metrics:    cfg.Rules.Metrics,
		Periods:    o.periods(context.Background(), cfg.Metric),
		Classes:    cfg.Classes,
		Log:        o.log,
	}, nil
}
