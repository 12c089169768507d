package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/rendis/geodrill/internal/config"
	"github.com/rendis/geodrill/internal/engine/geo"
	"github.com/rendis/geodrill/internal/engine/stats"
	"github.com/rendis/geodrill/internal/engine/storage"
	"github.com/rendis/geodrill/internal/logger"
)

func runSeed(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var months int
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Directory with canonical boundary layers")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "KPI database to fill (created if missing)")
	fs.StringVar(&cfg.Time, "time", cfg.Time, "Last period to generate (YYYY-MM)")
	fs.IntVar(&months, "months", 12, "Number of monthly periods, 1-12")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: geodrill seed [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  geodrill seed -data ./data/geo -db ./data/kpi.db\n")
		fmt.Fprintf(os.Stderr, "  geodrill seed -time 2025-06 -months 6\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	end, err := time.Parse("2006-01", cfg.Time)
	if err != nil {
		return fmt.Errorf("-time must be YYYY-MM: %w", err)
	}
	if months < 1 || months > 12 {
		return fmt.Errorf("-months must be between 1 and 12, got %d", months)
	}

	log, err := logger.New(cfg.LogMode, "")
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bs, err := geo.LoadBoundaryStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("loading boundaries: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("creating db dir: %w", err)
	}
	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	rdb, err := stats.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		log.Warn("kpi cache not reachable, cached entries are not invalidated", "error", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}
	cache := stats.NewCachedKPI(store, rdb, storeScope(cfg.DBPath), cfg.CacheTTL, log)

	syn := stats.NewSynthetic(bs).WithClock(func() time.Time { return end })
	start := time.Now()
	inserted := 0
	for _, level := range bs.Levels() {
		for _, metric := range cfg.Rules.MetricKeys() {
			hist, err := syn.History(ctx, level, metric, months)
			if err != nil {
				return err
			}
			periods := make([]string, 0, len(hist))
			for p := range hist {
				periods = append(periods, p)
			}
			sort.Strings(periods)
			for _, p := range periods {
				n, err := store.InsertBatch(stats.Query{Level: level, Metric: metric, Time: p}, hist[p])
				if err != nil {
					return fmt.Errorf("seeding %s %s %s: %w", level, metric, p, err)
				}
				inserted += n
			}
			if err := cache.Invalidate(ctx, level, metric); err != nil {
				log.Warn("invalidating cached records", "level", level.String(), "metric", metric, "error", err)
			}
			log.Info("seeded", "level", level.String(), "metric", metric, "periods", len(periods))
		}
	}

	total, _ := store.Count()
	fmt.Fprintf(os.Stderr, "Seeded %d records (%d in db) in %s → %s\n",
		inserted, total, time.Since(start).Truncate(time.Millisecond), cfg.DBPath)
	return nil
}
