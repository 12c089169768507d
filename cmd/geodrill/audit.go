package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/rendis/geodrill/internal/config"
	"github.com/rendis/geodrill/internal/engine/audit"
	"github.com/rendis/geodrill/internal/engine/geo"
	"github.com/rendis/geodrill/internal/engine/stats"
	"github.com/rendis/geodrill/internal/logger"
	"github.com/rendis/geodrill/internal/model"
)

// layerFlags are the flags shared by commands that read one KPI layer.
type layerFlags struct {
	level  string
	parent string
}

func (lf *layerFlags) register(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Directory with canonical boundary layers")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "KPI database (sqlite)")
	fs.StringVar(&cfg.Metric, "metric", cfg.Metric, "Metric key")
	fs.StringVar(&cfg.Time, "time", cfg.Time, "Period (YYYY-MM)")
	fs.StringVar(&lf.level, "level", "sido", "Level: sido, sigungu or emd")
	fs.StringVar(&lf.parent, "parent", "", "Only records under this parent code")
}

// fetchLayer loads the boundaries and the KPI records for one layer
// through the same tiered sources the dashboard uses.
func (lf *layerFlags) fetchLayer(ctx context.Context, cfg *config.Config, log *logger.Logger) (*geo.BoundaryStore, stats.Query, []model.KPIRecord, error) {
	level, err := model.ParseLevel(lf.level)
	if err != nil {
		return nil, stats.Query{}, nil, err
	}
	level = level.DataLevel()
	bs, err := geo.LoadBoundaryStore(cfg.DataDir)
	if err != nil {
		return nil, stats.Query{}, nil, fmt.Errorf("loading boundaries: %w", err)
	}

	b := connect(ctx, cfg, log)
	defer b.Close()
	q := stats.Query{Level: level, Metric: cfg.Metric, Time: cfg.Time}
	recs, err := b.sources(bs).KPI.FetchKPI(ctx, q)
	if err != nil {
		return nil, q, nil, fmt.Errorf("fetching %s: %w", q, err)
	}
	return bs, q, stats.FilterByParent(recs, lf.parent), nil
}

func runAudit(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var lf layerFlags
	var threshold float64
	var asJSON bool
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	lf.register(fs, cfg)
	fs.Float64Var(&threshold, "threshold", cfg.Rules.JoinThreshold, "Minimum matched share of boundary regions")
	fs.BoolVar(&asJSON, "json", false, "Print the report as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: geodrill audit [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  geodrill audit -level sigungu -metric elderly_population\n")
		fmt.Fprintf(os.Stderr, "  geodrill audit -level emd -parent 11010 -json\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	log, err := logger.New(cfg.LogMode, "")
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := context.Background()
	bs, q, recs, err := lf.fetchLayer(ctx, cfg, log)
	if err != nil {
		return err
	}

	rep, auditErr := audit.NewAuditor(threshold).Audit(q.Level, bs.Codes(q.Level, lf.parent), recs)
	if asJSON {
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		fmt.Printf("Join audit %s\n", q)
		fmt.Printf("  Boundaries:  %d\n", rep.GeoCount)
		fmt.Printf("  Records:     %d\n", rep.KPICount)
		fmt.Printf("  Matched:     %d (%.1f%%)\n", rep.MatchedCount, rep.Ratio()*100)
		if len(rep.MissingFromKPI) > 0 {
			fmt.Printf("  Missing:     %v\n", rep.MissingFromKPI)
		}
		if len(rep.UnmatchedKPI) > 0 {
			fmt.Printf("  Unmatched:   %v\n", rep.UnmatchedKPI)
		}
	}

	var mismatch *audit.JoinMismatchError
	if errors.As(auditErr, &mismatch) {
		return fmt.Errorf("boundary and statistics codes do not share a scheme: %w", auditErr)
	}
	return auditErr
}
