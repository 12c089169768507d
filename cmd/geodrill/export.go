package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/geodrill/internal/config"
	"github.com/rendis/geodrill/internal/engine/stats"
	"github.com/rendis/geodrill/internal/engine/storage"
	"github.com/rendis/geodrill/internal/model"
)

func runExport(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var dbPath, outputPath, format, levelStr, parent string

	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.StringVar(&dbPath, "db", cfg.DBPath, "Path to the KPI .db file")
	fs.StringVar(&outputPath, "output", "", "Output file path (default: same dir as db)")
	fs.StringVar(&format, "format", "csv", "Export format: csv")
	fs.StringVar(&levelStr, "level", "sido", "Level: sido, sigungu or emd")
	fs.StringVar(&parent, "parent", "", "Only records under this parent code")
	fs.StringVar(&cfg.Metric, "metric", cfg.Metric, "Metric key")
	fs.StringVar(&cfg.Time, "time", cfg.Time, "Period (YYYY-MM)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: geodrill export [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  geodrill export -db ./data/kpi.db -level sigungu\n")
		fmt.Fprintf(os.Stderr, "  geodrill export -level emd -parent 11010 -output jongno.csv\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if dbPath == "" {
		return fmt.Errorf("-db is required")
	}
	if format != "csv" {
		return fmt.Errorf("unsupported format: %s (only csv supported)", format)
	}
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("opening db: %w", err)
	}
	level, err := model.ParseLevel(levelStr)
	if err != nil {
		return err
	}
	q := stats.Query{Level: level.DataLevel(), Metric: cfg.Metric, Time: cfg.Time}

	// Default output path
	if outputPath == "" {
		dir := filepath.Dir(dbPath)
		base := strings.TrimSuffix(filepath.Base(dbPath), ".db")
		name := fmt.Sprintf("%s_%s_%s_%s", base, q.Level, q.Metric, q.Time)
		if parent != "" {
			name += "_" + parent
		}
		outputPath = filepath.Join(dir, name+".csv")
	}

	store, err := storage.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("loading db: %w", err)
	}
	defer store.Close()

	recs, err := store.FetchKPI(context.Background(), q)
	if err != nil {
		return err
	}
	recs = stats.FilterByParent(recs, parent)
	if len(recs) == 0 {
		return fmt.Errorf("no records for %s in database", q)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer f.Close()

	if err := stats.WriteCSV(f, q, recs); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Exported %d records to %s\n", len(recs), outputPath)
	return nil
}
