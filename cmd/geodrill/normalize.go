package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rendis/geodrill/internal/config"
	"github.com/rendis/geodrill/internal/engine/geo"
	"github.com/rendis/geodrill/internal/engine/normalize"
	"github.com/rendis/geodrill/internal/engine/schema"
	"github.com/rendis/geodrill/internal/logger"
	"github.com/rendis/geodrill/internal/model"
)

func runNormalize(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var inDir, outDir, reportPath, rulesPath string
	var sample bool

	fs := flag.NewFlagSet("normalize", flag.ExitOnError)
	fs.StringVar(&inDir, "in", "", "Directory with raw boundary GeoJSON files")
	fs.BoolVar(&sample, "sample", false, "Use the bundled sample boundaries instead of -in")
	fs.StringVar(&outDir, "out", cfg.DataDir, "Output directory for canonical layers")
	fs.StringVar(&reportPath, "report", "", "Write the layer reports as JSON to this file")
	fs.StringVar(&rulesPath, "rules", cfg.RulesPath, "Candidate key rules YAML (default: embedded)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: geodrill normalize [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  geodrill normalize -in ./raw -out ./data/geo\n")
		fmt.Fprintf(os.Stderr, "  geodrill normalize -sample -report report.json\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if inDir == "" && !sample {
		return fmt.Errorf("either -in or -sample is required")
	}
	rules := cfg.Rules
	if rulesPath != cfg.RulesPath {
		if rules, err = config.LoadRules(rulesPath); err != nil {
			return err
		}
	}

	log, err := logger.New(cfg.LogMode, "")
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := loadSources(inDir, sample)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := normalize.NewPipeline(rules, log).Run(ctx, src)
	if res != nil {
		for _, rep := range res.Reports {
			rep.WriteText(os.Stderr)
		}
		if reportPath != "" {
			if werr := writeReport(reportPath, res); werr != nil {
				return werr
			}
		}
	}
	if err != nil {
		var sde *schema.SchemaDetectionError
		var ce *normalize.CoverageError
		switch {
		case errors.As(err, &sde):
			return fmt.Errorf("add the layer's key to code_keys/name_keys in the rules file: %w", err)
		case errors.As(err, &ce):
			return fmt.Errorf("parent codes do not match the parent layer (check vintages): %w", err)
		}
		return err
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	for _, l := range res.Levels() {
		path := filepath.Join(outDir, geo.CanonicalFileName(l))
		if err := geo.WriteFeatureCollection(path, geo.ToFeatureCollection(res.Regions[l])); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "  %-8s %5d regions → %s\n", l, len(res.Regions[l]), path)
	}
	for _, c := range res.Coverage {
		fmt.Fprintf(os.Stderr, "  coverage %-8s %.4f (%d/%d)\n", c.Level, c.Ratio, c.Matched, c.Total)
	}
	fmt.Fprintf(os.Stderr, "Normalized %d layers in %s (run %s)\n",
		len(res.Levels()), time.Since(start).Truncate(time.Millisecond), res.RunID)
	return nil
}

func loadSources(inDir string, sample bool) (normalize.Sources, error) {
	if sample {
		return geo.SampleSources()
	}
	files, err := geo.FindLevelFiles(inDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no sido/sigungu/emd GeoJSON files in %s", inDir)
	}
	src := make(normalize.Sources, len(files))
	for l, path := range files {
		fc, err := geo.ReadFeatureCollection(path)
		if err != nil {
			return nil, err
		}
		src[l] = fc
	}
	return src, nil
}

type runReport struct {
	RunID    string                       `json:"run_id"`
	Layers   []normalize.LayerReport      `json:"layers"`
	Coverage []normalize.CoverageResult   `json:"coverage"`
	Schemas  map[string]model.LevelSchema `json:"schemas"`
}

func writeReport(path string, res *normalize.Result) error {
	out := runReport{
		RunID:    res.RunID,
		Layers:   res.Reports,
		Coverage: res.Coverage,
		Schemas:  make(map[string]model.LevelSchema, len(res.Schemas)),
	}
	for l, s := range res.Schemas {
		out.Schemas[l.String()] = s
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
