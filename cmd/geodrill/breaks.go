package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rendis/geodrill/internal/config"
	"github.com/rendis/geodrill/internal/engine/classify"
	"github.com/rendis/geodrill/internal/logger"
	"github.com/rendis/geodrill/internal/model"
)

func runBreaks(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var lf layerFlags
	var method, interp, custom string
	fs := flag.NewFlagSet("breaks", flag.ExitOnError)
	lf.register(fs, cfg)
	fs.StringVar(&method, "method", "quantile", "Classification: quantile, equal or custom")
	fs.IntVar(&cfg.Classes, "classes", cfg.Classes, "Number of classes")
	// Linear by default: reports want interpolated thresholds, unlike the map legend.
	fs.StringVar(&interp, "interp", "linear", "Quantile interpolation: linear or nearest-rank")
	fs.StringVar(&custom, "custom", "", "Comma-separated breaks for -method custom")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: geodrill breaks [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  geodrill breaks -level sigungu -classes 7\n")
		fmt.Fprintf(os.Stderr, "  geodrill breaks -method custom -custom 40,55,70\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := classify.Options{Classes: cfg.Classes}
	if opts.Method, err = classify.ParseMethod(method); err != nil {
		return err
	}
	if opts.Interpolation, err = classify.ParseInterpolation(interp); err != nil {
		return err
	}
	if opts.Custom, err = parseFloats(custom); err != nil {
		return fmt.Errorf("-custom: %w", err)
	}

	log, err := logger.New(cfg.LogMode, "")
	if err != nil {
		return err
	}
	defer log.Sync()

	_, q, recs, err := lf.fetchLayer(context.Background(), cfg, log)
	if err != nil {
		return err
	}
	values := make([]*float64, 0, len(recs))
	for _, r := range recs {
		values = append(values, r.Value)
	}
	population := classify.Values(values)
	breaks, err := classify.Breaks(population, opts)
	if err != nil {
		return err
	}

	fmt.Printf("Breaks %s (%s, %d values)\n", q, opts.Method, len(population))
	if len(breaks) == 0 {
		fmt.Println("  no values to classify")
		return nil
	}
	counts := make([]int, len(breaks)+1)
	for _, v := range population {
		counts[classify.ClassOf(v, breaks)]++
	}
	for i, n := range counts {
		lo, hi := "-inf", "+inf"
		if i > 0 {
			lo = model.FormatValue(&breaks[i-1])
		}
		if i < len(breaks) {
			hi = model.FormatValue(&breaks[i])
		}
		fmt.Printf("  class %d  (%s, %s]  %d\n", i, lo, hi, n)
	}
	return nil
}

func parseFloats(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
