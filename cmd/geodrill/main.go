package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rendis/geodrill/internal/config"
	"github.com/rendis/geodrill/internal/logger"
	"github.com/rendis/geodrill/internal/metrics"
	"github.com/rendis/geodrill/internal/tui"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[0] != "" {
		var run func([]string) error
		switch os.Args[1] {
		case "normalize":
			run = runNormalize
		case "seed":
			run = runSeed
		case "audit":
			run = runAudit
		case "breaks":
			run = runBreaks
		case "inspect":
			run = runInspect
		case "export":
			run = runExport
		case "version":
			fmt.Println("geodrill " + version)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
		if run != nil {
			if err := run(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	// No subcommand → launch TUI
	if err := runTUI(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `geodrill - Korean administrative boundary drill-down

Usage:
  geodrill [flags]              Launch interactive dashboard
  geodrill normalize [flags]    Detect schemas and write canonical boundary layers
  geodrill seed [flags]         Fill the KPI database with synthetic history
  geodrill audit [flags]        Check KPI codes against boundary codes
  geodrill breaks [flags]       Compute class breaks for one KPI layer
  geodrill inspect [flags]      Describe boundary layers or locate a point
  geodrill export [flags]       Export KPI records to CSV
  geodrill version              Show version

Run 'geodrill <command> --help' for flags.
`)
}

func runTUI(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var logPath, metricsAddr string
	fs := flag.NewFlagSet("geodrill", flag.ExitOnError)
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Directory with canonical boundary layers")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "KPI database (sqlite)")
	fs.StringVar(&cfg.Metric, "metric", cfg.Metric, "Initial metric")
	fs.StringVar(&cfg.Time, "time", cfg.Time, "Initial period (YYYY-MM)")
	fs.StringVar(&logPath, "log", "", "Log file (default: geodrill.log next to the database)")
	fs.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	fs.Usage = func() {
		printUsage()
		fmt.Fprintf(os.Stderr, "\nFlags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	if logPath == "" {
		logPath = filepath.Join(filepath.Dir(cfg.DBPath), "geodrill.log")
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}
	log, err := logger.New(cfg.LogMode, logPath)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer log.Sync()
	log.Info("session start", "data", cfg.DataDir, "db", cfg.DBPath, "api", cfg.APIBase, "metric", cfg.Metric, "time", cfg.Time)

	metrics.Register()
	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Error("metrics server stopped", "addr", metricsAddr, "error", err)
			}
		}()
	}

	o := newOpener(cfg, log)
	defer o.Close()
	return tui.Run(o.Open, cfg.DataDir, version, log)
}
