package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/rendis/geodrill/internal/config"
	"github.com/rendis/geodrill/internal/engine/geo"
	"github.com/rendis/geodrill/internal/model"
)

func runInspect(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var code, at string
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Directory with canonical boundary layers")
	fs.StringVar(&code, "code", "", "Describe the region with this code")
	fs.StringVar(&at, "at", "", "Locate the regions containing lon,lat")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: geodrill inspect [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  geodrill inspect -data ./data/geo\n")
		fmt.Fprintf(os.Stderr, "  geodrill inspect -code 11010\n")
		fmt.Fprintf(os.Stderr, "  geodrill inspect -at 126.978,37.566\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	bs, err := geo.LoadBoundaryStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("loading boundaries: %w", err)
	}

	switch {
	case code != "":
		return inspectRegion(bs, code)
	case at != "":
		pt, err := parsePoint(at)
		if err != nil {
			return fmt.Errorf("-at: %w", err)
		}
		path := bs.LocatePath(pt)
		if len(path) == 0 {
			return fmt.Errorf("no region contains %v", pt)
		}
		for _, r := range path {
			fmt.Printf("%-8s %-12s %s\n", r.Level, r.Code, r.Name)
		}
		return nil
	}

	fmt.Printf("Boundaries in %s\n", cfg.DataDir)
	for _, l := range bs.Levels() {
		b := bs.Extent(l, "")
		fmt.Printf("  %-8s %5d regions  [%.4f, %.4f] - [%.4f, %.4f]  %s\n",
			l, len(bs.Regions(l)), b.MinLon, b.MinLat, b.MaxLon, b.MaxLat, geo.DetectProjection(b))
	}
	return nil
}

func inspectRegion(bs *geo.BoundaryStore, code string) error {
	r, ok := bs.Lookup(code)
	if !ok {
		return fmt.Errorf("no region with code %q", code)
	}
	chain := []string{r.Name}
	for p := r.ParentCode; p != ""; {
		parent, ok := bs.Lookup(p)
		if !ok {
			chain = append([]string{p + "?"}, chain...)
			break
		}
		chain = append([]string{parent.Name}, chain...)
		p = parent.ParentCode
	}
	b := geo.GeometryBounds(r.Geometry)
	fmt.Printf("%s (%s)\n", r.Name, r.Code)
	fmt.Printf("  Level:    %s\n", r.Level)
	fmt.Printf("  Path:     %s\n", strings.Join(chain, " → "))
	fmt.Printf("  Bounds:   [%.4f, %.4f] - [%.4f, %.4f]\n", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
	if r.Geometry != nil {
		fmt.Printf("  Geometry: %s\n", r.Geometry.GeoJSONType())
	}
	if r.Level != model.LevelEmd {
		fmt.Printf("  Children: %d\n", len(bs.Children(r.Level.Next(), r.Code)))
	}
	return nil
}

func parsePoint(s string) (orb.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return orb.Point{}, fmt.Errorf("want lon,lat, got %q", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return orb.Point{}, err
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return orb.Point{}, err
	}
	return orb.Point{lon, lat}, nil
}
