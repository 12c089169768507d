package normalize

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"github.com/rendis/geodrill/internal/config"
	"github.com/rendis/geodrill/internal/engine/schema"
	"github.com/rendis/geodrill/internal/logger"
	"github.com/rendis/geodrill/internal/model"
)

// Sources are the raw boundary layers to normalize, by level.
type Sources map[model.Level]*geojson.FeatureCollection

// Result is the output of one pipeline run.
type Result struct {
	RunID    string
	Schemas  map[model.Level]model.LevelSchema
	Regions  map[model.Level][]model.CanonicalRegion
	Reports  []LayerReport
	Coverage []CoverageResult
}

// Pipeline runs detection, normalization and coverage validation.
type Pipeline struct {
	detector *schema.Detector
	rules    config.Rules
	log      *logger.Logger
}

func NewPipeline(rules config.Rules, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{detector: schema.NewDetector(rules), rules: rules, log: log}
}

// Run normalizes every layer in src. Every present layer below the top
// needs its parent layer too. On a fatal error the partial result built so
// far is returned alongside it for diagnostics.
func (p *Pipeline) Run(ctx context.Context, src Sources) (*Result, error) {
	res := &Result{
		RunID:   uuid.NewString(),
		Schemas: make(map[model.Level]model.LevelSchema),
		Regions: make(map[model.Level][]model.CanonicalRegion),
	}
	log := p.log.With("run_id", res.RunID)

	var levels []model.Level
	for _, l := range model.RegionLevels {
		fc, ok := src[l]
		if !ok || fc == nil {
			continue
		}
		if parent, has := l.Parent(); has {
			if src[parent] == nil {
				return res, fmt.Errorf("layer %s needs its parent layer %s", l, parent)
			}
		}
		if len(fc.Features) == 0 {
			return res, fmt.Errorf("layer %s has no features", l)
		}
		levels = append(levels, l)
	}
	if len(levels) == 0 {
		return res, fmt.Errorf("no boundary layers to normalize")
	}

	// Code and name detection are independent per level.
	codes := make([]schema.CodeScore, len(levels))
	names := make([]schema.NameScore, len(levels))
	g, gctx := errgroup.WithContext(ctx)
	for i, l := range levels {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			features := src[l].Features
			cs, err := p.detector.DetectCode(l, features)
			if err != nil {
				return err
			}
			ns, err := p.detector.DetectName(l, features)
			if err != nil {
				return err
			}
			codes[i], names[i] = cs, ns
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("schema detection failed", "error", err)
		return res, err
	}

	// Parent keys and prefix lengths depend on the parent level's modal length.
	modal := make(map[model.Level]int, len(levels))
	for i, l := range levels {
		modal[l] = codes[i].ModalLength
	}
	layers := make(map[model.Level]Layer, len(levels))
	for i, l := range levels {
		parentLen := 0
		if parent, has := l.Parent(); has {
			parentLen = modal[parent]
		}
		features := src[l].Features
		s := model.LevelSchema{
			CodeKey:         codes[i].Key,
			NameKey:         names[i].Key,
			ParentKey:       p.detector.DetectParent(features, codes[i].Key, parentLen),
			ModalCodeLength: codes[i].ModalLength,
		}
		layer := NormalizeLayer(l, features, s, parentLen)
		rep := BuildReport(l, features, s, layer)

		res.Schemas[l] = s
		res.Regions[l] = layer.Regions
		res.Reports = append(res.Reports, rep)
		layers[l] = layer

		log.Info("layer normalized",
			"level", l.String(),
			"code_key", s.CodeKey,
			"name_key", s.NameKey,
			"parent_key", s.ParentKey,
			"modal_len", s.ModalCodeLength,
			"regions", len(layer.Regions),
		)
		for _, w := range rep.Warnings() {
			log.Warn("layer report", "level", l.String(), "warning", w)
		}
	}

	threshold := p.rules.CoverageThreshold
	if threshold <= 0 {
		threshold = DefaultCoverageThreshold
	}
	for _, l := range levels {
		parent, has := l.Parent()
		if !has {
			continue
		}
		cov, err := CheckCoverage(l, layers[l].Regions, CodeSet(layers[parent].Regions), threshold)
		res.Coverage = append(res.Coverage, cov)
		if err != nil {
			log.Error("parent coverage below threshold", "level", l.String(), "ratio", cov.Ratio, "broken", len(cov.BrokenCodes))
			return res, err
		}
		log.Info("parent coverage", "level", l.String(), "ratio", cov.Ratio, "matched", cov.Matched, "total", cov.Total)
	}
	return res, nil
}

// Levels returns the normalized levels, top-down.
func (r *Result) Levels() []model.Level {
	var out []model.Level
	for _, l := range model.RegionLevels {
		if _, ok := r.Regions[l]; ok {
			out = append(out, l)
		}
	}
	return out
}
