package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/stojg/musim/internal/analyzer"
	"github.com/stojg/musim/internal/catalog"
	"github.com/stojg/musim/internal/config"
	"github.com/stojg/musim/internal/cuesplit"
	"github.com/stojg/musim/internal/pipeline"
	"github.com/stojg/musim/internal/tagreader"
)

// commitInterval mirrors §4.3's batching policy: 500 with only light
// analyzers enabled, 100 once the heavier attribute analyzer runs.
func commitInterval(cfg config.Config) int {
	if cfg.Essentia.Enabled {
		return 100
	}
	return 500
}

func buildPipeline(cfg config.Config, cat *catalog.Catalog, f cliFlags, log *logrus.Entry) *pipeline.Pipeline {
	forceTimbre, forceAttribute, forceDescriptor := f.forceLetters()

	var timbre, attribute, descriptor analyzer.Analyzer
	if !f.metaOnly && cfg.Musly.Enabled {
		timbre = analyzer.NewTimbreAnalyzer("musly-extract")
	}
	if !f.metaOnly && cfg.Essentia.Enabled {
		attribute = analyzer.NewAttributeAnalyzer("essentia_streaming_extractor_music", cfg.Essentia.HighLevel)
	}
	if !f.metaOnly && cfg.Bliss.Enabled {
		descriptor = analyzer.NewDescriptorAnalyzer("bliss-analyze", 20)
	}

	pcfg := pipeline.Config{
		Threads:            cfg.Threads,
		ForceTimbre:        forceTimbre,
		ForceAttribute:     forceAttribute,
		ForceDescriptor:    forceDescriptor,
		TimbreEnabled:      timbre != nil,
		AttributeEnabled:   attribute != nil,
		DescriptorEnabled:  descriptor != nil,
		AttributeHighLevel: cfg.Essentia.HighLevel,
		MinDuration:        cfg.MinDuration,
		MaxDuration:        cfg.MaxDuration,
		ExcludeGenres:      toSet(cfg.ExcludeGenres),
		TimbreParams:       analyzer.Params{ExtractLen: cfg.Musly.ExtractLen, ExtractStart: cfg.Musly.ExtractStart},
		CommitInterval:     commitInterval(cfg),
		MaxTracks:          f.maxTracks,
		DryRun:             f.dryRun,
		TmpDir:             cfg.Paths.Tmp,
	}

	var splitter cuesplit.Splitter
	if cfg.Paths.Tmp != "" {
		splitter = cuesplit.NewFFmpegSplitter("")
	}

	return pipeline.New(cat, tagreader.NewTagLibReader(), timbre, attribute, descriptor, splitter, pcfg, log)
}

func toSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}

// runAnalyze resolves the --analyse target, optionally forgets missing
// rows, then runs the pipeline once.
func runAnalyze(ctx context.Context, cfg config.Config, cat *catalog.Catalog, f cliFlags, log *logrus.Entry) error {
	if err := cfg.RequireLocal(); err != nil {
		return err
	}

	root := f.analyse
	if root == "m" {
		root = cfg.Paths.Local
	}

	if !f.keepOld && !f.dryRun {
		changed, err := cat.ForgetMissing(ctx, cfg.Paths.Local)
		if err != nil {
			return fmt.Errorf("forget missing: %w", err)
		}
		if changed {
			log.Info("removed catalog rows for files no longer on disk")
		}
	}

	p := buildPipeline(cfg, cat, f, log)

	var paths []string
	if root != cfg.Paths.Local {
		paths = []string{root}
	}

	stats, err := p.Run(ctx, cfg.Paths.Local, paths)
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}
	log.WithFields(logrus.Fields{
		"ok": stats.OK, "errors": stats.Errors, "filtered": stats.Filtered,
	}).Info("analysis complete")
	return nil
}
