// Package pipeline discovers library files, decides which analyzers
// must run for each, schedules extraction over a worker pool, and
// commits results into the catalog in batches. It is the single writer
// of the catalog (see the concurrency model).
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/stojg/musim/internal/analyzer"
	"github.com/stojg/musim/internal/catalog"
	"github.com/stojg/musim/internal/cuesplit"
	"github.com/stojg/musim/internal/model"
	"github.com/stojg/musim/internal/tagreader"
)

// Config bundles the knobs the per-file decision matrix and batching
// policy need.
type Config struct {
	Threads int

	// ForceTimbre/ForceAttribute/ForceDescriptor correspond to the
	// --force letters 'm', 'e', 'b': when set, that analyzer always
	// runs even if the catalog already has output for the path.
	ForceTimbre, ForceAttribute, ForceDescriptor bool

	TimbreEnabled, AttributeEnabled, DescriptorEnabled bool
	AttributeHighLevel                                bool

	MinDuration, MaxDuration int
	ExcludeGenres            map[string]bool

	TimbreParams analyzer.Params

	// CommitInterval is the number of successful inserts between
	// catalog commits: 500 with only light analyzers enabled, 100 when
	// the heavier attribute analyzer is on.
	CommitInterval int

	MaxTracks int // 0 means unlimited, mirrors --max-tracks
	DryRun    bool
	TmpDir    string // scratch directory the cue splitter extracts virtual tracks into
}

// Outcome records what happened to a single scheduled path.
type Outcome struct {
	Path   string
	Status analyzer.Status
	Reason string // "Tags", "Duration", "Genre", "Config", "Catalog", or an analyzer Kind
}

// Stats summarizes a full analysis run.
type Stats struct {
	OK, Errors, Filtered int
	RowsChanged          bool
	Outcomes             []Outcome
}

// Pipeline is the analysis pipeline: it owns the catalog write path, the
// tag reader, the enabled analyzer adapters, and the cue splitter.
type Pipeline struct {
	cat       *catalog.Catalog
	tags      tagreader.Reader
	timbre    analyzer.Analyzer
	attribute analyzer.Analyzer
	descriptor analyzer.Analyzer
	splitter  cuesplit.Splitter
	cfg       Config
	log       *logrus.Entry

	shouldStop atomic.Bool
}

// New constructs a Pipeline. Any of timbre/attribute/descriptor may be
// nil if that analyzer is disabled in configuration.
func New(cat *catalog.Catalog, tags tagreader.Reader, timbre, attribute, descriptor analyzer.Analyzer, splitter cuesplit.Splitter, cfg Config, log *logrus.Entry) *Pipeline {
	return &Pipeline{
		cat: cat, tags: tags,
		timbre: timbre, attribute: attribute, descriptor: descriptor,
		splitter: splitter, cfg: cfg, log: log,
	}
}

// Stop sets the cooperative cancellation flag: queued work is dropped,
// running work drains, and partial results are still committed. This is
// the only mutable process-wide state on the analyzer side besides the
// pending-task set the worker pool owns internally.
func (p *Pipeline) Stop() { p.shouldStop.Store(true) }

// Stopped reports whether Stop has been called.
func (p *Pipeline) Stopped() bool { return p.shouldStop.Load() }

// discoverFiles walks root in deterministic sorted-lexicographic order,
// expanding any .cue sheets it finds into their virtual per-track paths.
func discoverFiles(root string) ([]string, error) {
	var audio []string
	var cues []string

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = strings.ReplaceAll(rel, string(os.PathSeparator), "/")

		if strings.EqualFold(filepath.Ext(rel), ".cue") {
			cues = append(cues, rel)
			return nil
		}
		audio = append(audio, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(audio)
	sort.Strings(cues)

	cueSources := map[string]bool{}
	var virtual []string
	for _, cuePath := range cues {
		entries, cueErr := cuesplit.ReadCueSheet(filepath.Join(root, cuePath))
		if cueErr != nil {
			continue // a broken cue sheet is skipped, not fatal
		}
		dir := ""
		if i := strings.LastIndex(cuePath, "/"); i >= 0 {
			dir = cuePath[:i+1]
		}
		for _, e := range entries {
			e.Source = dir + e.Source
			cueSources[e.Source] = true
			virtual = append(virtual, e.VirtualPath())
		}
	}

	// Exclude the raw source files of any cue sheet we successfully
	// expanded; they are scheduled as their virtual sub-tracks instead.
	out := make([]string, 0, len(audio)+len(virtual))
	for _, a := range audio {
		if !cueSources[a] {
			out = append(out, a)
		}
	}
	out = append(out, virtual...)
	sort.Strings(out)
	return out, nil
}

// Run discovers (or uses the supplied) paths under root and analyzes
// each according to the per-file decision matrix, in a bounded worker
// pool, committing to the catalog in batches.
func (p *Pipeline) Run(ctx context.Context, root string, paths []string) (Stats, error) {
	if paths == nil {
		var err error
		paths, err = discoverFiles(root)
		if err != nil {
			return Stats{}, err
		}
	}
	if p.cfg.MaxTracks > 0 && len(paths) > p.cfg.MaxTracks {
		paths = paths[:p.cfg.MaxTracks]
	}

	var (
		mu      sync.Mutex
		stats   Stats
		tx      *catalog.Tx
		txErr   error
	)

	// Cancelling ctx sets the stop flag; the batch transaction uses a
	// context that survives the cancellation so partial results commit.
	txCtx := context.WithoutCancel(ctx)
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			p.Stop()
		case <-watchDone:
		}
	}()

	if !p.cfg.DryRun {
		tx, txErr = p.cat.Begin(txCtx)
		if txErr != nil {
			return Stats{}, txErr
		}
	}

	commitIfDue := func() {
		if p.cfg.DryRun || tx == nil {
			return
		}
		if tx.Pending() >= p.cfg.CommitInterval {
			if err := tx.Commit(); err != nil {
				p.log.WithError(err).Error("batch commit failed")
				return
			}
			stats.RowsChanged = true
			newTx, err := p.cat.Begin(txCtx)
			if err != nil {
				p.log.WithError(err).Error("failed to reopen batch after commit")
				return
			}
			tx = newTx
		}
	}

	pool := newWorkerPool(p.cfg.Threads, len(paths))

	for _, path := range paths {
		path := path
		if p.shouldStop.Load() {
			break
		}
		pool.submit(func() {
			if p.shouldStop.Load() {
				return
			}
			outcome := p.processFile(ctx, root, path, tx, &mu)

			mu.Lock()
			stats.Outcomes = append(stats.Outcomes, outcome)
			switch outcome.Status {
			case analyzer.StatusOK:
				stats.OK++
				stats.RowsChanged = true
			case analyzer.StatusError:
				stats.Errors++
			case analyzer.StatusFiltered:
				stats.Filtered++
			}
			mu.Unlock()

			commitIfDue()
		})
	}

	pool.wait()
	pool.close()

	if !p.cfg.DryRun && tx != nil {
		if err := tx.Commit(); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

// processFile runs the state machine for a single path:
// read_tags -> duration/genre filters -> decision matrix -> spawn
// analyzers -> commit. The catalog write itself is serialized by the
// caller-held mutex even though reads/extraction run concurrently.
func (p *Pipeline) processFile(ctx context.Context, root, path string, tx *catalog.Tx, mu *sync.Mutex) Outcome {
	fullPath := filepath.Join(root, path)
	if source, start, end, ok := cuesplit.ParseVirtualPath(path); ok {
		sourcePath := filepath.Join(root, source)
		if p.splitter != nil && p.cfg.TmpDir != "" {
			entry := cuesplit.Entry{Source: source, StartSecs: start, EndSecs: end}
			if segPath, err := p.splitter.Split(sourcePath, entry, p.cfg.TmpDir); err == nil {
				fullPath = segPath
			} else {
				fullPath = sourcePath
			}
		} else {
			fullPath = sourcePath
		}
	}

	tags, err := p.tags.Read(fullPath)
	if err != nil || tags.Title == "" {
		return Outcome{Path: path, Status: analyzer.StatusError, Reason: "Tags"}
	}

	if (p.cfg.MinDuration > 0 && tags.Duration > 0 && tags.Duration < p.cfg.MinDuration) ||
		(p.cfg.MaxDuration > 0 && tags.Duration > 0 && tags.Duration > p.cfg.MaxDuration) {
		return Outcome{Path: path, Status: analyzer.StatusFiltered, Reason: "Duration"}
	}

	genres := tagGenres(tags.Genre)
	for _, g := range genres {
		if p.cfg.ExcludeGenres[g] {
			return Outcome{Path: path, Status: analyzer.StatusFiltered, Reason: "Genre"}
		}
	}

	runTimbre, runAttribute, runDescriptor, anyApplicable := p.decide(ctx, path)
	if !anyApplicable {
		return Outcome{Path: path, Status: analyzer.StatusError, Reason: "Config"}
	}

	mu.Lock()
	if tx != nil {
		if err := tx.UpsertTags(path, tags.Title, tags.Artist, tags.Album, tags.AlbumArtist, genres, tags.Duration); err != nil {
			mu.Unlock()
			p.log.WithError(err).WithField("path", path).Error("upsert tags failed")
			return Outcome{Path: path, Status: analyzer.StatusError, Reason: "Catalog"}
		}
	}
	mu.Unlock()

	var failedKind analyzer.Kind
	update := catalog.FeatureUpdate{}

	if runTimbre && p.timbre != nil {
		res, err := p.timbre.Analyze(ctx, fullPath, p.cfg.TimbreParams)
		if err != nil {
			failedKind = analyzer.KindTimbre
		} else if res != nil {
			update.Timbre = res.TimbreBlob
		}
	}
	if failedKind == "" && runAttribute && p.attribute != nil {
		res, err := p.attribute.Analyze(ctx, fullPath, analyzer.Params{})
		if err != nil {
			failedKind = analyzer.KindAttribute
		} else if res != nil && res.Attribute != nil {
			bpm := res.Attribute.BPM
			key := res.Attribute.Key
			update.BPM = &bpm
			update.Key = &key
			if res.Attribute.HighLevel != nil {
				update.HighLevel = toModelHighLevel(res.Attribute.HighLevel)
			}
		}
	}
	if failedKind == "" && runDescriptor && p.descriptor != nil {
		res, err := p.descriptor.Analyze(ctx, fullPath, analyzer.Params{})
		if err != nil {
			failedKind = analyzer.KindDescriptor
		} else if res != nil {
			update.Descriptor = res.Descriptor
		}
	}

	if failedKind != "" {
		return Outcome{Path: path, Status: analyzer.StatusError, Reason: string(failedKind)}
	}

	mu.Lock()
	if tx != nil {
		if err := tx.UpsertFeatures(path, update); err != nil {
			mu.Unlock()
			p.log.WithError(err).WithField("path", path).Error("upsert features failed")
			return Outcome{Path: path, Status: analyzer.StatusError, Reason: "Catalog"}
		}
	}
	mu.Unlock()

	return Outcome{Path: path, Status: analyzer.StatusOK}
}

// decide implements the per-file decision matrix: run an analyzer iff
// force demands it, or it's enabled and the catalog lacks output for
// this path. Returns false for anyApplicable if no analyzer applies at
// all (which becomes an ERROR("Config") outcome).
func (p *Pipeline) decide(ctx context.Context, path string) (timbre, attribute, descriptor, anyApplicable bool) {
	if p.cfg.TimbreEnabled {
		has, _ := p.cat.HasFeature(ctx, path, "timbre")
		timbre = p.cfg.ForceTimbre || !has
		anyApplicable = true
	}
	if p.cfg.AttributeEnabled {
		has, _ := p.cat.HasFeature(ctx, path, "bpm")
		attribute = p.cfg.ForceAttribute || !has
		anyApplicable = true
	}
	if p.cfg.DescriptorEnabled {
		has, _ := p.cat.HasFeature(ctx, path, "descriptor")
		descriptor = p.cfg.ForceDescriptor || !has
		anyApplicable = true
	}
	return
}

// tagGenres splits a raw tag's genre field into a set of genres, using
// ";" as the separator the way the original tag reader does.
func tagGenres(genre string) []string {
	if genre == "" {
		return nil
	}
	parts := strings.Split(genre, ";")
	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func toModelHighLevel(h *analyzer.HighLevelOutput) *model.HighLevel {
	if h == nil {
		return nil
	}
	return &model.HighLevel{
		Danceable:  h.Danceable,
		Aggressive: h.Aggressive,
		Electronic: h.Electronic,
		Acoustic:   h.Acoustic,
		Happy:      h.Happy,
		Party:      h.Party,
		Relaxed:    h.Relaxed,
		Sad:        h.Sad,
		Dark:       h.Dark,
		Tonal:      h.Tonal,
		Voice:      h.Voice,
	}
}
