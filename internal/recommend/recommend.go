// Package recommend implements the candidate-filtering and
// diversification pipeline (§4.6): it turns an ordered neighbor list
// from the similarity/fusion layer into a final track list honoring
// genre, duration, artist/album repetition, key/BPM compatibility, and
// title-dedup constraints.
package recommend

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/stojg/musim/internal/camelot"
	"github.com/stojg/musim/internal/catalog"
	"github.com/stojg/musim/internal/model"
	"github.com/stojg/musim/internal/similarity"
)

// SimilarityProvider is the fused or single-analyzer query surface the
// engine asks for ordered neighbor lists.
type SimilarityProvider interface {
	KNN(id int64, k int) ([]similarity.Neighbor, error)
}

// Catalog is the narrow read surface the recommendation pipeline needs.
type Catalog interface {
	GetByID(ctx context.Context, id int64) (*model.Track, error)
	GetByPath(ctx context.Context, path string) (*model.Track, error)
	AllGenresSorted(ctx context.Context) ([]string, error)
	SelectWhere(ctx context.Context, cons catalog.ScalarConstraints) ([]int64, error)
}

// Defaults mirrors the tunable constants named throughout spec.md §4.6.
type Defaults struct {
	ShuffleFactor      int
	MinNumSim          int
	ArtistMaxSim       float64
	NoGenreMatchAdj    float64
	GenreGroupAdj      float64
	FilterAttribLim    float64
	FilterAttribCand   float64
	FilterAttribCount  int
	DefaultNoRepeatArt int
	DefaultNoRepeatAlb int
	AttrMixYes         float64
	AttrMixNo          float64
}

// DefaultDefaults returns spec.md's named constants.
func DefaultDefaults() Defaults {
	return Defaults{
		ShuffleFactor:      5,
		MinNumSim:          5000,
		ArtistMaxSim:       0.1,
		NoGenreMatchAdj:    0.15,
		GenreGroupAdj:      0.07,
		FilterAttribLim:    0.2,
		FilterAttribCand:   0.4,
		FilterAttribCount:  4,
		DefaultNoRepeatArt: 15,
		DefaultNoRepeatAlb: 25,
		AttrMixYes:         0.6,
		AttrMixNo:          0.4,
	}
}

// Request bundles one /api/similar call's resolved inputs (the HTTP
// layer owns parsing query/body params into this shape).
type Request struct {
	Seeds, Previous []string

	Count         int
	FilterGenre   bool
	Shuffle       bool
	MaxSim        float64 // already divided by 100
	MinDuration   int
	MaxDuration   int
	NoRepeatArt   int
	NoRepeatAlb   int
	FilterXmas    bool
	NoGenreAdj    float64 // already divided by 100; 0 means "use default"
	GenreGroupAdj float64 // already divided by 100; 0 means "use default"
	MaxBPMDiff    int
	FilterKey     bool
	FilterAttrib  bool
	GenreGroups   [][]string
	IgnoreGenre   []string // artist names exempt from genre-compatibility filtering
}

// Engine is the recommendation pipeline, holding the pieces that are
// immutable across requests.
type Engine struct {
	cat         Catalog
	sim         SimilarityProvider
	catalogSize int
	defaults    Defaults
}

// New constructs an Engine. catalogSize bounds num_sim (§4.6 step 4).
func New(cat Catalog, sim SimilarityProvider, catalogSize int, defaults Defaults) *Engine {
	return &Engine{cat: cat, sim: sim, catalogSize: catalogSize, defaults: defaults}
}

type scoredCandidate struct {
	id     int64
	track  *model.Track
	rawSim float64
	adjSim float64
}

type acceptedEntry struct {
	scoredCandidate
	alternatives []scoredCandidate
}

type filterOutSets struct {
	artists map[string]bool
	albums  map[string]bool
	titles  map[string]bool
}

func newFilterOutSets() filterOutSets {
	return filterOutSets{artists: map[string]bool{}, albums: map[string]bool{}, titles: map[string]bool{}}
}

// Recommend runs the full §4.6 algorithm and returns the ordered,
// final list of accepted tracks.
func (e *Engine) Recommend(ctx context.Context, req Request) ([]*model.Track, error) {
	d := e.defaults
	if req.NoGenreAdj > 0 {
		d.NoGenreMatchAdj = req.NoGenreAdj
	}
	if req.GenreGroupAdj > 0 {
		d.GenreGroupAdj = req.GenreGroupAdj
	}

	// Step 1: resolve seeds.
	var seedTracks []*model.Track
	for _, path := range req.Seeds {
		t, err := e.cat.GetByPath(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("recommend: resolve seed %s: %w", path, err)
		}
		if t != nil {
			seedTracks = append(seedTracks, t)
		}
	}
	if len(seedTracks) == 0 {
		return nil, nil
	}

	// Step 2: filter_out sets.
	filterOut := newFilterOutSets()
	for _, s := range seedTracks {
		if s.Title != "" {
			filterOut.titles[s.Title] = true
		}
	}
	historySource := seedTracks
	if len(req.Previous) > 0 {
		var prevTracks []*model.Track
		for _, path := range req.Previous {
			t, err := e.cat.GetByPath(ctx, path)
			if err != nil {
				return nil, fmt.Errorf("recommend: resolve previous %s: %w", path, err)
			}
			if t != nil {
				prevTracks = append(prevTracks, t)
			}
		}
		historySource = prevTracks
	}
	noRepeatArt := req.NoRepeatArt
	if noRepeatArt < 0 || noRepeatArt > 200 {
		noRepeatArt = d.DefaultNoRepeatArt
	}
	noRepeatAlb := req.NoRepeatAlb
	if noRepeatAlb < 0 || noRepeatAlb > 200 {
		noRepeatAlb = d.DefaultNoRepeatAlb
	}
	for i, t := range historySource {
		if i < noRepeatArt && t.Artist != "" {
			filterOut.artists[t.Artist] = true
		}
		if i < noRepeatAlb {
			if ak := t.AlbumKey(); ak != "" {
				filterOut.albums[ak] = true
			}
		}
		if t.Title != "" {
			filterOut.titles[t.Title] = true
		}
	}

	// Step 3: acceptable genres.
	allGenres, err := e.cat.AllGenresSorted(ctx)
	if err != nil {
		return nil, fmt.Errorf("recommend: all genres: %w", err)
	}
	allGenreSet := toSet(allGenres)
	seedGenreSet := map[string]bool{}
	for _, s := range seedTracks {
		for _, g := range s.Genres {
			seedGenreSet[g] = true
		}
	}
	acceptableGenres := expandGenreGroups(seedGenreSet, req.GenreGroups)
	ignoreGenreArtists := toSet(req.IgnoreGenre)

	// Step 4: working sizes.
	count := req.Count
	if count < 1 {
		count = 1
	}
	if count > 50 {
		count = 50
	}
	similarityCount := count
	if req.Shuffle && (count < 20 || len(seedTracks) < 10) {
		similarityCount = count * d.ShuffleFactor
	}
	if len(seedTracks) == 1 {
		similarityCount *= 2
	}
	tracksPerSeed := similarityCount
	if similarityCount < 15 {
		scaled := int(float64(similarityCount)*2.5 + 0.999999)
		if scaled > tracksPerSeed {
			tracksPerSeed = scaled
		}
	}
	numSim := d.MinNumSim
	if v := count * len(seedTracks) * 50; v > numSim {
		numSim = v
	}
	if e.catalogSize > 0 && numSim > e.catalogSize {
		numSim = e.catalogSize
	}

	// Step 5: per-seed neighbor scan with the candidate filter table.
	accepted := map[int64]*acceptedEntry{}
	var filteredMeta, filteredAttribs []scoredCandidate
	artistAlts := map[string][]scoredCandidate{}
	seedIDSet := map[int64]bool{}
	for _, s := range seedTracks {
		seedIDSet[s.ID] = true
	}

	extremeCache := map[int64][]extremeAttr{}

	for _, seed := range seedTracks {
		neighbors, err := e.sim.KNN(seed.ID, numSim)
		if err != nil {
			return nil, fmt.Errorf("recommend: knn seed %d: %w", seed.ID, err)
		}
		acceptedForSeed := 0
		for _, nb := range neighbors {
			if acceptedForSeed >= tracksPerSeed {
				break
			}
			if seedIDSet[nb.ID] {
				continue
			}
			if req.MaxSim > 0 && nb.Sim > req.MaxSim {
				continue
			}

			cand, err := e.cat.GetByID(ctx, nb.ID)
			if err != nil || cand == nil {
				continue // missing meta: HARD_DISCARD
			}

			extremes, ok := extremeCache[seed.ID]
			if !ok {
				extremes = computeExtremeAttrs(seed.HighLevel, d.FilterAttribLim, d.FilterAttribCount)
				extremeCache[seed.ID] = extremes
			}

			adj := nb.Sim + genreAdjustment(seedGenreSet, toSet(cand.Genres), acceptableGenres, d.NoGenreMatchAdj, d.GenreGroupAdj)

			if existing, ok := accepted[cand.ID]; ok {
				if adj < existing.adjSim {
					existing.adjSim = adj
				}
				continue
			}

			if cand.Ignore {
				continue
			}
			if (req.MinDuration > 0 && cand.Duration < req.MinDuration) || (req.MaxDuration > 0 && cand.Duration > req.MaxDuration) {
				continue
			}
			if req.FilterGenre && !ignoreGenreArtists[cand.Artist] && !genreCompatible(cand.Genres, acceptableGenres, allGenreSet) {
				continue
			}
			if req.FilterXmas && isChristmas(cand.Genres) && time.Now().Month() != time.December {
				continue
			}
			if req.MaxBPMDiff > 0 && req.MaxBPMDiff < 150 && seed.HasBPM && cand.HasBPM {
				if absInt(seed.BPM-cand.BPM) > req.MaxBPMDiff {
					filteredAttribs = append(filteredAttribs, scoredCandidate{id: cand.ID, track: cand, rawSim: nb.Sim, adjSim: adj})
					continue
				}
			}
			if req.FilterKey && seed.HasKey && cand.HasKey {
				if !keyCompatible(seed.Key, cand.Key) {
					filteredAttribs = append(filteredAttribs, scoredCandidate{id: cand.ID, track: cand, rawSim: nb.Sim, adjSim: adj})
					continue
				}
			}
			if req.FilterAttrib && len(extremes) > 0 {
				if failsExtremeAttrs(extremes, cand.HighLevel, d.FilterAttribCand) {
					filteredAttribs = append(filteredAttribs, scoredCandidate{id: cand.ID, track: cand, rawSim: nb.Sim, adjSim: adj})
					continue
				}
			}
			if cand.Artist != "" && filterOut.artists[cand.Artist] {
				if alts := artistAlts[cand.Artist]; len(alts) < 5 {
					if ak := cand.AlbumKey(); ak == "" || !filterOut.albums[ak] {
						artistAlts[cand.Artist] = append(alts, scoredCandidate{id: cand.ID, track: cand, rawSim: nb.Sim, adjSim: adj})
					}
				}
				filteredMeta = append(filteredMeta, scoredCandidate{id: cand.ID, track: cand, rawSim: nb.Sim, adjSim: adj})
				continue
			}
			if ak := cand.AlbumKey(); ak != "" && filterOut.albums[ak] {
				filteredMeta = append(filteredMeta, scoredCandidate{id: cand.ID, track: cand, rawSim: nb.Sim, adjSim: adj})
				continue
			}
			if cand.Title != "" && filterOut.titles[cand.Title] {
				filteredMeta = append(filteredMeta, scoredCandidate{id: cand.ID, track: cand, rawSim: nb.Sim, adjSim: adj})
				continue
			}

			// accept
			accepted[cand.ID] = &acceptedEntry{scoredCandidate: scoredCandidate{id: cand.ID, track: cand, rawSim: nb.Sim, adjSim: adj}}
			if cand.Artist != "" {
				filterOut.artists[cand.Artist] = true
			}
			if ak := cand.AlbumKey(); ak != "" {
				filterOut.albums[ak] = true
			}
			if cand.Title != "" {
				filterOut.titles[cand.Title] = true
			}
			acceptedForSeed++
		}
	}

	// Step 6: artist coalescing.
	rng := rand.New(rand.NewSource(requestSeed(req)))
	for _, entry := range accepted {
		if entry.track.Artist == "" {
			continue
		}
		alts := artistAlts[entry.track.Artist]
		if len(alts) == 0 {
			continue
		}
		pool := make([]scoredCandidate, 0, len(alts)+1)
		pool = append(pool, entry.scoredCandidate)
		for _, alt := range alts {
			if alt.rawSim-entry.rawSim <= e.defaults.ArtistMaxSim {
				pool = append(pool, alt)
			}
		}
		choice := pool[rng.Intn(len(pool))]
		entry.track = choice.track
		entry.id = choice.id
		entry.rawSim = choice.rawSim
		// adjSim intentionally preserved from the originally accepted track.
	}

	// Step 7: backfill if fewer than 2 survived.
	if len(accepted) < 2 {
		sort.Slice(filteredMeta, func(i, j int) bool { return filteredMeta[i].rawSim < filteredMeta[j].rawSim })
		sort.Slice(filteredAttribs, func(i, j int) bool { return filteredAttribs[i].rawSim < filteredAttribs[j].rawSim })
		for _, pool := range [][]scoredCandidate{filteredMeta, filteredAttribs} {
			for _, c := range pool {
				if len(accepted) >= 2 {
					break
				}
				if _, ok := accepted[c.id]; ok {
					continue
				}
				accepted[c.id] = &acceptedEntry{scoredCandidate: c}
			}
		}
	}

	// Step 8: sort, truncate, optionally shuffle.
	out := make([]*acceptedEntry, 0, len(accepted))
	for _, e := range accepted {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].adjSim < out[j].adjSim })
	if similarityCount < len(out) {
		out = out[:similarityCount]
	}
	if req.Shuffle {
		rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	}
	if count < len(out) {
		out = out[:count]
	}

	result := make([]*model.Track, 0, len(out))
	for _, e := range out {
		result = append(result, e.track)
	}
	return result, nil
}

func toSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}

func expandGenreGroups(seedGenres map[string]bool, groups [][]string) map[string]bool {
	out := map[string]bool{}
	for g := range seedGenres {
		out[g] = true
	}
	for _, group := range groups {
		intersects := false
		for _, g := range group {
			if seedGenres[g] {
				intersects = true
				break
			}
		}
		if intersects {
			for _, g := range group {
				out[g] = true
			}
		}
	}
	return out
}

func genreCompatible(candGenres []string, acceptable, allGenres map[string]bool) bool {
	if len(candGenres) == 0 {
		return true
	}
	if len(acceptable) == 0 {
		for _, g := range candGenres {
			if allGenres[g] {
				return false
			}
		}
		return true
	}
	for _, g := range candGenres {
		if acceptable[g] {
			return true
		}
	}
	return false
}

func genreAdjustment(seedGenres, candGenres, expandedGroups map[string]bool, noMatchAdj, groupAdj float64) float64 {
	if len(seedGenres) == 0 || len(candGenres) == 0 {
		return noMatchAdj
	}
	for g := range candGenres {
		if seedGenres[g] {
			return 0
		}
	}
	for g := range candGenres {
		if expandedGroups[g] {
			return groupAdj
		}
	}
	return noMatchAdj
}

func isChristmas(genres []string) bool {
	for _, g := range genres {
		if g == "Christmas" || g == "Xmas" {
			return true
		}
	}
	return false
}

func keyCompatible(seedKey, candKey string) bool {
	sc, ok := camelot.ParseKey(seedKey)
	if !ok {
		return true // can't evaluate, don't block
	}
	cc, ok := camelot.ParseKey(candKey)
	if !ok {
		return true
	}
	return camelot.Compatible(sc, cc)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// requestSeed derives a deterministic RNG seed from a request's
// content so that repeated identical calls (shuffle=0 or otherwise)
// against an unchanged catalog are reproducible, per the determinism
// testable property — only the content varies the seed, never wall
// clock or process state.
func requestSeed(req Request) int64 {
	var h int64 = 1469598103934665603 // FNV offset basis
	mix := func(s string) {
		for i := 0; i < len(s); i++ {
			h ^= int64(s[i])
			h *= 1099511628211
		}
	}
	for _, s := range req.Seeds {
		mix(s)
	}
	for _, s := range req.Previous {
		mix(s)
	}
	mix(fmt.Sprintf("%d|%d|%v", req.Count, req.MaxBPMDiff, req.Shuffle))
	if h == 0 {
		h = 1
	}
	return h
}
