package recommend

import (
	"context"
	"fmt"
)

// DumpRequest bundles a /api/dump call's resolved inputs (§4.7): a
// single-seed "raw" view over the neighbor list with only tag-based
// rejects, not the full candidate filter table.
type DumpRequest struct {
	Seed         string
	Raw          bool // bypass all filtering and genre adjustment
	FilterArtist bool // reject candidates sharing the seed's artist
	FilterAttrib bool
	Count        int
	MaxSim       float64
	GenreGroups  [][]string
}

// DumpEntry is one surviving candidate alongside its similarity score
// (adjusted, unless Raw was requested).
type DumpEntry struct {
	Path string
	Sim  float64
}

// Dump runs the seed's neighbor scan with only ignore/artist-match/
// duplicate-title rejects (plus optional attribute filtering) applied,
// per §4.7's "raw" view.
func (e *Engine) Dump(ctx context.Context, req DumpRequest) ([]DumpEntry, error) {
	d := e.defaults

	seed, err := e.cat.GetByPath(ctx, req.Seed)
	if err != nil {
		return nil, fmt.Errorf("recommend: dump resolve seed %s: %w", req.Seed, err)
	}
	if seed == nil {
		return nil, nil
	}

	count := req.Count
	if count < 1 {
		count = 1
	}
	if count > 50 {
		count = 50
	}

	neighbors, err := e.sim.KNN(seed.ID, e.catalogSize)
	if err != nil {
		return nil, fmt.Errorf("recommend: dump knn: %w", err)
	}

	seedGenreSet := toSet(seed.Genres)
	acceptableGenres := expandGenreGroups(seedGenreSet, req.GenreGroups)
	var extremes []extremeAttr
	if req.FilterAttrib && !req.Raw {
		extremes = computeExtremeAttrs(seed.HighLevel, d.FilterAttribLim, d.FilterAttribCount)
	}

	seenTitles := map[string]bool{}
	if seed.Title != "" {
		seenTitles[seed.Title] = true
	}
	var out []DumpEntry
	for _, nb := range neighbors {
		if len(out) >= count {
			break
		}
		if nb.ID == seed.ID {
			continue
		}
		if !req.Raw && req.MaxSim > 0 && nb.Sim > req.MaxSim {
			continue
		}
		cand, err := e.cat.GetByID(ctx, nb.ID)
		if err != nil || cand == nil {
			continue
		}

		sim := nb.Sim
		if !req.Raw {
			if cand.Ignore {
				continue
			}
			if req.FilterArtist && cand.Artist != "" && cand.Artist == seed.Artist {
				continue
			}
			if cand.Title != "" && seenTitles[cand.Title] {
				continue
			}
			if len(extremes) > 0 && failsExtremeAttrs(extremes, cand.HighLevel, d.FilterAttribCand) {
				continue
			}
			sim += genreAdjustment(seedGenreSet, toSet(cand.Genres), acceptableGenres, d.NoGenreMatchAdj, d.GenreGroupAdj)
		}

		out = append(out, DumpEntry{Path: cand.Path, Sim: sim})
		if cand.Title != "" {
			seenTitles[cand.Title] = true
		}
	}
	return out, nil
}
