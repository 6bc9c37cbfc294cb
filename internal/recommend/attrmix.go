package recommend

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/stojg/musim/internal/catalog"
	"github.com/stojg/musim/internal/model"
)

// AttrMixRequest bundles one /api/attrmix call's resolved inputs (§4.7):
// a pure catalog scalar query, no similarity index involved.
type AttrMixRequest struct {
	MinDuration, MaxDuration int
	MinBPM, MaxBPM           int
	// Attrs maps an hl-attribute name ("happy", "dark", ...) to its raw
	// threshold spec: "y" (>= attrmix_yes), "n" (<= attrmix_no), or a
	// literal "0".."100" percentage taken as a minimum.
	Attrs map[string]string

	Genres      []string
	FilterXmas  bool
	NoRepeatArt int
	NoRepeatAlb int
	Count       int

	// AddFP, when non-empty, is a track path always included as the
	// first entry of the result if it resolves and isn't otherwise
	// excluded by the ignore flag.
	AddFP string
}

// AttrMix builds a playlist purely from catalog scalar constraints (no
// similarity query). Requested genres are part of the catalog query; the
// shuffled candidates then pass an ignore/christmas filter, title dedup,
// and artist/album spacing that rejects a repeat within the last
// norepart/norepalb accepted entries. It does not use the similarity
// pipeline's candidate filter table or its backfill.
func (e *Engine) AttrMix(ctx context.Context, req AttrMixRequest) ([]*model.Track, error) {
	d := e.defaults

	cons := catalog.ScalarConstraints{
		MinDuration: req.MinDuration,
		MaxDuration: req.MaxDuration,
		MinBPM:      req.MinBPM,
		MaxBPM:      req.MaxBPM,
		Genres:      req.Genres,
		HLMin:       map[string]float64{},
		HLMax:       map[string]float64{},
	}
	for name, raw := range req.Attrs {
		switch raw {
		case "y":
			cons.HLMin[name] = d.AttrMixYes
		case "n":
			cons.HLMax[name] = d.AttrMixNo
		default:
			pct, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("recommend: attrmix attribute %s: invalid threshold %q", name, raw)
			}
			cons.HLMin[name] = float64(pct) / 100.0
		}
	}

	ids, err := e.cat.SelectWhere(ctx, cons)
	if err != nil {
		return nil, fmt.Errorf("recommend: attrmix select: %w", err)
	}

	count := req.Count
	if count < 1 {
		count = 1
	}
	if count > 50 {
		count = 50
	}
	noRepeatArt := req.NoRepeatArt
	if noRepeatArt <= 0 {
		noRepeatArt = d.DefaultNoRepeatArt
	}
	noRepeatAlb := req.NoRepeatAlb
	if noRepeatAlb <= 0 {
		noRepeatAlb = d.DefaultNoRepeatAlb
	}

	var candidates []*model.Track
	for _, id := range ids {
		t, err := e.cat.GetByID(ctx, id)
		if err != nil || t == nil || t.Ignore {
			continue
		}
		if req.FilterXmas && isChristmas(t.Genres) && time.Now().Month() != time.December {
			continue
		}
		candidates = append(candidates, t)
	}

	var anchor *model.Track
	if req.AddFP != "" {
		if t, err := e.cat.GetByPath(ctx, req.AddFP); err == nil && t != nil && !t.Ignore {
			anchor = t
		}
	}

	rng := rand.New(rand.NewSource(attrMixSeed(req)))
	rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	seenTitles := map[string]bool{}
	var recentArtists, recentAlbums []string
	var out []*model.Track
	if anchor != nil {
		out = append(out, anchor)
		if anchor.Title != "" {
			seenTitles[anchor.Title] = true
		}
		recentArtists = append(recentArtists, anchor.Artist)
		if ak := anchor.AlbumKey(); ak != "" {
			recentAlbums = append(recentAlbums, ak)
		}
	}

	for _, c := range candidates {
		if len(out) >= count {
			break
		}
		if c.Title != "" && seenTitles[c.Title] {
			continue
		}
		if recentlySeen(recentArtists, c.Artist, noRepeatArt) {
			continue
		}
		if ak := c.AlbumKey(); ak != "" && recentlySeen(recentAlbums, ak, noRepeatAlb) {
			continue
		}
		out = append(out, c)
		if c.Title != "" {
			seenTitles[c.Title] = true
		}
		recentArtists = append(recentArtists, c.Artist)
		if ak := c.AlbumKey(); ak != "" {
			recentAlbums = append(recentAlbums, ak)
		}
	}
	return out, nil
}

// recentlySeen reports whether value appeared in the last window
// entries of history.
func recentlySeen(history []string, value string, window int) bool {
	if value == "" || window <= 0 {
		return false
	}
	start := len(history) - window
	if start < 0 {
		start = 0
	}
	for _, h := range history[start:] {
		if h == value {
			return true
		}
	}
	return false
}

func attrMixSeed(req AttrMixRequest) int64 {
	var h int64 = 1469598103934665603
	mix := func(s string) {
		for i := 0; i < len(s); i++ {
			h ^= int64(s[i])
			h *= 1099511628211
		}
	}
	names := make([]string, 0, len(req.Attrs))
	for name := range req.Attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		mix(name + "=" + req.Attrs[name])
	}
	for _, g := range req.Genres {
		mix(g)
	}
	mix(fmt.Sprintf("%d|%d|%d|%d|%d|%s", req.MinDuration, req.MaxDuration, req.MinBPM, req.MaxBPM, req.Count, req.AddFP))
	if h == 0 {
		h = 1
	}
	return h
}
