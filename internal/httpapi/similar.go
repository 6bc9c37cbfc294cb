package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stojg/musim/internal/recommend"
)

// stripSeedPrefix removes an optional file:// or tmp:// prefix from an
// incoming seed/previous path, per §6's track-encoding note.
func stripSeedPrefix(path string) string {
	for _, prefix := range []string{"file://", "tmp://"} {
		if strings.HasPrefix(path, prefix) {
			return strings.TrimPrefix(path, prefix)
		}
	}
	return path
}

func stripSeedPrefixes(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = stripSeedPrefix(p)
	}
	return out
}

func (s *Server) handleSimilar(c *gin.Context) {
	p := newParams(c)

	seeds := p.strings("track")
	if len(seeds) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required param: track"})
		return
	}

	req := recommend.Request{
		Seeds:         stripSeedPrefixes(seeds),
		Previous:      stripSeedPrefixes(p.strings("previous")),
		Count:         p.int("count", 5),
		FilterGenre:   p.bool01("filtergenre", false),
		Shuffle:       p.bool01("shuffle", true),
		MaxSim:        p.float("maxsim", 75) / 100.0,
		MinDuration:   p.int("min", 0),
		MaxDuration:   p.int("max", 0),
		NoRepeatArt:   p.int("norepart", 0),
		NoRepeatAlb:   p.int("norepalb", 0),
		FilterXmas:    p.bool01("filterxmas", false),
		NoGenreAdj:    p.float("nogenrematchadj", 15) / 100.0,
		GenreGroupAdj: p.float("genregroupadj", 7) / 100.0,
		MaxBPMDiff:    p.int("maxbpmdiff", s.defaultMaxBPMDiff()),
		FilterKey:     p.bool01("filterkey", s.defaultFilterKey()),
		FilterAttrib:  p.bool01("filterattrib", s.defaultFilterAttrib()),
		GenreGroups:   orDefaultGroups(p.groups("genregroups"), s.cfg.Genres),
		IgnoreGenre:   s.cfg.IgnoreGenre,
	}

	tracks, err := s.engine.Recommend(c.Request.Context(), req)
	if err != nil {
		s.log.WithError(err).Error("similar")
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	opts := recommend.EncodeOptions{MPath: p.string("mpath", s.cfg.Paths.LMS)}
	paths := make([]string, len(tracks))
	for i, t := range tracks {
		paths[i] = recommend.EncodePath(t.Path, opts)
	}
	renderPaths(c, p.string("format", ""), paths)
}

func orDefaultGroups(requested, cfgDefault [][]string) [][]string {
	if len(requested) > 0 {
		return requested
	}
	return cfgDefault
}

func (s *Server) defaultFilterKey() bool {
	return s.cfg.Musly.FilterKey || s.cfg.Essentia.FilterKey || s.cfg.Bliss.FilterKey
}

func (s *Server) defaultFilterAttrib() bool {
	return s.cfg.Musly.FilterAttrib || s.cfg.Essentia.FilterAttrib || s.cfg.Bliss.FilterAttrib
}

// defaultMaxBPMDiff returns the first positive bpm setting in the order
// musly -> bliss -> essentia, whichever similarity algorithm is active.
func (s *Server) defaultMaxBPMDiff() int {
	switch {
	case s.cfg.Musly.BPM > 0:
		return s.cfg.Musly.BPM
	case s.cfg.Bliss.BPM > 0:
		return s.cfg.Bliss.BPM
	case s.cfg.Essentia.BPM > 0:
		return s.cfg.Essentia.BPM
	default:
		return 0
	}
}

func (s *Server) handleDump(c *gin.Context) {
	p := newParams(c)

	seeds := p.strings("track")
	if len(seeds) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required param: track"})
		return
	}

	req := recommend.DumpRequest{
		Seed:         stripSeedPrefix(seeds[0]),
		Raw:          p.bool01("raw", false),
		FilterArtist: p.bool01("filterartist", false),
		FilterAttrib: p.bool01("filterattrib", s.defaultFilterAttrib()),
		Count:        p.int("count", 5),
		MaxSim:       p.float("maxsim", 75) / 100.0,
		GenreGroups:  orDefaultGroups(p.groups("genregroups"), s.cfg.Genres),
	}

	entries, err := s.engine.Dump(c.Request.Context(), req)
	if err != nil {
		s.log.WithError(err).Error("dump")
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	opts := recommend.EncodeOptions{MPath: p.string("mpath", s.cfg.Paths.LMS)}
	if p.string("format", "") == "text" {
		lines := make([]string, len(entries))
		for i, e := range entries {
			lines[i] = recommend.EncodePath(e.Path, opts) + "\t" + strconv.FormatFloat(e.Sim, 'f', 4, 64)
		}
		c.String(http.StatusOK, "%s", joinLines(lines))
		return
	}
	type dumpJSON struct {
		File string  `json:"file"`
		Sim  float64 `json:"sim"`
	}
	out := make([]dumpJSON, len(entries))
	for i, e := range entries {
		out[i] = dumpJSON{File: recommend.EncodePath(e.Path, opts), Sim: e.Sim}
	}
	c.JSON(http.StatusOK, out)
}
