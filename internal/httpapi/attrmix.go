package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stojg/musim/internal/recommend"
)

func (s *Server) handleAttrMix(c *gin.Context) {
	p := newParams(c)

	attrs := map[string]string{}
	for _, name := range hlAttributeNames {
		if v := p.string(name, ""); v != "" {
			attrs[name] = v
		}
	}

	req := recommend.AttrMixRequest{
		MinDuration: p.int("minduration", 0),
		MaxDuration: p.int("maxduration", 0),
		MinBPM:      p.int("minbpm", 0),
		MaxBPM:      p.int("maxbpm", 0),
		Attrs:       attrs,
		Genres:      p.strings("genre"),
		FilterXmas:  p.bool01("filterxmas", false),
		NoRepeatArt: p.int("norepart", 0),
		NoRepeatAlb: p.int("norepalb", 0),
		Count:       p.int("count", 5),
		AddFP:       stripSeedPrefix(p.string("addfp", "")),
	}

	tracks, err := s.engine.AttrMix(c.Request.Context(), req)
	if err != nil {
		s.log.WithError(err).Error("attrmix")
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
