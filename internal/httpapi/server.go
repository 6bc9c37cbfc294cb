package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stojg/musim/internal/catalog"
	"github.com/stojg/musim/internal/config"
	"github.com/stojg/musim/internal/recommend"
)

// hlAttributeNames is the fixed order of high-level mood/character
// attributes the attrmix endpoint accepts one threshold per.
var hlAttributeNames = []string{
	"danceable", "aggressive", "electronic", "acoustic", "happy",
	"party", "relaxed", "sad", "dark", "tonal", "voice",
}

// Server holds the collaborators every handler needs: the
// recommendation engine (built once at startup from the similarity
// indexes), the catalog for introspection queries, and the effective
// configuration.
type Server struct {
	engine   *recommend.Engine
	cat      *catalog.Catalog
	cfg      config.Config
	features string
	log      *logrus.Entry
}

// New constructs a Server. features is a short string naming the
// active analyzers (e.g. "musly,essentia"), computed by the caller
// from which indexes were built at startup.
func New(engine *recommend.Engine, cat *catalog.Catalog, cfg config.Config, features string, log *logrus.Entry) *Server {
	return &Server{engine: engine, cat: cat, cfg: cfg, features: features, log: log}
}

// Router builds the gin engine with every route wired per §6/§4.7.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.logMiddleware())

	r.GET("/api/similar", s.handleSimilar)
	r.POST("/api/similar", s.handleSimilar)
	r.GET("/api/dump", s.handleDump)
	r.POST("/api/dump", s.handleDump)
	r.GET("/api/attrmix", s.handleAttrMix)
	r.POST("/api/attrmix", s.handleAttrMix)

	r.GET("/api/config", s.handleConfig)
	r.GET("/api/features", s.handleFeatures)
	r.GET("/api/genres", s.handleGenres)

	return r
}

func (s *Server) logMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		}).Info("request")
	}
}

// renderPaths writes a list of paths as JSON or newline-joined text,
// per the `format` option shared by similar/dump/attrmix.
func renderPaths(c *gin.Context, format string, paths []string) {
	if format == "text" {
		c.String(http.StatusOK, "%s", joinLines(paths))
		return
	}
	c.JSON(http.StatusOK, paths)
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}
