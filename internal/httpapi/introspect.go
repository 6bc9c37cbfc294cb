package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg)
}

func (s *Server) handleFeatures(c *gin.Context) {
	c.String(http.StatusOK, "%s", s.features)
}

func (s *Server) handleGenres(c *gin.Context) {
	genres, err := s.cat.AllGenresSorted(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Error("genres")
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, genres)
}
