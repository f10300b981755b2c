package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handlePlayers returns the current roster snapshot.
func (s *Server) handlePlayers(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Players())
}
