package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kongor-project/bercon/internal/util"
)

// handleHealthz reports session state, uptime, reconnect count, and
// lightweight process health.
func (s *Server) handleHealthz(c *gin.Context) {
	resp := gin.H{
		"state":           s.session.State(),
		"uptime_seconds":  time.Since(s.session.StartedAt()).Seconds(),
		"reconnect_count": s.session.ReconnectCount(),
	}

	if health, err := util.GetProcessHealth(); err == nil {
		resp["process"] = health
	}

	c.JSON(http.StatusOK, resp)
}
