package handlers

import (
	"net/http"

	"unmute/services/health"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	State string `json:"status"`
	health.Status
}

// HealthHandler reports the document store's reachability.
func HealthHandler(monitor *health.Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := monitor.Status()
		if !st.Online {
			c.JSON(http.StatusServiceUnavailable, healthResponse{State: "degraded", Status: st})
			return
		}
		c.JSON(http.StatusOK, healthResponse{State: "ok", Status: st})
	}
}
