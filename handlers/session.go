package handlers

import (
	"net/http"

	"unmute/middleware"
	"unmute/services/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionHandler handles sign-out.
type SessionHandler struct {
	manager *session.Manager
	logger  *zap.Logger
}

func NewSessionHandler(manager *session.Manager, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{manager: manager, logger: logger}
}

// SignOut handles DELETE /api/session.
func (h *SessionHandler) SignOut(c *gin.Context) {
	userID := middleware.UserID(c)
	if h.manager.SignOut(userID) {
		h.logger.Info("user signed out", zap.String("userID", userID))
	}
	c.Status(http.StatusNoContent)
}
