package handlers

import (
	"net/http"

	"unmute/middleware"
	"unmute/services/session"
	"unmute/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// openSession resolves the caller's live session, opening it on first access.
func openSession(c *gin.Context, manager *session.Manager, logger *zap.Logger) (*session.Session, bool) {
	userID := middleware.UserID(c)
	if userID == "" {
		utils.JSONError(c, logger, http.StatusUnauthorized, "Not authenticated", "")
		return nil, false
	}
	sess, err := manager.Open(c.Request.Context(), userID)
	if err != nil {
		logger.Error("failed to open session", zap.String("userID", userID), zap.Error(err))
		utils.JSONError(c, logger, http.StatusServiceUnavailable, "Unable to load your conversation", err.Error())
		return nil, false
	}
	return sess, true
}
