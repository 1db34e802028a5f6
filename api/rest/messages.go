package rest

import (
	"net/http"

	"github.com/duochat/server/chat"
	mw "github.com/duochat/server/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MessagesHandler serves conversation history.
type MessagesHandler struct {
	log    *chat.Log
	logger *zap.Logger
}

// NewMessagesHandler creates a new MessagesHandler.
func NewMessagesHandler(log *chat.Log, logger *zap.Logger) *MessagesHandler {
	return &MessagesHandler{log: log, logger: logger}
}

// History handles GET /api/messages/:friend.
// Returns every message between the caller and :friend, ascending by
// timestamp, in one shot.
func (h *MessagesHandler) History(c *gin.Context) {
	username := mw.GetUsername(c)
	friend := c.Param("friend")

	msgs, err := h.log.History(c.Request.Context(), username, friend)
	if err != nil {
		h.logger.Error("history fetch failed",
			zap.String("username", username), zap.String("friend", friend), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}
