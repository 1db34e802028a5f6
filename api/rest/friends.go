package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/duochat/server/audit"
	mw "github.com/duochat/server/middleware"
	"github.com/duochat/server/social"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FriendsHandler handles relationship mutation endpoints.
type FriendsHandler struct {
	graph  *social.Graph
	audit  *audit.Service
	logger *zap.Logger
}

// NewFriendsHandler creates a new FriendsHandler.
func NewFriendsHandler(graph *social.Graph, auditSvc *audit.Service, logger *zap.Logger) *FriendsHandler {
	return &FriendsHandler{graph: graph, audit: auditSvc, logger: logger}
}

type targetRequest struct {
	Username string `json:"username" binding:"required"`
}

// Request handles POST /api/friends/request.
func (h *FriendsHandler) Request(c *gin.Context) {
	actor := mw.GetUsername(c)
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Username required"})
		return
	}

	start := time.Now()
	err := h.graph.SendRequest(c.Request.Context(), actor, req.Username)
	h.logMutation(c, actor, "friend_request", req.Username, start, err)

	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "Friend request sent"})
	case errors.Is(err, social.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
	case errors.Is(err, social.ErrSelfRequest):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Cannot add self"})
	case errors.Is(err, social.ErrAlreadyRelated):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Request already sent or already friends"})
	default:
		h.logger.Error("friend request failed",
			zap.String("actor", actor), zap.String("target", req.Username), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
	}
}

// Accept handles POST /api/friends/accept.
func (h *FriendsHandler) Accept(c *gin.Context) {
	actor := mw.GetUsername(c)
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Username required"})
		return
	}

	start := time.Now()
	err := h.graph.AcceptRequest(c.Request.Context(), actor, req.Username)
	h.logMutation(c, actor, "friend_accept", req.Username, start, err)

	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "Friend request accepted"})
	case errors.Is(err, social.ErrNoSuchRequest):
		c.JSON(http.StatusBadRequest, gin.H{"message": "No friend request from this user"})
	default:
		h.logger.Error("friend accept failed",
			zap.String("actor", actor), zap.String("target", req.Username), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
	}
}

// Unfriend handles POST /api/friends/unfriend. Idempotent: unfriending a
// non-friend succeeds.
func (h *FriendsHandler) Unfriend(c *gin.Context) {
	actor := mw.GetUsername(c)
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Username required"})
		return
	}

	start := time.Now()
	err := h.graph.Unfriend(c.Request.Context(), actor, req.Username)
	h.logMutation(c, actor, "unfriend", req.Username, start, err)

	if err != nil {
		h.logger.Error("unfriend failed",
			zap.String("actor", actor), zap.String("target", req.Username), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Unfriended"})
}

// Block handles POST /api/friends/block.
func (h *FriendsHandler) Block(c *gin.Context) {
	actor := mw.GetUsername(c)
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Username required"})
		return
	}

	start := time.Now()
	err := h.graph.Block(c.Request.Context(), actor, req.Username)
	h.logMutation(c, actor, "block", req.Username, start, err)

	if err != nil {
		h.logger.Error("block failed",
			zap.String("actor", actor), zap.String("target", req.Username), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User blocked"})
}

func (h *FriendsHandler) logMutation(c *gin.Context, actor, action, target string, start time.Time, err error) {
	entry := audit.Entry{
		TraceID:    mw.GetTraceID(c),
		Actor:      actor,
		Action:     action,
		Detail:     map[string]string{"target": target},
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	h.audit.Log(entry)
}
