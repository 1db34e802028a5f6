package rest

import (
	"net/http"
	"strings"
	"time"

	mw "github.com/duochat/server/middleware"
	"github.com/duochat/server/model"
	"github.com/duochat/server/session"
	"github.com/duochat/server/social"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UsersHandler handles profile and search endpoints.
type UsersHandler struct {
	db     *gorm.DB
	graph  *social.Graph
	sm     *session.Manager
	logger *zap.Logger
}

// NewUsersHandler creates a new UsersHandler.
func NewUsersHandler(db *gorm.DB, graph *social.Graph, sm *session.Manager, logger *zap.Logger) *UsersHandler {
	return &UsersHandler{db: db, graph: graph, sm: sm, logger: logger}
}

type friendInfo struct {
	Username string     `json:"username"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// Me handles GET /api/users/me.
func (h *UsersHandler) Me(c *gin.Context) {
	username := mw.GetUsername(c)

	friends, pending, err := h.graph.Snapshot(c.Request.Context(), username)
	if err != nil {
		h.logger.Error("snapshot failed", zap.String("username", username), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	infos := make([]friendInfo, len(friends))
	for i, f := range friends {
		info := friendInfo{Username: f, Online: h.sm.IsOnline(f)}
		if !info.Online {
			if ls := h.sm.LastSeen(c.Request.Context(), f); !ls.IsZero() {
				info.LastSeen = &ls
			}
		}
		infos[i] = info
	}

	c.JSON(http.StatusOK, gin.H{
		"username":       username,
		"friends":        infos,
		"friendRequests": pending,
	})
}

// Search handles GET /api/users/search?query=.
// Case-insensitive substring match over usernames.
func (h *UsersHandler) Search(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Query parameter required"})
		return
	}

	var names []string
	err := h.db.Model(&model.Account{}).
		Where("LOWER(username) LIKE ?", "%"+strings.ToLower(query)+"%").
		Order("username").
		Limit(50).
		Pluck("username", &names).Error
	if err != nil {
		h.logger.Error("search failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
		return
	}

	c.JSON(http.StatusOK, names)
}
