package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/duochat/server/api/ws"
	"github.com/duochat/server/cache"
	"github.com/duochat/server/chat"
	"github.com/duochat/server/config"
	mw "github.com/duochat/server/middleware"
	"github.com/duochat/server/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const backfillCount = 50

// Handler streams chat message events to authenticated clients over
// server-sent events. Delivery mirrors the WebSocket fanout: every
// subscriber sees every message.
type Handler struct {
	db     *gorm.DB
	log    *chat.Log
	pubsub cache.PubSub
	sec    config.SecurityConfig
	logger *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(db *gorm.DB, log *chat.Log, pubsub cache.PubSub, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{db: db, log: log, pubsub: pubsub, sec: sec, logger: logger}
}

// ServeEvents handles GET /events?token=<jwt>.
// Backfills the most recent cached messages, then relays live events from
// the chat pub/sub channel until the client goes away.
func (h *Handler) ServeEvents(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}

	claims, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}
	var acc model.Account
	if err := h.db.Where("username = ?", claims.Username).First(&acc).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}

	// Set SSE headers.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, ws.EventsChannel)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	fmt.Fprintf(c.Writer, "event: connected\ndata: {}\n\n")
	c.Writer.Flush()

	// Backfill before relaying live events.
	if recent, err := h.log.Recent(c.Request.Context(), backfillCount); err == nil {
		for _, m := range recent {
			if raw, err := json.Marshal(m); err == nil {
				fmt.Fprintf(c.Writer, "event: message\ndata: %s\n\n", raw)
			}
		}
		c.Writer.Flush()
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: message\ndata: %s\n\n", msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}
