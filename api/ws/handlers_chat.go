package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/duochat/server/cache"
	"github.com/duochat/server/chat"
	"github.com/duochat/server/config"
	"github.com/duochat/server/session"
	"go.uber.org/zap"
)

// EventsChannel is the pub/sub channel carrying persisted chat messages
// (consumed by the SSE stream).
const EventsChannel = "chat:events"

// ChatHandlers owns the message event path: persist, then fan out.
type ChatHandlers struct {
	log     *chat.Log
	sm      *session.Manager
	pubsub  cache.PubSub
	chatCfg config.ChatConfig
	logger  *zap.Logger
}

// NewChatHandlers creates the chat WS handlers.
func NewChatHandlers(log *chat.Log, sm *session.Manager, ps cache.PubSub, chatCfg config.ChatConfig, logger *zap.Logger) *ChatHandlers {
	return &ChatHandlers{log: log, sm: sm, pubsub: ps, chatCfg: chatCfg, logger: logger}
}

// RegisterHandlers wires the handlers into the router.
func (h *ChatHandlers) RegisterHandlers(r *Router) {
	r.On("message", h.HandleMessage)
	r.On("ping", h.HandlePing)
}

type messagePayload struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Content  string `json:"content"`
}

// HandleMessage processes a message event: persist with a server-assigned
// timestamp, then rebroadcast the payload to every live connection.
// The payload's sender field is taken as claimed; it is not checked
// against the session's authenticated username (behavior of the original
// service, kept deliberately).
func (h *ChatHandlers) HandleMessage(ctx context.Context, s *session.Session, raw json.RawMessage) error {
	var msg messagePayload
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}
	if limit := h.chatCfg.MaxMessageLen; limit > 0 && len([]rune(msg.Content)) > limit {
		return errors.New("message too long")
	}

	stored, err := h.log.Append(ctx, msg.Sender, msg.Receiver, msg.Content)
	if err != nil {
		return err
	}

	// Fan out the identical inbound payload to all connections.
	pkt, err := json.Marshal(&session.Packet{Type: "message", Payload: raw})
	if err != nil {
		return err
	}
	h.sm.BroadcastAll(pkt)

	// Publish the persisted record (with timestamp) for stream consumers.
	if storedJSON, err := json.Marshal(stored); err == nil {
		if err := h.pubsub.Publish(ctx, EventsChannel, string(storedJSON)); err != nil {
			h.logger.Warn("chat event publish failed",
				zap.String("trace_id", TraceIDFromCtx(ctx)),
				zap.Error(err))
		}
	}
	return nil
}

type pingPayload struct {
	ClientTS int64 `json:"client_ts"`
}

// HandlePing answers a client heartbeat.
func (h *ChatHandlers) HandlePing(_ context.Context, s *session.Session, raw json.RawMessage) error {
	var p pingPayload
	_ = json.Unmarshal(raw, &p)
	s.SendHeartbeatPong(p.ClientTS)
	return nil
}
