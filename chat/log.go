package chat

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/duochat/server/cache"
	"github.com/duochat/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrInvalidParticipants means the sender or receiver name was empty.
var ErrInvalidParticipants = errors.New("chat: sender and receiver are required")

const recentKey = "chat:recent"

// Log is the append-only message store. It performs no relationship or
// identity checks; authorization to message lives at the gateway.
type Log struct {
	db      *gorm.DB
	cache   cache.Cache
	keepN   int64
	logger  *zap.Logger
}

// NewLog creates a message Log. keepN bounds the cached recent-message
// list used for stream backfill; the database itself keeps everything.
func NewLog(db *gorm.DB, c cache.Cache, keepN int, logger *zap.Logger) *Log {
	if keepN <= 0 {
		keepN = 200
	}
	return &Log{db: db, cache: c, keepN: int64(keepN), logger: logger}
}

// Append persists one message with a server-assigned timestamp and returns
// it. The recent-message cache list is best-effort; a cache failure never
// fails the append.
func (l *Log) Append(ctx context.Context, sender, receiver, content string) (*model.Message, error) {
	if sender == "" || receiver == "" {
		return nil, ErrInvalidParticipants
	}
	msg := &model.Message{Sender: sender, Receiver: receiver, Content: content}
	if err := l.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(msg); err == nil {
		if err := l.cache.LPush(ctx, recentKey, string(raw)); err != nil {
			l.logger.Warn("recent cache push failed", zap.Error(err))
		}
		_ = l.cache.LTrim(ctx, recentKey, 0, l.keepN-1)
	}
	return msg, nil
}

// History returns every message between the unordered pair {a, b} in send
// order. Fetched in one shot; there is no pagination cursor.
func (l *Log) History(ctx context.Context, a, b string) ([]model.Message, error) {
	var msgs []model.Message
	err := l.db.WithContext(ctx).
		Where("(sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?)", a, b, b, a).
		Order("created_at, id").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// Recent returns up to n cached recent messages, oldest first.
func (l *Log) Recent(ctx context.Context, n int64) ([]model.Message, error) {
	raws, err := l.cache.LRange(ctx, recentKey, 0, n-1)
	if err != nil {
		return nil, err
	}
	msgs := make([]model.Message, 0, len(raws))
	// The list is newest-first; walk backwards to restore send order.
	for i := len(raws) - 1; i >= 0; i-- {
		var m model.Message
		if err := json.Unmarshal([]byte(raws[i]), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
