package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/duochat/server/chat"
	"github.com/duochat/server/config"
	"github.com/duochat/server/model"
	"github.com/duochat/server/session"
	"github.com/duochat/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type chatEnv struct {
	h   *ChatHandlers
	sm  *session.Manager
	log *chat.Log
}

func newChatEnv(t *testing.T, maxLen int) *chatEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sm := session.NewManager(c, logger)
	log := chat.NewLog(db, c, 200, logger)
	h := NewChatHandlers(log, sm, ps, config.ChatConfig{MaxMessageLen: maxLen}, logger)
	return &chatEnv{h: h, sm: sm, log: log}
}

func TestHandleMessage_PersistsAndBroadcasts(t *testing.T) {
	env := newChatEnv(t, 0)
	alice := newBareSession("alice")
	bob := newBareSession("bob")
	env.sm.Register(alice)
	env.sm.Register(bob)

	raw := json.RawMessage(`{"sender":"alice","receiver":"bob","content":"hi"}`)
	require.NoError(t, env.h.HandleMessage(context.Background(), alice, raw))

	// Persisted.
	msgs, err := env.log.History(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)

	// Every connection gets the packet, the sender included.
	for _, s := range []*session.Session{alice, bob} {
		select {
		case data := <-s.SendChan:
			var pkt session.Packet
			require.NoError(t, json.Unmarshal(data, &pkt))
			assert.Equal(t, "message", pkt.Type)

			var payload map[string]interface{}
			require.NoError(t, json.Unmarshal(pkt.Payload, &payload))
			assert.Equal(t, "hi", payload["content"])
		default:
			t.Fatalf("session %s did not receive the broadcast", s.Username)
		}
	}
}

func TestHandleMessage_PublishesPersistedRecord(t *testing.T) {
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	sm := session.NewManager(c, logger)
	log := chat.NewLog(db, c, 200, logger)
	h := NewChatHandlers(log, sm, ps, config.ChatConfig{}, logger)

	ch, cancel, err := ps.Subscribe(context.Background(), EventsChannel)
	require.NoError(t, err)
	defer cancel()

	raw := json.RawMessage(`{"sender":"alice","receiver":"bob","content":"hi"}`)
	require.NoError(t, h.HandleMessage(context.Background(), newBareSession("alice"), raw))

	select {
	case msg := <-ch:
		var stored model.Message
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &stored))
		assert.Equal(t, "alice", stored.Sender)
		assert.NotZero(t, stored.ID, "published record carries the persisted ID")
	case <-time.After(time.Second):
		t.Fatal("no chat event published")
	}
}

func TestHandleMessage_TooLong(t *testing.T) {
	env := newChatEnv(t, 5)
	s := newBareSession("alice")
	env.sm.Register(s)

	raw := json.RawMessage(`{"sender":"alice","receiver":"bob","content":"toolongmessage"}`)
	err := env.h.HandleMessage(context.Background(), s, raw)
	require.Error(t, err)

	msgs, _ := env.log.History(context.Background(), "alice", "bob")
	assert.Empty(t, msgs, "rejected message must not be persisted")
}

func TestHandleMessage_MissingParticipants(t *testing.T) {
	env := newChatEnv(t, 0)
	s := newBareSession("alice")

	raw := json.RawMessage(`{"sender":"","receiver":"bob","content":"x"}`)
	err := env.h.HandleMessage(context.Background(), s, raw)
	assert.ErrorIs(t, err, chat.ErrInvalidParticipants)
}

func TestHandleMessage_MalformedPayload(t *testing.T) {
	env := newChatEnv(t, 0)
	s := newBareSession("alice")

	err := env.h.HandleMessage(context.Background(), s, json.RawMessage(`"not an object"`))
	assert.Error(t, err)
}

func TestHandlePing_Pongs(t *testing.T) {
	env := newChatEnv(t, 0)
	s := newBareSession("alice")

	require.NoError(t, env.h.HandlePing(context.Background(), s, json.RawMessage(`{"client_ts":123}`)))

	select {
	case data := <-s.SendChan:
		var pkt session.Packet
		require.NoError(t, json.Unmarshal(data, &pkt))
		assert.Equal(t, "pong", pkt.Type)

		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(pkt.Payload, &payload))
		assert.Equal(t, float64(123), payload["client_ts"])
	default:
		t.Fatal("no pong sent")
	}
}
