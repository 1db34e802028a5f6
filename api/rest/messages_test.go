package rest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/duochat/server/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	w := getPath(env.r, "/api/messages/bob")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHistory_Empty(t *testing.T) {
	env := newTestEnv(t)
	token := register(t, env.r, "alice", "pass1234")

	w := getPath(env.r, "/api/messages/bob", "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)

	var msgs []model.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	assert.Empty(t, msgs)
}

func TestHistory_SendOrder(t *testing.T) {
	env := newTestEnv(t)
	aliceTok := register(t, env.r, "alice", "pass1234")
	bobTok := register(t, env.r, "bob", "pass1234")

	ctx := context.Background()
	for _, m := range []model.Message{
		{Sender: "alice", Receiver: "bob", Content: "hey"},
		{Sender: "bob", Receiver: "alice", Content: "hi"},
		{Sender: "alice", Receiver: "bob", Content: "how are you"},
	} {
		require.NoError(t, env.db.WithContext(ctx).Create(&m).Error)
	}

	// Both participants see the same conversation in send order.
	for _, tc := range []struct{ token, friend string }{
		{aliceTok, "bob"},
		{bobTok, "alice"},
	} {
		w := getPath(env.r, "/api/messages/"+tc.friend, "Authorization", "Bearer "+tc.token)
		require.Equal(t, http.StatusOK, w.Code)

		var msgs []model.Message
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
		require.Len(t, msgs, 3)
		assert.Equal(t, "hey", msgs[0].Content)
		assert.Equal(t, "hi", msgs[1].Content)
		assert.Equal(t, "how are you", msgs[2].Content)
	}
}

func TestHistory_OnlyThatPair(t *testing.T) {
	env := newTestEnv(t)
	aliceTok := register(t, env.r, "alice", "pass1234")

	for _, m := range []model.Message{
		{Sender: "alice", Receiver: "bob", Content: "for bob"},
		{Sender: "alice", Receiver: "carol", Content: "for carol"},
		{Sender: "bob", Receiver: "carol", Content: "not alice's"},
	} {
		require.NoError(t, env.db.Create(&m).Error)
	}

	w := getPath(env.r, "/api/messages/bob", "Authorization", "Bearer "+aliceTok)
	require.Equal(t, http.StatusOK, w.Code)

	var msgs []model.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "for bob", msgs[0].Content)
}
