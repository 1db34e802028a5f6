package rest_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// friendRequest sends a friend request from the token holder to target.
func friendRequest(env *testEnv, token, target string) *httptest.ResponseRecorder {
	return postJSON(env.r, "/api/friends/request",
		map[string]string{"username": target},
		"Authorization", "Bearer "+token)
}

func TestFriendRequest_Sent(t *testing.T) {
	env := newTestEnv(t)
	aliceTok := register(t, env.r, "alice", "pass1234")
	register(t, env.r, "bob", "pass1234")

	w := friendRequest(env, aliceTok, "bob")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Friend request sent", message(t, w))
}

func TestFriendRequest_UnknownTarget(t *testing.T) {
	env := newTestEnv(t)
	aliceTok := register(t, env.r, "alice", "pass1234")

	w := friendRequest(env, aliceTok, "nobody")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", message(t, w))
}

func TestFriendRequest_Self(t *testing.T) {
	env := newTestEnv(t)
	aliceTok := register(t, env.r, "alice", "pass1234")

	w := friendRequest(env, aliceTok, "alice")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Cannot add self", message(t, w))
}

func TestFriendRequest_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	aliceTok := register(t, env.r, "alice", "pass1234")
	register(t, env.r, "bob", "pass1234")

	require.Equal(t, http.StatusOK, friendRequest(env, aliceTok, "bob").Code)

	w := friendRequest(env, aliceTok, "bob")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Request already sent or already friends", message(t, w))
}

func TestFriendAccept_MakesFriends(t *testing.T) {
	env := newTestEnv(t)
	aliceTok := register(t, env.r, "alice", "pass1234")
	bobTok := register(t, env.r, "bob", "pass1234")

	require.Equal(t, http.StatusOK, friendRequest(env, aliceTok, "bob").Code)

	w := postJSON(env.r, "/api/friends/accept",
		map[string]string{"username": "alice"},
		"Authorization", "Bearer "+bobTok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Friend request accepted", message(t, w))

	// Both profiles now list the other as a friend.
	for tok, friend := range map[string]string{aliceTok: "bob", bobTok: "alice"} {
		w := getPath(env.r, "/api/users/me", "Authorization", "Bearer "+tok)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Friends []struct {
				Username string `json:"username"`
			} `json:"friends"`
			FriendRequests []string `json:"friendRequests"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Friends, 1)
		assert.Equal(t, friend, resp.Friends[0].Username)
		assert.Empty(t, resp.FriendRequests)
	}
}

func TestFriendAccept_NoPendingRequest(t *testing.T) {
	env := newTestEnv(t)
	register(t, env.r, "alice", "pass1234")
	bobTok := register(t, env.r, "bob", "pass1234")

	w := postJSON(env.r, "/api/friends/accept",
		map[string]string{"username": "alice"},
		"Authorization", "Bearer "+bobTok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No friend request from this user", message(t, w))
}

func TestFriendAccept_WrongDirection(t *testing.T) {
	env := newTestEnv(t)
	aliceTok := register(t, env.r, "alice", "pass1234")
	register(t, env.r, "bob", "pass1234")

	require.Equal(t, http.StatusOK, friendRequest(env, aliceTok, "bob").Code)

	// The sender cannot accept their own outbound request.
	w := postJSON(env.r, "/api/friends/accept",
		map[string]string{"username": "bob"},
		"Authorization", "Bearer "+aliceTok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No friend request from this user", message(t, w))
}

func TestUnfriend_RemovesBothSides(t *testing.T) {
	env := newTestEnv(t)
	aliceTok := register(t, env.r, "alice", "pass1234")
	bobTok := register(t, env.r, "bob", "pass1234")

	require.Equal(t, http.StatusOK, friendRequest(env, aliceTok, "bob").Code)
	require.Equal(t, http.StatusOK, postJSON(env.r, "/api/friends/accept",
		map[string]string{"username": "alice"},
		"Authorization", "Bearer "+bobTok).Code)

	w := postJSON(env.r, "/api/friends/unfriend",
		map[string]string{"username": "bob"},
		"Authorization", "Bearer "+aliceTok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Unfriended", message(t, w))

	for _, tok := range []string{aliceTok, bobTok} {
		w := getPath(env.r, "/api/users/me", "Authorization", "Bearer "+tok)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Friends []interface{} `json:"friends"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Empty(t, resp.Friends)
	}
}

func TestUnfriend_NotFriendsIsOK(t *testing.T) {
	env := newTestEnv(t)
	aliceTok := register(t, env.r, "alice", "pass1234")
	register(t, env.r, "bob", "pass1234")

	w := postJSON(env.r, "/api/friends/unfriend",
		map[string]string{"username": "bob"},
		"Authorization", "Bearer "+aliceTok)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBlock_SeversAndBlocks(t *testing.T) {
	env := newTestEnv(t)
	aliceTok := register(t, env.r, "alice", "pass1234")
	bobTok := register(t, env.r, "bob", "pass1234")

	require.Equal(t, http.StatusOK, friendRequest(env, aliceTok, "bob").Code)
	require.Equal(t, http.StatusOK, postJSON(env.r, "/api/friends/accept",
		map[string]string{"username": "alice"},
		"Authorization", "Bearer "+bobTok).Code)

	w := postJSON(env.r, "/api/friends/block",
		map[string]string{"username": "bob"},
		"Authorization", "Bearer "+aliceTok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "User blocked", message(t, w))

	w = getPath(env.r, "/api/users/me", "Authorization", "Bearer "+aliceTok)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Friends []interface{} `json:"friends"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Friends)
}

func TestFriendEndpoints_RequireAuth(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/api/friends/request",
		"/api/friends/accept",
		"/api/friends/unfriend",
		"/api/friends/block",
	} {
		w := postJSON(env.r, path, map[string]string{"username": "bob"})
		assert.Equal(t, http.StatusUnauthorized, w.Code, "path %s", path)
	}
}
