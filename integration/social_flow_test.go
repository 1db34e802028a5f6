package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type meResponse struct {
	Username string `json:"username"`
	Friends  []struct {
		Username string `json:"username"`
		Online   bool   `json:"online"`
	} `json:"friends"`
	FriendRequests []string `json:"friendRequests"`
}

func (ts *TestServer) me(t *testing.T, token string) meResponse {
	t.Helper()
	resp := ts.Get(t, "/api/users/me", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me meResponse
	ReadJSON(t, resp, &me)
	return me
}

func TestSocialFlow_RequestAcceptUnfriend(t *testing.T) {
	ts := NewTestServer(t)

	aliceTok := ts.Register(t, "alice", "pass1234")
	bobTok := ts.Register(t, "bob", "pass1234")

	// Request: shows up only on bob's side, as a pending request.
	resp := ts.PostJSON(t, "/api/friends/request", map[string]string{"username": "bob"}, aliceTok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	bobMe := ts.me(t, bobTok)
	assert.Equal(t, []string{"alice"}, bobMe.FriendRequests)
	assert.Empty(t, bobMe.Friends)

	aliceMe := ts.me(t, aliceTok)
	assert.Empty(t, aliceMe.FriendRequests)
	assert.Empty(t, aliceMe.Friends)

	// Accept: both sides become friends, the request is consumed.
	resp = ts.PostJSON(t, "/api/friends/accept", map[string]string{"username": "alice"}, bobTok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	bobMe = ts.me(t, bobTok)
	require.Len(t, bobMe.Friends, 1)
	assert.Equal(t, "alice", bobMe.Friends[0].Username)
	assert.Empty(t, bobMe.FriendRequests)

	aliceMe = ts.me(t, aliceTok)
	require.Len(t, aliceMe.Friends, 1)
	assert.Equal(t, "bob", aliceMe.Friends[0].Username)

	// Unfriend by either side removes both directions.
	resp = ts.PostJSON(t, "/api/friends/unfriend", map[string]string{"username": "alice"}, bobTok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	assert.Empty(t, ts.me(t, bobTok).Friends)
	assert.Empty(t, ts.me(t, aliceTok).Friends)
}

func TestSocialFlow_BlockedUserCanStillRequest(t *testing.T) {
	ts := NewTestServer(t)

	aliceTok := ts.Register(t, "alice", "pass1234")
	bobTok := ts.Register(t, "bob", "pass1234")

	resp := ts.PostJSON(t, "/api/friends/block", map[string]string{"username": "bob"}, aliceTok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The block hides nothing from bob and does not stop a new request.
	resp = ts.PostJSON(t, "/api/friends/request", map[string]string{"username": "alice"}, bobTok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	aliceMe := ts.me(t, aliceTok)
	assert.Equal(t, []string{"bob"}, aliceMe.FriendRequests)
}

func TestSearch_FindsRegisteredUsers(t *testing.T) {
	ts := NewTestServer(t)

	aliceTok := ts.Register(t, "alice", "pass1234")
	ts.Register(t, "alfred", "pass1234")
	ts.Register(t, "bob", "pass1234")

	resp := ts.Get(t, "/api/users/search?query=al", aliceTok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var names []string
	ReadJSON(t, resp, &names)
	assert.ElementsMatch(t, []string{"alice", "alfred"}, names)
}
