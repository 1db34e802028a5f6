package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/duochat/server/api/rest"
	"github.com/duochat/server/audit"
	"github.com/duochat/server/chat"
	"github.com/duochat/server/config"
	mw "github.com/duochat/server/middleware"
	"github.com/duochat/server/session"
	"github.com/duochat/server/social"
	"github.com/duochat/server/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	r  *gin.Engine
	db *gorm.DB
	sm *session.Manager
}

// newTestEnv wires the REST surface the way main.go does, minus the
// WebSocket gateway.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	sec := config.SecurityConfig{
		JWTSecret: "test-secret",
		JWTTTL:    72 * time.Hour,
	}

	auditSvc := audit.New(db, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })

	sm := session.NewManager(c, logger)
	graph := social.NewGraph(db, logger)
	log := chat.NewLog(db, c, 200, logger)

	authH := rest.NewAuthHandler(db, sec, auditSvc, logger)
	usersH := rest.NewUsersHandler(db, graph, sm, logger)
	friendsH := rest.NewFriendsHandler(graph, auditSvc, logger)
	msgsH := rest.NewMessagesHandler(log, logger)

	r := gin.New()
	r.POST("/api/auth/register", authH.Register)
	r.POST("/api/auth/login", authH.Login)

	authed := r.Group("/api", mw.Auth(sec, db))
	authed.GET("/users/me", usersH.Me)
	authed.GET("/users/search", usersH.Search)
	authed.POST("/friends/request", friendsH.Request)
	authed.POST("/friends/accept", friendsH.Accept)
	authed.POST("/friends/unfriend", friendsH.Unfriend)
	authed.POST("/friends/block", friendsH.Block)
	authed.GET("/messages/:friend", msgsH.History)

	return &testEnv{r: r, db: db, sm: sm}
}

func postJSON(r *gin.Engine, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func getPath(r *gin.Engine, path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// register creates an account and returns its token.
func register(t *testing.T, r *gin.Engine, username, password string) string {
	t.Helper()
	w := postJSON(r, "/api/auth/register", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, w.Code, "register %s: %s", username, w.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["token"].(string)
}

func message(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	msg, _ := resp["message"].(string)
	return msg
}
