package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storyroom-server/shared/models"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newHTTPRouter(f *fixture) *gin.Engine {
	return newLimitedHTTPRouter(f, 100)
}

func newLimitedHTTPRouter(f *fixture, tokensPerMinute uint) *gin.Engine {
	gin.SetMode(gin.TestMode)
	verifier := func(_ context.Context, token string) (*models.Claims, error) {
		if token != "alice-token" {
			return nil, models.ErrTokenInvalid
		}
		return &models.Claims{Username: "alice", RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}}, nil
	}
	r := gin.New()
	limiter := NewSocketTokenLimiter(ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: tokensPerMinute,
	}), zap.NewNop())
	NewHTTPHandler(f.identities, f.rooms, f.progress, verifier, zap.NewNop()).RegisterRoutes(r, limiter)
	return r
}

func doRequest(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHTTPHandler_RequiresBearerToken(t *testing.T) {
	r := newHTTPRouter(newFixture(t))

	assert.Equal(t, http.StatusUnauthorized, doRequest(r, http.MethodPost, "/api/v1/socket/token", "").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(r, http.MethodPost, "/api/v1/socket/token", "other").Code)
}

func TestHTTPHandler_IssueSocketTokenThenBind(t *testing.T) {
	f := newFixture(t)
	r := newHTTPRouter(f)

	w := doRequest(r, http.MethodPost, "/api/v1/socket/token", "alice-token")
	require.Equal(t, http.StatusCreated, w.Code)
	var resp TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Token, "setup:")
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	identity, err := f.identities.Bind(context.Background(), "c1", resp.Token)
	require.NoError(t, err)
	assert.Equal(t, models.Identity{UserID: "u1", Username: "alice"}, identity)
}

func TestHTTPHandler_SocketTokenRateLimited(t *testing.T) {
	r := newLimitedHTTPRouter(newFixture(t), 2)

	assert.Equal(t, http.StatusCreated, doRequest(r, http.MethodPost, "/api/v1/socket/token", "alice-token").Code)
	assert.Equal(t, http.StatusCreated, doRequest(r, http.MethodPost, "/api/v1/socket/token", "alice-token").Code)

	w := doRequest(r, http.MethodPost, "/api/v1/socket/token", "alice-token")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "rate_limited", resp.Code)

	// Other endpoints are not throttled.
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/api/v1/players/online", "alice-token").Code)
}

func TestHTTPHandler_RoomNames(t *testing.T) {
	f := newFixture(t)
	r := newHTTPRouter(f)
	f.connect(t, "c1", "u1", "alice")
	_, err := f.rooms.Create(context.Background(), "u1", true, "Game1")
	require.NoError(t, err)

	w := doRequest(r, http.MethodGet, "/api/v1/gamerooms/u1/names", "alice-token")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []models.Identity `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []models.Identity{{UserID: "u1", Username: "alice"}}, resp.Data)

	w = doRequest(r, http.MethodGet, "/api/v1/gamerooms/nobody/names", "alice-token")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHTTPHandler_SessionsAndLeave(t *testing.T) {
	f := newFixture(t)
	r := newHTTPRouter(f)
	now := time.Now().UTC()
	require.NoError(t, f.records.Upsert(context.Background(), models.UserGameSession{
		UserID: "u1", SessionID: "s1", SessionName: "Game1", FirstJoinedAt: now, LastJoinedAt: now,
	}))

	w := doRequest(r, http.MethodGet, "/api/v1/users/me/game-sessions", "alice-token")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []models.UserGameSession `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "s1", resp.Data[0].SessionID)

	assert.Equal(t, http.StatusNoContent, doRequest(r, http.MethodDelete, "/api/v1/users/me/game-sessions/s1", "alice-token").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(r, http.MethodDelete, "/api/v1/users/me/game-sessions/s1", "alice-token").Code)

	w = doRequest(r, http.MethodGet, "/api/v1/users/me/game-sessions", "alice-token")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[]}`, w.Body.String())
}

func TestHTTPHandler_OnlinePlayersAndAchievements(t *testing.T) {
	f := newFixture(t)
	r := newHTTPRouter(f)
	f.connect(t, "c2", "u2", "bob")
	f.connect(t, "c1", "u1", "alice")

	w := doRequest(r, http.MethodGet, "/api/v1/players/online", "alice-token")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[{"userId":"u1","username":"alice"},{"userId":"u2","username":"bob"}]}`, w.Body.String())

	w = doRequest(r, http.MethodGet, "/api/v1/users/me/achievements", "alice-token")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[]}`, w.Body.String())
}
