package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"storyroom-server/shared/constants"
	"storyroom-server/shared/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWSServer(t *testing.T, f *fixture, origins []string) *httptest.Server {
	t.Helper()
	h := NewWebSocketHandler(f.manager, f.identities, f.reconnect, f.router, origins, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
}

func TestWebSocketHandler_RejectsHandshake(t *testing.T) {
	f := newFixture(t)
	srv := newWSServer(t, f, []string{"*"})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "?setup=setup:unknown"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketHandler_ServesAndReleasesBinding(t *testing.T) {
	f := newFixture(t)
	srv := newWSServer(t, f, []string{"*"})
	ctx := context.Background()

	token, err := f.identities.IssueHandshakeToken(ctx, models.Identity{UserID: "u1", Username: "alice"})
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?setup="+token.Token), nil)
	require.NoError(t, err)

	bindings, err := f.identities.ListBindings(ctx)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, "u1", bindings[0].UserID)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"action": constants.WSActionListGameRooms}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var event wireEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, constants.WSEventGameRooms, event.Action)
	assert.JSONEq(t, `{"rooms":[]}`, string(event.Data))

	// The token is single use.
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "?setup="+token.Token), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		bindings, err := f.identities.ListBindings(ctx)
		return err == nil && len(bindings) == 0
	}, 5*time.Second, 20*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://app.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
}
