package handler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"storyroom-server/internal/narrative"
	"storyroom-server/internal/service"
	"storyroom-server/shared/database/memstore"
	"storyroom-server/shared/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type wireEvent struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type fixture struct {
	manager    *ConnectionManager
	identities *service.IdentityRegistry
	rooms      *service.RoomManager
	progress   *service.Progress
	reconnect  *service.ReconnectHandler
	records    *memstore.UserSessionStore
	router     *EventRouter
	clients    map[string]*Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	idStore := memstore.NewIdentityStore()
	catalog := memstore.NewCatalog()
	records := memstore.NewUserSessionStore()

	manager := NewConnectionManager(zerolog.Nop())
	identities := service.NewIdentityRegistry(idStore, time.Minute, logger)
	sessions := service.NewSessionStore(memstore.NewSessionStore(), identities, time.Hour, logger)
	fanout := service.NewFanout(manager, idStore, logger)
	bridge := service.NewNarrativeBridge(narrative.NewStoryScript(), narrative.NewFSSource(t.TempDir()), catalog, fanout, nil, logger)
	progress := service.NewProgress(records, catalog, identities, logger)
	rooms := service.NewRoomManager(memstore.NewRoomStore(), identities, sessions, fanout, 0, logger)
	gameplay := service.NewGameplay(sessions, catalog, bridge, progress, fanout, logger)
	reconnect := service.NewReconnectHandler(sessions, identities, progress, fanout, logger)

	return &fixture{
		manager:    manager,
		identities: identities,
		rooms:      rooms,
		progress:   progress,
		reconnect:  reconnect,
		records:    records,
		router:     NewEventRouter(identities, rooms, gameplay, reconnect, fanout, logger),
		clients:    map[string]*Client{},
	}
}

// connect binds conn to the user and registers a socketless client for it.
func (f *fixture) connect(t *testing.T, conn, userID, username string) {
	t.Helper()
	ctx := context.Background()
	token, err := f.identities.IssueHandshakeToken(ctx, models.Identity{UserID: userID, Username: username})
	require.NoError(t, err)
	_, err = f.identities.Bind(ctx, conn, token.Token)
	require.NoError(t, err)
	c := newClient(conn, userID, nil)
	f.manager.RegisterClient(c)
	f.clients[conn] = c
}

func (f *fixture) send(t *testing.T, conn, action string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{"action": action, "data": data})
	require.NoError(t, err)
	f.router.Handle(context.Background(), conn, raw)
}

// drain returns the events queued for conn so far.
func (f *fixture) drain(t *testing.T, conn string) []wireEvent {
	t.Helper()
	var out []wireEvent
	for {
		select {
		case raw := <-f.clients[conn].send:
			var e wireEvent
			require.NoError(t, json.Unmarshal(raw, &e))
			out = append(out, e)
		default:
			return out
		}
	}
}

func lastError(t *testing.T, events []wireEvent) models.ErrorEvent {
	t.Helper()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Action == "error" {
			var e models.ErrorEvent
			require.NoError(t, json.Unmarshal(events[i].Data, &e))
			return e
		}
	}
	t.Fatalf("no error event in %v", events)
	return models.ErrorEvent{}
}
