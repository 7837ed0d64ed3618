package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"storyroom-server/internal/narrative"
	"storyroom-server/shared/database/memstore"
	"storyroom-server/shared/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const partyStory = `{
  "tags": ["title: La fête", "roles: dad=Papa; dog=Chien", "gamemode: each-player-have-role"],
  "variables": {"NB_PLAYERS": 0, "REAL_NAMES": ""},
  "knots": {
    "start": {
      "lines": [{"text": "Bienvenue {REAL_NAMES}, vous êtes {NB_PLAYERS}.", "tags": ["achievement:welcome"]}],
      "choices": [{"text": "Danser", "goto": "dance"}, {"text": "Partir", "goto": "end"}]
    },
    "dance": {
      "lines": [{"text": "Vous dansez."}],
      "choices": [{"text": "Encore", "goto": "dance"}, {"text": "Stop", "goto": "end"}]
    },
    "end": {"lines": [{"text": "Fin.", "tags": ["achievement:finish"]}]}
  }
}`

const soloStory = `{
  "tags": ["title: Seuls", "gamemode: no-roles"],
  "variables": {"NB_PLAYERS": 0, "REAL_NAMES": ""},
  "knots": {
    "start": {
      "lines": [{"text": "{REAL_NAMES} partent."}],
      "choices": [{"text": "Avancer", "goto": "end"}]
    },
    "end": {"lines": [{"text": "Fin."}]}
  }
}`

type sentEvent struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// recordingPush is a PushChannel that keeps every payload per connection.
type recordingPush struct {
	mu     sync.Mutex
	sent   map[string][]sentEvent
	dead   map[string]bool
	closed []string
}

func newRecordingPush() *recordingPush {
	return &recordingPush{sent: map[string][]sentEvent{}, dead: map[string]bool{}}
}

func (p *recordingPush) SendToConnection(_ context.Context, connectionID string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dead[connectionID] {
		return models.ErrConnectionGone
	}
	var ev sentEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	p.sent[connectionID] = append(p.sent[connectionID], ev)
	return nil
}

func (p *recordingPush) CloseConnection(connectionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = append(p.closed, connectionID)
}

func (p *recordingPush) kill(connectionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dead[connectionID] = true
}

func (p *recordingPush) actions(connectionID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []string{}
	for _, ev := range p.sent[connectionID] {
		out = append(out, ev.Action)
	}
	return out
}

// last decodes the data of the latest event with action sent to connectionID.
func (p *recordingPush) last(t *testing.T, connectionID, action string, into interface{}) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	events := p.sent[connectionID]
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Action == action {
			require.NoError(t, json.Unmarshal(events[i].Data, into))
			return
		}
	}
	t.Fatalf("no %q event sent to %s, got %v", action, connectionID, events)
}

func (p *recordingPush) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = map[string][]sentEvent{}
}

type mapSource map[string]string

func (m mapSource) Load(_ context.Context, storyID string) ([]byte, error) {
	src, ok := m[storyID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return []byte(src), nil
}

// mockPublisher records push notifications.
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishPushNotification(ctx context.Context, payload models.PushNotificationPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

// hookedSessions lets a test interleave writes or fail expiry.
type hookedSessions struct {
	*memstore.SessionStore
	mu           sync.Mutex
	beforeUpdate func(*models.Session)
	expireErr    error
}

// Update runs the pending beforeUpdate hook once, then writes.
func (h *hookedSessions) Update(ctx context.Context, session *models.Session) error {
	h.mu.Lock()
	hook := h.beforeUpdate
	h.beforeUpdate = nil
	h.mu.Unlock()
	if hook != nil {
		hook(session)
	}
	return h.SessionStore.Update(ctx, session)
}

func (h *hookedSessions) Expire(ctx context.Context, sessionID string, after time.Duration) error {
	h.mu.Lock()
	err := h.expireErr
	h.mu.Unlock()
	if err != nil {
		return err
	}
	return h.SessionStore.Expire(ctx, sessionID, after)
}

func (h *hookedSessions) onNextUpdate(fn func(*models.Session)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.beforeUpdate = fn
}

func (h *hookedSessions) failExpire(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.expireErr = err
}

type fixture struct {
	push      *recordingPush
	identRepo *memstore.IdentityStore
	roomRepo  *memstore.RoomStore
	sessRepo  *memstore.SessionStore
	sessHooks *hookedSessions
	records   *memstore.UserSessionStore
	catalog   *memstore.Catalog

	identities *IdentityRegistry
	fanout     *Fanout
	sessions   *SessionStore
	bridge     *NarrativeBridge
	progress   *Progress
	rooms      *RoomManager
	gameplay   *Gameplay
	reconnect  *ReconnectHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	f := &fixture{
		push:      newRecordingPush(),
		identRepo: memstore.NewIdentityStore(),
		roomRepo:  memstore.NewRoomStore(),
		sessRepo:  memstore.NewSessionStore(),
		records:   memstore.NewUserSessionStore(),
		catalog:   memstore.NewCatalog(),
	}
	f.sessHooks = &hookedSessions{SessionStore: f.sessRepo}
	f.catalog.AddStory(models.StoryInfo{ID: "party", Title: "La fête"})
	f.catalog.AddStory(models.StoryInfo{ID: "solo", Title: "Seuls"})
	f.catalog.AddAchievement(models.Achievement{ID: "welcome", StoryID: "party", Title: "Bienvenue"})
	f.catalog.AddAchievement(models.Achievement{ID: "finish", StoryID: "party", Title: "Jusqu'au bout"})

	source := mapSource{"party": partyStory, "solo": soloStory}
	f.identities = NewIdentityRegistry(f.identRepo, 5*time.Minute, logger)
	f.fanout = NewFanout(f.push, f.identRepo, logger)
	f.sessions = NewSessionStore(f.sessHooks, f.identities, time.Hour, logger)
	f.bridge = NewNarrativeBridge(narrative.NewStoryScript(), source, f.catalog, f.fanout, nil, logger)
	f.progress = NewProgress(f.records, f.catalog, f.identities, logger)
	f.rooms = NewRoomManager(f.roomRepo, f.identities, f.sessions, f.fanout, 0, logger)
	f.gameplay = NewGameplay(f.sessions, f.catalog, f.bridge, f.progress, f.fanout, logger)
	f.reconnect = NewReconnectHandler(f.sessions, f.identities, f.progress, f.fanout, logger)
	return f
}

// connect binds conn to the user through a fresh handshake token.
func (f *fixture) connect(t *testing.T, conn, userID, username string) {
	t.Helper()
	ctx := context.Background()
	token, err := f.identities.IssueHandshakeToken(ctx, models.Identity{UserID: userID, Username: username})
	require.NoError(t, err)
	_, err = f.identities.Bind(ctx, conn, token.Token)
	require.NoError(t, err)
}

// startSession creates a public room for the first user, joins the others and
// starts it. users are (conn, userID) pairs.
func (f *fixture) startSession(t *testing.T, users ...[2]string) *models.Session {
	t.Helper()
	ctx := context.Background()
	for _, u := range users {
		f.connect(t, u[0], u[1], "name-"+u[1])
	}
	host := users[0]
	_, err := f.rooms.Create(ctx, host[1], true, "Game")
	require.NoError(t, err)
	for _, u := range users[1:] {
		require.NoError(t, f.rooms.RespondJoin(ctx, host[0], host[1], u[1], true))
	}
	session, err := f.rooms.Start(ctx, host[0], host[1])
	require.NoError(t, err)
	f.push.reset()
	return session
}

func (f *fixture) session(t *testing.T, id string) *models.Session {
	t.Helper()
	s, err := f.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	return s
}
