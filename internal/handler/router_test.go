package handler

import (
	"context"
	"encoding/json"
	"testing"

	"storyroom-server/shared/constants"
	"storyroom-server/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRouter_RejectsBadMessages(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "u1", "alice")

	f.router.Handle(context.Background(), "c1", []byte(`{not json`))
	e := lastError(t, f.drain(t, "c1"))
	assert.Equal(t, "invalid", e.Code)

	f.send(t, "c1", "dance", nil)
	e = lastError(t, f.drain(t, "c1"))
	assert.Equal(t, "invalid", e.Code)
	assert.Equal(t, "dance", e.RequestAction)
}

func TestEventRouter_ValidatesPayload(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "u1", "alice")

	tests := []struct {
		action string
		data   interface{}
	}{
		{constants.WSActionCreateGameRoom, map[string]interface{}{"name": "", "isPublic": true}},
		{constants.WSActionGameChoice, map[string]interface{}{"sessionId": "s1"}},
		{constants.WSActionGameChoice, map[string]interface{}{"sessionId": "s1", "choiceIndex": -1}},
		{constants.WSActionVoteStory, map[string]interface{}{"sessionId": "s1"}},
		{constants.WSActionRespondJoinRoom, "not an object"},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			f.send(t, "c1", tt.action, tt.data)
			e := lastError(t, f.drain(t, "c1"))
			assert.Equal(t, "invalid", e.Code)
			assert.Equal(t, tt.action, e.RequestAction)
		})
	}
}

func TestEventRouter_UnboundConnection(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "u1", "alice")
	_, err := f.identities.Unbind(context.Background(), "c1")
	require.NoError(t, err)

	f.send(t, "c1", constants.WSActionListGameRooms, nil)
	e := lastError(t, f.drain(t, "c1"))
	assert.Equal(t, "not_found", e.Code)
}

func TestEventRouter_CreateAndListRooms(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "u1", "alice")
	f.connect(t, "c2", "u2", "bob")

	f.send(t, "c1", constants.WSActionCreateGameRoom, models.CreateRoomRequest{Name: "Game1", Public: true})
	for _, conn := range []string{"c1", "c2"} {
		events := f.drain(t, conn)
		require.Len(t, events, 1, conn)
		assert.Equal(t, constants.WSEventUpdateGameRooms, events[0].Action)
	}

	f.send(t, "c2", constants.WSActionListGameRooms, nil)
	events := f.drain(t, "c2")
	require.Len(t, events, 1)
	assert.Equal(t, constants.WSEventGameRooms, events[0].Action)
	var list models.RoomsList
	require.NoError(t, json.Unmarshal(events[0].Data, &list))
	require.Len(t, list.Rooms, 1)
	assert.Equal(t, "u1", list.Rooms[0].HostID)
	assert.Equal(t, "Game1", list.Rooms[0].Name)
}

func TestEventRouter_ForbiddenStart(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "u1", "alice")
	f.connect(t, "c2", "u2", "bob")
	f.send(t, "c1", constants.WSActionCreateGameRoom, models.CreateRoomRequest{Name: "Game1", Public: true})
	f.drain(t, "c2")

	f.send(t, "c2", constants.WSActionStartGame, models.RoomRequest{HostID: "u1"})
	e := lastError(t, f.drain(t, "c2"))
	assert.Equal(t, "forbidden", e.Code)
	assert.Equal(t, constants.WSActionStartGame, e.RequestAction)
}

func TestEventRouter_UnknownSession(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "u1", "alice")

	f.send(t, "c1", constants.WSActionVoteStory, models.VoteStoryRequest{SessionID: "nope", StoryID: "s1"})
	e := lastError(t, f.drain(t, "c1"))
	assert.Equal(t, "not_found", e.Code)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "forbidden", errorCode(models.ErrForbidden))
	assert.Equal(t, "not_found", errorCode(models.ErrNotFound))
	assert.Equal(t, "expired", errorCode(models.ErrExpired))
	assert.Equal(t, "invalid", errorCode(models.ErrInvalid))
	assert.Equal(t, "conflict", errorCode(models.ErrConflict))
	assert.Equal(t, "internal_error", errorCode(assert.AnError))
}
