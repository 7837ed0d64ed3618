package service

import (
	"context"
	"math"
	"testing"

	"storyroom-server/shared/constants"
	"storyroom-server/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanout_Send(t *testing.T) {
	f := newFixture(t)
	f.push.kill("gone")

	d := f.fanout.Send(context.Background(), []string{"c1", "gone", "", "c2"}, models.NewEvent("ping", nil))
	assert.ElementsMatch(t, []string{"c1", "c2"}, d.Delivered)
	assert.ElementsMatch(t, []string{"gone", ""}, d.Undelivered)
	assert.Equal(t, []string{"ping"}, f.push.actions("c1"))
	assert.Equal(t, []string{"ping"}, f.push.actions("c2"))
}

func TestFanout_SendUnencodablePayload(t *testing.T) {
	f := newFixture(t)
	d := f.fanout.Send(context.Background(), []string{"c1"}, math.Inf(1))
	assert.Empty(t, d.Delivered)
	assert.Equal(t, []string{"c1"}, d.Undelivered)
}

func TestFanout_SendToSession(t *testing.T) {
	f := newFixture(t)
	session := &models.Session{
		ID: "s1",
		Players: []models.PlayerSlot{
			{ConnectionID: "c1", UserID: "u1"},
			{ConnectionID: "c2", UserID: "u2"},
			{UserID: "u3"},
		},
	}

	d := f.fanout.SendToSession(context.Background(), session, models.NewEvent("hello", nil), "c1")
	assert.Equal(t, []string{"c2"}, d.Delivered)
	assert.Equal(t, []string{"u3"}, d.Undelivered)
	assert.Empty(t, f.push.actions("c1"))
}

func TestFanout_SendToAllAndUsers(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c1", "u1", "alice")
	f.connect(t, "c2", "u2", "bob")
	ctx := context.Background()

	d := f.fanout.SendToAll(ctx, models.NewEvent(constants.WSEventUpdateGameRooms, nil))
	assert.ElementsMatch(t, []string{"c1", "c2"}, d.Delivered)

	d = f.fanout.SendToUsers(ctx, []string{"u2", "offline"}, models.NewEvent("x", nil))
	assert.Equal(t, []string{"c2"}, d.Delivered)
	assert.Equal(t, []string{"offline"}, d.Undelivered)
}

func TestFanout_SendOne(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.fanout.SendOne(context.Background(), "c1", models.NewEvent("x", nil)))
	assert.ErrorIs(t, f.fanout.SendOne(context.Background(), "", models.NewEvent("x", nil)), models.ErrConnectionGone)
}
