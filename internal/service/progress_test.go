package service

import (
	"context"
	"testing"

	"storyroom-server/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgress_SessionsAndLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := runParty(t, f)

	list, err := f.progress.Sessions(ctx, "A")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, s.ID, list[0].SessionID)
	assert.Equal(t, "Game", list[0].SessionName)

	require.NoError(t, f.progress.LeaveSession(ctx, "A", s.ID))
	assert.ErrorIs(t, f.progress.LeaveSession(ctx, "A", s.ID), models.ErrNotFound)

	achievements, err := f.progress.Achievements(ctx, "B")
	require.NoError(t, err)
	require.Len(t, achievements, 1)
	assert.Equal(t, "welcome", achievements[0].AchievementID)
}

func TestProgress_OnlinePlayers(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "c2", "u2", "zoe")
	f.connect(t, "c1", "u1", "adam")

	players, err := f.progress.OnlinePlayers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Identity{{UserID: "u1", Username: "adam"}, {UserID: "u2", Username: "zoe"}}, players)
}
