package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"storyroom-server/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityRegistry_BindAndResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	identity := models.Identity{UserID: "u1", Username: "alice"}

	token, err := f.identities.IssueHandshakeToken(ctx, identity)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token.Token, "setup:"))
	assert.WithinDuration(t, token.IssuedAt.Add(5*time.Minute), token.ExpiresAt, time.Second)

	got, err := f.identities.Bind(ctx, "c1", token.Token)
	require.NoError(t, err)
	assert.Equal(t, identity, got)

	b, err := f.identities.ResolveByConnection(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, identity, b.Identity())

	b, err = f.identities.ResolveByIdentity(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "c1", b.ConnectionID)

	_, err = f.identities.Bind(ctx, "c2", token.Token)
	assert.ErrorIs(t, err, models.ErrNotFound, "a token is single use")
}

func TestIdentityRegistry_BindFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.identities.Bind(ctx, "c1", "setup:unknown")
	assert.ErrorIs(t, err, models.ErrNotFound)

	token, err := f.identities.IssueHandshakeToken(ctx, models.Identity{UserID: "u1"})
	require.NoError(t, err)
	f.identities.now = func() time.Time { return time.Now().Add(5*time.Minute + time.Second) }
	_, err = f.identities.Bind(ctx, "c1", token.Token)
	assert.ErrorIs(t, err, models.ErrExpired)

	f.identities.now = time.Now
	token, err = f.identities.IssueHandshakeToken(ctx, models.Identity{Username: "nobody"})
	require.NoError(t, err)
	_, err = f.identities.Bind(ctx, "c1", token.Token)
	assert.ErrorIs(t, err, models.ErrInvalid)

	_, err = f.identities.ResolveByConnection(ctx, "c1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestIdentityRegistry_StaleUnbindKeepsNewConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.connect(t, "old", "u1", "alice")
	f.connect(t, "new", "u1", "alice")

	_, err := f.identities.ResolveByConnection(ctx, "old")
	require.NoError(t, err, "the previous connection keeps its forward binding")

	b, err := f.identities.Unbind(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, "u1", b.UserID)

	current, err := f.identities.ResolveByIdentity(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "new", current.ConnectionID)

	_, err = f.identities.Unbind(ctx, "new")
	require.NoError(t, err)
	_, err = f.identities.ResolveByIdentity(ctx, "u1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestIdentityRegistry_AttachSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.connect(t, "c1", "u1", "alice")

	require.NoError(t, f.identities.AttachSession(ctx, "c1", "s1"))
	b, err := f.identities.ResolveByConnection(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "s1", b.SessionID)

	assert.ErrorIs(t, f.identities.AttachSession(ctx, "missing", "s1"), models.ErrNotFound)
}
