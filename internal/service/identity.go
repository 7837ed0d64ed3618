package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const handshakeTokenPrefix = "setup:"

// expiredTokenRetention keeps a token in the store past its expiry so that a
// late handshake reports ErrExpired instead of ErrNotFound.
const expiredTokenRetention = time.Minute

// IdentityRegistry binds live connections to authenticated identities.
type IdentityRegistry struct {
	repo     interfaces.IdentityRepository
	tokenTTL time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func NewIdentityRegistry(repo interfaces.IdentityRepository, tokenTTL time.Duration, logger *zap.Logger) *IdentityRegistry {
	return &IdentityRegistry{
		repo:     repo,
		tokenTTL: tokenTTL,
		now:      time.Now,
		logger:   logger.Named("IdentityRegistry"),
	}
}

// IssueHandshakeToken mints a single-use token for identity.
func (r *IdentityRegistry) IssueHandshakeToken(ctx context.Context, identity models.Identity) (models.HandshakeToken, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return models.HandshakeToken{}, fmt.Errorf("failed to generate handshake token: %w", err)
	}
	now := r.now()
	token := models.HandshakeToken{
		Token:     handshakeTokenPrefix + id.String(),
		Identity:  identity,
		IssuedAt:  now,
		ExpiresAt: now.Add(r.tokenTTL),
	}
	if err := r.repo.SaveHandshakeToken(ctx, token, r.tokenTTL+expiredTokenRetention); err != nil {
		return models.HandshakeToken{}, fmt.Errorf("failed to store handshake token: %w", err)
	}
	r.logger.Debug("Handshake token issued", zap.String("userID", identity.UserID))
	return token, nil
}

// Bind consumes token and binds connectionID to its identity. A previous
// connection of the same user keeps its forward binding until it disconnects.
func (r *IdentityRegistry) Bind(ctx context.Context, connectionID, token string) (models.Identity, error) {
	ht, err := r.repo.ConsumeHandshakeToken(ctx, token)
	if err != nil {
		return models.Identity{}, err
	}
	now := r.now()
	if ht.Expired(now) {
		return models.Identity{}, fmt.Errorf("%w: handshake token expired at %s", models.ErrExpired, ht.ExpiresAt.Format(time.RFC3339))
	}
	if ht.Identity.UserID == "" {
		return models.Identity{}, fmt.Errorf("%w: handshake token carries no user", models.ErrInvalid)
	}
	binding := models.Binding{
		ConnectionID: connectionID,
		UserID:       ht.Identity.UserID,
		Username:     ht.Identity.Username,
		BoundAt:      now,
	}
	if err := r.repo.SaveBinding(ctx, binding); err != nil {
		return models.Identity{}, fmt.Errorf("failed to bind connection: %w", err)
	}
	r.logger.Info("Connection bound",
		zap.String("connectionID", connectionID),
		zap.String("userID", binding.UserID),
	)
	return ht.Identity, nil
}

func (r *IdentityRegistry) ResolveByConnection(ctx context.Context, connectionID string) (models.Binding, error) {
	b, err := r.repo.GetByConnection(ctx, connectionID)
	if err != nil {
		return models.Binding{}, err
	}
	return *b, nil
}

func (r *IdentityRegistry) ResolveByIdentity(ctx context.Context, userID string) (models.Binding, error) {
	b, err := r.repo.GetByUser(ctx, userID)
	if err != nil {
		return models.Binding{}, err
	}
	return *b, nil
}

// Unbind removes the connection's binding. The user's reverse binding is
// only removed if it still names connectionID.
func (r *IdentityRegistry) Unbind(ctx context.Context, connectionID string) (models.Binding, error) {
	b, err := r.repo.DeleteBinding(ctx, connectionID)
	if err != nil {
		return models.Binding{}, err
	}
	r.logger.Info("Connection unbound",
		zap.String("connectionID", connectionID),
		zap.String("userID", b.UserID),
	)
	return *b, nil
}

// AttachSession records the session played from connectionID.
func (r *IdentityRegistry) AttachSession(ctx context.Context, connectionID, sessionID string) error {
	return r.repo.SetBindingSession(ctx, connectionID, sessionID)
}

func (r *IdentityRegistry) ListBindings(ctx context.Context) ([]models.Binding, error) {
	return r.repo.ListBindings(ctx)
}

// isOffline reports whether err means the user has no live connection.
func isOffline(err error) bool { return errors.Is(err, models.ErrNotFound) }
