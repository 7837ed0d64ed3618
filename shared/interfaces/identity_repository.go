package interfaces

import (
	"context"
	"time"

	"storyroom-server/shared/models"
)

// IdentityRepository stores handshake tokens and the two binding indexes
// (by connection, by user).
type IdentityRepository interface {
	// SaveHandshakeToken stores the token until ttl elapses.
	SaveHandshakeToken(ctx context.Context, token models.HandshakeToken, ttl time.Duration) error

	// ConsumeHandshakeToken atomically reads and deletes a token.
	// Returns models.ErrNotFound if the token is unknown or already consumed.
	ConsumeHandshakeToken(ctx context.Context, token string) (*models.HandshakeToken, error)

	// SaveBinding writes the forward and reverse bindings atomically.
	SaveBinding(ctx context.Context, binding models.Binding) error

	// GetByConnection returns models.ErrNotFound if the connection is unbound.
	GetByConnection(ctx context.Context, connectionID string) (*models.Binding, error)

	// GetByUser returns models.ErrNotFound if the user has no live connection.
	GetByUser(ctx context.Context, userID string) (*models.Binding, error)

	// DeleteBinding removes the forward binding of connectionID and the reverse
	// binding of its user only if that still points at connectionID.
	DeleteBinding(ctx context.Context, connectionID string) (*models.Binding, error)

	// SetBindingSession records the session played from connectionID on both
	// indexes, the reverse one only if it still points at connectionID.
	SetBindingSession(ctx context.Context, connectionID, sessionID string) error

	// ListBindings returns every live reverse binding.
	ListBindings(ctx context.Context) ([]models.Binding, error)
}
