package interfaces

import "context"

// PushChannel delivers payloads to a single live connection.
type PushChannel interface {
	// SendToConnection fails with models.ErrConnectionGone when the connection is missing.
	SendToConnection(ctx context.Context, connectionID string, payload []byte) error
	CloseConnection(connectionID string)
}
