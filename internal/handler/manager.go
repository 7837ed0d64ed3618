package handler

import (
	"context"
	"sync"

	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const sendQueueSize = 256

var _ interfaces.PushChannel = (*ConnectionManager)(nil)

// Client is one websocket connection.
type Client struct {
	ConnectionID string
	UserID       string
	Conn         *websocket.Conn
	send         chan []byte
}

func newClient(connectionID, userID string, conn *websocket.Conn) *Client {
	return &Client{
		ConnectionID: connectionID,
		UserID:       userID,
		Conn:         conn,
		send:         make(chan []byte, sendQueueSize),
	}
}

// ConnectionManager owns the connections open on this instance, keyed by
// connection id. A user may hold several connections at once.
type ConnectionManager struct {
	clients map[string]*Client
	mu      sync.RWMutex
	logger  zerolog.Logger
}

func NewConnectionManager(logger zerolog.Logger) *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[string]*Client),
		logger:  logger.With().Str("component", "ConnectionManager").Logger(),
	}
}

// RegisterClient adds a client.
func (m *ConnectionManager) RegisterClient(client *Client) {
	m.mu.Lock()
	m.clients[client.ConnectionID] = client
	m.mu.Unlock()
	activeConnections.Inc()
	m.logger.Info().Str("connectionID", client.ConnectionID).Str("userID", client.UserID).Msg("Client registered")
}

// UnregisterClient removes the client and closes its send queue, which makes
// its writePump send a close frame. Unknown ids are ignored.
func (m *ConnectionManager) UnregisterClient(connectionID string) {
	m.mu.Lock()
	client, ok := m.clients[connectionID]
	if ok {
		delete(m.clients, connectionID)
		close(client.send)
	}
	m.mu.Unlock()
	if ok {
		activeConnections.Dec()
		m.logger.Info().Str("connectionID", connectionID).Msg("Client unregistered")
	}
}

// SendToConnection queues payload for the connection. Queue sends hold the
// read lock, UnregisterClient closes the queue under the write lock.
func (m *ConnectionManager) SendToConnection(_ context.Context, connectionID string, payload []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[connectionID]
	if !ok {
		return models.ErrConnectionGone
	}
	select {
	case client.send <- payload:
		return nil
	default:
		m.logger.Warn().Str("connectionID", connectionID).Msg("Send queue full, dropping message")
		return models.ErrConnectionGone
	}
}

func (m *ConnectionManager) CloseConnection(connectionID string) {
	m.UnregisterClient(connectionID)
}

// Shutdown closes every connection.
func (m *ConnectionManager) Shutdown() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.clients))
	for id := range m.clients {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		m.UnregisterClient(id)
	}
	m.logger.Info().Int("closed", len(ids)).Msg("All connections closed")
}
