package handler

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"storyroom-server/internal/service"
	"storyroom-server/shared/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum inbound message size.
	maxMessageSize = 16 * 1024
	// Bound on how long a disconnect may take to release the session slot.
	disconnectTimeout = 5 * time.Second
)

// WebSocketHandler upgrades handshaken requests and pumps their messages.
type WebSocketHandler struct {
	manager    *ConnectionManager
	identities *service.IdentityRegistry
	reconnect  *service.ReconnectHandler
	router     *EventRouter
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
}

// NewWebSocketHandler builds the handler. allowedOrigins lists accepted Origin
// headers, "*" accepts any.
func NewWebSocketHandler(
	manager *ConnectionManager,
	identities *service.IdentityRegistry,
	reconnect *service.ReconnectHandler,
	router *EventRouter,
	allowedOrigins []string,
	logger zerolog.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		manager:    manager,
		identities: identities,
		reconnect:  reconnect,
		router:     router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger.With().Str("component", "WebSocketHandler").Logger(),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}

// ServeWS binds a fresh connection id with the `setup` handshake token and
// upgrades the request.
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("setup")
	if token == "" {
		handshakesTotal.WithLabelValues("missing_token").Inc()
		h.logger.Warn().Msg("Missing 'setup' query parameter")
		http.Error(w, "Unauthorized: missing setup token", http.StatusUnauthorized)
		return
	}

	connectionID := uuid.NewString()
	identity, err := h.identities.Bind(r.Context(), connectionID, token)
	if err != nil {
		status, label := http.StatusInternalServerError, "error"
		switch {
		case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrInvalid):
			status, label = http.StatusUnauthorized, "invalid_token"
		case errors.Is(err, models.ErrExpired):
			status, label = http.StatusUnauthorized, "expired_token"
		}
		handshakesTotal.WithLabelValues(label).Inc()
		h.logger.Warn().Err(err).Msg("Handshake rejected")
		http.Error(w, "Unauthorized: "+label, status)
		return
	}
	log := h.logger.With().Str("connectionID", connectionID).Str("userID", identity.UserID).Logger()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		handshakesTotal.WithLabelValues("upgrade_failed").Inc()
		log.Error().Err(err).Msg("Failed to upgrade connection")
		if _, unbindErr := h.identities.Unbind(context.Background(), connectionID); unbindErr != nil {
			log.Warn().Err(unbindErr).Msg("Failed to release binding after upgrade failure")
		}
		return
	}
	handshakesTotal.WithLabelValues("ok").Inc()
	log.Info().Msg("WebSocket connection established")

	client := newClient(connectionID, identity.UserID, conn)
	h.manager.RegisterClient(client)

	go client.writePump(log)
	go h.readPump(client, log)
}

// readPump handles the connection's messages one at a time until it closes.
func (h *WebSocketHandler) readPump(c *Client, logger zerolog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		h.manager.UnregisterClient(c.ConnectionID)
		_ = c.Conn.Close()

		dctx, dcancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer dcancel()
		if err := h.reconnect.Disconnect(dctx, c.ConnectionID); err != nil {
			logger.Error().Err(err).Msg("Failed to handle disconnect")
		}
		logger.Info().Msg("readPump finished")
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		logger.Debug().Msg("Pong received")
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn().Err(err).Msg("WebSocket read error")
			} else {
				logger.Info().Msg("WebSocket connection closed")
			}
			return
		}
		h.router.Handle(ctx, c.ConnectionID, message)
	}
}

// writePump writes queued messages, one frame each, and keeps the peer alive
// with pings.
func (c *Client) writePump(logger zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
		logger.Debug().Msg("writePump finished")
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn().Err(err).Msg("Failed to write message")
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Warn().Err(err).Msg("Failed to send ping")
				return
			}
		}
	}
}
