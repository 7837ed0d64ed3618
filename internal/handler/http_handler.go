package handler

import (
	"net/http"
	"time"

	"storyroom-server/internal/service"
	"storyroom-server/shared/middleware"
	"storyroom-server/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenResponse is returned by the socket token endpoint.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HTTPHandler serves the REST surface next to the websocket.
type HTTPHandler struct {
	identities *service.IdentityRegistry
	rooms      *service.RoomManager
	progress   *service.Progress
	verifier   middleware.TokenVerifier
	logger     *zap.Logger
}

func NewHTTPHandler(
	identities *service.IdentityRegistry,
	rooms *service.RoomManager,
	progress *service.Progress,
	verifier middleware.TokenVerifier,
	logger *zap.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		identities: identities,
		rooms:      rooms,
		progress:   progress,
		verifier:   verifier,
		logger:     logger.Named("HTTPHandler"),
	}
}

// RegisterRoutes mounts the REST surface. tokenLimiter guards the socket
// token endpoint.
func (h *HTTPHandler) RegisterRoutes(router gin.IRouter, tokenLimiter gin.HandlerFunc) {
	api := router.Group("/api/v1")
	api.Use(middleware.GinAuthMiddleware(h.verifier, h.logger))
	{
		api.POST("/socket/token", tokenLimiter, h.issueSocketToken)
		api.GET("/gamerooms/:hostId/names", h.roomNames)
		api.GET("/users/me/game-sessions", h.mySessions)
		api.DELETE("/users/me/game-sessions/:sessionId", h.leaveSession)
		api.GET("/users/me/achievements", h.myAchievements)
		api.GET("/players/online", h.onlinePlayers)
	}
}

func callerIdentity(c *gin.Context) (models.Identity, bool) {
	identity, ok := models.GetIdentityFromContext(c.Request.Context())
	if !ok || identity.UserID == "" {
		handleServiceError(c, models.ErrUnauthorized)
		return models.Identity{}, false
	}
	return identity, true
}

func (h *HTTPHandler) issueSocketToken(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	token, err := h.identities.IssueHandshakeToken(c.Request.Context(), identity)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, TokenResponse{Token: token.Token, ExpiresAt: token.ExpiresAt})
}

func (h *HTTPHandler) roomNames(c *gin.Context) {
	if _, ok := callerIdentity(c); !ok {
		return
	}
	names, err := h.rooms.Names(c.Request.Context(), c.Param("hostId"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.DataResponse{Data: names})
}

func (h *HTTPHandler) mySessions(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	sessions, err := h.progress.Sessions(c.Request.Context(), identity.UserID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if sessions == nil {
		sessions = []models.UserGameSession{}
	}
	c.JSON(http.StatusOK, models.DataResponse{Data: sessions})
}

func (h *HTTPHandler) leaveSession(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	if err := h.progress.LeaveSession(c.Request.Context(), identity.UserID, c.Param("sessionId")); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) myAchievements(c *gin.Context) {
	identity, ok := callerIdentity(c)
	if !ok {
		return
	}
	achievements, err := h.progress.Achievements(c.Request.Context(), identity.UserID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if achievements == nil {
		achievements = []models.UserAchievement{}
	}
	c.JSON(http.StatusOK, models.DataResponse{Data: achievements})
}

func (h *HTTPHandler) onlinePlayers(c *gin.Context) {
	if _, ok := callerIdentity(c); !ok {
		return
	}
	players, err := h.progress.OnlinePlayers(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	if players == nil {
		players = []models.Identity{}
	}
	c.JSON(http.StatusOK, models.DataResponse{Data: players})
}
