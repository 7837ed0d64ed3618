package service

import (
	"context"
	"errors"
	"fmt"

	"storyroom-server/shared/constants"
	"storyroom-server/shared/models"

	"go.uber.org/zap"
)

// Resumption is the outcome of a successful rejoin.
type Resumption struct {
	Session *models.Session
	Slot    int
}

// ReconnectHandler moves players between connections of a running session.
type ReconnectHandler struct {
	sessions   *SessionStore
	identities *IdentityRegistry
	progress   *Progress
	fanout     *Fanout
	logger     *zap.Logger
}

func NewReconnectHandler(sessions *SessionStore, identities *IdentityRegistry, progress *Progress, fanout *Fanout, logger *zap.Logger) *ReconnectHandler {
	return &ReconnectHandler{
		sessions:   sessions,
		identities: identities,
		progress:   progress,
		fanout:     fanout,
		logger:     logger.Named("ReconnectHandler"),
	}
}

// Resume moves the caller's slot onto newConn and replays the cached tail of
// the story to it.
func (h *ReconnectHandler) Resume(ctx context.Context, newConn, sessionID string) (*Resumption, error) {
	binding, err := h.identities.ResolveByConnection(ctx, newConn)
	if err != nil {
		return nil, err
	}
	s, err := h.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	idx, ok := s.SlotByUser(binding.UserID)
	if !ok {
		return nil, fmt.Errorf("%w: user is not a player of session %s", models.ErrForbidden, sessionID)
	}
	if s.Players[idx].Data == nil {
		return nil, fmt.Errorf("%w: player data of session %s", models.ErrNotFound, sessionID)
	}
	s.Players[idx].ConnectionID = newConn
	s.Players[idx].Username = binding.Username
	if err := h.sessions.Save(ctx, s); err != nil {
		return nil, err
	}
	player := s.Players[idx]
	sessionsResumedTotal.Inc()
	h.logger.Info("Player rejoined session",
		zap.String("sessionID", s.ID),
		zap.String("userID", player.UserID),
		zap.String("connectionID", newConn),
	)

	if err := h.fanout.SendOne(ctx, newConn, models.NewEvent(constants.WSEventJoinRunningGame, models.SessionNotice{Session: s.View()})); err != nil {
		h.logger.Warn("Rejoin notice not delivered", zap.String("connectionID", newConn), zap.Error(err))
	}
	h.fanout.SendToSession(ctx, s, models.NewEvent(constants.WSEventUpdatePlayer, models.PlayerUpdate{Player: player}), newConn)
	h.fanout.SendToSession(ctx, s, models.NewEvent(constants.WSEventPlayerJoinLeft, models.JoinLeftNotice{Join: true, Name: player.Label()}), newConn)

	if err := h.identities.AttachSession(ctx, newConn, s.ID); err != nil {
		h.logger.Warn("Failed to attach session to connection", zap.String("sessionID", s.ID), zap.Error(err))
	}
	if s.Narrative != nil {
		replay := models.Continuation{Lines: s.Narrative.Transcript, Choices: s.Narrative.Choices}
		if replay.Lines == nil {
			replay.Lines = []models.Line{}
		}
		if replay.Choices == nil {
			replay.Choices = []models.Choice{}
		}
		_ = h.fanout.SendOne(ctx, newConn, models.NewEvent(constants.WSEventGameContinue, replay))
	}
	h.progress.Record(ctx, s, idx)
	return &Resumption{Session: s, Slot: idx}, nil
}

// Disconnect unbinds conn and, if it was playing, frees its slot and tells the
// other players.
func (h *ReconnectHandler) Disconnect(ctx context.Context, conn string) error {
	binding, err := h.identities.Unbind(ctx, conn)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if binding.SessionID == "" {
		return nil
	}

	var left *models.PlayerSlot
	s, err := h.sessions.Mutate(ctx, binding.SessionID, func(s *models.Session) error {
		left = nil
		for i := range s.Players {
			if s.Players[i].ConnectionID == conn {
				s.Players[i].ConnectionID = ""
				slot := s.Players[i]
				left = &slot
				return nil
			}
		}
		return errSlotAlreadyMoved
	})
	if errors.Is(err, errSlotAlreadyMoved) || errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}
	h.logger.Info("Player left session",
		zap.String("sessionID", s.ID),
		zap.String("userID", left.UserID),
	)
	h.fanout.SendToSession(ctx, s, models.NewEvent(constants.WSEventPlayerJoinLeft, models.JoinLeftNotice{Join: false, Name: left.Label()}), "")
	return nil
}

var errSlotAlreadyMoved = errors.New("slot no longer played from this connection")
