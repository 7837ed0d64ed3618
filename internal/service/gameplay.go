package service

import (
	"context"
	"encoding/json"
	"fmt"

	"storyroom-server/shared/constants"
	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"
	"storyroom-server/shared/utils"

	"go.uber.org/zap"
)

// Readiness is what a player declares during role selection.
type Readiness struct {
	Avatar        string
	CharacterName string
	CharacterID   string
	Role          string
}

// Gameplay runs the consensus rounds of a session.
type Gameplay struct {
	sessions  *SessionStore
	stories   interfaces.StoryRepository
	narrative *NarrativeBridge
	progress  *Progress
	fanout    *Fanout
	logger    *zap.Logger
}

func NewGameplay(
	sessions *SessionStore,
	stories interfaces.StoryRepository,
	narrative *NarrativeBridge,
	progress *Progress,
	fanout *Fanout,
	logger *zap.Logger,
) *Gameplay {
	return &Gameplay{
		sessions:  sessions,
		stories:   stories,
		narrative: narrative,
		progress:  progress,
		fanout:    fanout,
		logger:    logger.Named("Gameplay"),
	}
}

// seat loads the session and the slot played from conn.
func (g *Gameplay) seat(ctx context.Context, conn, sessionID string, phase models.SessionPhase) (*models.Session, int, error) {
	s, err := g.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, -1, err
	}
	idx, err := s.SlotByConnection(conn)
	if err != nil {
		return nil, -1, err
	}
	if phase != "" && s.Phase != phase {
		return nil, -1, fmt.Errorf("%w: session %s is in phase %s, not %s", models.ErrInvalid, s.ID, s.Phase, phase)
	}
	if s.Players[idx].Data == nil {
		s.Players[idx].Data = models.NewPlayerData()
	}
	return s, idx, nil
}

// VoteStory records the player's story vote. A unanimous vote loads the story
// and opens role selection.
func (g *Gameplay) VoteStory(ctx context.Context, conn, sessionID, storyID string) error {
	s, idx, err := g.seat(ctx, conn, sessionID, models.PhaseStoryVote)
	if err != nil {
		return err
	}
	info, err := g.stories.GetByID(ctx, storyID)
	if err != nil {
		return fmt.Errorf("story %s: %w", storyID, err)
	}
	voter := s.Players[idx]
	voter.Data.StoryVote = storyID

	chosen, ok := Unanimous(storyBallots(s), eq[string])
	if !ok {
		if err := g.sessions.Save(ctx, s); err != nil {
			return err
		}
		g.fanout.SendToSession(ctx, s, models.NewEvent(constants.WSEventVoteStory, models.StoryVoteNotice{UserID: voter.UserID, StoryID: storyID}), conn)
		return nil
	}

	consensusResolutionsTotal.WithLabelValues("story").Inc()
	state, err := g.narrative.Initialize(ctx, chosen)
	if err != nil {
		return err
	}
	clearStoryVotes(s)
	s.Story = info
	s.Narrative = state
	s.RolesPlayer = make(map[string]int, len(state.Metadata.Roles))
	for _, role := range state.Metadata.Roles {
		s.RolesPlayer[role.Tag] = -1
	}
	s.Phase = models.PhaseRoleSelection
	if err := g.sessions.Save(ctx, s); err != nil {
		return err
	}
	g.logger.Info("Story chosen", zap.String("sessionID", s.ID), zap.String("storyID", chosen))
	g.fanout.SendToSession(ctx, s, models.NewEvent(constants.WSEventStartStory, models.SessionNotice{Session: s.View()}), "")
	return nil
}

// PlayerReady stores the player's character and role. When everyone is ready
// the game starts and the first continuation is narrated.
func (g *Gameplay) PlayerReady(ctx context.Context, conn, sessionID string, ready Readiness) error {
	s, idx, err := g.seat(ctx, conn, sessionID, models.PhaseRoleSelection)
	if err != nil {
		return err
	}
	if s.Narrative == nil {
		return fmt.Errorf("%w: session %s has no story", models.ErrInvalid, s.ID)
	}
	data := s.Players[idx].Data
	data.Avatar = ready.Avatar
	data.CharacterName = ready.CharacterName
	data.CharacterID = ready.CharacterID

	var claimed *models.Role
	if ready.Role != "" {
		role, ok := s.Narrative.Metadata.Role(ready.Role)
		if !ok {
			return fmt.Errorf("%w: unknown role %q", models.ErrInvalid, ready.Role)
		}
		if s.RolesPlayer == nil {
			s.RolesPlayer = map[string]int{}
		}
		for tag, holder := range s.RolesPlayer {
			if holder == idx {
				s.RolesPlayer[tag] = -1
			}
		}
		s.RolesPlayer[role.Tag] = idx
		claimed = &role
	}

	if _, ok := Unanimous(readinessBallots(s), eq[bool]); !ok {
		if err := g.sessions.Save(ctx, s); err != nil {
			return err
		}
		g.fanout.SendToSession(ctx, s, models.NewEvent(constants.WSEventPlayerReady, models.PlayerReadyNotice{Player: s.Players[idx], Role: claimed}), conn)
		return nil
	}

	consensusResolutionsTotal.WithLabelValues("roles").Inc()
	if err := g.narrative.SetSharedVariable(ctx, s.Narrative, VarPlayerCount, len(s.Players)); err != nil {
		return err
	}
	if err := g.narrative.SetSharedVariable(ctx, s.Narrative, VarRealNames, utils.JoinNames(characterNames(s))); err != nil {
		return err
	}
	s.Phase = models.PhaseRunning
	cont, err := g.advance(ctx, s)
	if err != nil {
		return err
	}
	if err := g.commit(ctx, s, cont); err != nil {
		return err
	}
	g.logger.Info("Game running", zap.String("sessionID", s.ID), zap.Int("players", len(s.Players)))
	g.fanout.SendToSession(ctx, s, models.NewEvent(constants.WSEventGameRunning, models.SessionNotice{Session: s.View()}), "")
	g.deliver(ctx, s, cont)
	g.progress.RecordAll(ctx, s)
	return nil
}

// Choose records the player's choice vote. A unanimous vote picks the option
// and narrates what follows.
func (g *Gameplay) Choose(ctx context.Context, conn, sessionID string, index int) error {
	s, idx, err := g.seat(ctx, conn, sessionID, models.PhaseRunning)
	if err != nil {
		return err
	}
	if s.Narrative == nil || index < 0 || index >= len(s.Narrative.Choices) {
		return fmt.Errorf("%w: choice %d is not pending", models.ErrInvalid, index)
	}
	voter := s.Players[idx]
	voter.Data.ChoiceVote = index

	chosen, ok := Unanimous(choiceBallots(s), eq[int])
	if !ok {
		if err := g.sessions.Save(ctx, s); err != nil {
			return err
		}
		g.fanout.SendToSession(ctx, s, models.NewEvent(constants.WSEventGameChoice, models.ChoiceVoteNotice{UserID: voter.UserID, ChoiceIndex: index}), conn)
		return nil
	}

	consensusResolutionsTotal.WithLabelValues("choice").Inc()
	if err := g.narrative.ChooseOption(ctx, s.Narrative, chosen); err != nil {
		return err
	}
	clearChoiceVotes(s)
	cont, err := g.advance(ctx, s)
	if err != nil {
		return err
	}
	if err := g.commit(ctx, s, cont); err != nil {
		return err
	}
	g.deliver(ctx, s, cont)
	return nil
}

// advance runs the story to its next choices and appends the lines to the
// transcript. Nothing is persisted.
func (g *Gameplay) advance(ctx context.Context, s *models.Session) (models.Continuation, error) {
	cont, err := g.narrative.Advance(ctx, s.Narrative)
	if err != nil {
		return models.Continuation{}, err
	}
	s.Narrative.Transcript = s.Narrative.Transcript.Append(cont.Lines...)
	return cont, nil
}

// commit persists s in a single write. A continuation without choices ends
// the session.
func (g *Gameplay) commit(ctx context.Context, s *models.Session, cont models.Continuation) error {
	if len(cont.Choices) == 0 {
		return g.sessions.MarkEnded(ctx, s)
	}
	return g.sessions.Save(ctx, s)
}

// deliver broadcasts a committed continuation and awards its achievements.
func (g *Gameplay) deliver(ctx context.Context, s *models.Session, cont models.Continuation) {
	g.fanout.SendToSession(ctx, s, models.NewEvent(constants.WSEventGameContinue, cont), "")
	g.narrative.AwardAchievements(ctx, s.Narrative.StoryID, cont.Lines, s.Players)
	if s.Phase == models.PhaseEnded {
		g.fanout.SendToSession(ctx, s, models.NewEvent(constants.WSEventGameEnded, models.SessionNotice{Session: s.View()}), "")
	}
}

// Relay forwards a client-defined action to the other members of the session.
func (g *Gameplay) Relay(ctx context.Context, conn, sessionID, internalAction string, payload json.RawMessage) (Delivery, error) {
	s, idx, err := g.seat(ctx, conn, sessionID, "")
	if err != nil {
		return Delivery{}, err
	}
	relay := models.SessionRelay{UserID: s.Players[idx].UserID, InternalAction: internalAction, Payload: payload}
	return g.fanout.SendToSession(ctx, s, models.NewEvent(constants.WSEventSessionBroadcast, relay), conn), nil
}

// Abandon deletes the session on behalf of one of its members.
func (g *Gameplay) Abandon(ctx context.Context, conn, sessionID string) error {
	s, idx, err := g.seat(ctx, conn, sessionID, "")
	if err != nil {
		return err
	}
	userID := s.Players[idx].UserID
	if err := g.sessions.Delete(ctx, s.ID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	g.logger.Info("Session abandoned", zap.String("sessionID", s.ID), zap.String("userID", userID))
	g.fanout.SendToSession(ctx, s, models.NewEvent(constants.WSEventSessionAbandoned, models.SessionClosed{SessionID: s.ID, UserID: userID}), conn)
	for _, p := range s.Players {
		g.progress.Forget(ctx, p.UserID, s.ID)
	}
	return nil
}

func characterNames(s *models.Session) []string {
	names := make([]string, 0, len(s.Players))
	for _, p := range s.Players {
		name := p.Username
		if p.Data != nil && p.Data.CharacterName != "" {
			name = p.Data.CharacterName
		}
		names = append(names, name)
	}
	return names
}
