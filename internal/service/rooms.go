package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"storyroom-server/shared/constants"
	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"

	"go.uber.org/zap"
)

// RoomManager runs pre-game lobbies.
type RoomManager struct {
	rooms      interfaces.RoomRepository
	identities *IdentityRegistry
	sessions   *SessionStore
	fanout     *Fanout
	startGrace time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

func NewRoomManager(
	rooms interfaces.RoomRepository,
	identities *IdentityRegistry,
	sessions *SessionStore,
	fanout *Fanout,
	startGrace time.Duration,
	logger *zap.Logger,
) *RoomManager {
	return &RoomManager{
		rooms:      rooms,
		identities: identities,
		sessions:   sessions,
		fanout:     fanout,
		startGrace: startGrace,
		now:        time.Now,
		logger:     logger.Named("RoomManager"),
	}
}

// Create opens a room for hostID, replacing any previous room of the host.
func (m *RoomManager) Create(ctx context.Context, hostID string, public bool, name string) (*models.Room, error) {
	if err := models.ValidateRoomName(name); err != nil {
		return nil, err
	}
	room := models.NewRoom(hostID, name, public, m.now())
	if err := room.Validate(); err != nil {
		return nil, err
	}
	if err := m.rooms.Put(ctx, room); err != nil {
		return nil, fmt.Errorf("failed to save room: %w", err)
	}
	m.logger.Info("Room created", zap.String("hostID", hostID), zap.Bool("public", public))
	m.broadcastUpdate(ctx, room)
	return room, nil
}

// ListVisible returns the rooms userID may see, oldest first. An empty userID
// sees public rooms only.
func (m *RoomManager) ListVisible(ctx context.Context, userID string) ([]models.Room, error) {
	all, err := m.rooms.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	out := make([]models.Room, 0, len(all))
	for _, r := range all {
		if r.VisibleTo(userID) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// RequestJoin forwards a join request to the host. Requests for a missing room
// or one the requester may not see are answered with a refusal right away.
func (m *RoomManager) RequestJoin(ctx context.Context, requesterConn, hostID string) error {
	requester, err := m.identities.ResolveByConnection(ctx, requesterConn)
	if err != nil {
		return err
	}
	room, err := m.rooms.Get(ctx, hostID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to get room: %w", err)
	}
	if room == nil || !room.VisibleTo(requester.UserID) {
		refusal := models.NewEvent(constants.WSEventRespondJoinRoom, models.JoinResponse{HostID: hostID, Accept: false})
		return m.fanout.SendOne(ctx, requesterConn, refusal)
	}
	host, err := m.identities.ResolveByIdentity(ctx, hostID)
	if err != nil {
		return fmt.Errorf("host %s is offline: %w", hostID, err)
	}
	notice := models.NewEvent(constants.WSEventRequestJoinRoom, models.JoinRequestNotice{HostID: hostID, User: requester.Identity()})
	return m.fanout.SendOne(ctx, host.ConnectionID, notice)
}

// RespondJoin lets the host accept or reject targetUserID.
func (m *RoomManager) RespondJoin(ctx context.Context, hostConn, hostID, targetUserID string, accept bool) error {
	if err := m.authorizeHost(ctx, hostConn, hostID); err != nil {
		return err
	}
	response := models.NewEvent(constants.WSEventRespondJoinRoom, models.JoinResponse{HostID: hostID, Accept: accept})
	if !accept {
		m.fanout.SendToUsers(ctx, []string{targetUserID}, response)
		return nil
	}
	room, err := m.mutate(ctx, hostID, func(r *models.Room) error {
		r.AddPlayer(targetUserID)
		return nil
	})
	if err != nil {
		return err
	}
	m.logger.Info("Player joined room", zap.String("hostID", hostID), zap.String("userID", targetUserID))
	m.fanout.SendToUsers(ctx, []string{targetUserID}, response)
	m.broadcastUpdate(ctx, room)
	return nil
}

// Invite adds targetUserID to the room's invites.
func (m *RoomManager) Invite(ctx context.Context, hostConn, hostID, targetUserID string) error {
	if err := m.authorizeHost(ctx, hostConn, hostID); err != nil {
		return err
	}
	room, err := m.mutate(ctx, hostID, func(r *models.Room) error {
		r.AddInvite(targetUserID)
		return nil
	})
	if err != nil {
		return err
	}
	m.fanout.SendToUsers(ctx, []string{targetUserID}, models.NewEvent(constants.WSEventRoomInvite, models.RoomInvite{Room: *room}))
	return nil
}

// Leave removes the caller from the room. A leaving host closes the room.
func (m *RoomManager) Leave(ctx context.Context, requesterConn, hostID string) error {
	requester, err := m.identities.ResolveByConnection(ctx, requesterConn)
	if err != nil {
		return err
	}
	if requester.UserID == hostID {
		return m.close(ctx, hostID)
	}
	var removed bool
	room, err := m.mutate(ctx, hostID, func(r *models.Room) error {
		removed = r.RemovePlayer(requester.UserID)
		return nil
	})
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}
	m.logger.Info("Player left room", zap.String("hostID", hostID), zap.String("userID", requester.UserID))
	m.broadcastUpdate(ctx, room)
	if !room.Public {
		_ = m.fanout.SendOne(ctx, requesterConn, models.NewEvent(constants.WSEventUpdateGameRooms, models.RoomsUpdate{RemovedRooms: []string{hostID}}))
	}
	return nil
}

// Start converts the room into a session, announces it to the players, then
// closes the room after the grace period.
func (m *RoomManager) Start(ctx context.Context, hostConn, hostID string) (*models.Session, error) {
	if err := m.authorizeHost(ctx, hostConn, hostID); err != nil {
		return nil, err
	}
	room, err := m.rooms.Get(ctx, hostID)
	if err != nil {
		return nil, err
	}
	session, err := m.sessions.ConvertRoomToSession(ctx, room)
	if err != nil {
		return nil, err
	}
	for _, p := range session.Players {
		if !p.Connected() {
			continue
		}
		if err := m.identities.AttachSession(ctx, p.ConnectionID, session.ID); err != nil {
			m.logger.Warn("Failed to attach session to connection",
				zap.String("sessionID", session.ID),
				zap.String("connectionID", p.ConnectionID),
				zap.Error(err),
			)
		}
	}
	sessionsStartedTotal.Inc()
	m.fanout.SendToSession(ctx, session, models.NewEvent(constants.WSEventStartGame, models.StartGame{HostID: hostID, Session: session.View()}), "")

	if m.startGrace > 0 {
		timer := time.NewTimer(m.startGrace)
		select {
		case <-ctx.Done():
			timer.Stop()
			return session, ctx.Err()
		case <-timer.C:
		}
	}
	if err := m.close(ctx, hostID); err != nil {
		return session, err
	}
	return session, nil
}

// Names lists the identities of the room's players that are online.
func (m *RoomManager) Names(ctx context.Context, hostID string) ([]models.Identity, error) {
	room, err := m.rooms.Get(ctx, hostID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Identity, 0, len(room.Players))
	for _, userID := range room.Players {
		b, err := m.identities.ResolveByIdentity(ctx, userID)
		if err != nil {
			continue
		}
		out = append(out, b.Identity())
	}
	return out, nil
}

func (m *RoomManager) close(ctx context.Context, hostID string) error {
	if err := m.rooms.Delete(ctx, hostID); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}
	m.logger.Info("Room closed", zap.String("hostID", hostID))
	m.fanout.SendToAll(ctx, models.NewEvent(constants.WSEventUpdateGameRooms, models.RoomsUpdate{RemovedRooms: []string{hostID}}))
	return nil
}

// authorizeHost checks that hostConn is the host's currently bound connection.
func (m *RoomManager) authorizeHost(ctx context.Context, hostConn, hostID string) error {
	host, err := m.identities.ResolveByIdentity(ctx, hostID)
	if err != nil || host.ConnectionID != hostConn {
		return fmt.Errorf("%w: connection is not the host of room %s", models.ErrForbidden, hostID)
	}
	return nil
}

func (m *RoomManager) mutate(ctx context.Context, hostID string, fn func(*models.Room) error) (*models.Room, error) {
	var lastErr error
	for attempt := 0; attempt < maxMutationAttempts; attempt++ {
		room, err := m.rooms.Get(ctx, hostID)
		if err != nil {
			return nil, err
		}
		if err := fn(room); err != nil {
			return nil, err
		}
		if err := room.Validate(); err != nil {
			return nil, err
		}
		room.UpdatedAt = m.now()
		lastErr = m.rooms.Update(ctx, room)
		if lastErr == nil {
			return room, nil
		}
		if !errors.Is(lastErr, models.ErrConflict) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// broadcastUpdate sends the room to everyone for a public room, to its
// players and invitees otherwise.
func (m *RoomManager) broadcastUpdate(ctx context.Context, room *models.Room) Delivery {
	event := models.NewEvent(constants.WSEventUpdateGameRooms, models.RoomsUpdate{UpdateRooms: []models.Room{*room}})
	if room.Public {
		return m.fanout.SendToAll(ctx, event)
	}
	return m.fanout.SendToUsers(ctx, room.Audience(), event)
}
