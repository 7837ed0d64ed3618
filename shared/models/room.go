package models

import (
	"fmt"
	"slices"
	"time"
	"unicode/utf8"
)

const (
	RoomNameMinLength = 1
	RoomNameMaxLength = 256
)

// Room is a pre-game lobby keyed by its host. Players and Invites are sets.
type Room struct {
	HostID    string    `json:"hostId"`
	Name      string    `json:"name"`
	Public    bool      `json:"isPublic"`
	Players   []string  `json:"players"`
	Invites   []string  `json:"invites"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewRoom returns a room whose only player is the host.
func NewRoom(hostID, name string, public bool, now time.Time) *Room {
	return &Room{
		HostID:    hostID,
		Name:      name,
		Public:    public,
		Players:   []string{hostID},
		Invites:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ValidateRoomName checks the room name length in runes.
func ValidateRoomName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < RoomNameMinLength || n > RoomNameMaxLength {
		return fmt.Errorf("%w: room name must be %d..%d characters", ErrInvalid, RoomNameMinLength, RoomNameMaxLength)
	}
	return nil
}

// Validate checks the room invariants before it is written.
func (r *Room) Validate() error {
	if r.HostID == "" {
		return fmt.Errorf("%w: room without host", ErrInvalid)
	}
	if !r.HasPlayer(r.HostID) {
		return fmt.Errorf("%w: host %s is not a player of its room", ErrInvalid, r.HostID)
	}
	return ValidateRoomName(r.Name)
}

func (r *Room) HasPlayer(userID string) bool { return slices.Contains(r.Players, userID) }

func (r *Room) IsInvited(userID string) bool { return slices.Contains(r.Invites, userID) }

// AddPlayer is an idempotent set-union.
func (r *Room) AddPlayer(userID string) {
	if !r.HasPlayer(userID) {
		r.Players = append(r.Players, userID)
	}
}

// RemovePlayer removes a non-host player. The host is never removed.
func (r *Room) RemovePlayer(userID string) bool {
	if userID == r.HostID {
		return false
	}
	idx := slices.Index(r.Players, userID)
	if idx < 0 {
		return false
	}
	r.Players = slices.Delete(r.Players, idx, idx+1)
	return true
}

// AddInvite is an idempotent set-union.
func (r *Room) AddInvite(userID string) {
	if !r.IsInvited(userID) {
		r.Invites = append(r.Invites, userID)
	}
}

// VisibleTo reports whether userID may see the room. An empty userID sees
// public rooms only.
func (r *Room) VisibleTo(userID string) bool {
	if r.Public {
		return true
	}
	if userID == "" {
		return false
	}
	return r.HasPlayer(userID) || r.IsInvited(userID)
}

// Audience lists users that receive updates about a private room.
func (r *Room) Audience() []string {
	out := make([]string, 0, len(r.Players)+len(r.Invites))
	out = append(out, r.Players...)
	for _, id := range r.Invites {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
