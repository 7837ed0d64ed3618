package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SessionPhase tracks which consensus round a session is waiting on.
type SessionPhase string

const (
	PhaseStoryVote     SessionPhase = "story-vote"
	PhaseRoleSelection SessionPhase = "role-selection"
	PhaseRunning       SessionPhase = "running"
	PhaseEnded         SessionPhase = "ended"
)

const (
	// NoChoiceVote marks a player that has not voted in the current choice round.
	NoChoiceVote = -1
	// TranscriptLimit caps the replay cache kept on the session.
	TranscriptLimit = 15
)

// PlayerData is the per-player ephemeral data of a session slot.
type PlayerData struct {
	StoryVote     string `json:"storyVote,omitempty"`
	ChoiceVote    int    `json:"choiceVote"`
	Avatar        string `json:"avatar,omitempty"`
	CharacterName string `json:"characterName,omitempty"`
	CharacterID   string `json:"characterId,omitempty"`
}

func NewPlayerData() *PlayerData {
	return &PlayerData{ChoiceVote: NoChoiceVote}
}

// HasCharacter reports whether the player picked an avatar and a name.
func (d *PlayerData) HasCharacter() bool {
	return d != nil && d.Avatar != "" && d.CharacterName != ""
}

// PlayerSlot is a session seat. ConnectionID is empty while the player is
// disconnected; the slot itself is never removed.
type PlayerSlot struct {
	ConnectionID string      `json:"connectionId"`
	UserID       string      `json:"userId"`
	Username     string      `json:"username"`
	Data         *PlayerData `json:"data"`
}

func (p PlayerSlot) Connected() bool { return p.ConnectionID != "" }

// Label is the human readable "username (character)" form used in notices.
func (p PlayerSlot) Label() string {
	if p.Data == nil || p.Data.CharacterName == "" {
		return p.Username
	}
	return fmt.Sprintf("%s (%s)", p.Username, p.Data.CharacterName)
}

// Line is a narrated line with its tags.
type Line struct {
	Text string   `json:"text"`
	Tags []string `json:"tags"`
}

// Choice is an option exposed at a decision point.
type Choice struct {
	Text  string   `json:"text"`
	Tags  []string `json:"tags"`
	Index int      `json:"index"`
}

// Transcript is a FIFO of the most recent narrated lines.
type Transcript []Line

// Append adds lines and evicts the oldest ones beyond TranscriptLimit.
func (t Transcript) Append(lines ...Line) Transcript {
	out := append(Transcript{}, t...)
	out = append(out, lines...)
	if len(out) > TranscriptLimit {
		out = out[len(out)-TranscriptLimit:]
	}
	return out
}

const (
	GameModeEachPlayerHasRole = "each-player-have-role"
	GameModeNoRoles           = "no-roles"
)

// Role is a declared story role.
type Role struct {
	Tag         string `json:"tag"`
	DisplayName string `json:"displayName"`
}

// StoryMetadata is extracted once from the story's global tags when it is loaded.
type StoryMetadata struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Roles    []Role `json:"roles"`
	GameMode string `json:"gamemode"`
}

// Role returns the declared role with the given tag.
func (m StoryMetadata) Role(tag string) (Role, bool) {
	for _, r := range m.Roles {
		if r.Tag == tag {
			return r, true
		}
	}
	return Role{}, false
}

// EngineState is an opaque engine snapshot tagged with the engine that produced it.
type EngineState struct {
	Engine string          `json:"engine"`
	Data   json.RawMessage `json:"data"`
}

// NarrativeState is the narrative part of a session.
type NarrativeState struct {
	StoryID    string        `json:"storyId"`
	Metadata   StoryMetadata `json:"metadata"`
	Engine     EngineState   `json:"engine"`
	Transcript Transcript    `json:"transcript"`
	Choices    []Choice      `json:"choices"`
}

// Session is the authoritative record of an in-progress game.
type Session struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	HostID      string          `json:"hostId"`
	Phase       SessionPhase    `json:"phase"`
	Players     []PlayerSlot    `json:"players"`
	Story       *StoryInfo      `json:"story,omitempty"`
	Narrative   *NarrativeState `json:"narrative,omitempty"`
	RolesPlayer map[string]int  `json:"rolesPlayer,omitempty"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Validate checks the session invariants before it is written.
func (s *Session) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: session without id", ErrInvalid)
	}
	if len(s.Players) == 0 {
		return fmt.Errorf("%w: session %s has no players", ErrInvalid, s.ID)
	}
	return nil
}

// SlotByConnection returns the index of the slot played from connectionID.
func (s *Session) SlotByConnection(connectionID string) (int, error) {
	if connectionID != "" {
		for i, p := range s.Players {
			if p.ConnectionID == connectionID {
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("%w: connection is not a player of session %s", ErrForbidden, s.ID)
}

// SlotByUser returns the index of the slot owned by userID.
func (s *Session) SlotByUser(userID string) (int, bool) {
	for i, p := range s.Players {
		if p.UserID == userID {
			return i, true
		}
	}
	return -1, false
}

// ConnectionIDs lists live connections of the session, skipping except.
func (s *Session) ConnectionIDs(except string) []string {
	ids := make([]string, 0, len(s.Players))
	for _, p := range s.Players {
		if p.Connected() && p.ConnectionID != except {
			ids = append(ids, p.ConnectionID)
		}
	}
	return ids
}

// SessionView is what clients receive: the session without engine internals.
type SessionView struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	HostID      string         `json:"hostId"`
	Phase       SessionPhase   `json:"phase"`
	Players     []PlayerSlot   `json:"players"`
	Story       *StoryInfo     `json:"story,omitempty"`
	Narrative   *NarrativeView `json:"narrative,omitempty"`
	RolesPlayer map[string]int `json:"rolesPlayer,omitempty"`
	Version     int64          `json:"version"`
}

type NarrativeView struct {
	StoryID    string        `json:"storyId"`
	Metadata   StoryMetadata `json:"metadata"`
	Transcript Transcript    `json:"transcript"`
	Choices    []Choice      `json:"choices"`
}

func (s *Session) View() SessionView {
	v := SessionView{
		ID:          s.ID,
		Name:        s.Name,
		HostID:      s.HostID,
		Phase:       s.Phase,
		Players:     s.Players,
		Story:       s.Story,
		RolesPlayer: s.RolesPlayer,
		Version:     s.Version,
	}
	if s.Narrative != nil {
		v.Narrative = &NarrativeView{
			StoryID:    s.Narrative.StoryID,
			Metadata:   s.Narrative.Metadata,
			Transcript: s.Narrative.Transcript,
			Choices:    s.Narrative.Choices,
		}
	}
	return v
}
