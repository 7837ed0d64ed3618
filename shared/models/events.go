package models

import "encoding/json"

// InboundMessage is the envelope of every client message.
type InboundMessage struct {
	Action string          `json:"action" validate:"required,max=64"`
	Data   json.RawMessage `json:"data"`
}

// Event is the envelope of every server message.
type Event struct {
	Action string      `json:"action"`
	Data   interface{} `json:"data,omitempty"`
}

func NewEvent(action string, data interface{}) Event {
	return Event{Action: action, Data: data}
}

// Inbound payloads.

type CreateRoomRequest struct {
	Name   string `json:"name" validate:"required,min=1,max=256"`
	Public bool   `json:"isPublic"`
}

type RoomRequest struct {
	HostID string `json:"hostId" validate:"required,max=128"`
}

type RespondJoinRequest struct {
	HostID string `json:"hostId" validate:"required,max=128"`
	UserID string `json:"userId" validate:"required,max=128"`
	Accept bool   `json:"accept"`
}

type InviteRequest struct {
	HostID string `json:"hostId" validate:"required,max=128"`
	UserID string `json:"userId" validate:"required,max=128"`
}

type SessionRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
}

type VoteStoryRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
	StoryID   string `json:"storyId" validate:"required,max=128"`
}

type PlayerReadyRequest struct {
	SessionID     string `json:"sessionId" validate:"required,max=128"`
	Avatar        string `json:"avatar" validate:"max=1024"`
	CharacterName string `json:"characterName" validate:"max=128"`
	CharacterID   string `json:"characterId" validate:"max=128"`
	Role          string `json:"role" validate:"max=64"`
}

type GameChoiceRequest struct {
	SessionID   string `json:"sessionId" validate:"required,max=128"`
	ChoiceIndex *int   `json:"choiceIndex" validate:"required,min=0"`
}

type SessionBroadcastRequest struct {
	SessionID      string          `json:"sessionId" validate:"required,max=128"`
	InternalAction string          `json:"internalAction" validate:"required,max=64"`
	Payload        json.RawMessage `json:"payload"`
}

// Outbound payloads.

type RoomsUpdate struct {
	UpdateRooms  []Room   `json:"updateRooms,omitempty"`
	RemovedRooms []string `json:"removedRooms,omitempty"`
}

type RoomsList struct {
	Rooms []Room `json:"rooms"`
}

type JoinRequestNotice struct {
	HostID string   `json:"hostId"`
	User   Identity `json:"user"`
}

type JoinResponse struct {
	HostID string `json:"hostId"`
	Accept bool   `json:"accept"`
}

type RoomInvite struct {
	Room Room `json:"room"`
}

type StartGame struct {
	HostID  string      `json:"hostId"`
	Session SessionView `json:"session"`
}

type SessionNotice struct {
	Session SessionView `json:"session"`
}

type StoryVoteNotice struct {
	UserID  string `json:"userId"`
	StoryID string `json:"storyId"`
}

type PlayerReadyNotice struct {
	Player PlayerSlot `json:"player"`
	Role   *Role      `json:"role,omitempty"`
}

type ChoiceVoteNotice struct {
	UserID      string `json:"userId"`
	ChoiceIndex int    `json:"choiceIndex"`
}

// Continuation is a narrative step delivered to players.
type Continuation struct {
	Lines   []Line   `json:"lines"`
	Choices []Choice `json:"choices"`
}

type AchievementsEarned struct {
	Achievements []Achievement `json:"achievements"`
}

type PlayerUpdate struct {
	Player PlayerSlot `json:"player"`
}

type JoinLeftNotice struct {
	Join bool   `json:"join"`
	Name string `json:"name"`
}

type SessionRelay struct {
	UserID         string          `json:"userId"`
	InternalAction string          `json:"internalAction"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

type SessionClosed struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
}

type ErrorEvent struct {
	RequestAction string `json:"requestAction,omitempty"`
	Code          string `json:"code"`
	Message       string `json:"message"`
}
