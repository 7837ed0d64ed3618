package models

import "time"

// UserGameSession is the persistent per-user progress record of a session.
type UserGameSession struct {
	UserID        string    `json:"userId" db:"user_id"`
	SessionID     string    `json:"sessionId" db:"session_id"`
	CharacterID   string    `json:"characterId" db:"character_id"`
	SessionName   string    `json:"sessionName" db:"session_name"`
	FirstJoinedAt time.Time `json:"firstJoinedAt" db:"first_joined_at"`
	LastJoinedAt  time.Time `json:"lastJoinedAt" db:"last_joined_at"`
}
