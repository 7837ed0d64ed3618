package models

import "time"

// Identity is the durable, authenticated user a connection claims to represent.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Binding links a live connection to an identity. SessionID is set while the
// connection plays in a session.
type Binding struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId"`
	Username     string    `json:"username"`
	SessionID    string    `json:"sessionId,omitempty"`
	BoundAt      time.Time `json:"boundAt"`
}

// Identity returns the identity part of the binding.
func (b Binding) Identity() Identity {
	return Identity{UserID: b.UserID, Username: b.Username}
}

// HandshakeToken is a single-use credential that lets a fresh connection
// assert an identity.
type HandshakeToken struct {
	Token     string    `json:"token"`
	Identity  Identity  `json:"identity"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the token is past its validity at now.
func (t HandshakeToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
