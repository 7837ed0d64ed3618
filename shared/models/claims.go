package models

import "github.com/golang-jwt/jwt/v5"

// Claims are issued by the external identity provider. Subject carries the user ID.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Identity returns the durable identity encoded in the token.
func (c *Claims) Identity() Identity {
	return Identity{UserID: c.Subject, Username: c.Username}
}
