package models

import "errors"

// Application-wide standard errors
var (
	// Core taxonomy
	ErrForbidden = errors.New("forbidden")          // Caller lacks rights over the target room/session/role
	ErrNotFound  = errors.New("resource not found") // Referenced room/session/identity/token absent
	ErrExpired   = errors.New("expired")            // Handshake token past validity
	ErrInvalid   = errors.New("invalid input data") // Input failed validation
	ErrConflict  = errors.New("version conflict")   // Record changed since it was read

	// Authentication
	ErrUnauthorized   = errors.New("unauthorized")
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")

	// Push channel
	ErrConnectionGone = errors.New("connection is gone")

	// Narrative
	ErrEngineMismatch = errors.New("engine state belongs to another engine")
	ErrStoryEnded     = errors.New("story has ended")
)
