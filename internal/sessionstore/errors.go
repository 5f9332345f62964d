package sessionstore

import "errors"

// Validation errors.
var (
	ErrEmptyProjectPath = errors.New("project path is required")
	ErrEmptyProjectHash = errors.New("project hash is required")
	ErrEmptySessionID   = errors.New("session id is required")
)

// Lifecycle errors.
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrInvalidTransition   = errors.New("invalid session status transition")
	ErrStoreClosed         = errors.New("session store is closed")
	ErrNoCurrentSession    = errors.New("no current session for project")
)
