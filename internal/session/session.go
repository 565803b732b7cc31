// Package session persists conversation history to PostgreSQL.
//
// A session groups the turns of one conversation for one user. Turns
// are append-only and strictly ordered by sequence number; appends are
// serialized per session with a row lock so concurrent writers can
// never produce duplicate sequence numbers.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for session operations.
var (
	// ErrNotFound indicates the session does not exist.
	ErrNotFound = errors.New("session not found")
)

// TitleMaxLength caps stored session titles.
const TitleMaxLength = 100

// Session represents a conversation session.
type Session struct {
	ID           uuid.UUID
	Username     string
	Title        string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
