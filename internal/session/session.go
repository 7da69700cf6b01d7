// Package session maps users to conversation sessions. A session is created
// the first time a user is seen, reused on later requests and discarded when
// it expires or is explicitly expired (for example when history is cleared).
package session

import (
	"context"

	"github.com/google/uuid"
)

// Store resolves the active session for a user.
type Store interface {
	// Resolve returns the user's session ID, creating one on first contact
	// or after the previous session expired.
	Resolve(ctx context.Context, userID string) (string, error)
	// Expire ends the user's current session. Expiring a user without a
	// session is not an error.
	Expire(ctx context.Context, userID string) error
}

// NewID returns a new opaque session identifier.
func NewID() string {
	return uuid.NewString()
}
