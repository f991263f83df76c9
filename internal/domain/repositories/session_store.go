package repositories

import (
	"context"

	"tableloom/internal/domain/models"
)

// SessionStore persists Session state in a keyed store with TTL refresh on
// access. At most one writer touches a given session at a time (guaranteed
// by the protocol, see SPEC_FULL.md §5); the store itself does not need to
// provide atomic read-modify-write.
type SessionStore interface {
	// Create persists a brand-new session with the store's TTL.
	Create(ctx context.Context, session *models.Session) error

	// Get loads a session, refreshing its TTL and LastActivity as a side
	// effect. Returns domain.ErrSessionNotFound if absent or expired.
	Get(ctx context.Context, id string) (*models.Session, error)

	// Update re-serialises and persists the full session, refreshing TTL.
	Update(ctx context.Context, session *models.Session) error

	// Delete removes a session. Returns nil whether or not it existed.
	Delete(ctx context.Context, id string) error
}
