package repositories

import "context"

// SessionLock guards per-session exclusivity across racing client
// connections with a short-TTL advisory lock. It is defense-in-depth: the
// protocol alone already guarantees at most one writer per session.
// Backend failures should fail open at the call site (log, proceed without
// the lock) rather than block an otherwise valid request.
type SessionLock interface {
	// Acquire attempts to take the lock for sessionID. On success it
	// returns a release function the caller must invoke when the turn
	// completes. Returns domain.ErrSessionLocked on contention.
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}
