package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"tableloom/internal/domain"
	"tableloom/internal/domain/models"
)

const sessionTTL = 5 * time.Minute

type sessionEntry struct {
	data   []byte
	expiry time.Time
}

// SessionStore is an in-memory SessionStore used by tests. It round-trips
// sessions through JSON on every Create/Get/Update, the same way the Redis
// backend does, so tests exercise the same serialisation path as production.
type SessionStore struct {
	mu      sync.RWMutex
	entries map[string]sessionEntry
}

// NewSessionStore constructs an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{entries: make(map[string]sessionEntry)}
}

func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[session.ID] = sessionEntry{data: data, expiry: time.Now().Add(sessionTTL)}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok || time.Now().After(entry.expiry) {
		delete(s.entries, id)
		return nil, domain.ErrSessionNotFound
	}

	var session models.Session
	if err := json.Unmarshal(entry.data, &session); err != nil {
		return nil, err
	}
	session.LastActivity = time.Now()

	data, err := json.Marshal(&session)
	if err != nil {
		return nil, err
	}
	s.entries[id] = sessionEntry{data: data, expiry: time.Now().Add(sessionTTL)}

	return &session, nil
}

func (s *SessionStore) Update(ctx context.Context, session *models.Session) error {
	session.LastActivity = time.Now()
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[session.ID]; !ok {
		return domain.ErrSessionNotFound
	}
	s.entries[session.ID] = sessionEntry{data: data, expiry: time.Now().Add(sessionTTL)}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}
