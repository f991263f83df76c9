package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"tableloom/internal/domain"
	"tableloom/internal/domain/models"
)

const sessionTTL = 5 * time.Minute

func sessionKey(id string) string {
	return "session:" + id
}

// SessionStore is a Redis-backed repositories.SessionStore. Values are
// JSON-serialised Session records; TTL is refreshed on every read and write
// per SPEC_FULL.md §4.1.
type SessionStore struct {
	client *redis.Client
}

// NewSessionStore wraps an existing Redis client.
func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(session.ID), data, sessionTTL).Err()
}

func (s *SessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	session.LastActivity = time.Now()

	refreshed, err := json.Marshal(&session)
	if err != nil {
		return nil, err
	}
	if err := s.client.Set(ctx, sessionKey(id), refreshed, sessionTTL).Err(); err != nil {
		return nil, err
	}

	return &session, nil
}

func (s *SessionStore) Update(ctx context.Context, session *models.Session) error {
	session.LastActivity = time.Now()
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(session.ID), data, sessionTTL).Err()
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, sessionKey(id)).Err()
}
