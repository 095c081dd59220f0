package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/app"
)

const opTimeout = 2 * time.Second

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions themselves live in process; Redis holds one liveness marker per
// PIN (SET NX with TTL) so PINs stay unique even if several service
// processes share the database. Redis failures degrade to local-only
// bookkeeping.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Reserve(pin string, session *app.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.sessions[pin]; taken {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	ok, err := s.client.SetNX(ctx, s.key(pin), "1", s.ttl).Result()
	if err != nil {
		log.Warn().Err(err).Str("pin", pin).Msg("redis pin marker unavailable")
	} else if !ok {
		return false
	}
	s.sessions[pin] = session
	return true
}

func (s *SessionStore) Get(pin string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[pin]
	return session, ok
}

func (s *SessionStore) Delete(pin string, session *app.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions[pin]; !ok || current != session {
		return false
	}
	delete(s.sessions, pin)

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := s.client.Del(ctx, s.key(pin)).Err(); err != nil {
		log.Warn().Err(err).Str("pin", pin).Msg("redis pin marker not cleared")
	}
	return true
}

// Refresh pushes the marker expiry out by another TTL so long games keep
// their pin. Markers of pins no longer held locally are left alone.
func (s *SessionStore) Refresh(pin string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, held := s.sessions[pin]; !held {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	ok, err := s.client.Expire(ctx, s.key(pin), s.ttl).Result()
	if err != nil {
		log.Warn().Err(err).Str("pin", pin).Msg("redis pin marker not refreshed")
		return
	}
	if !ok {
		// The marker already expired; take it back.
		if err := s.client.SetNX(ctx, s.key(pin), "1", s.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("pin", pin).Msg("redis pin marker not restored")
		}
	}
}

func (s *SessionStore) List() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

func (s *SessionStore) key(pin string) string {
	return "quiz:game:" + pin
}
