package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

type sent struct {
	Room  string
	Conn  string
	Event domain.Event
}

// recorder is an in-memory Broadcaster.
type recorder struct {
	mu     sync.Mutex
	events []sent
	rooms  map[string]map[string]bool
}

func newRecorder() *recorder {
	return &recorder{rooms: make(map[string]map[string]bool)}
}

func (r *recorder) ToRoom(pin string, event domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sent{Room: pin, Event: event})
}

func (r *recorder) ToConn(connID string, event domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sent{Conn: connID, Event: event})
}

func (r *recorder) JoinRoom(pin, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[pin] == nil {
		r.rooms[pin] = make(map[string]bool)
	}
	r.rooms[pin][connID] = true
}

func (r *recorder) CloseRoom(pin string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, pin)
}

func (r *recorder) snapshot() []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sent(nil), r.events...)
}

func (r *recorder) ofType(typ string) []sent {
	var out []sent
	for _, e := range r.snapshot() {
		if e.Event.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) last(typ string) (sent, bool) {
	events := r.ofType(typ)
	if len(events) == 0 {
		return sent{}, false
	}
	return events[len(events)-1], true
}

func (r *recorder) inRoom(pin, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[pin][connID]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitForTimer(t *testing.T, rec *recorder, left int) {
	t.Helper()
	waitFor(t, fmt.Sprintf("timer-update %d", left), func() bool {
		ev, ok := rec.last(domain.EventTimerUpdate)
		return ok && ev.Event.Payload.(domain.TimerUpdate).TimeLeft == left
	})
}

// mapStore is a minimal SessionRepository.
type mapStore struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	refreshed map[string]int
}

func newMapStore() *mapStore {
	return &mapStore{sessions: make(map[string]*Session), refreshed: make(map[string]int)}
}

func (s *mapStore) Reserve(pin string, session *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[pin]; ok {
		return false
	}
	s.sessions[pin] = session
	return true
}

func (s *mapStore) Get(pin string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[pin]
	return session, ok
}

func (s *mapStore) Delete(pin string, session *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[pin] != session {
		return false
	}
	delete(s.sessions, pin)
	return true
}

func (s *mapStore) Refresh(pin string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshed[pin]++
}

func (s *mapStore) refreshes(pin string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshed[pin]
}

func (s *mapStore) List() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

type staticQuizzes map[string]domain.Quiz

func (q staticQuizzes) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	quiz, ok := q[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func fixedPins(pins ...string) func() string {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		pin := pins[i%len(pins)]
		i++
		return pin
	}
}

func twoQuestionQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Basics",
		Questions: []domain.Question{
			{ID: "q1", Text: "Which is even?", Options: []string{"3", "4", "5"}, CorrectIndex: 1},
			{ID: "q2", Text: "Sky color?", Options: []string{"Blue", "Green"}, CorrectIndex: 0},
		},
	}
}
