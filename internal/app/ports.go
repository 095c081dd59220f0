package app

import (
	"context"

	"live-quiz-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// SessionRepository indexes live sessions by PIN (in-memory, Redis, etc).
type SessionRepository interface {
	// Reserve stores the session under pin unless the pin is already taken.
	Reserve(pin string, session *Session) bool
	Get(pin string) (*Session, bool)
	// Delete removes pin only while it still maps to session.
	Delete(pin string, session *Session) bool
	List() []*Session
	// Refresh extends the reservation of a live pin.
	Refresh(pin string)
}

// Broadcaster delivers session output to transport connections.
// Calls made from one session are delivered to each connection in call order.
type Broadcaster interface {
	ToRoom(pin string, event domain.Event)
	ToConn(connID string, event domain.Event)
	JoinRoom(pin, connID string)
	CloseRoom(pin string)
}

// SummaryPublisher receives a summary for every game that played at least one question.
type SummaryPublisher interface {
	PublishSummary(ctx context.Context, summary domain.GameSummary) error
}

// Metrics observes the game lifecycle.
type Metrics interface {
	GameCreated()
	GameEnded(questionsPlayed int)
	QuestionClosed(trigger string)
	AnswerRecorded()
}

type nopMetrics struct{}

func (nopMetrics) GameCreated()          {}
func (nopMetrics) GameEnded(int)         {}
func (nopMetrics) QuestionClosed(string) {}
func (nopMetrics) AnswerRecorded()       {}
