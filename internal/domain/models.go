package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Question is a single multiple-choice question. CorrectIndex is 0-based.
type Question struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
}

// Validate checks the option count and the correct index bounds.
func (q Question) Validate() error {
	if len(q.Options) < 2 {
		return fmt.Errorf("question %q: needs at least 2 options, got %d", q.ID, len(q.Options))
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return fmt.Errorf("question %q: correct index %d out of bounds", q.ID, q.CorrectIndex)
	}
	return nil
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Validate reports whether the quiz is playable in a live game.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return fmt.Errorf("quiz %q has no questions", q.ID)
	}
	for _, question := range q.Questions {
		if err := question.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Player is a participant bound to one transport connection.
type Player struct {
	ConnID   string `json:"id"`
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
}

// LeaderboardEntry is one ranked row of the leaderboard.
type LeaderboardEntry struct {
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
}

// State is the lifecycle state of a live game session.
type State string

const (
	StateLobby  State = "lobby"
	StateActive State = "active"
	StateEnded  State = "ended"
)

// QuizRef identifies a quiz. Clients send it either as a string or a number.
type QuizRef string

func (r *QuizRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = QuizRef(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("quiz ref: %w", err)
	}
	*r = QuizRef(n.String())
	return nil
}

// HostInfo is what the host sends with create-game.
type HostInfo struct {
	QuizID    QuizRef `json:"quizId"`
	QuizIDAlt QuizRef `json:"quiz_id"`
	ID        QuizRef `json:"id"`
	Token     string  `json:"token,omitempty"`
}

// QuizRef returns the first quiz identifier the host supplied.
func (h HostInfo) QuizRef() string {
	for _, ref := range []QuizRef{h.QuizID, h.QuizIDAlt, h.ID} {
		if ref != "" {
			return string(ref)
		}
	}
	return ""
}

// SessionStatus is a read-only view of a live session.
type SessionStatus struct {
	Pin           string   `json:"pin"`
	State         State    `json:"state"`
	Players       []Player `json:"players"`
	QuestionIndex int      `json:"questionIndex"`
	Total         int      `json:"total"`
}

// GameSummary describes a finished game.
type GameSummary struct {
	Pin             string             `json:"pin"`
	QuizID          string             `json:"quizId"`
	QuestionsPlayed int                `json:"questionsPlayed"`
	Leaderboard     []LeaderboardEntry `json:"leaderboard"`
	EndedAt         time.Time          `json:"endedAt"`
}
