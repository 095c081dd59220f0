package domain

// Outbound event names.
const (
	EventLobbyUpdate   = "lobby-update"
	EventGameStarted   = "game-started"
	EventShowQuestion  = "show-question"
	EventTimerUpdate   = "timer-update"
	EventAnswerResult  = "answer-result"
	EventCorrectAnswer = "show-correct-answer"
	EventLeaderboard   = "leaderboard"
	EventAnswerCount   = "answer-count"
	EventGameEnded     = "game-ended"
	EventGameError     = "game-error"
)

// Event is one server-to-client message.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// LobbySnapshot is the lobby-update payload.
type LobbySnapshot struct {
	Pin     string   `json:"pin"`
	State   State    `json:"state"`
	Players []Player `json:"players"`
}

// QuestionView is what players see of a question; it never carries the correct index.
type QuestionView struct {
	QuestionText string   `json:"questionText"`
	Options      []string `json:"options"`
	Index        int      `json:"index"`
	Total        int      `json:"total"`
	TimeLeft     int      `json:"timeLeft"`
}

type TimerUpdate struct {
	TimeLeft int `json:"timeLeft"`
}

// AnswerResult is sent privately to each player when a question closes.
type AnswerResult struct {
	Correct      bool `json:"correct"`
	CorrectIndex int  `json:"correctIndex"`
}

type CorrectAnswer struct {
	CorrectIndex int `json:"correctIndex"`
}
