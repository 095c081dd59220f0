package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/domain"
)

var errMissingQuizRef = errors.New("quiz ID missing")

// Settings tunes the question cycle.
type Settings struct {
	// QuestionSeconds is the countdown length, in ticks.
	QuestionSeconds int
	TickInterval    time.Duration
	// StartTimeout bounds the quiz lookup when a game starts.
	StartTimeout time.Duration
}

// DefaultSettings returns a 20 tick countdown at one tick per second.
func DefaultSettings() Settings {
	return Settings{
		QuestionSeconds: 20,
		TickInterval:    time.Second,
		StartTimeout:    5 * time.Second,
	}
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.QuestionSeconds <= 0 {
		s.QuestionSeconds = def.QuestionSeconds
	}
	if s.TickInterval <= 0 {
		s.TickInterval = def.TickInterval
	}
	if s.StartTimeout <= 0 {
		s.StartTimeout = def.StartTimeout
	}
	return s
}

type command func()

// Session is one live game. All state below the inbox is owned by the run
// loop goroutine; every operation, including countdown ticks, is funneled
// through the inbox and applied one at a time.
type Session struct {
	pin      string
	hostConn string
	host     domain.HostInfo
	settings Settings
	clock    clockwork.Clock
	out      Broadcaster
	metrics  Metrics
	onEnd    func(*Session, domain.GameSummary)
	keepPin  func(pin string)

	// played mirrors the number of questions shown, for readers outside the run loop.
	played atomic.Int32

	inbox    chan command
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}

	state     domain.State
	players   []*domain.Player
	quiz      domain.Quiz
	index     int
	answers   map[string]int
	closed    bool
	timeLeft  int
	seq       uint64
	countdown *Countdown
}

func newSession(pin, hostConn string, host domain.HostInfo, r *Registry) *Session {
	return &Session{
		pin:      pin,
		hostConn: hostConn,
		host:     host,
		settings: r.settings,
		clock:    r.clock,
		out:      r.out,
		metrics:  r.metrics,
		onEnd:    r.sessionEnded,
		keepPin:  r.keepPin,
		inbox:    make(chan command),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		state:    domain.StateLobby,
		index:    -1,
	}
}

// Pin returns the session PIN.
func (s *Session) Pin() string { return s.pin }

// HostConn returns the connection ID of the host.
func (s *Session) HostConn() string { return s.hostConn }

// QuestionsPlayed returns how many questions have been shown so far.
func (s *Session) QuestionsPlayed() int { return int(s.played.Load()) }

// Done is closed once the session has stopped processing commands.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) run() {
	defer close(s.done)
	s.broadcastLobby()
	for s.state != domain.StateEnded {
		select {
		case cmd := <-s.inbox:
			cmd()
		case <-s.quit:
			s.stopCountdown()
			s.state = domain.StateEnded
		}
	}
}

// do runs fn on the session goroutine and waits for it to finish.
func (s *Session) do(ctx context.Context, fn func()) error {
	reply := make(chan struct{})
	cmd := func() {
		defer close(reply)
		fn()
	}
	select {
	case s.inbox <- cmd:
	case <-s.done:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-reply
	return nil
}

func (s *Session) call(ctx context.Context, fn func() error) error {
	var err error
	if perr := s.do(ctx, func() { err = fn() }); perr != nil {
		if errors.Is(perr, domain.ErrSessionClosed) {
			return domain.ErrInvalidSession
		}
		return perr
	}
	return err
}

// post enqueues cmd without waiting for it to run.
func (s *Session) post(cmd command, cancelled <-chan struct{}) bool {
	select {
	case s.inbox <- cmd:
		return true
	case <-s.done:
		return false
	case <-cancelled:
		return false
	}
}

// halt stops the run loop without broadcasting anything.
func (s *Session) halt() {
	s.quitOnce.Do(func() { close(s.quit) })
}

// Join adds a player to the lobby.
func (s *Session) Join(ctx context.Context, connID, nickname string) error {
	return s.call(ctx, func() error { return s.join(connID, nickname) })
}

// JoinRoom subscribes a connection to the room and, when a question is
// running, sends it the current question.
func (s *Session) JoinRoom(ctx context.Context, connID string) error {
	return s.call(ctx, func() error {
		s.joinRoom(connID)
		return nil
	})
}

// Start loads the quiz and opens the first question. Only the host may start
// a game, and only from the lobby.
func (s *Session) Start(ctx context.Context, requester string, quizzes QuizRepository) error {
	return s.call(ctx, func() error { return s.start(ctx, requester, quizzes) })
}

// SubmitAnswer records the first answer of a player for the open question.
func (s *Session) SubmitAnswer(ctx context.Context, connID string, selected int) error {
	return s.call(ctx, func() error { return s.submit(connID, selected) })
}

// Advance moves to the next question, or ends the game after the last one.
func (s *Session) Advance(ctx context.Context, requester string) error {
	return s.call(ctx, func() error { return s.advance(requester) })
}

// EndNow closes the open question, if any, and ends the game.
func (s *Session) EndNow(ctx context.Context, requester string) error {
	return s.call(ctx, func() error { return s.endNow(requester) })
}

// Disconnect removes a connection from the game. A host disconnect ends it.
func (s *Session) Disconnect(ctx context.Context, connID string) error {
	return s.call(ctx, func() error {
		s.disconnect(connID)
		return nil
	})
}

// Terminate ends the game for everyone regardless of state.
func (s *Session) Terminate(ctx context.Context) error {
	return s.call(ctx, func() error {
		s.end()
		return nil
	})
}

// Status returns a snapshot of the session.
func (s *Session) Status(ctx context.Context) (domain.SessionStatus, error) {
	var status domain.SessionStatus
	err := s.call(ctx, func() error {
		status = domain.SessionStatus{
			Pin:           s.pin,
			State:         s.state,
			Players:       s.roster(),
			QuestionIndex: s.index,
			Total:         len(s.quiz.Questions),
		}
		return nil
	})
	return status, err
}

func (s *Session) join(connID, nickname string) error {
	if s.state != domain.StateLobby {
		return domain.ErrInvalidSession
	}
	if s.playerIndex(connID) >= 0 {
		return nil
	}
	s.players = append(s.players, &domain.Player{ConnID: connID, Nickname: nickname})
	s.out.JoinRoom(s.pin, connID)
	s.broadcastLobby()
	log.Info().Str("pin", s.pin).Str("conn_id", connID).Int("players", len(s.players)).Msg("player joined")
	return nil
}

func (s *Session) joinRoom(connID string) {
	s.out.JoinRoom(s.pin, connID)
	if s.state == domain.StateActive {
		s.out.ToConn(connID, domain.Event{Type: domain.EventShowQuestion, Payload: s.questionView()})
	}
}

func (s *Session) start(ctx context.Context, requester string, quizzes QuizRepository) error {
	if requester != s.hostConn {
		return domain.ErrNotAuthorized
	}
	if s.state != domain.StateLobby {
		return domain.ErrInvalidSession
	}
	s.state = domain.StateActive

	quiz, err := s.resolveQuiz(ctx, quizzes)
	if err != nil {
		log.Warn().Err(err).Str("pin", s.pin).Msg("cannot start game")
		message := "Failed to fetch quiz questions."
		if errors.Is(err, errMissingQuizRef) {
			message = "Quiz ID missing. Cannot start game."
		}
		s.out.ToConn(s.hostConn, domain.Event{Type: domain.EventGameError, Payload: message})
		s.end()
		return err
	}

	s.quiz = quiz
	log.Info().Str("pin", s.pin).Str("quiz_id", quiz.ID).Int("questions", len(quiz.Questions)).Msg("game started")
	s.out.ToRoom(s.pin, domain.Event{Type: domain.EventGameStarted})
	s.openQuestion(0)
	return nil
}

func (s *Session) resolveQuiz(ctx context.Context, quizzes QuizRepository) (domain.Quiz, error) {
	ref := s.host.QuizRef()
	if ref == "" {
		return domain.Quiz{}, fmt.Errorf("%w: %w", domain.ErrQuizUnavailable, errMissingQuizRef)
	}
	fetchCtx, cancel := context.WithTimeout(ctx, s.settings.StartTimeout)
	defer cancel()

	quiz, err := quizzes.GetQuiz(fetchCtx, ref)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: %w", domain.ErrQuizUnavailable, err)
	}
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: %w", domain.ErrQuizUnavailable, err)
	}
	return quiz, nil
}

func (s *Session) openQuestion(index int) {
	s.stopCountdown()
	s.index = index
	s.answers = make(map[string]int, len(s.players))
	s.closed = false
	s.timeLeft = s.settings.QuestionSeconds
	s.seq++
	s.played.Store(int32(index + 1))
	if s.keepPin != nil {
		s.keepPin(s.pin)
	}

	s.out.ToRoom(s.pin, domain.Event{Type: domain.EventShowQuestion, Payload: s.questionView()})

	seq := s.seq
	s.countdown = startCountdown(s.clock, s.settings.TickInterval, s.timeLeft, func(left int, cancelled <-chan struct{}) bool {
		return s.post(func() { s.tick(seq, left) }, cancelled)
	})
	log.Debug().Str("pin", s.pin).Int("index", index).Msg("question opened")
}

func (s *Session) tick(seq uint64, left int) {
	// Ticks from a countdown that was replaced or cancelled are stale.
	if s.state != domain.StateActive || s.closed || seq != s.seq {
		return
	}
	s.timeLeft = left
	s.out.ToRoom(s.pin, domain.Event{Type: domain.EventTimerUpdate, Payload: domain.TimerUpdate{TimeLeft: left}})
	if left <= 0 {
		s.closeQuestion("timer")
	}
}

func (s *Session) submit(connID string, selected int) error {
	if s.state != domain.StateActive {
		return domain.ErrInvalidSession
	}
	if s.closed {
		return nil
	}
	if s.playerIndex(connID) < 0 {
		return domain.ErrNotAuthorized
	}
	if _, ok := s.answers[connID]; ok {
		return domain.ErrAlreadyAnswered
	}
	s.answers[connID] = selected
	s.metrics.AnswerRecorded()
	s.out.ToConn(s.hostConn, domain.Event{Type: domain.EventAnswerCount, Payload: len(s.answers)})
	s.closeIfAllAnswered()
	return nil
}

func (s *Session) closeIfAllAnswered() {
	if len(s.answers) >= len(s.players) {
		s.closeQuestion("all_answered")
	}
}

// closeQuestion grades the open question. It runs at most once per question.
func (s *Session) closeQuestion(trigger string) bool {
	if s.state != domain.StateActive || s.closed {
		return false
	}
	s.closed = true
	s.stopCountdown()
	s.metrics.QuestionClosed(trigger)

	question := s.quiz.Questions[s.index]
	for i, outcome := range Score(question, s.answers, s.players) {
		s.players[i].Score += outcome.Delta
		s.out.ToConn(outcome.ConnID, domain.Event{
			Type:    domain.EventAnswerResult,
			Payload: domain.AnswerResult{Correct: outcome.Correct, CorrectIndex: outcome.CorrectIndex},
		})
	}
	s.out.ToRoom(s.pin, domain.Event{Type: domain.EventCorrectAnswer, Payload: domain.CorrectAnswer{CorrectIndex: question.CorrectIndex}})
	s.out.ToRoom(s.pin, domain.Event{Type: domain.EventLeaderboard, Payload: Leaderboard(s.players)})

	log.Info().
		Str("pin", s.pin).
		Int("index", s.index).
		Int("answers", len(s.answers)).
		Str("trigger", trigger).
		Msg("question closed")
	return true
}

func (s *Session) advance(requester string) error {
	if requester != s.hostConn {
		return domain.ErrNotAuthorized
	}
	if s.state != domain.StateActive {
		return domain.ErrInvalidSession
	}
	s.stopCountdown()
	next := s.index + 1
	if next < len(s.quiz.Questions) {
		s.openQuestion(next)
		return nil
	}
	s.end()
	return nil
}

func (s *Session) endNow(requester string) error {
	if requester != s.hostConn {
		return domain.ErrNotAuthorized
	}
	if s.state != domain.StateActive {
		return domain.ErrInvalidSession
	}
	s.closeQuestion("host_ended")
	s.end()
	return nil
}

func (s *Session) disconnect(connID string) {
	if connID == s.hostConn {
		log.Info().Str("pin", s.pin).Msg("host disconnected")
		s.end()
		return
	}
	idx := s.playerIndex(connID)
	if idx < 0 {
		return
	}
	s.players = slices.Delete(s.players, idx, idx+1)
	delete(s.answers, connID)
	log.Info().Str("pin", s.pin).Str("conn_id", connID).Int("players", len(s.players)).Msg("player left")

	switch s.state {
	case domain.StateLobby:
		s.broadcastLobby()
	case domain.StateActive:
		if !s.closed {
			s.closeIfAllAnswered()
		}
	}
}

// end broadcasts game-ended as the final room message and releases the PIN.
func (s *Session) end() {
	if s.state == domain.StateEnded {
		return
	}
	s.stopCountdown()
	s.state = domain.StateEnded
	s.out.ToRoom(s.pin, domain.Event{Type: domain.EventGameEnded})
	s.out.CloseRoom(s.pin)
	log.Info().Str("pin", s.pin).Msg("game ended")
	if s.onEnd != nil {
		s.onEnd(s, s.summary())
	}
}

func (s *Session) summary() domain.GameSummary {
	return domain.GameSummary{
		Pin:             s.pin,
		QuizID:          s.quiz.ID,
		QuestionsPlayed: s.QuestionsPlayed(),
		Leaderboard:     Leaderboard(s.players),
		EndedAt:         s.clock.Now(),
	}
}

func (s *Session) stopCountdown() {
	s.countdown.Cancel()
	s.countdown = nil
}

func (s *Session) broadcastLobby() {
	s.out.ToRoom(s.pin, domain.Event{
		Type:    domain.EventLobbyUpdate,
		Payload: domain.LobbySnapshot{Pin: s.pin, State: s.state, Players: s.roster()},
	})
}

func (s *Session) questionView() domain.QuestionView {
	question := s.quiz.Questions[s.index]
	return domain.QuestionView{
		QuestionText: question.Text,
		Options:      slices.Clone(question.Options),
		Index:        s.index,
		Total:        len(s.quiz.Questions),
		TimeLeft:     s.timeLeft,
	}
}

func (s *Session) roster() []domain.Player {
	players := make([]domain.Player, 0, len(s.players))
	for _, player := range s.players {
		players = append(players, *player)
	}
	return players
}

func (s *Session) playerIndex(connID string) int {
	return slices.IndexFunc(s.players, func(p *domain.Player) bool { return p.ConnID == connID })
}
