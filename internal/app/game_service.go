package app

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/domain"
)

// GameService contains the live game use cases the gateway calls into.
type GameService struct {
	registry *Registry
	quizzes  QuizRepository
}

func NewGameService(registry *Registry, quizzes QuizRepository) *GameService {
	return &GameService{registry: registry, quizzes: quizzes}
}

// CreateGame opens a lobby hosted by hostConn and returns its PIN.
func (g *GameService) CreateGame(_ context.Context, hostConn string, host domain.HostInfo) (string, error) {
	return g.registry.Create(hostConn, host)
}

// JoinGame adds a player to a lobby.
func (g *GameService) JoinGame(ctx context.Context, connID, pin, nickname string) error {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return domain.ErrInvalidNickname
	}
	session, ok := g.registry.Get(pin)
	if !ok {
		return domain.ErrInvalidSession
	}
	return session.Join(ctx, connID, nickname)
}

// JoinRoom subscribes a connection to a game's broadcasts.
func (g *GameService) JoinRoom(ctx context.Context, connID, pin string) error {
	session, ok := g.registry.Get(pin)
	if !ok {
		return domain.ErrInvalidSession
	}
	return session.JoinRoom(ctx, connID)
}

// StartGame starts the game. Requests from anyone but the host are ignored.
func (g *GameService) StartGame(ctx context.Context, connID, pin string) error {
	session, ok := g.registry.Get(pin)
	if !ok {
		return domain.ErrInvalidSession
	}
	return ignoreSilent(pin, "start", session.Start(ctx, connID, g.quizzes))
}

// SubmitAnswer records a player's answer. Duplicates are dropped.
func (g *GameService) SubmitAnswer(ctx context.Context, connID, pin string, selected int) error {
	session, ok := g.registry.Get(pin)
	if !ok {
		return domain.ErrInvalidSession
	}
	return ignoreSilent(pin, "submit", session.SubmitAnswer(ctx, connID, selected))
}

func (g *GameService) NextQuestion(ctx context.Context, connID, pin string) error {
	session, ok := g.registry.Get(pin)
	if !ok {
		return domain.ErrInvalidSession
	}
	return ignoreSilent(pin, "next", session.Advance(ctx, connID))
}

func (g *GameService) EndGame(ctx context.Context, connID, pin string) error {
	session, ok := g.registry.Get(pin)
	if !ok {
		return domain.ErrInvalidSession
	}
	return ignoreSilent(pin, "end", session.EndNow(ctx, connID))
}

// Disconnect removes a closed connection from every game it belonged to.
func (g *GameService) Disconnect(ctx context.Context, connID string, pins []string) {
	for _, pin := range pins {
		session, ok := g.registry.Get(pin)
		if !ok {
			continue
		}
		if err := session.Disconnect(ctx, connID); err != nil && !errors.Is(err, domain.ErrInvalidSession) {
			log.Warn().Err(err).Str("pin", pin).Str("conn_id", connID).Msg("disconnect")
		}
	}
}

func (g *GameService) Status(ctx context.Context, pin string) (domain.SessionStatus, error) {
	session, ok := g.registry.Get(pin)
	if !ok {
		return domain.SessionStatus{}, domain.ErrInvalidSession
	}
	return session.Status(ctx)
}

// Shutdown ends all live games.
func (g *GameService) Shutdown(ctx context.Context) {
	g.registry.Shutdown(ctx)
}

// ignoreSilent swallows the errors that are not reported to clients.
func ignoreSilent(pin, op string, err error) error {
	if errors.Is(err, domain.ErrNotAuthorized) || errors.Is(err, domain.ErrAlreadyAnswered) {
		log.Debug().Err(err).Str("pin", pin).Str("op", op).Msg("ignored")
		return nil
	}
	return err
}
