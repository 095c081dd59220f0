package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/domain"
)

// DefaultSubject is where finished-game summaries go unless configured otherwise.
const DefaultSubject = "quiz.games.ended"

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher sends game summaries to NATS, one message per finished game.
type Publisher struct {
	conn    Conn
	subject string
	closer  func()
}

// Connect dials NATS with reconnects enabled and returns a publisher on subject.
func Connect(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("live-quiz-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	p := NewPublisher(nc, subject)
	p.closer = func() {
		if err := nc.Drain(); err != nil {
			nc.Close()
		}
	}
	return p, nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{conn: conn, subject: subject}
}

func (p *Publisher) PublishSummary(ctx context.Context, summary domain.GameSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish summary: %w", err)
	}
	log.Debug().Str("pin", summary.Pin).Str("subject", p.subject).Msg("game summary published")
	return nil
}

// Close drains the underlying connection when the publisher owns it.
func (p *Publisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}
