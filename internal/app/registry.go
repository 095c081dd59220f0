package app

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/domain"
)

const (
	pinMin  = 100000
	pinSpan = 900000
	// maxPinAttempts bounds the retry loop when the PIN space is crowded.
	maxPinAttempts = 1000

	summaryTimeout = 5 * time.Second
)

// Registry owns the lifetime of every live session, keyed by PIN.
type Registry struct {
	store     SessionRepository
	out       Broadcaster
	clock     clockwork.Clock
	settings  Settings
	summaries SummaryPublisher
	metrics   Metrics

	mu      sync.Mutex
	rnd     *rand.Rand
	nextPin func() string

	// publishing tracks in-flight summary publishes.
	publishing sync.WaitGroup
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithClock replaces the wall clock, e.g. with a clockwork fake in tests.
func WithClock(clock clockwork.Clock) RegistryOption {
	return func(r *Registry) { r.clock = clock }
}

func WithSettings(settings Settings) RegistryOption {
	return func(r *Registry) { r.settings = settings.withDefaults() }
}

// WithSummaryPublisher publishes a summary whenever a played game ends.
func WithSummaryPublisher(p SummaryPublisher) RegistryOption {
	return func(r *Registry) { r.summaries = p }
}

func WithMetrics(m Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// WithPinGenerator overrides PIN generation (deterministic PINs in tests).
func WithPinGenerator(next func() string) RegistryOption {
	return func(r *Registry) { r.nextPin = next }
}

func NewRegistry(store SessionRepository, out Broadcaster, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:    store,
		out:      out,
		clock:    clockwork.NewRealClock(),
		settings: DefaultSettings(),
		metrics:  nopMetrics{},
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	r.nextPin = r.randomPin
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create opens a lobby for the host under a fresh PIN.
func (r *Registry) Create(hostConn string, host domain.HostInfo) (string, error) {
	for attempt := 0; attempt < maxPinAttempts; attempt++ {
		pin := r.nextPin()
		session := newSession(pin, hostConn, host, r)
		if !r.store.Reserve(pin, session) {
			log.Debug().Str("pin", pin).Msg("pin collision, retrying")
			continue
		}
		r.metrics.GameCreated()
		// The host must be in the room before Create returns, so a disconnect
		// racing the session goroutine still reports this pin.
		r.out.JoinRoom(pin, hostConn)
		go session.run()
		log.Info().Str("pin", pin).Str("host_conn", hostConn).Msg("game created")
		return pin, nil
	}
	return "", domain.ErrPinExhausted
}

func (r *Registry) Get(pin string) (*Session, bool) {
	return r.store.Get(pin)
}

// Remove deletes the session, closes its room and stops its countdown.
// Unknown PINs are ignored.
func (r *Registry) Remove(pin string) {
	session, ok := r.store.Get(pin)
	if !ok {
		return
	}
	if r.store.Delete(pin, session) {
		r.metrics.GameEnded(session.QuestionsPlayed())
		r.out.CloseRoom(pin)
	}
	session.halt()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return len(r.store.List())
}

// Shutdown ends every live session, notifying each room, then waits for
// pending summaries until ctx is done.
func (r *Registry) Shutdown(ctx context.Context) {
	for _, session := range r.store.List() {
		if err := session.Terminate(ctx); err != nil {
			log.Warn().Err(err).Str("pin", session.Pin()).Msg("terminate session")
			r.Remove(session.Pin())
		}
	}

	done := make(chan struct{})
	go func() {
		r.publishing.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Err(ctx.Err()).Msg("game summaries still publishing at shutdown")
	}
}

// sessionEnded runs on the session goroutine right after game-ended was sent.
func (r *Registry) sessionEnded(session *Session, summary domain.GameSummary) {
	if r.store.Delete(session.Pin(), session) {
		r.metrics.GameEnded(summary.QuestionsPlayed)
	}
	if r.summaries == nil || summary.QuestionsPlayed == 0 {
		return
	}
	r.publishing.Add(1)
	go func() {
		defer r.publishing.Done()
		ctx, cancel := context.WithTimeout(context.Background(), summaryTimeout)
		defer cancel()
		if err := r.summaries.PublishSummary(ctx, summary); err != nil {
			log.Warn().Err(err).Str("pin", summary.Pin).Msg("publish game summary")
		}
	}()
}

// keepPin extends the PIN reservation while the game is still running.
func (r *Registry) keepPin(pin string) {
	go r.store.Refresh(pin)
}

func (r *Registry) randomPin() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strconv.Itoa(pinMin + r.rnd.Intn(pinSpan))
}
