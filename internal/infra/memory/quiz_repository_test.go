package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"live-quiz-service/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if got := loader.calls.Load(); got != 1 {
		t.Fatalf("expected loader once, got %d", got)
	}
}

func TestQuizRepositoryExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})}
	repo := NewQuizRepositoryWithClock(loader, time.Minute, clock)

	_, _ = repo.GetQuiz(context.Background(), "quiz-1")
	clock.Advance(2 * time.Minute)
	_, _ = repo.GetQuiz(context.Background(), "quiz-1")
	if got := loader.calls.Load(); got != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", got)
	}

	repo.Invalidate("quiz-1")
	_, _ = repo.GetQuiz(context.Background(), "quiz-1")
	if got := loader.calls.Load(); got != 3 {
		t.Fatalf("expected reload after invalidate, loader calls %d", got)
	}
}

func TestQuizRepositoryDoesNotCacheUnplayableQuiz(t *testing.T) {
	empty := domain.Quiz{ID: "empty"}
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{"empty": empty})}
	repo := NewQuizRepository(loader, time.Minute)

	for i := 0; i < 2; i++ {
		quiz, err := repo.GetQuiz(context.Background(), "empty")
		if err != nil {
			t.Fatalf("get quiz: %v", err)
		}
		if len(quiz.Questions) != 0 {
			t.Fatalf("expected empty quiz, got %+v", quiz)
		}
	}
	if got := loader.calls.Load(); got != 2 {
		t.Fatalf("expected no caching of empty quiz, loader calls %d", got)
	}
}

func TestStaticQuizLoaderNotFound(t *testing.T) {
	loader := NewStaticQuizLoader(nil)
	if _, err := loader.LoadQuiz(context.Background(), "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

type countingLoader struct {
	QuizLoader
	calls atomic.Int32
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls.Add(1)
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Arithmetic",
		Questions: []domain.Question{
			{ID: "q1", Text: "What is 2 + 2?", Options: []string{"3", "4"}, CorrectIndex: 1},
		},
	}
}
