package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/domain"
)

const (
	selectQuiz = `SELECT id::text, title FROM quizzes WHERE id::text = $1`

	selectQuestions = `SELECT id::text, question_text, options, correct_index
		FROM questions
		WHERE quiz_id::text = $1
		ORDER BY order_index, id`
)

// QuizLoader reads quizzes and their ordered questions from the authoring tables.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz := domain.Quiz{}
	err := l.pool.QueryRow(ctx, selectQuiz, quizID).Scan(&quiz.ID, &quiz.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizID)
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}

	rows, err := l.pool.Query(ctx, selectQuestions, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, text   string
			rawOptions []byte
			correct    *int32
		)
		if err := rows.Scan(&id, &text, &rawOptions, &correct); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan question: %w", err)
		}
		question, err := buildQuestion(id, text, rawOptions, correct)
		if err != nil {
			return domain.Quiz{}, err
		}
		quiz.Questions = append(quiz.Questions, question)
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	return quiz, nil
}

// buildQuestion maps one questions row. A missing answer key makes the row unplayable.
func buildQuestion(id, text string, rawOptions []byte, correct *int32) (domain.Question, error) {
	var options []string
	if err := json.Unmarshal(rawOptions, &options); err != nil {
		return domain.Question{}, fmt.Errorf("unmarshal options of question %s: %w", id, err)
	}
	if correct == nil {
		return domain.Question{}, fmt.Errorf("%w: question %s has no correct index", domain.ErrQuizUnavailable, id)
	}
	question := domain.Question{
		ID:           id,
		Text:         text,
		Options:      options,
		CorrectIndex: int(*correct),
	}
	if err := question.Validate(); err != nil {
		return domain.Question{}, fmt.Errorf("%w: %w", domain.ErrQuizUnavailable, err)
	}
	return question, nil
}
