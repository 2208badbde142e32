package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"quiz-attempt-service/internal/domain"
)

// QuizLoader loads quiz content from the relational content tables.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var (
		quiz      domain.Quiz
		timeLimit *int32
	)
	err := l.pool.QueryRow(ctx, `
		SELECT id, title, description, question_count, time_limit_minutes,
		       shuffle_questions, shuffle_answers, allow_multiple_attempts
		FROM quizzes WHERE id = $1`, quizID).
		Scan(&quiz.ID, &quiz.Title, &quiz.Description, &quiz.QuestionCount, &timeLimit,
			&quiz.ShuffleQuestions, &quiz.ShuffleAnswers, &quiz.AllowMultipleAttempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	if timeLimit != nil {
		minutes := int(*timeLimit)
		quiz.TimeLimitMinutes = &minutes
	}

	questions, err := l.loadQuestions(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.Questions = questions
	return quiz, nil
}

func (l *QuizLoader) loadQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT q.id, q.text, q.explanation, q.difficulty, q.image_path
		FROM quiz_question qq
		JOIN questions q ON q.id = qq.question_id
		WHERE qq.quiz_id = $1
		ORDER BY qq.position, q.id`, quizID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var (
		questions []domain.Question
		ids       []string
	)
	for rows.Next() {
		var q domain.Question
		var difficulty string
		if err := rows.Scan(&q.ID, &q.Text, &q.Explanation, &difficulty, &q.ImagePath); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Difficulty = domain.Difficulty(difficulty)
		questions = append(questions, q)
		ids = append(ids, q.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	if len(questions) == 0 {
		return questions, nil
	}

	options, err := l.loadOptions(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range questions {
		questions[i].Options = options[questions[i].ID]
	}
	return questions, nil
}

func (l *QuizLoader) loadOptions(ctx context.Context, questionIDs []string) (map[string][]domain.Option, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT question_id, id, text, is_correct, display_order
		FROM question_options
		WHERE question_id = ANY($1)
		ORDER BY question_id, display_order, id`, questionIDs)
	if err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}
	defer rows.Close()

	options := make(map[string][]domain.Option, len(questionIDs))
	for rows.Next() {
		var questionID string
		var opt domain.Option
		if err := rows.Scan(&questionID, &opt.ID, &opt.Text, &opt.Correct, &opt.Order); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		options[questionID] = append(options[questionID], opt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate options: %w", err)
	}
	return options, nil
}
