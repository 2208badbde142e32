package postgres

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"quiz-attempt-service/internal/domain"
)

type quizModel struct {
	bun.BaseModel `bun:"table:quizzes,alias:qz"`

	ID                    string `bun:"id,pk"`
	Title                 string `bun:"title,notnull"`
	Description           string `bun:"description,notnull"`
	QuestionCount         int    `bun:"question_count,notnull"`
	TimeLimitMinutes      *int   `bun:"time_limit_minutes"`
	ShuffleQuestions      bool   `bun:"shuffle_questions,notnull"`
	ShuffleAnswers        bool   `bun:"shuffle_answers,notnull"`
	AllowMultipleAttempts bool   `bun:"allow_multiple_attempts,notnull"`
}

type questionModel struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ID          string `bun:"id,pk"`
	Text        string `bun:"text,notnull"`
	Explanation string `bun:"explanation,notnull"`
	Difficulty  string `bun:"difficulty,notnull"`
	ImagePath   string `bun:"image_path,notnull"`
}

type optionModel struct {
	bun.BaseModel `bun:"table:question_options,alias:qo"`

	ID           string `bun:"id,pk"`
	QuestionID   string `bun:"question_id,notnull"`
	Text         string `bun:"text,notnull"`
	IsCorrect    bool   `bun:"is_correct,notnull"`
	DisplayOrder int    `bun:"display_order,notnull"`
}

type quizQuestionModel struct {
	bun.BaseModel `bun:"table:quiz_question,alias:qq"`

	QuizID     string `bun:"quiz_id,pk"`
	QuestionID string `bun:"question_id,pk"`
	Position   int    `bun:"position,notnull"`
}

// ContentStore writes quiz content; QuizLoader reads it back.
type ContentStore struct {
	db *bun.DB
}

func NewContentStore(db *bun.DB) *ContentStore {
	return &ContentStore{db: db}
}

// SaveQuiz upserts a quiz with its questions and options in one transaction.
func (s *ContentStore) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		questionCount := quiz.QuestionCount
		if questionCount == 0 {
			questionCount = len(quiz.Questions)
		}
		qz := quizModel{
			ID:                    quiz.ID,
			Title:                 quiz.Title,
			Description:           quiz.Description,
			QuestionCount:         questionCount,
			TimeLimitMinutes:      quiz.TimeLimitMinutes,
			ShuffleQuestions:      quiz.ShuffleQuestions,
			ShuffleAnswers:        quiz.ShuffleAnswers,
			AllowMultipleAttempts: quiz.AllowMultipleAttempts,
		}
		_, err := tx.NewInsert().Model(&qz).
			On("CONFLICT (id) DO UPDATE").
			Set("title = EXCLUDED.title").
			Set("description = EXCLUDED.description").
			Set("question_count = EXCLUDED.question_count").
			Set("time_limit_minutes = EXCLUDED.time_limit_minutes").
			Set("shuffle_questions = EXCLUDED.shuffle_questions").
			Set("shuffle_answers = EXCLUDED.shuffle_answers").
			Set("allow_multiple_attempts = EXCLUDED.allow_multiple_attempts").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("save quiz %s: %w", quiz.ID, err)
		}

		if _, err := tx.NewDelete().Model((*quizQuestionModel)(nil)).Where("quiz_id = ?", quiz.ID).Exec(ctx); err != nil {
			return fmt.Errorf("clear quiz questions: %w", err)
		}
		for position, question := range quiz.Questions {
			if err := saveQuestion(ctx, tx, question); err != nil {
				return err
			}
			link := quizQuestionModel{QuizID: quiz.ID, QuestionID: question.ID, Position: position}
			if _, err := tx.NewInsert().Model(&link).Exec(ctx); err != nil {
				return fmt.Errorf("link question %s: %w", question.ID, err)
			}
		}
		return nil
	})
}

func saveQuestion(ctx context.Context, tx bun.Tx, question domain.Question) error {
	difficulty := question.Difficulty
	if difficulty == "" {
		difficulty = domain.DifficultyMedium
	}
	qm := questionModel{
		ID:          question.ID,
		Text:        question.Text,
		Explanation: question.Explanation,
		Difficulty:  string(difficulty),
		ImagePath:   question.ImagePath,
	}
	_, err := tx.NewInsert().Model(&qm).
		On("CONFLICT (id) DO UPDATE").
		Set("text = EXCLUDED.text").
		Set("explanation = EXCLUDED.explanation").
		Set("difficulty = EXCLUDED.difficulty").
		Set("image_path = EXCLUDED.image_path").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save question %s: %w", question.ID, err)
	}

	if _, err := tx.NewDelete().Model((*optionModel)(nil)).Where("question_id = ?", question.ID).Exec(ctx); err != nil {
		return fmt.Errorf("clear options: %w", err)
	}
	if len(question.Options) == 0 {
		return nil
	}
	options := make([]optionModel, len(question.Options))
	for i, opt := range question.Options {
		options[i] = optionModel{
			ID:           opt.ID,
			QuestionID:   question.ID,
			Text:         opt.Text,
			IsCorrect:    opt.Correct,
			DisplayOrder: opt.Order,
		}
	}
	if _, err := tx.NewInsert().Model(&options).Exec(ctx); err != nil {
		return fmt.Errorf("save options for %s: %w", question.ID, err)
	}
	return nil
}
