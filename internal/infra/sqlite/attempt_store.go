package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

type attemptRow struct {
	ID               string    `gorm:"primaryKey"`
	UserID           string    `gorm:"not null;index:idx_attempts_user_quiz"`
	QuizID           string    `gorm:"not null;index:idx_attempts_user_quiz"`
	StartedAt        time.Time `gorm:"not null"`
	SubmittedAt      *time.Time
	Score            decimal.NullDecimal `gorm:"type:numeric(5,2)"`
	CorrectCount     *int
	WrongCount       *int
	TimeTakenSeconds *int
}

func (attemptRow) TableName() string { return "attempts" }

type answerRow struct {
	ID               string `gorm:"primaryKey"`
	AttemptID        string `gorm:"not null;uniqueIndex:ux_attempt_answers_attempt_question"`
	QuestionID       string `gorm:"not null;uniqueIndex:ux_attempt_answers_attempt_question"`
	SelectedOptionID *string
	IsCorrect        *bool
	TimeSpentSeconds *int
	UpdatedAt        time.Time `gorm:"autoUpdateTime:false"`
}

func (answerRow) TableName() string { return "attempt_answers" }

// At most one open attempt per (user, quiz); submitted rows fall out of the index.
const openAttemptIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_attempts_open ON attempts(user_id, quiz_id) WHERE submitted_at IS NULL`

// AttemptStore persists attempts in a SQLite file through gorm.
type AttemptStore struct {
	db *gorm.DB
}

// Open connects to the SQLite database at dsn and migrates the attempt tables.
func Open(dsn string) (*AttemptStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// SQLite allows one writer; a single connection keeps transactions serialized.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&attemptRow{}, &answerRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	if err := db.Exec(openAttemptIndex).Error; err != nil {
		return nil, fmt.Errorf("create open attempt index: %w", err)
	}
	return &AttemptStore{db: db}, nil
}

func (s *AttemptStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *AttemptStore) HasSubmittedAttempt(ctx context.Context, userID, quizID string) (bool, error) {
	return hasSubmitted(s.db.WithContext(ctx), userID, quizID)
}

func hasSubmitted(db *gorm.DB, userID, quizID string) (bool, error) {
	var n int64
	err := db.Model(&attemptRow{}).
		Where("user_id = ? AND quiz_id = ? AND submitted_at IS NOT NULL", userID, quizID).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("count submitted attempts: %w", err)
	}
	return n > 0, nil
}

func (s *AttemptStore) ListSubmitted(ctx context.Context, userID, quizID string) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND quiz_id = ? AND submitted_at IS NOT NULL", userID, quizID).
		Order("submitted_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list submitted attempts: %w", err)
	}
	attempts := make([]domain.Attempt, len(rows))
	for i, row := range rows {
		attempts[i] = row.toDomain()
	}
	return attempts, nil
}

func (s *AttemptStore) FindInProgress(ctx context.Context, userID, quizID string) (domain.Attempt, error) {
	var row attemptRow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND quiz_id = ? AND submitted_at IS NULL", userID, quizID).
		Take(&row).Error
	if err != nil {
		return domain.Attempt{}, notFound(err, "find open attempt")
	}
	return row.toDomain(), nil
}

// CreateAttempt inserts a new open attempt. The retake check shares the insert's
// transaction; the single connection serializes it against Finalize.
func (s *AttemptStore) CreateAttempt(ctx context.Context, attempt domain.Attempt, allowRetake bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if !allowRetake {
			submitted, err := hasSubmitted(tx, attempt.UserID, attempt.QuizID)
			if err != nil {
				return err
			}
			if submitted {
				return domain.ErrNotAllowed
			}
		}
		row := attemptRow{
			ID:        attempt.ID,
			UserID:    attempt.UserID,
			QuizID:    attempt.QuizID,
			StartedAt: attempt.StartedAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrAttemptInProgress
			}
			return fmt.Errorf("insert attempt: %w", err)
		}
		return nil
	})
}

func (s *AttemptStore) GetAttempt(ctx context.Context, attemptID string) (domain.Attempt, error) {
	var row attemptRow
	if err := s.db.WithContext(ctx).Take(&row, "id = ?", attemptID).Error; err != nil {
		return domain.Attempt{}, notFound(err, "load attempt")
	}
	return row.toDomain(), nil
}

func (s *AttemptStore) ListAnswers(ctx context.Context, attemptID string) ([]domain.AttemptAnswer, error) {
	return listAnswers(s.db.WithContext(ctx), attemptID)
}

// UpsertAnswer writes the selection for (attempt, question). The submitted check and the
// write share a transaction so a concurrent submission cannot interleave.
func (s *AttemptStore) UpsertAnswer(ctx context.Context, answer domain.AttemptAnswer) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attempt attemptRow
		if err := tx.Select("id", "submitted_at").Take(&attempt, "id = ?", answer.AttemptID).Error; err != nil {
			return notFound(err, "load attempt")
		}
		if attempt.SubmittedAt != nil {
			return domain.ErrAttemptAlreadySubmitted
		}

		row := answerRow{
			ID:               answer.ID,
			AttemptID:        answer.AttemptID,
			QuestionID:       answer.QuestionID,
			SelectedOptionID: answer.SelectedOptionID,
			TimeSpentSeconds: answer.TimeSpentSeconds,
			UpdatedAt:        answer.UpdatedAt,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
			DoUpdates: clause.Set{
				{Column: clause.Column{Name: "selected_option_id"}, Value: gorm.Expr("excluded.selected_option_id")},
				{Column: clause.Column{Name: "is_correct"}, Value: nil},
				{Column: clause.Column{Name: "time_spent_seconds"}, Value: gorm.Expr("COALESCE(excluded.time_spent_seconds, attempt_answers.time_spent_seconds)")},
				{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("excluded.updated_at")},
			},
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("upsert answer: %w", err)
		}
		return nil
	})
}

func (s *AttemptStore) Finalize(ctx context.Context, attemptID string, allowRetake bool, grade app.GradeFunc) (domain.Attempt, error) {
	var finalized domain.Attempt
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row attemptRow
		if err := tx.Take(&row, "id = ?", attemptID).Error; err != nil {
			return notFound(err, "load attempt")
		}
		if row.SubmittedAt != nil {
			return domain.ErrAttemptAlreadySubmitted
		}
		if !allowRetake {
			submitted, err := hasSubmitted(tx, row.UserID, row.QuizID)
			if err != nil {
				return err
			}
			if submitted {
				return domain.ErrNotAllowed
			}
		}
		answers, err := listAnswers(tx, attemptID)
		if err != nil {
			return err
		}

		grading, err := grade(row.toDomain(), answers)
		if err != nil {
			return err
		}
		graded, gradedAnswers := app.ApplyGrading(row.toDomain(), answers, grading)

		res := tx.Model(&attemptRow{}).
			Where("id = ? AND submitted_at IS NULL", attemptID).
			Updates(map[string]interface{}{
				"submitted_at":       graded.SubmittedAt,
				"score":              graded.Score,
				"correct_count":      graded.CorrectCount,
				"wrong_count":        graded.WrongCount,
				"time_taken_seconds": graded.TimeTakenSeconds,
			})
		if res.Error != nil {
			return fmt.Errorf("finalize attempt: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrAttemptAlreadySubmitted
		}

		if err := markAnswers(tx, attemptID, gradedAnswers); err != nil {
			return err
		}
		finalized = graded
		return nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	return finalized, nil
}

func markAnswers(tx *gorm.DB, attemptID string, answers []domain.AttemptAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	correctIDs := make([]string, 0, len(answers))
	for _, answer := range answers {
		if answer.IsCorrect != nil && *answer.IsCorrect {
			correctIDs = append(correctIDs, answer.ID)
		}
	}
	if err := tx.Model(&answerRow{}).Where("attempt_id = ?", attemptID).Update("is_correct", false).Error; err != nil {
		return fmt.Errorf("grade answers: %w", err)
	}
	if len(correctIDs) == 0 {
		return nil
	}
	if err := tx.Model(&answerRow{}).Where("id IN ?", correctIDs).Update("is_correct", true).Error; err != nil {
		return fmt.Errorf("grade correct answers: %w", err)
	}
	return nil
}

func listAnswers(db *gorm.DB, attemptID string) ([]domain.AttemptAnswer, error) {
	var rows []answerRow
	if err := db.Where("attempt_id = ?", attemptID).Order("question_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	answers := make([]domain.AttemptAnswer, len(rows))
	for i, row := range rows {
		answers[i] = domain.AttemptAnswer{
			ID:               row.ID,
			AttemptID:        row.AttemptID,
			QuestionID:       row.QuestionID,
			SelectedOptionID: row.SelectedOptionID,
			IsCorrect:        row.IsCorrect,
			TimeSpentSeconds: row.TimeSpentSeconds,
			UpdatedAt:        row.UpdatedAt,
		}
	}
	return answers, nil
}

func (r attemptRow) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:               r.ID,
		UserID:           r.UserID,
		QuizID:           r.QuizID,
		StartedAt:        r.StartedAt.UTC(),
		SubmittedAt:      r.SubmittedAt,
		Score:            r.Score,
		CorrectCount:     r.CorrectCount,
		WrongCount:       r.WrongCount,
		TimeTakenSeconds: r.TimeTakenSeconds,
	}
}

func notFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrAttemptNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}
