package app_test

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

func largeQuiz(shuffleQuestions, shuffleAnswers bool) domain.Quiz {
	quiz := domain.Quiz{ID: "large", ShuffleQuestions: shuffleQuestions, ShuffleAnswers: shuffleAnswers}
	for i := 0; i < 20; i++ {
		question := domain.Question{ID: fmt.Sprintf("q%02d", i), Text: "question"}
		for j := 0; j < 6; j++ {
			question.Options = append(question.Options, domain.Option{
				ID:      fmt.Sprintf("q%02d-o%d", i, j),
				Text:    "option",
				Correct: j == 0,
				Order:   6 - j,
			})
		}
		quiz.Questions = append(quiz.Questions, question)
	}
	quiz.QuestionCount = len(quiz.Questions)
	return quiz
}

func questionIDs(questions []domain.PresentedQuestion) []string {
	ids := make([]string, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	return ids
}

func TestPrepareWithoutShuffleKeepsContentOrder(t *testing.T) {
	quiz := largeQuiz(false, false)
	presented := app.Prepare(quiz, rand.New(rand.NewSource(1)))

	require.Len(t, presented, len(quiz.Questions))
	for i, question := range presented {
		assert.Equal(t, quiz.Questions[i].ID, question.ID)
		require.Len(t, question.Options, 6)
		for j, opt := range question.Options {
			assert.Equal(t, j+1, opt.Order)
		}
	}
}

func TestPrepareShufflesAsAPermutation(t *testing.T) {
	quiz := largeQuiz(true, true)
	presented := app.Prepare(quiz, rand.New(rand.NewSource(42)))

	require.Len(t, presented, len(quiz.Questions))
	want := make([]string, len(quiz.Questions))
	for i, q := range quiz.Questions {
		want[i] = q.ID
	}
	assert.ElementsMatch(t, want, questionIDs(presented))
	assert.NotEqual(t, want, questionIDs(presented))

	for _, question := range presented {
		original, ok := quiz.FindQuestion(question.ID)
		require.True(t, ok)
		var optionIDs, originalIDs []string
		for _, opt := range question.Options {
			optionIDs = append(optionIDs, opt.ID)
		}
		for _, opt := range original.Options {
			originalIDs = append(originalIDs, opt.ID)
		}
		assert.ElementsMatch(t, originalIDs, optionIDs)
	}
}

func TestPrepareDoesNotMutateContent(t *testing.T) {
	quiz := largeQuiz(true, true)
	before := quiz.Questions[0].Options[0].ID
	app.Prepare(quiz, rand.New(rand.NewSource(7)))
	assert.Equal(t, "q00", quiz.Questions[0].ID)
	assert.Equal(t, before, quiz.Questions[0].Options[0].ID)
}

func TestQuestionsForAttemptAreStablePerAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, largeQuiz(true, true))

	attempt, err := f.service.StartOrResume(ctx, "u1", "large")
	require.NoError(t, err)

	first, err := f.service.QuestionsForAttempt(ctx, "u1", attempt.ID)
	require.NoError(t, err)
	second, err := f.service.QuestionsForAttempt(ctx, "u1", attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = f.service.QuestionsForAttempt(ctx, "u2", attempt.ID)
	require.ErrorIs(t, err, domain.ErrNotAttemptOwner)
}

func TestPrepareByQuizID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, largeQuiz(false, false))

	presented, err := f.service.Prepare(ctx, "large")
	require.NoError(t, err)
	assert.Len(t, presented, 20)

	_, err = f.service.Prepare(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrQuizNotFound)
}
