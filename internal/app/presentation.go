package app

import (
	"hash/fnv"
	"math/rand"
	"sort"
	"time"

	"quiz-attempt-service/internal/domain"
)

// Prepare orders the quiz for display and strips option correctness.
// Questions keep content order unless ShuffleQuestions; options follow their display
// order unless ShuffleAnswers.
func Prepare(quiz domain.Quiz, rnd *rand.Rand) []domain.PresentedQuestion {
	questions := make([]domain.PresentedQuestion, 0, len(quiz.Questions))
	for _, question := range quiz.Questions {
		options := make([]domain.PublicOption, 0, len(question.Options))
		for _, opt := range question.Options {
			options = append(options, domain.PublicOption{ID: opt.ID, Text: opt.Text, Order: opt.Order})
		}
		sort.SliceStable(options, func(i, j int) bool {
			return options[i].Order < options[j].Order
		})

		questions = append(questions, domain.PresentedQuestion{
			ID:         question.ID,
			Text:       question.Text,
			Difficulty: question.Difficulty,
			ImagePath:  question.ImagePath,
			Options:    options,
		})
	}

	if quiz.ShuffleQuestions {
		rnd.Shuffle(len(questions), func(i, j int) {
			questions[i], questions[j] = questions[j], questions[i]
		})
	}
	if quiz.ShuffleAnswers {
		for _, question := range questions {
			opts := question.Options
			rnd.Shuffle(len(opts), func(i, j int) {
				opts[i], opts[j] = opts[j], opts[i]
			})
		}
	}
	return questions
}

// seededSource derives a deterministic generator from the attempt id so the
// presented order stays fixed across reloads of the same attempt.
func seededSource(attemptID string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(attemptID))
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

func newRandomSource() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}
