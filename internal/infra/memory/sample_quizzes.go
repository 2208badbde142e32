package memory

import "quiz-attempt-service/internal/domain"

// SampleQuizzes is the demo catalogue served when no content source is configured.
func SampleQuizzes() map[string]domain.Quiz {
	tenMinutes := 10
	return map[string]domain.Quiz{
		"go-basics": {
			ID:                    "go-basics",
			Title:                 "Go basics",
			Description:           "Warm-up questions on the Go language.",
			QuestionCount:         3,
			TimeLimitMinutes:      &tenMinutes,
			ShuffleQuestions:      true,
			ShuffleAnswers:        true,
			AllowMultipleAttempts: false,
			Questions: []domain.Question{
				{
					ID:          "go-basics-q1",
					Text:        "Which keyword starts a goroutine?",
					Explanation: "The go statement runs a function call in a new goroutine.",
					Difficulty:  domain.DifficultyEasy,
					Options: []domain.Option{
						{ID: "go-basics-q1-a", Text: "go", Correct: true, Order: 1},
						{ID: "go-basics-q1-b", Text: "async", Order: 2},
						{ID: "go-basics-q1-c", Text: "spawn", Order: 3},
					},
				},
				{
					ID:          "go-basics-q2",
					Text:        "What is the zero value of a map?",
					Explanation: "An unallocated map is nil; reads work, writes panic.",
					Difficulty:  domain.DifficultyMedium,
					Options: []domain.Option{
						{ID: "go-basics-q2-a", Text: "an empty map", Order: 1},
						{ID: "go-basics-q2-b", Text: "nil", Correct: true, Order: 2},
					},
				},
				{
					ID:         "go-basics-q3",
					Text:       "Which package provides sync.WaitGroup?",
					Difficulty: domain.DifficultyEasy,
					Options: []domain.Option{
						{ID: "go-basics-q3-a", Text: "runtime", Order: 1},
						{ID: "go-basics-q3-b", Text: "sync", Correct: true, Order: 2},
						{ID: "go-basics-q3-c", Text: "context", Order: 3},
					},
				},
			},
		},
		"practice": {
			ID:                    "practice",
			Title:                 "Practice round",
			QuestionCount:         2,
			AllowMultipleAttempts: true,
			Questions: []domain.Question{
				{
					ID:         "practice-q1",
					Text:       "2 + 2 = ?",
					Difficulty: domain.DifficultyEasy,
					Options: []domain.Option{
						{ID: "practice-q1-a", Text: "4", Correct: true, Order: 1},
						{ID: "practice-q1-b", Text: "5", Order: 2},
					},
				},
				{
					ID:         "practice-q2",
					Text:       "3 * 3 = ?",
					Difficulty: domain.DifficultyEasy,
					Options: []domain.Option{
						{ID: "practice-q2-a", Text: "6", Order: 1},
						{ID: "practice-q2-b", Text: "9", Correct: true, Order: 2},
					},
				},
			},
		},
	}
}
