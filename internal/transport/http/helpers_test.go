package http

import (
	"sync"
	"testing"
	"time"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/infra/memory"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T) (*app.AttemptService, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)}
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(testQuizzes()), time.Minute)
	return app.NewAttemptService(memory.NewAttemptStore(), quizzes, app.Options{Now: clock.Now}), clock
}

func testQuizzes() map[string]domain.Quiz {
	limit := 1
	questions := []domain.Question{
		{
			ID:          "q1",
			Text:        "What is 2 + 2?",
			Explanation: "Basic addition.",
			Options: []domain.Option{
				{ID: "o1", Text: "3", Order: 1},
				{ID: "o2", Text: "4", Correct: true, Order: 2},
			},
		},
		{
			ID:   "q2",
			Text: "What is 3 + 3?",
			Options: []domain.Option{
				{ID: "o3", Text: "6", Correct: true, Order: 1},
				{ID: "o4", Text: "7", Order: 2},
			},
		},
	}
	return map[string]domain.Quiz{
		"quiz-1": {ID: "quiz-1", Title: "Arithmetic", QuestionCount: 2, Questions: questions},
		"timed":  {ID: "timed", Title: "Timed arithmetic", QuestionCount: 2, TimeLimitMinutes: &limit, Questions: questions},
	}
}
