package contentapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"quiz-attempt-service/internal/domain"
)

// Loader fetches quiz content from an external content service over HTTP.
// GET {baseURL}/quizzes/{quizID} must return the quiz as JSON, options included.
type Loader struct {
	client *resty.Client
}

// NewLoader builds a loader; token, when set, is sent as a bearer credential.
func NewLoader(baseURL, token string, timeout time.Duration) *Loader {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(100*time.Millisecond).
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &Loader{client: client}
}

func (l *Loader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	resp, err := l.client.R().
		SetContext(ctx).
		SetPathParam("quizID", quizID).
		SetResult(&quiz).
		Get("/quizzes/{quizID}")
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("fetch quiz %s: %w", quizID, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return domain.Quiz{}, domain.ErrQuizNotFound
	case resp.IsError():
		return domain.Quiz{}, fmt.Errorf("fetch quiz %s: unexpected status %d", quizID, resp.StatusCode())
	}
	if quiz.ID == "" {
		quiz.ID = quizID
	}
	if quiz.QuestionCount == 0 {
		quiz.QuestionCount = len(quiz.Questions)
	}
	return quiz, nil
}
