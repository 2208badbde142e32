package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"
)

// TimerHandler streams the countdown for an attempt over a websocket and submits it
// automatically when the countdown reaches zero. The socket also accepts answers so a
// client can drive a whole attempt over one connection.
type TimerHandler struct {
	service  *app.AttemptService
	tick     time.Duration
	upgrader websocket.Upgrader
}

func NewTimerHandler(service *app.AttemptService, tick time.Duration) *TimerHandler {
	if tick <= 0 {
		tick = time.Second
	}
	return &TimerHandler{
		service: service,
		tick:    tick,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID       string `json:"questionId"`
	OptionID         string `json:"optionId"`
	TimeSpentSeconds *int   `json:"timeSpentSeconds"`
}

type statePayload struct {
	AttemptID        string           `json:"attemptId"`
	RemainingSeconds *int             `json:"remainingSeconds"`
	Answers          domain.AnswerSet `json:"answers"`
}

type tickPayload struct {
	RemainingSeconds int `json:"remainingSeconds"`
}

type savedPayload struct {
	QuestionID string `json:"questionId"`
	Skipped    bool   `json:"skipped"`
}

type submittedPayload struct {
	Mode    domain.SubmitMode `json:"mode"`
	Summary summaryResponse   `json:"summary"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServeWS upgrades the request after checking the caller owns the attempt.
func (h *TimerHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFromContext(ctx)
	attemptID := mux.Vars(r)["attemptID"]

	remaining, err := h.service.RemainingSeconds(ctx, userID, attemptID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	answers, err := h.service.Answers(ctx, userID, attemptID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	clockDone := make(chan struct{})

	// Single writer: gorilla connections do not allow concurrent writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	s := &timerSession{
		service:   h.service,
		userID:    userID,
		attemptID: attemptID,
		send:      send,
		closed:    closeSignals,
		dead:      writerDone,
	}
	s.emit("state", statePayload{AttemptID: attemptID, RemainingSeconds: remaining, Answers: answers})

	go func() {
		defer close(clockDone)
		if remaining != nil {
			s.runClock(ctx, h.tick)
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		s.handle(ctx, inbound)
	}

	close(closeSignals)
	<-clockDone
	close(send)
	<-writerDone
}

type timerSession struct {
	service   *app.AttemptService
	userID    string
	attemptID string
	send      chan<- outboundMessage
	closed    <-chan struct{}
	dead      <-chan struct{}

	// mu orders tick frames against the submitted frame; finished is set under it.
	mu       sync.Mutex
	finished bool
}

func (s *timerSession) emit(typ string, payload any) {
	select {
	case s.send <- outboundMessage{Type: typ, Payload: payload}:
	case <-s.closed:
	case <-s.dead:
	}
}

func (s *timerSession) fail(err error) {
	_, code := classify(err)
	s.emit("error", errorPayload{Code: code, Message: err.Error()})
}

// runClock ticks until the attempt is submitted or the connection goes away. The
// first check runs immediately so a reconnect after the deadline submits at once.
func (s *timerSession) runClock(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		if done := s.check(ctx); done {
			return
		}
		select {
		case <-ticker.C:
		case <-s.closed:
			return
		}
	}
}

// check emits one tick and reports whether the clock should stop: on error, for an
// untimed or already submitted attempt, or after submitting at the deadline.
func (s *timerSession) check(ctx context.Context) bool {
	remaining, submitted, err := s.service.Countdown(ctx, s.userID, s.attemptID)
	if err != nil {
		s.fail(err)
		return true
	}
	if submitted || remaining == nil {
		return true
	}

	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return true
	}
	s.emit("tick", tickPayload{RemainingSeconds: *remaining})
	s.mu.Unlock()

	if *remaining > 0 {
		return false
	}
	s.submit(ctx, domain.SubmitDeadline)
	return true
}

func (s *timerSession) submit(ctx context.Context, mode domain.SubmitMode) {
	summary, err := s.service.Submit(ctx, s.userID, s.attemptID, mode)
	if errors.Is(err, domain.ErrAttemptAlreadySubmitted) && mode == domain.SubmitDeadline {
		// A manual submission won the race; nothing left to do.
		return
	}
	if err != nil {
		s.fail(err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
	s.emit("submitted", submittedPayload{Mode: mode, Summary: toSummaryResponse(summary)})
}

func (s *timerSession) handle(ctx context.Context, inbound inboundMessage) {
	switch inbound.Type {
	case "answer", "skip":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.QuestionID == "" {
			s.emit("error", errorPayload{Code: "invalid_request", Message: "invalid answer payload"})
			return
		}
		skipped := inbound.Type == "skip"
		var err error
		if skipped {
			err = s.service.SkipQuestion(ctx, s.userID, s.attemptID, payload.QuestionID)
		} else {
			err = s.service.RecordAnswer(ctx, s.userID, s.attemptID, payload.QuestionID, payload.OptionID, payload.TimeSpentSeconds)
		}
		if err != nil {
			s.fail(err)
			return
		}
		s.emit("answerSaved", savedPayload{QuestionID: payload.QuestionID, Skipped: skipped})
	case "submit":
		s.submit(ctx, domain.SubmitManual)
	default:
		s.emit("error", errorPayload{Code: "invalid_request", Message: "unsupported message type"})
	}
}
