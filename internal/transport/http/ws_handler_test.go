package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWebSocketAnswerAndManualSubmit(t *testing.T) {
	server, _ := newTestServer(t, "")
	attemptID := startAttempt(t, server, "alice", "quiz-1")

	conn := dialTimer(t, server, attemptID, "alice")
	defer conn.Close()

	msgType, payload := readNext(conn, t, "state")
	if payload["remainingSeconds"] != nil {
		t.Fatalf("untimed quiz must not report a countdown, got %v", payload["remainingSeconds"])
	}

	answer := map[string]any{
		"type":    "answer",
		"payload": map[string]any{"questionId": "q1", "optionId": "o2"},
	}
	if err := conn.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	msgType, payload = readNext(conn, t, "answerSaved")
	if payload["questionId"] != "q1" {
		t.Fatalf("unexpected %s payload %v", msgType, payload)
	}

	if err := conn.WriteJSON(map[string]any{"type": "answer", "payload": map[string]any{"questionId": "q1", "optionId": "o4"}}); err != nil {
		t.Fatalf("write bad answer: %v", err)
	}
	_, payload = readNext(conn, t, "error")
	if payload["code"] != "option_not_in_question" {
		t.Fatalf("expected option error, got %v", payload)
	}

	if err := conn.WriteJSON(map[string]any{"type": "submit"}); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	_, payload = readNext(conn, t, "submitted")
	summary := payload["summary"].(map[string]any)
	if summary["score"] != "100.00" || payload["mode"] != "manual" {
		t.Fatalf("unexpected submission %v", payload)
	}
}

func TestWebSocketAutoSubmitsAtDeadline(t *testing.T) {
	server, clock := newTestServer(t, "")
	attemptID := startAttempt(t, server, "alice", "timed")
	clock.Advance(3 * time.Minute)

	conn := dialTimer(t, server, attemptID, "alice")
	defer conn.Close()

	_, payload := readNext(conn, t, "state")
	if payload["remainingSeconds"] != float64(0) {
		t.Fatalf("expected zero remaining, got %v", payload["remainingSeconds"])
	}
	_, payload = readNext(conn, t, "tick")
	if payload["remainingSeconds"] != float64(0) {
		t.Fatalf("expected zero tick, got %v", payload)
	}
	_, payload = readNext(conn, t, "submitted")
	summary := payload["summary"].(map[string]any)
	if payload["mode"] != "deadline" || summary["timeTakenSeconds"] != float64(60) {
		t.Fatalf("expected deadline submission capped at the limit, got %v", payload)
	}
}

func TestWebSocketStopsTickingAfterManualSubmit(t *testing.T) {
	server, _ := newTestServer(t, "")
	attemptID := startAttempt(t, server, "alice", "timed")

	conn := dialTimer(t, server, attemptID, "alice")
	defer conn.Close()

	readNext(conn, t, "state")
	readNext(conn, t, "tick")
	if err := conn.WriteJSON(map[string]any{"type": "submit"}); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	for {
		msgType, payload := readNext(conn, t, "")
		if msgType == "submitted" {
			if payload["mode"] != "manual" {
				t.Fatalf("unexpected submission %v", payload)
			}
			break
		}
		if msgType != "tick" {
			t.Fatalf("unexpected %s frame %v", msgType, payload)
		}
	}
	if frames := collectFrames(conn, 150*time.Millisecond); len(frames) != 0 {
		t.Fatalf("expected no frames after submission, got %v", frames)
	}
}

func TestWebSocketStopsTickingAfterRESTSubmit(t *testing.T) {
	server, _ := newTestServer(t, "")
	attemptID := startAttempt(t, server, "alice", "timed")

	conn := dialTimer(t, server, attemptID, "alice")
	defer conn.Close()
	readNext(conn, t, "state")
	readNext(conn, t, "tick")

	resp := apiClient{t: t, server: server, userID: "alice"}.do(http.MethodPost, "/attempts/"+attemptID+"/submit", `{"mode":"manual"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: status %d", resp.StatusCode)
	}
	// One tick computed before the submission may still be in flight.
	if frames := collectFrames(conn, 200*time.Millisecond); frames["tick"] > 1 || len(frames) > 1 {
		t.Fatalf("expected the clock to stop, got %v", frames)
	}
}

func TestWebSocketTicksWhileTimeRemains(t *testing.T) {
	server, clock := newTestServer(t, "")
	attemptID := startAttempt(t, server, "alice", "timed")
	clock.Advance(15 * time.Second)

	conn := dialTimer(t, server, attemptID, "alice")
	defer conn.Close()

	readNext(conn, t, "state")
	_, payload := readNext(conn, t, "tick")
	if payload["remainingSeconds"] != float64(45) {
		t.Fatalf("expected 45 seconds left, got %v", payload)
	}
}

func TestWebSocketRejectsForeignAttempt(t *testing.T) {
	server, _ := newTestServer(t, "")
	attemptID := startAttempt(t, server, "alice", "quiz-1")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, attemptID, "mallory"), nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
}

func startAttempt(t *testing.T, server *httptest.Server, userID, quizID string) string {
	t.Helper()
	resp := apiClient{t: t, server: server, userID: userID}.do(http.MethodPost, "/quizzes/"+quizID+"/attempts", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start attempt: status %d", resp.StatusCode)
	}
	return decodeBody[attemptResponse](t, resp).ID
}

func wsURL(server *httptest.Server, attemptID, userID string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/attempts/" + attemptID + "?userId=" + userID
}

func dialTimer(t *testing.T, server *httptest.Server, attemptID, userID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, attemptID, userID), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (%v)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}

// collectFrames counts, by type, the frames that arrive within window.
func collectFrames(conn *websocket.Conn, window time.Duration) map[string]int {
	_ = conn.SetReadDeadline(time.Now().Add(window))
	frames := map[string]int{}
	for {
		var msg struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return frames
		}
		frames[msg.Type]++
	}
}
