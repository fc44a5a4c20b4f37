package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"learning-progress-service/internal/app"
)

func TestWebSocketTimerAndAutosave(t *testing.T) {
	router, sessions := newTestRouter(t, nil)
	server := httptest.NewServer(router)
	defer server.Close()

	view, err := sessions.Start(context.Background(), app.StartInput{
		UserID: "u1", QuizID: "quiz-1", CourseID: "c1", ModuleID: "m1", DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	raw := strings.TrimPrefix(token(t, "u1", RoleStudent), "Bearer ")
	u := "ws" + server.URL[len("http"):] + "/ws/quiz-sessions/" + view.SessionID + "?access_token=" + raw
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	typ, payload := readNext(conn, t, "status")
	if payload["sessionId"] != view.SessionID {
		t.Fatalf("expected status for %s, got %v (%s)", view.SessionID, payload, typ)
	}

	msg := map[string]any{
		"type":    "answers",
		"payload": map[string]any{"answers": map[string]any{"0": 1}},
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write answers: %v", err)
	}

	savedSeen := false
	for i := 0; i < 3 && !savedSeen; i++ {
		typ, payload := readNext(conn, t, "")
		if typ == "saved" {
			savedSeen = true
			if _, ok := payload["timeRemaining"]; !ok {
				t.Fatalf("saved payload missing timeRemaining: %v", payload)
			}
		}
	}
	if !savedSeen {
		t.Fatalf("expected saved acknowledgement")
	}

	if err := conn.WriteJSON(map[string]any{"type": "shout"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for i := 0; i < 3; i++ {
		if typ, _ := readNext(conn, t, ""); typ == "error" {
			return
		}
	}
	t.Fatalf("expected error for unsupported message type")
}

func TestWebSocketRejectsForeignSession(t *testing.T) {
	router, sessions := newTestRouter(t, nil)
	server := httptest.NewServer(router)
	defer server.Close()

	view, err := sessions.Start(context.Background(), app.StartInput{
		UserID: "u1", QuizID: "quiz-1", CourseID: "c1", ModuleID: "m1", DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	raw := strings.TrimPrefix(token(t, "u2", RoleStudent), "Bearer ")
	u := "ws" + server.URL[len("http"):] + "/ws/quiz-sessions/" + view.SessionID + "?access_token=" + raw
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != 403 {
		t.Fatalf("expected 403 handshake response, got %+v", resp)
	}
}

func TestDeliverStopsOnceWriterIsGone(t *testing.T) {
	send := make(chan outboundMessage, 1)
	writerDone := make(chan struct{})

	if !deliver(send, writerDone, outboundMessage{Type: "saved"}) {
		t.Fatalf("expected delivery while the buffer has room")
	}

	close(writerDone)
	result := make(chan bool, 1)
	go func() { result <- deliver(send, writerDone, outboundMessage{Type: "saved"}) }()
	select {
	case ok := <-result:
		if ok {
			t.Fatalf("expected delivery to fail with a full buffer and no writer")
		}
	case <-time.After(time.Second):
		t.Fatalf("deliver blocked after the writer stopped")
	}
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
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
