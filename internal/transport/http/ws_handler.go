package http

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"learning-progress-service/internal/app"
	"learning-progress-service/internal/domain"
)

// WSHandler streams a session countdown to the quiz page and accepts autosaves.
type WSHandler struct {
	sessions *app.SessionService
	upgrader websocket.Upgrader
	tick     time.Duration
}

func NewWSHandler(sessions *app.SessionService, tick time.Duration) *WSHandler {
	if tick <= 0 {
		tick = time.Second
	}
	return &WSHandler{
		sessions: sessions,
		tick:     tick,
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

type answersPayload struct {
	Answers domain.Answers `json:"answers"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and relays timer ticks, state changes and autosaves
// for one session until the client disconnects.
func (h *WSHandler) ServeWS(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("sessionId")
	user := userID(c)

	updates, cancel, err := h.sessions.Watch(ctx, sessionID, user)
	if err != nil {
		writeError(c, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	timerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(timerDone)
		ticker := time.NewTicker(h.tick)
		defer ticker.Stop()

		var last app.SessionView
		var seen, expiredSent bool
		emit := func(view app.SessionView) bool {
			last, seen = view, true
			msg := outboundMessage{Type: "status", Payload: view}
			if view.Status == domain.SessionExpired {
				if expiredSent {
					return true
				}
				expiredSent = true
				msg.Type = "expired"
			}
			select {
			case send <- msg:
				return true
			case <-closeSignals:
				return false
			case <-writerDone:
				return false
			}
		}

		for {
			select {
			case view, ok := <-updates:
				if !ok || !emit(view) {
					return
				}
			case now := <-ticker.C:
				if !seen || last.Status != domain.SessionActive {
					continue
				}
				if now.Before(last.EndTime) {
					view := last
					view.TimeRemaining = int(last.EndTime.Sub(now) / time.Second)
					if !emit(view) {
						return
					}
					continue
				}
				// deadline reached: a read flips the session and broadcasts the expiry
				view, err := h.sessions.Get(ctx, sessionID, user)
				if err != nil {
					log.Printf("ws session %s: %v", sessionID, err)
					continue
				}
				if !emit(view) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

read:
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var reply outboundMessage
		switch inbound.Type {
		case "answers":
			var payload answersPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				reply = outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid answers payload"}}
				break
			}
			saved, err := h.sessions.SaveAnswers(ctx, sessionID, user, payload.Answers)
			if err != nil {
				reply = outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}}
				break
			}
			reply = outboundMessage{Type: "saved", Payload: saved}
		default:
			reply = outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
		if !deliver(send, writerDone, reply) {
			break read
		}
	}

	close(closeSignals)
	<-timerDone
	close(send)
	<-writerDone
}

// deliver queues msg for the writer. It reports false once the writer has
// stopped, so a dead connection never blocks the caller on a full buffer.
func deliver(send chan<- outboundMessage, writerDone <-chan struct{}, msg outboundMessage) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}
