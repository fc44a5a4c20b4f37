package app

import (
	"context"
	"sync"
)

// watchHub fans session views out to live subscribers (the timer socket).
type watchHub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan SessionView]struct{}
}

func newWatchHub() *watchHub {
	return &watchHub{subscribers: make(map[string]map[chan SessionView]struct{})}
}

func (h *watchHub) subscribe(sessionID string, initial SessionView) (<-chan SessionView, func()) {
	ch := make(chan SessionView, 8)

	h.mu.Lock()
	subs, ok := h.subscribers[sessionID]
	if !ok {
		subs = make(map[chan SessionView]struct{})
		h.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	ch <- initial

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs, ok := h.subscribers[sessionID]
		if !ok {
			return
		}
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, sessionID)
		}
	}
	return ch, cancel
}

func (h *watchHub) broadcast(view SessionView) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[view.SessionID] {
		select {
		case ch <- view:
		default:
			// Slow reader: drop the oldest update, the newest view supersedes it.
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
}

// Watch streams the session's view after every state change, starting with the
// current one. The caller must invoke cancel to release the subscription.
func (s *SessionService) Watch(ctx context.Context, sessionID, userID string) (<-chan SessionView, func(), error) {
	view, err := s.Get(ctx, sessionID, userID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.watchers.subscribe(sessionID, view)
	return ch, cancel, nil
}
