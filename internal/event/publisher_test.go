package event

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestDisabledPublisherDropsEvents(t *testing.T) {
	p, err := NewPublisher("", "")
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	if p.Enabled() {
		t.Fatalf("expected disabled publisher without url")
	}
	if err := p.Publish(context.Background(), "quiz.session.started", map[string]string{"sessionId": "s1"}); err != nil {
		t.Fatalf("disabled publish should be a no-op, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestEncodeEnvelope(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	body, err := encodeEnvelope("progress.module.completed", map[string]string{"moduleId": "m1"}, at)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var decoded struct {
		ID         string            `json:"id"`
		Type       string            `json:"type"`
		OccurredAt time.Time         `json:"occurredAt"`
		Payload    map[string]string `json:"payload"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID == "" || decoded.Type != "progress.module.completed" {
		t.Fatalf("unexpected envelope %+v", decoded)
	}
	if !decoded.OccurredAt.Equal(at) || decoded.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", decoded.OccurredAt)
	}
	if decoded.Payload["moduleId"] != "m1" {
		t.Fatalf("payload lost: %+v", decoded.Payload)
	}
}
