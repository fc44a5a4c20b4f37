package docstore

import (
	"context"
	"encoding/json"
	"strconv"
	"time"
)

// Document types stored side by side in one store.
const (
	TypeSession = "quiz_session"
	TypeSlot    = "quiz_slot"
	TypeCourse  = "course"
	TypeModule  = "module"
)

// Document is a revision-tagged JSON body plus the scalar fields selectors can match on.
// An empty Rev on Put means "create"; any other Rev must equal the stored one.
type Document struct {
	ID     string            `json:"id"`
	Type   string            `json:"type"`
	Rev    string            `json:"rev,omitempty"`
	Body   json.RawMessage   `json:"body"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Selector matches documents of one type whose indexed fields equal every Match entry.
type Selector struct {
	Type  string
	Match map[string]string
}

// Matches reports whether doc satisfies the selector.
func (s Selector) Matches(doc Document) bool {
	if s.Type != "" && doc.Type != s.Type {
		return false
	}
	for k, v := range s.Match {
		if doc.Fields[k] != v {
			return false
		}
	}
	return true
}

// Store is the document store contract. Implementations guarantee that at most one
// writer wins per document revision; losers get domain.ErrRevisionConflict.
// Missing documents yield domain.ErrNotFound and I/O failures wrap domain.ErrStoreUnavailable.
type Store interface {
	Get(ctx context.Context, id string) (Document, error)
	Put(ctx context.Context, doc Document) (Document, error)
	Destroy(ctx context.Context, id, rev string) error
	Find(ctx context.Context, sel Selector) ([]Document, error)
	Ping(ctx context.Context) error
}

// FormatRev renders a numeric generation as a revision token.
func FormatRev(gen int64) string {
	return strconv.FormatInt(gen, 10)
}

// ParseRev reads a revision token; unknown tokens parse as generation -1 so they never match.
func ParseRev(rev string) int64 {
	if rev == "" {
		return 0
	}
	n, err := strconv.ParseInt(rev, 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// FormatTime renders timestamps for indexed fields so they sort lexically.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
