package memory

import (
	"context"
	"errors"
	"testing"

	"learning-progress-service/internal/domain"
	"learning-progress-service/internal/infra/docstore"
)

func TestDocumentStoreRevisionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewDocumentStore()

	created, err := store.Put(ctx, docstore.Document{ID: "c1", Type: docstore.TypeCourse, Body: []byte(`{"id":"c1"}`)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Rev == "" {
		t.Fatalf("expected revision on create")
	}

	if _, err := store.Put(ctx, docstore.Document{ID: "c1", Type: docstore.TypeCourse, Body: []byte(`{}`)}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	updated, err := store.Put(ctx, docstore.Document{ID: "c1", Type: docstore.TypeCourse, Rev: created.Rev, Body: []byte(`{"id":"c1","title":"x"}`)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Rev == created.Rev {
		t.Fatalf("expected revision to advance")
	}

	// The loser of a race presents the old revision.
	if _, err := store.Put(ctx, docstore.Document{ID: "c1", Type: docstore.TypeCourse, Rev: created.Rev, Body: []byte(`{}`)}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on stale revision, got %v", err)
	}

	if err := store.Destroy(ctx, "c1", created.Rev); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict destroying with stale rev, got %v", err)
	}
	if err := store.Destroy(ctx, "c1", updated.Rev); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if _, err := store.Get(ctx, "c1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after destroy, got %v", err)
	}
}

func TestDocumentStoreFindMatchesFields(t *testing.T) {
	ctx := context.Background()
	store := NewDocumentStore()

	for _, doc := range []docstore.Document{
		{ID: "s1", Type: docstore.TypeSession, Body: []byte(`{}`), Fields: map[string]string{"userId": "u1", "status": "active"}},
		{ID: "s2", Type: docstore.TypeSession, Body: []byte(`{}`), Fields: map[string]string{"userId": "u1", "status": "completed"}},
		{ID: "s3", Type: docstore.TypeSession, Body: []byte(`{}`), Fields: map[string]string{"userId": "u2", "status": "active"}},
		{ID: "m1", Type: docstore.TypeModule, Body: []byte(`{}`), Fields: map[string]string{"userId": "u1", "status": "active"}},
	} {
		if _, err := store.Put(ctx, doc); err != nil {
			t.Fatalf("put %s: %v", doc.ID, err)
		}
	}

	docs, err := store.Find(ctx, docstore.Selector{Type: docstore.TypeSession, Match: map[string]string{"userId": "u1", "status": "active"}})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "s1" {
		t.Fatalf("expected only s1, got %+v", docs)
	}
}

func TestDocumentStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewDocumentStore()
	if _, err := store.Put(ctx, docstore.Document{ID: "d", Type: "t", Body: []byte(`{"a":1}`)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	doc, _ := store.Get(ctx, "d")
	doc.Body[0] = 'X'
	again, _ := store.Get(ctx, "d")
	if string(again.Body) != `{"a":1}` {
		t.Fatalf("stored body mutated through returned copy: %s", again.Body)
	}
}
