package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"learning-progress-service/internal/domain"
)

func TestModuleCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{module: domain.Module{
		ID:       "m1",
		CourseID: "c1",
		Quizzes:  []domain.Quiz{{ID: "quiz-1", Title: "Warmup"}},
	}}
	cache := NewModuleCache(newClient(mr), loader, time.Minute)

	m, err := cache.GetModule(context.Background(), "m1")
	if err != nil {
		t.Fatalf("get module: %v", err)
	}
	if len(m.Quizzes) != 1 {
		t.Fatalf("expected quizzes to round-trip, got %+v", m)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("catalog:module:m1") {
		t.Fatalf("expected cache key to be set")
	}

	// Second call should hit cache, loader not incremented.
	_, _ = cache.GetModule(context.Background(), "m1")
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}

	mr.FastForward(2 * time.Minute)
	_, _ = cache.GetModule(context.Background(), "m1")
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, loader calls=%d", loader.calls)
	}
}

type countingLoader struct {
	module domain.Module
	calls  int
}

func (l *countingLoader) GetModule(_ context.Context, id string) (domain.Module, error) {
	l.calls++
	if id != l.module.ID {
		return domain.Module{}, domain.ErrModuleNotFound
	}
	return l.module, nil
}
