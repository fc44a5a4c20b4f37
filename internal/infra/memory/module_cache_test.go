package memory

import (
	"context"
	"testing"
	"time"

	"learning-progress-service/internal/domain"
)

func TestModuleCacheCaches(t *testing.T) {
	loader := &countingLoader{modules: map[string]domain.Module{"m1": sampleModule()}}
	cache := NewModuleCache(loader, time.Minute)

	if _, err := cache.GetModule(context.Background(), "m1"); err != nil {
		t.Fatalf("get module: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := cache.GetModule(context.Background(), "m1"); err != nil {
		t.Fatalf("get module 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}

	cache.Invalidate("m1")
	if _, err := cache.GetModule(context.Background(), "m1"); err != nil {
		t.Fatalf("get module 3: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls)
	}
}

func TestModuleCacheExpires(t *testing.T) {
	loader := &countingLoader{modules: map[string]domain.Module{"m1": sampleModule()}}
	cache := NewModuleCache(loader, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }

	_, _ = cache.GetModule(context.Background(), "m1")
	now = now.Add(2 * time.Minute)
	_, _ = cache.GetModule(context.Background(), "m1")
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls)
	}
}

type countingLoader struct {
	modules map[string]domain.Module
	calls   int
}

func (l *countingLoader) GetModule(_ context.Context, id string) (domain.Module, error) {
	l.calls++
	if m, ok := l.modules[id]; ok {
		return m, nil
	}
	return domain.Module{}, domain.ErrModuleNotFound
}

func sampleModule() domain.Module {
	return domain.Module{
		ID:          "m1",
		CourseID:    "c1",
		Title:       "Basics",
		Description: "Intro",
		Quizzes: []domain.Quiz{{
			ID:    "quiz-1",
			Title: "Warmup",
			Questions: []domain.Question{
				{Text: "2 + 2?", Type: domain.QuestionMultipleChoice, Options: []string{"3", "4"}, CorrectAnswer: "4"},
			},
		}},
	}
}
