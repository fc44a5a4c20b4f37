package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"learning-progress-service/internal/app"
	"learning-progress-service/internal/domain"
	"learning-progress-service/internal/infra/docstore"
	"learning-progress-service/internal/infra/memory"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store    *flakyStore
	sessions *docstore.SessionRepository
	courses  *docstore.CourseRepository
	modules  *docstore.ModuleRepository
	events   *recordingPublisher
	progress *app.ProgressService
	service  *app.SessionService

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  &flakyStore{Store: memory.NewDocumentStore()},
		events: &recordingPublisher{},
		now:    baseTime,
	}
	f.sessions = docstore.NewSessionRepository(f.store)
	f.courses = docstore.NewCourseRepository(f.store)
	f.modules = docstore.NewModuleRepository(f.store)

	ctx := context.Background()
	for _, m := range []domain.Module{quizModule(), readingModule()} {
		if _, err := f.modules.PutModule(ctx, m); err != nil {
			t.Fatalf("seed module %s: %v", m.ID, err)
		}
	}
	if _, err := f.courses.PutCourse(ctx, domain.Course{ID: "c1", Title: "Geography", ModuleIDs: []string{"m1", "m2"}}); err != nil {
		t.Fatalf("seed course: %v", err)
	}

	aggregator := app.NewProgressAggregatorWithClock(f.modules, 2, f.clock)
	f.progress = app.NewProgressService(f.courses, f.modules, aggregator, f.events, 3)
	f.service = app.NewSessionService(
		f.sessions,
		docstore.NewSlotRepository(f.store),
		f.modules,
		f.progress,
		f.events,
		app.DefaultSessionPolicy(),
	).WithClock(f.clock)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fixture) start(t *testing.T, userID string) app.SessionView {
	t.Helper()
	view, err := f.service.Start(context.Background(), app.StartInput{
		UserID:          userID,
		QuizID:          "quiz-capitals",
		CourseID:        "c1",
		ModuleID:        "m1",
		DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return view
}

func (f *fixture) record(t *testing.T, userID, moduleID string) *domain.CompletionRecord {
	t.Helper()
	course, err := f.courses.GetCourse(context.Background(), "c1")
	if err != nil {
		t.Fatalf("load course: %v", err)
	}
	return course.FindRecord(userID, moduleID)
}

// quizModule has a description, a video and one keyless quiz: three items.
func quizModule() domain.Module {
	return domain.Module{
		ID:          "m1",
		CourseID:    "c1",
		Title:       "Capitals",
		Description: "European capitals",
		VideoURL:    "https://videos.example/capitals",
		Quizzes: []domain.Quiz{{
			ID:    "quiz-capitals",
			Title: "Capitals check",
			Questions: []domain.Question{
				{Text: "Capital of Italy", Type: domain.QuestionMultipleChoice, Options: []string{"Milan", "Rome"}, CorrectAnswer: 1},
				{Text: "Paris is in France", Type: domain.QuestionTrueFalse, CorrectAnswer: true},
				{Text: "Capital of France", Type: domain.QuestionShortAnswer, CorrectAnswer: "Paris"},
				{Text: "Capital of Spain", Type: domain.QuestionMultipleChoice, Options: []string{"a", "b", "c"}, CorrectAnswer: "b"},
			},
		}},
	}
}

// readingModule has content and two keyed resources: three items.
func readingModule() domain.Module {
	return domain.Module{
		ID:       "m2",
		CourseID: "c1",
		Title:    "Reading",
		Content:  "Long read",
		Resources: []domain.ContentItem{
			{Key: "atlas", Title: "Atlas"},
			{Key: "map", Title: "Map"},
		},
	}
}

// threeOfFour answers the capitals quiz with one wrong answer.
func threeOfFour() domain.Answers {
	return domain.Answers{"0": 1, "1": "true", "2": " Paris is the capital", "3": "c"}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == eventType {
			n++
		}
	}
	return n
}

// flakyStore injects conflicts and outages in front of a real store.
type flakyStore struct {
	docstore.Store

	mu              sync.Mutex
	courseConflicts int
	unavailable     bool
}

func (s *flakyStore) failing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unavailable
}

func (s *flakyStore) setUnavailable(v bool) {
	s.mu.Lock()
	s.unavailable = v
	s.mu.Unlock()
}

func (s *flakyStore) injectCourseConflicts(n int) {
	s.mu.Lock()
	s.courseConflicts = n
	s.mu.Unlock()
}

func (s *flakyStore) Get(ctx context.Context, id string) (docstore.Document, error) {
	if s.failing() {
		return docstore.Document{}, fmt.Errorf("get %s: %w", id, domain.ErrStoreUnavailable)
	}
	return s.Store.Get(ctx, id)
}

func (s *flakyStore) Find(ctx context.Context, sel docstore.Selector) ([]docstore.Document, error) {
	if s.failing() {
		return nil, fmt.Errorf("find %s: %w", sel.Type, domain.ErrStoreUnavailable)
	}
	return s.Store.Find(ctx, sel)
}

func (s *flakyStore) Put(ctx context.Context, doc docstore.Document) (docstore.Document, error) {
	if s.failing() {
		return docstore.Document{}, fmt.Errorf("put %s: %w", doc.ID, domain.ErrStoreUnavailable)
	}
	s.mu.Lock()
	if doc.Type == docstore.TypeCourse && s.courseConflicts > 0 {
		s.courseConflicts--
		s.mu.Unlock()
		return docstore.Document{}, domain.ErrRevisionConflict
	}
	s.mu.Unlock()
	return s.Store.Put(ctx, doc)
}
