package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"learning-progress-service/internal/app"
	"learning-progress-service/internal/domain"
	"learning-progress-service/internal/infra/docstore"
	"learning-progress-service/internal/infra/memory"
)

const testSecret = "test-secret"

func TestStatusForMapsErrorKinds(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrValidation, http.StatusBadRequest},
		{domain.ErrSubmissionWindowClosed, http.StatusBadRequest},
		{domain.ErrAlreadySubmitted, http.StatusBadRequest},
		{domain.ErrNotSessionOwner, http.StatusForbidden},
		{domain.ErrUnauthorized, http.StatusUnauthorized},
		{domain.ErrSessionNotFound, http.StatusNotFound},
		{domain.ErrRevisionConflict, http.StatusConflict},
		{fmt.Errorf("redis get: %w", domain.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestRoutesRequireAuthentication(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := do(t, router, http.MethodGet, "/courses/c1/progress", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodGet, "/courses/c1/progress", "Bearer not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}

	guest := token(t, "u1", "guest")
	rec = do(t, router, http.MethodGet, "/courses/c1/progress", guest, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown role, got %d", rec.Code)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	student := token(t, "u1", RoleStudent)
	start := map[string]any{"quizId": "quiz-1", "courseId": "c1", "moduleId": "m1", "duration": 30}

	rec := do(t, router, http.MethodPost, "/quiz-sessions/start", student, start)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start: expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var started app.SessionView
	decode(t, rec, &started)

	rec = do(t, router, http.MethodPost, "/quiz-sessions/start", student, start)
	var again app.SessionView
	decode(t, rec, &again)
	if again.SessionID != started.SessionID {
		t.Fatalf("expected idempotent start, got %s and %s", started.SessionID, again.SessionID)
	}

	rec = do(t, router, http.MethodGet, "/quiz-sessions/quiz-1/status", student, nil)
	var status app.StatusView
	decode(t, rec, &status)
	if !status.HasActiveSession || status.SessionID != started.SessionID {
		t.Fatalf("unexpected status %+v", status)
	}

	rec = do(t, router, http.MethodPut, "/quiz-sessions/"+started.SessionID+"/answers", student, map[string]any{"answers": map[string]any{"0": 1}})
	if rec.Code != http.StatusOK {
		t.Fatalf("save: expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	intruder := token(t, "u2", RoleStudent)
	rec = do(t, router, http.MethodPut, "/quiz-sessions/"+started.SessionID+"/answers", intruder, map[string]any{"answers": map[string]any{"0": 0}})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign save: expected 403, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, "/quiz-sessions/"+started.SessionID+"/submit", student, map[string]any{"answers": map[string]any{"1": "true"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	var submitted app.SubmitView
	decode(t, rec, &submitted)
	if submitted.Score != 100 {
		t.Fatalf("expected 100, got %d", submitted.Score)
	}

	rec = do(t, router, http.MethodPost, "/quiz-sessions/"+started.SessionID+"/submit", student, map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("second submit: expected 400, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodGet, "/quiz-sessions/quiz-1/completion-status", student, nil)
	var completion app.CompletionView
	decode(t, rec, &completion)
	if !completion.IsCompleted || completion.Score == nil || *completion.Score != 100 {
		t.Fatalf("unexpected completion %+v", completion)
	}

	rec = do(t, router, http.MethodGet, "/courses/c1/progress", student, nil)
	var progress domain.CourseProgress
	decode(t, rec, &progress)
	if len(progress.AllCompletedItems) != 1 || progress.AllCompletedItems[0] != "quiz-1" {
		t.Fatalf("expected quiz credited, got %+v", progress.AllCompletedItems)
	}
}

func TestStartReadsDurationFields(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := do(t, router, http.MethodPost, "/quiz-sessions/start", token(t, "u1", RoleStudent),
		map[string]any{"quizId": "quiz-1", "courseId": "c1", "moduleId": "m1", "duration": 20})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	var view app.SessionView
	decode(t, rec, &view)
	if got := view.EndTime.Sub(view.StartTime); got != 20*time.Minute {
		t.Fatalf("expected a 20 minute window, got %v", got)
	}

	rec = do(t, router, http.MethodPost, "/quiz-sessions/start", token(t, "u2", RoleStudent),
		map[string]any{"quizId": "quiz-1", "courseId": "c1", "moduleId": "m1", "durationMinutes": 15})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected legacy durationMinutes accepted, got %d %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &view)
	if got := view.EndTime.Sub(view.StartTime); got != 15*time.Minute {
		t.Fatalf("expected a 15 minute window, got %v", got)
	}

	rec = do(t, router, http.MethodPost, "/quiz-sessions/start", token(t, "u3", RoleStudent),
		map[string]any{"quizId": "quiz-1", "courseId": "c1", "moduleId": "m1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a duration, got %d", rec.Code)
	}
}

func TestCompleteItemRoute(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	student := token(t, "u1", RoleStudent)

	rec := do(t, router, http.MethodPut, "/courses/c1/modules/m1/items/video-0/complete", student, map[string]any{})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	var view app.ItemToggleView
	decode(t, rec, &view)
	if len(view.CompletedItems) != 1 || view.CompletedItems[0] != "video-0" || view.ModuleCompleted {
		t.Fatalf("unexpected toggle view %+v", view)
	}

	rec = do(t, router, http.MethodPut, "/courses/c1/modules/m1/items/video-0/complete", student, map[string]any{"completed": false})
	decode(t, rec, &view)
	if len(view.CompletedItems) != 0 {
		t.Fatalf("expected item removed, got %+v", view)
	}

	rec = do(t, router, http.MethodPut, "/courses/c1/modules/nope/items/x/complete", student, map[string]any{})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for module outside the course, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	if rec := do(t, router, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	down, _ := newTestRouter(t, downPinger{})
	if rec := do(t, down, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return domain.ErrStoreUnavailable }

func newTestRouter(t *testing.T, pinger Pinger) (*gin.Engine, *app.SessionService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewDocumentStore()
	modules := docstore.NewModuleRepository(store)
	courses := docstore.NewCourseRepository(store)
	ctx := context.Background()
	if _, err := modules.PutModule(ctx, sampleModule()); err != nil {
		t.Fatalf("seed module: %v", err)
	}
	if _, err := courses.PutCourse(ctx, domain.Course{ID: "c1", Title: "Basics", ModuleIDs: []string{"m1"}}); err != nil {
		t.Fatalf("seed course: %v", err)
	}

	progress := app.NewProgressService(courses, modules, app.NewProgressAggregator(modules, 2), nil, 3)
	sessions := app.NewSessionService(
		docstore.NewSessionRepository(store),
		docstore.NewSlotRepository(store),
		memory.NewModuleCache(modules, time.Minute),
		progress,
		nil,
		app.DefaultSessionPolicy(),
	)
	if pinger == nil {
		pinger = store
	}
	router := NewRouter(Services{Sessions: sessions, Progress: progress, Store: pinger}, Options{
		JWTSecret: testSecret,
		TimerTick: time.Hour,
	})
	return router, sessions
}

func sampleModule() domain.Module {
	return domain.Module{
		ID:          "m1",
		CourseID:    "c1",
		Title:       "Arithmetic",
		Description: "Numbers",
		VideoURL:    "https://videos.example/numbers",
		Quizzes: []domain.Quiz{{
			ID:    "quiz-1",
			Title: "Numbers check",
			Questions: []domain.Question{
				{Text: "2 + 2", Type: domain.QuestionMultipleChoice, Options: []string{"3", "4"}, CorrectAnswer: 1},
				{Text: "4 is even", Type: domain.QuestionTrueFalse, CorrectAnswer: true},
			},
		}},
	}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	raw, err := IssueToken([]byte(testSecret), userID, role, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + raw
}

func do(t *testing.T, h http.Handler, method, path, auth string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}
