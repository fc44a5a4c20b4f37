package app

import (
	"context"
	"log"

	"learning-progress-service/internal/domain"
)

// SessionRepository persists quiz sessions with revision-checked writes.
type SessionRepository interface {
	Get(ctx context.Context, id string) (domain.QuizSession, error)
	Create(ctx context.Context, s domain.QuizSession) (domain.QuizSession, error)
	Update(ctx context.Context, s domain.QuizSession) (domain.QuizSession, error)
	FindByUserQuiz(ctx context.Context, userID, quizID string, status domain.SessionStatus) ([]domain.QuizSession, error)
	FindByStatus(ctx context.Context, status domain.SessionStatus) ([]domain.QuizSession, error)
}

// SlotRepository stores the per-(user, quiz) pointer to the active session.
type SlotRepository interface {
	Get(ctx context.Context, userID, quizID string) (domain.ActiveSlot, error)
	Put(ctx context.Context, slot domain.ActiveSlot) (domain.ActiveSlot, error)
}

// CourseRepository loads and stores course documents with their embedded progress.
type CourseRepository interface {
	GetCourse(ctx context.Context, id string) (domain.Course, error)
	PutCourse(ctx context.Context, c domain.Course) (domain.Course, error)
}

// ModuleReader loads catalog modules (directly or through a cache).
type ModuleReader interface {
	GetModule(ctx context.Context, id string) (domain.Module, error)
}

// Event types published after state changes.
const (
	EventSessionStarted   = "quiz.session.started"
	EventSessionCompleted = "quiz.session.completed"
	EventSessionExpired   = "quiz.session.expired"
	EventSessionAbandoned = "quiz.session.abandoned"
	EventModuleCompleted  = "progress.module.completed"
)

// EventPublisher delivers domain events; delivery is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

func publish(ctx context.Context, p EventPublisher, eventType string, payload any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, eventType, payload); err != nil {
		log.Printf("publish %s: %v", eventType, err)
	}
}
