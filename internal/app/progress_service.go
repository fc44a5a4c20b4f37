package app

import (
	"context"
	"errors"
	"log"
	"time"

	"learning-progress-service/internal/domain"
)

// ItemToggle is an explicit request to mark one module item done or undone.
// When ItemType and ItemIndex are set the completion key is derived from the
// module structure; otherwise ItemID is the key.
type ItemToggle struct {
	CourseID  string   `validate:"required"`
	ModuleID  string   `validate:"required"`
	UserID    string   `validate:"required"`
	ItemID    string   `validate:"required"`
	ItemType  ItemType `validate:"omitempty,oneof=description content video resource assessment quiz discussion item"`
	ItemIndex *int     `validate:"omitempty,min=0"`
	Completed bool
}

// ItemToggleView is returned to the caller after a toggle.
type ItemToggleView struct {
	ModuleCompleted bool     `json:"moduleCompleted"`
	CompletedItems  []string `json:"completedItems"`
}

// ModuleCompletedEvent is published when a record first reaches its item total.
type ModuleCompletedEvent struct {
	CourseID    string    `json:"courseId"`
	ModuleID    string    `json:"moduleId"`
	UserID      string    `json:"userId"`
	CompletedAt time.Time `json:"completedAt"`
}

// ProgressService owns every write to the course document's progress entries.
// Writes reload the latest revision, reapply the mutation and retry on conflict
// a bounded number of times.
type ProgressService struct {
	courses    CourseRepository
	modules    ModuleReader
	aggregator *ProgressAggregator
	events     EventPublisher
	attempts   int
}

func NewProgressService(courses CourseRepository, modules ModuleReader, aggregator *ProgressAggregator, events EventPublisher, attempts int) *ProgressService {
	if events == nil {
		events = NopPublisher{}
	}
	if attempts < 1 {
		attempts = 3
	}
	return &ProgressService{
		courses:    courses,
		modules:    modules,
		aggregator: aggregator,
		events:     events,
		attempts:   attempts,
	}
}

// CompleteItem applies an explicit item toggle and persists the course.
func (s *ProgressService) CompleteItem(ctx context.Context, t ItemToggle) (ItemToggleView, error) {
	if err := validateInput(t); err != nil {
		return ItemToggleView{}, err
	}

	key := t.ItemID
	if t.ItemType != "" && t.ItemIndex != nil {
		module, err := s.modules.GetModule(ctx, t.ModuleID)
		if err != nil {
			return ItemToggleView{}, err
		}
		key = ItemCompletionKey(module, t.ItemType, *t.ItemIndex)
	}

	outcome, err := s.apply(ctx, t.CourseID, t.ModuleID, t.UserID, key, t.Completed, nil)
	if err != nil {
		return ItemToggleView{}, err
	}
	return ItemToggleView{
		ModuleCompleted: outcome.Record.Completed,
		CompletedItems:  nonNil(outcome.Record.CompletedItems),
	}, nil
}

// CreditQuiz marks the quiz item of a completed session and records its score.
// The module is read from the store so the key follows its current structure.
func (s *ProgressService) CreditQuiz(ctx context.Context, session domain.QuizSession, score int) error {
	module, err := s.modules.GetModule(ctx, session.ModuleID)
	if err != nil {
		return err
	}
	quizIndex, _, err := ResolveQuiz(module, session.QuizID)
	if err != nil {
		return err
	}
	key := QuizCompletionKey(module, quizIndex)
	_, err = s.apply(ctx, session.CourseID, session.ModuleID, session.UserID, key, true, &score)
	return err
}

// CourseProgress recomputes the user's course progress. A transient store failure
// degrades to an empty estimate; a missing course is reported.
func (s *ProgressService) CourseProgress(ctx context.Context, courseID, userID string) (domain.CourseProgress, error) {
	course, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			log.Printf("progress: course %s unavailable, returning empty estimate: %v", courseID, err)
			return emptyProgress(), nil
		}
		return domain.CourseProgress{}, err
	}
	return s.aggregator.ComputeCourseProgress(ctx, course, userID), nil
}

func (s *ProgressService) apply(ctx context.Context, courseID, moduleID, userID, key string, completed bool, score *int) (ItemOutcome, error) {
	var outcome ItemOutcome
	err := retryOnConflict(ctx, s.attempts, func() error {
		course, err := s.courses.GetCourse(ctx, courseID)
		if err != nil {
			return err
		}
		outcome, err = s.aggregator.RecordItemCompletion(ctx, &course, userID, moduleID, key, completed)
		if err != nil {
			return err
		}
		if score != nil {
			record := course.FindRecord(userID, moduleID)
			if record.Score == nil || *record.Score != *score {
				v := *score
				record.Score = &v
				outcome.Record.Score = &v
				outcome.Changed = true
			}
		}
		if !outcome.Changed {
			return nil
		}
		_, err = s.courses.PutCourse(ctx, course)
		return err
	})
	if err != nil {
		return ItemOutcome{}, err
	}
	if outcome.BecameComplete && outcome.Record.CompletedAt != nil {
		publish(ctx, s.events, EventModuleCompleted, ModuleCompletedEvent{
			CourseID:    courseID,
			ModuleID:    moduleID,
			UserID:      userID,
			CompletedAt: *outcome.Record.CompletedAt,
		})
	}
	return outcome, nil
}

func emptyProgress() domain.CourseProgress {
	return domain.CourseProgress{
		ModulesProgress:   []domain.ModuleProgress{},
		AllCompletedItems: []string{},
		Records:           []domain.CompletionRecord{},
	}
}
