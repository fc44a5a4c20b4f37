package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"learning-progress-service/internal/domain"
)

// ErrStartInProgress is returned when a concurrent start claimed the slot but
// has not stored its session yet; the client may simply retry.
var ErrStartInProgress = fmt.Errorf("quiz session start already in progress: %w", domain.ErrConflict)

// staleSlotAfter is how long a slot may point at a session that was never stored
// before another start may reclaim it.
const staleSlotAfter = 30 * time.Second

// SessionPolicy holds the time rules for quiz sessions.
type SessionPolicy struct {
	GracePeriod        time.Duration
	MaxDurationMinutes int
}

// DefaultSessionPolicy tolerates submissions up to 10s past the deadline.
func DefaultSessionPolicy() SessionPolicy {
	return SessionPolicy{GracePeriod: 10 * time.Second, MaxDurationMinutes: 24 * 60}
}

// QuizCreditor credits a completed quiz into course progress.
type QuizCreditor interface {
	CreditQuiz(ctx context.Context, session domain.QuizSession, score int) error
}

// StartInput is the request to open (or reuse) a timed session.
type StartInput struct {
	UserID          string `validate:"required"`
	QuizID          string `validate:"required"`
	CourseID        string `validate:"required"`
	ModuleID        string `validate:"required"`
	DurationMinutes int    `validate:"min=1"`
}

// SessionView is the client-facing state of a session.
type SessionView struct {
	SessionID     string               `json:"sessionId"`
	StartTime     time.Time            `json:"startTime"`
	EndTime       time.Time            `json:"endTime"`
	TimeRemaining int                  `json:"timeRemaining"`
	Status        domain.SessionStatus `json:"status"`
	Answers       domain.Answers       `json:"answers"`
}

// StatusView answers "does the user have a running attempt at this quiz".
type StatusView struct {
	HasActiveSession bool                 `json:"hasActiveSession"`
	SessionID        string               `json:"sessionId,omitempty"`
	TimeRemaining    int                  `json:"timeRemaining"`
	Status           domain.SessionStatus `json:"status,omitempty"`
	Answers          domain.Answers       `json:"answers"`
}

// SaveView is returned after an autosave.
type SaveView struct {
	TimeSpent     int `json:"timeSpent"`
	TimeRemaining int `json:"timeRemaining"`
}

// SubmitView is returned after a successful submission.
type SubmitView struct {
	SessionID      string         `json:"sessionId"`
	Score          int            `json:"score"`
	CorrectCount   int            `json:"correctCount"`
	TotalQuestions int            `json:"totalQuestions"`
	TimeSpent      int            `json:"timeSpent"`
	SubmittedAt    time.Time      `json:"submittedAt"`
	Answers        domain.Answers `json:"answers"`
}

// CompletionView reports the latest completed attempt at a quiz.
type CompletionView struct {
	IsCompleted bool       `json:"isCompleted"`
	CompletedAt *time.Time `json:"completedAt"`
	Score       *int       `json:"score"`
	TimeSpent   int        `json:"timeSpent"`
	SessionID   string     `json:"sessionId,omitempty"`
}

// SessionEvent is the payload of session lifecycle events.
type SessionEvent struct {
	SessionID string               `json:"sessionId"`
	UserID    string               `json:"userId"`
	QuizID    string               `json:"quizId"`
	CourseID  string               `json:"courseId"`
	ModuleID  string               `json:"moduleId"`
	Status    domain.SessionStatus `json:"status"`
	Score     *int                 `json:"score,omitempty"`
	At        time.Time            `json:"at"`
}

// SweepReport counts what one reconciliation pass did.
type SweepReport struct {
	Scanned   int `json:"scanned"`
	Expired   int `json:"expired"`
	Abandoned int `json:"abandoned"`
	Skipped   int `json:"skipped"`
}

// SessionService owns the quiz-session state machine:
//
//	active --(deadline passed, detected lazily)--> expired
//	active --(submit within grace)---------------> completed
//	active --(sweep, long past deadline)---------> abandoned
//
// Expiry is checked whenever a session is read or mutated. Sessions that are never
// revisited stay active in storage until a sweep runs.
type SessionService struct {
	sessions SessionRepository
	slots    SlotRepository
	catalog  ModuleReader
	progress QuizCreditor
	events   EventPublisher
	policy   SessionPolicy
	watchers *watchHub
	now      func() time.Time
	newID    func() string
}

func NewSessionService(sessions SessionRepository, slots SlotRepository, catalog ModuleReader, progress QuizCreditor, events EventPublisher, policy SessionPolicy) *SessionService {
	if events == nil {
		events = NopPublisher{}
	}
	return &SessionService{
		sessions: sessions,
		slots:    slots,
		catalog:  catalog,
		progress: progress,
		events:   events,
		policy:   policy,
		watchers: newWatchHub(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithClock swaps the time source; tests use it for deterministic deadlines.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// Start opens a session for (user, quiz), or returns the running one unchanged.
func (s *SessionService) Start(ctx context.Context, in StartInput) (SessionView, error) {
	if err := validateInput(in); err != nil {
		return SessionView{}, err
	}
	if s.policy.MaxDurationMinutes > 0 && in.DurationMinutes > s.policy.MaxDurationMinutes {
		return SessionView{}, fmt.Errorf("%w: duration exceeds %d minutes", domain.ErrValidation, s.policy.MaxDurationMinutes)
	}

	module, err := s.catalog.GetModule(ctx, in.ModuleID)
	if err != nil {
		return SessionView{}, err
	}
	_, quiz, err := ResolveQuiz(module, in.QuizID)
	if err != nil {
		return SessionView{}, err
	}
	quizID := canonicalID(quiz, in.QuizID)

	now := s.now()
	slot, err := s.slots.Get(ctx, in.UserID, quizID)
	switch {
	case err == nil:
		existing, err := s.sessions.Get(ctx, slot.SessionID)
		switch {
		case err == nil && existing.Status == domain.SessionActive:
			if !existing.ExpiredAt(now) {
				return sessionView(existing, now), nil
			}
			if _, err := s.expire(ctx, existing, now); err != nil {
				return SessionView{}, err
			}
		case errors.Is(err, domain.ErrNotFound):
			// claimed by a concurrent start that has not stored its session yet
			if now.Sub(slot.UpdatedAt) < staleSlotAfter {
				return SessionView{}, ErrStartInProgress
			}
		case err != nil:
			return SessionView{}, err
		}
	case errors.Is(err, domain.ErrNotFound):
		slot = domain.ActiveSlot{UserID: in.UserID, QuizID: quizID}
	default:
		return SessionView{}, err
	}

	session := domain.NewQuizSession(s.newID(), in.UserID, quizID, in.CourseID, in.ModuleID, in.DurationMinutes, now)
	slot.SessionID = session.ID
	slot.UpdatedAt = now
	if _, err := s.slots.Put(ctx, slot); err != nil {
		if errors.Is(err, domain.ErrRevisionConflict) {
			return s.startWinner(ctx, in.UserID, quizID, now)
		}
		return SessionView{}, err
	}

	created, err := s.sessions.Create(ctx, session)
	if err != nil {
		return SessionView{}, err
	}
	publish(ctx, s.events, EventSessionStarted, sessionEvent(created, now))
	return sessionView(created, now), nil
}

// startWinner returns the session of a concurrent start that claimed the slot first.
func (s *SessionService) startWinner(ctx context.Context, userID, quizID string, now time.Time) (SessionView, error) {
	slot, err := s.slots.Get(ctx, userID, quizID)
	if err != nil {
		return SessionView{}, err
	}
	winner, err := s.sessions.Get(ctx, slot.SessionID)
	if errors.Is(err, domain.ErrNotFound) {
		return SessionView{}, ErrStartInProgress
	}
	if err != nil {
		return SessionView{}, err
	}
	if winner.Status != domain.SessionActive || winner.ExpiredAt(now) {
		return SessionView{}, ErrStartInProgress
	}
	return sessionView(winner, now), nil
}

// Status is best-effort: any failure reads as "no active session". When moduleID
// is given, quizID is resolved against the module first.
func (s *SessionService) Status(ctx context.Context, userID, quizID, moduleID string) StatusView {
	none := StatusView{Answers: domain.Answers{}}
	quizID = s.resolveQuizID(ctx, moduleID, quizID)

	slot, err := s.slots.Get(ctx, userID, quizID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Printf("session status: slot %s/%s: %v", userID, quizID, err)
		}
		return none
	}
	session, err := s.sessions.Get(ctx, slot.SessionID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Printf("session status: load %s: %v", slot.SessionID, err)
		}
		return none
	}
	if session.UserID != userID {
		return none
	}

	now := s.now()
	if session.Status == domain.SessionActive && session.ExpiredAt(now) {
		expired, err := s.expire(ctx, session, now)
		if err != nil {
			log.Printf("session status: expire %s: %v", session.ID, err)
			return none
		}
		session = expired
	}
	if session.Status != domain.SessionActive {
		return StatusView{SessionID: session.ID, Status: session.Status, Answers: session.Answers}
	}
	return StatusView{
		HasActiveSession: true,
		SessionID:        session.ID,
		TimeRemaining:    session.RemainingSeconds(now),
		Status:           session.Status,
		Answers:          session.Answers,
	}
}

// SaveAnswers merges an autosave into an active, unexpired session.
func (s *SessionService) SaveAnswers(ctx context.Context, sessionID, userID string, answers domain.Answers) (SaveView, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return SaveView{}, err
	}
	if session.UserID != userID {
		return SaveView{}, domain.ErrNotSessionOwner
	}
	if session.Status != domain.SessionActive {
		return SaveView{}, domain.ErrSessionInactive
	}

	now := s.now()
	if session.ExpiredAt(now) {
		if _, err := s.expire(ctx, session, now); err != nil {
			log.Printf("save answers: expire %s: %v", session.ID, err)
		}
		return SaveView{}, domain.ErrSessionExpired
	}

	session.Answers = session.Answers.Merge(answers)
	session.TimeSpentSeconds = session.ElapsedSeconds(now)
	session.UpdatedAt = now
	saved, err := s.sessions.Update(ctx, session)
	if err != nil {
		return SaveView{}, err
	}
	s.watchers.broadcast(sessionView(saved, now))
	return SaveView{TimeSpent: saved.TimeSpentSeconds, TimeRemaining: saved.RemainingSeconds(now)}, nil
}

// Submit grades and completes the session, then credits course progress.
// Only the session write is fatal; the progress credit is best-effort.
func (s *SessionService) Submit(ctx context.Context, sessionID, userID string, answers domain.Answers) (SubmitView, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return SubmitView{}, err
	}
	if session.UserID != userID {
		return SubmitView{}, domain.ErrNotSessionOwner
	}
	switch session.Status {
	case domain.SessionCompleted:
		return SubmitView{}, domain.ErrAlreadySubmitted
	case domain.SessionExpired, domain.SessionAbandoned:
		return SubmitView{}, domain.ErrSessionInactive
	}

	now := s.now()
	if now.After(session.EndTime.Add(s.policy.GracePeriod)) {
		if _, err := s.expire(ctx, session, now); err != nil {
			log.Printf("submit: expire %s: %v", session.ID, err)
		}
		return SubmitView{}, domain.ErrSubmissionWindowClosed
	}

	module, err := s.catalog.GetModule(ctx, session.ModuleID)
	if err != nil {
		return SubmitView{}, err
	}
	_, quiz, err := ResolveQuiz(module, session.QuizID)
	if err != nil {
		return SubmitView{}, err
	}

	session.Answers = session.Answers.Merge(answers)
	result := Score(quiz, session.Answers)
	score := result.Score
	submittedAt := now
	session.Status = domain.SessionCompleted
	session.Score = &score
	session.SubmittedAt = &submittedAt
	session.TimeSpentSeconds = session.ElapsedSeconds(now)
	session.UpdatedAt = now

	saved, err := s.sessions.Update(ctx, session)
	if err != nil {
		if errors.Is(err, domain.ErrRevisionConflict) {
			if latest, gerr := s.sessions.Get(ctx, sessionID); gerr == nil && latest.Status == domain.SessionCompleted {
				return SubmitView{}, domain.ErrAlreadySubmitted
			}
		}
		return SubmitView{}, err
	}

	if s.progress != nil {
		if err := s.progress.CreditQuiz(ctx, saved, score); err != nil {
			log.Printf("submit: credit progress for session %s: %v", saved.ID, err)
		}
	}
	s.watchers.broadcast(sessionView(saved, now))
	publish(ctx, s.events, EventSessionCompleted, sessionEvent(saved, now))

	return SubmitView{
		SessionID:      saved.ID,
		Score:          score,
		CorrectCount:   result.CorrectCount,
		TotalQuestions: result.TotalQuestions,
		TimeSpent:      saved.TimeSpentSeconds,
		SubmittedAt:    submittedAt,
		Answers:        saved.Answers,
	}, nil
}

// CompletionStatus reports the latest completed attempt; failures read as "not completed".
func (s *SessionService) CompletionStatus(ctx context.Context, userID, quizID, moduleID string) CompletionView {
	quizID = s.resolveQuizID(ctx, moduleID, quizID)
	done, err := s.sessions.FindByUserQuiz(ctx, userID, quizID, domain.SessionCompleted)
	if err != nil {
		log.Printf("completion status %s/%s: %v", userID, quizID, err)
		return CompletionView{}
	}
	if len(done) == 0 {
		return CompletionView{}
	}
	latest := done[0]
	return CompletionView{
		IsCompleted: true,
		CompletedAt: latest.SubmittedAt,
		Score:       latest.Score,
		TimeSpent:   latest.TimeSpentSeconds,
		SessionID:   latest.ID,
	}
}

// Get loads a session for its owner.
func (s *SessionService) Get(ctx context.Context, sessionID, userID string) (SessionView, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	if session.UserID != userID {
		return SessionView{}, domain.ErrNotSessionOwner
	}
	now := s.now()
	if session.Status == domain.SessionActive && session.ExpiredAt(now) {
		if expired, err := s.expire(ctx, session, now); err == nil {
			session = expired
		} else {
			log.Printf("get session: expire %s: %v", session.ID, err)
		}
	}
	return sessionView(session, now), nil
}

// Sweep reconciles sessions nobody revisited. Active sessions past the grace
// period become expired, or abandoned once abandonAfter has also elapsed since
// the deadline. Sessions changed concurrently are skipped; the lazy check on the
// next read remains authoritative.
func (s *SessionService) Sweep(ctx context.Context, abandonAfter time.Duration) (SweepReport, error) {
	var report SweepReport
	active, err := s.sessions.FindByStatus(ctx, domain.SessionActive)
	if err != nil {
		return report, err
	}

	now := s.now()
	for _, session := range active {
		report.Scanned++
		if !now.After(session.EndTime.Add(s.policy.GracePeriod)) {
			continue
		}
		target, event := domain.SessionExpired, EventSessionExpired
		if abandonAfter > 0 && now.After(session.EndTime.Add(abandonAfter)) {
			target, event = domain.SessionAbandoned, EventSessionAbandoned
		}
		session.Status = target
		session.UpdatedAt = now
		saved, err := s.sessions.Update(ctx, session)
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				report.Skipped++
				continue
			}
			return report, err
		}
		if target == domain.SessionAbandoned {
			report.Abandoned++
		} else {
			report.Expired++
		}
		s.watchers.broadcast(sessionView(saved, now))
		publish(ctx, s.events, event, sessionEvent(saved, now))
	}
	return report, nil
}

// resolveQuizID maps a client quiz reference onto the id sessions are stored under.
// Without a module, or when resolution fails, the reference is used as given.
func (s *SessionService) resolveQuizID(ctx context.Context, moduleID, quizID string) string {
	if moduleID == "" {
		return quizID
	}
	module, err := s.catalog.GetModule(ctx, moduleID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Printf("resolve quiz %s in module %s: %v", quizID, moduleID, err)
		}
		return quizID
	}
	_, quiz, err := ResolveQuiz(module, quizID)
	if err != nil {
		return quizID
	}
	return canonicalID(quiz, quizID)
}

func canonicalID(quiz domain.Quiz, requested string) string {
	if quiz.ID == "" {
		return requested
	}
	return quiz.ID
}

func (s *SessionService) expire(ctx context.Context, session domain.QuizSession, now time.Time) (domain.QuizSession, error) {
	session.Status = domain.SessionExpired
	session.UpdatedAt = now
	saved, err := s.sessions.Update(ctx, session)
	if err != nil {
		return session, err
	}
	s.watchers.broadcast(sessionView(saved, now))
	publish(ctx, s.events, EventSessionExpired, sessionEvent(saved, now))
	return saved, nil
}

func sessionView(session domain.QuizSession, now time.Time) SessionView {
	remaining := 0
	if session.Status == domain.SessionActive {
		remaining = session.RemainingSeconds(now)
	}
	return SessionView{
		SessionID:     session.ID,
		StartTime:     session.StartTime,
		EndTime:       session.EndTime,
		TimeRemaining: remaining,
		Status:        session.Status,
		Answers:       session.Answers,
	}
}

func sessionEvent(session domain.QuizSession, now time.Time) SessionEvent {
	return SessionEvent{
		SessionID: session.ID,
		UserID:    session.UserID,
		QuizID:    session.QuizID,
		CourseID:  session.CourseID,
		ModuleID:  session.ModuleID,
		Status:    session.Status,
		Score:     session.Score,
		At:        now,
	}
}
