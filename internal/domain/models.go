package domain

import "time"

// SessionStatus is the lifecycle state of a timed quiz attempt.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
	SessionAbandoned SessionStatus = "abandoned"
)

// Terminal reports whether the status has no outgoing transitions.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionExpired || s == SessionAbandoned
}

// Answers maps a question index (decimal string) to the submitted value.
type Answers map[string]any

// Merge copies every entry of next over a, later writes winning per index.
func (a Answers) Merge(next Answers) Answers {
	out := make(Answers, len(a)+len(next))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range next {
		out[k] = v
	}
	return out
}

// QuizSession is a single timed attempt at a quiz by one user.
type QuizSession struct {
	ID               string        `json:"id"`
	UserID           string        `json:"userId"`
	QuizID           string        `json:"quizId"`
	CourseID         string        `json:"courseId"`
	ModuleID         string        `json:"moduleId"`
	StartTime        time.Time     `json:"startTime"`
	DurationMinutes  int           `json:"durationMinutes"`
	EndTime          time.Time     `json:"endTime"`
	Status           SessionStatus `json:"status"`
	Answers          Answers       `json:"answers"`
	TimeSpentSeconds int           `json:"timeSpentSeconds"`
	Score            *int          `json:"score,omitempty"`
	SubmittedAt      *time.Time    `json:"submittedAt,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`

	Rev string `json:"-"`
}

// NewQuizSession fixes the deadline at creation; EndTime is never recomputed afterwards.
func NewQuizSession(id, userID, quizID, courseID, moduleID string, durationMinutes int, now time.Time) QuizSession {
	return QuizSession{
		ID:              id,
		UserID:          userID,
		QuizID:          quizID,
		CourseID:        courseID,
		ModuleID:        moduleID,
		StartTime:       now,
		DurationMinutes: durationMinutes,
		EndTime:         now.Add(time.Duration(durationMinutes) * time.Minute),
		Status:          SessionActive,
		Answers:         Answers{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// ExpiredAt reports whether now is strictly past the session deadline.
func (s QuizSession) ExpiredAt(now time.Time) bool {
	return now.After(s.EndTime)
}

// RemainingSeconds is the whole seconds left before EndTime, never negative.
func (s QuizSession) RemainingSeconds(now time.Time) int {
	if !now.Before(s.EndTime) {
		return 0
	}
	return int(s.EndTime.Sub(now) / time.Second)
}

// ElapsedSeconds is the whole seconds since StartTime.
func (s QuizSession) ElapsedSeconds(now time.Time) int {
	if now.Before(s.StartTime) {
		return 0
	}
	return int(now.Sub(s.StartTime) / time.Second)
}

// ActiveSlot points at the single active session a user may hold for a quiz.
type ActiveSlot struct {
	UserID    string    `json:"userId"`
	QuizID    string    `json:"quizId"`
	SessionID string    `json:"sessionId"`
	UpdatedAt time.Time `json:"updatedAt"`

	Rev string `json:"-"`
}

// QuestionResult is the grading outcome of one question.
type QuestionResult struct {
	Index   int  `json:"index"`
	Correct bool `json:"correct"`
	Graded  bool `json:"graded"`
}

// ScoreResult summarizes how a set of answers graded against a quiz.
type ScoreResult struct {
	CorrectCount   int              `json:"correctCount"`
	TotalQuestions int              `json:"totalQuestions"`
	Score          int              `json:"score"`
	PerQuestion    []QuestionResult `json:"perQuestion"`
}
