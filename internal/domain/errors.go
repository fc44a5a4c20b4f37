package domain

import "errors"

// Error kinds. Callers classify failures with errors.Is against these.
var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrValidation       = errors.New("validation failed")
	ErrSessionExpired   = errors.New("quiz session expired")
	ErrConflict         = errors.New("conflict")
	ErrStoreUnavailable = errors.New("document store unavailable")
)

var (
	// ErrSessionNotFound is returned when a quiz session id does not resolve.
	ErrSessionNotFound = kindError(ErrNotFound, "quiz session not found")
	// ErrQuizNotFound indicates the quiz could not be resolved within its module.
	ErrQuizNotFound = kindError(ErrNotFound, "quiz not found")
	// ErrCourseNotFound indicates the course document is missing.
	ErrCourseNotFound = kindError(ErrNotFound, "course not found")
	// ErrModuleNotFound indicates the module document is missing or not part of the course.
	ErrModuleNotFound = kindError(ErrNotFound, "module not found")
	// ErrNotSessionOwner is returned when the caller does not own the session.
	ErrNotSessionOwner = kindError(ErrForbidden, "caller does not own this quiz session")
	// ErrSessionInactive is returned when a session has already left the active state.
	ErrSessionInactive = kindError(ErrSessionExpired, "quiz session is no longer active")
	// ErrSubmissionWindowClosed is returned when submit arrives after the grace period.
	ErrSubmissionWindowClosed = kindError(ErrSessionExpired, "quiz session expired before submission")
	// ErrAlreadySubmitted rejects a second submit on a completed session.
	ErrAlreadySubmitted = kindError(ErrConflict, "quiz session already submitted")
	// ErrRevisionConflict is reported by stores when a write carries a stale revision.
	ErrRevisionConflict = kindError(ErrConflict, "document revision conflict")
)

type kindErr struct {
	kind error
	msg  string
}

func kindError(kind error, msg string) error {
	return &kindErr{kind: kind, msg: msg}
}

func (e *kindErr) Error() string { return e.msg }

func (e *kindErr) Unwrap() error { return e.kind }
