package docstore

import (
	"context"
	"sort"

	"learning-progress-service/internal/domain"
)

// SessionRepository persists quiz sessions as typed documents.
type SessionRepository struct {
	store Store
}

func NewSessionRepository(store Store) *SessionRepository {
	return &SessionRepository{store: store}
}

func (r *SessionRepository) Get(ctx context.Context, id string) (domain.QuizSession, error) {
	doc, err := r.store.Get(ctx, id)
	if err != nil {
		return domain.QuizSession{}, translate(err, domain.ErrSessionNotFound)
	}
	return sessionFromDoc(doc)
}

// Create stores a new session; it fails with a conflict if the id is taken.
func (r *SessionRepository) Create(ctx context.Context, s domain.QuizSession) (domain.QuizSession, error) {
	s.Rev = ""
	return r.put(ctx, s)
}

// Update writes s against its revision token.
func (r *SessionRepository) Update(ctx context.Context, s domain.QuizSession) (domain.QuizSession, error) {
	if s.Rev == "" {
		return domain.QuizSession{}, domain.ErrRevisionConflict
	}
	return r.put(ctx, s)
}

// FindByUserQuiz lists the user's sessions for a quiz with the given status, newest first.
func (r *SessionRepository) FindByUserQuiz(ctx context.Context, userID, quizID string, status domain.SessionStatus) ([]domain.QuizSession, error) {
	return r.find(ctx, Selector{Type: TypeSession, Match: map[string]string{
		"userId": userID,
		"quizId": quizID,
		"status": string(status),
	}})
}

// FindByStatus lists every session in the given status, newest first.
func (r *SessionRepository) FindByStatus(ctx context.Context, status domain.SessionStatus) ([]domain.QuizSession, error) {
	return r.find(ctx, Selector{Type: TypeSession, Match: map[string]string{"status": string(status)}})
}

func (r *SessionRepository) find(ctx context.Context, sel Selector) ([]domain.QuizSession, error) {
	docs, err := r.store.Find(ctx, sel)
	if err != nil {
		return nil, err
	}
	out := make([]domain.QuizSession, 0, len(docs))
	for _, doc := range docs {
		s, err := sessionFromDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out, nil
}

func (r *SessionRepository) put(ctx context.Context, s domain.QuizSession) (domain.QuizSession, error) {
	doc, err := encode(s.ID, TypeSession, s.Rev, s, map[string]string{
		"userId":    s.UserID,
		"quizId":    s.QuizID,
		"courseId":  s.CourseID,
		"status":    string(s.Status),
		"startTime": FormatTime(s.StartTime),
	})
	if err != nil {
		return domain.QuizSession{}, err
	}
	saved, err := r.store.Put(ctx, doc)
	if err != nil {
		return domain.QuizSession{}, err
	}
	s.Rev = saved.Rev
	return s, nil
}

func sessionFromDoc(doc Document) (domain.QuizSession, error) {
	var s domain.QuizSession
	if err := decode(doc, TypeSession, &s, domain.ErrSessionNotFound); err != nil {
		return domain.QuizSession{}, err
	}
	if s.Answers == nil {
		s.Answers = domain.Answers{}
	}
	s.Rev = doc.Rev
	return s, nil
}
