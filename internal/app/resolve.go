package app

import (
	"strconv"
	"strings"
	"unicode"

	"learning-progress-service/internal/domain"
)

// ResolveQuiz finds quizID within the module's quiz list. Lookups go, in order:
// exact id, normalized id variants, title substring, and finally the module's
// only quiz. The chain is lenient on purpose for older clients that send
// positional or reformatted ids; the returned index is the quiz's position.
func ResolveQuiz(module domain.Module, quizID string) (int, domain.Quiz, error) {
	for i, q := range module.Quizzes {
		if q.ID == quizID {
			return i, q, nil
		}
	}

	want := normalizeID(quizID)
	if want != "" {
		for i, q := range module.Quizzes {
			if normalizeID(q.ID) == want {
				return i, q, nil
			}
		}
		if idx, err := strconv.Atoi(want); err == nil && idx >= 0 && idx < len(module.Quizzes) {
			return idx, module.Quizzes[idx], nil
		}
	}

	needle := strings.ToLower(strings.TrimSpace(quizID))
	if needle != "" {
		for i, q := range module.Quizzes {
			if strings.Contains(strings.ToLower(q.Title), needle) {
				return i, q, nil
			}
		}
	}

	if len(module.Quizzes) == 1 {
		return 0, module.Quizzes[0], nil
	}
	return -1, domain.Quiz{}, domain.ErrQuizNotFound
}

// normalizeID lowercases, drops separators and a leading "quiz" token.
func normalizeID(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(id)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimPrefix(b.String(), "quiz")
}
