package app

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"learning-progress-service/internal/domain"
)

// Score grades answers against the quiz definition. It is pure: the same inputs
// always yield the same result and nothing is mutated.
func Score(quiz domain.Quiz, answers domain.Answers) domain.ScoreResult {
	result := domain.ScoreResult{
		TotalQuestions: len(quiz.Questions),
		PerQuestion:    make([]domain.QuestionResult, 0, len(quiz.Questions)),
	}
	for i, q := range quiz.Questions {
		submitted, ok := answers[strconv.Itoa(i)]
		graded, correct := gradeQuestion(q, submitted, ok)
		if correct {
			result.CorrectCount++
		}
		result.PerQuestion = append(result.PerQuestion, domain.QuestionResult{
			Index:   i,
			Correct: correct,
			Graded:  graded,
		})
	}
	if result.TotalQuestions == 0 {
		return result
	}
	result.Score = int(math.Round(float64(result.CorrectCount) / float64(result.TotalQuestions) * 100))
	return result
}

// gradeQuestion reports whether the type is auto-graded and whether the answer earns credit.
func gradeQuestion(q domain.Question, submitted any, present bool) (bool, bool) {
	switch q.Type {
	case domain.QuestionMultipleChoice:
		return true, present && sameValue(submitted, q.CorrectAnswer)
	case domain.QuestionTrueFalse:
		return true, present && truthy(submitted) == truthy(q.CorrectAnswer)
	case domain.QuestionShortAnswer:
		if !present {
			return true, false
		}
		got := normalizeText(submitted)
		if got == "" {
			return true, false
		}
		// no reference answer: credit for attempting
		if q.CorrectAnswer == nil || normalizeText(q.CorrectAnswer) == "" {
			return true, true
		}
		want := normalizeText(q.CorrectAnswer)
		return true, got == want || strings.Contains(got, want)
	default:
		return false, false
	}
}

// sameValue is exact equality, except that numbers compare by value so a decoded
// JSON 1 matches an int 1.
func sameValue(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// truthy maps the tokens {true, "true", 1, "1"} to true and everything else to false.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "1"
	default:
		if f, ok := asFloat(v); ok {
			return f == 1
		}
		return false
	}
}

func normalizeText(v any) string {
	if v == nil {
		return ""
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	default:
		s = fmt.Sprint(t)
	}
	return strings.ToLower(strings.TrimSpace(s))
}
