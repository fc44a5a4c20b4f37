package domain

import "strings"

// QuestionType selects the grading rule for a question.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple-choice"
	QuestionTrueFalse      QuestionType = "true-false"
	QuestionShortAnswer    QuestionType = "short-answer"
)

// Question is one gradable prompt of a quiz.
type Question struct {
	Text          string       `json:"text" yaml:"text"`
	Type          QuestionType `json:"type" yaml:"type"`
	Options       []string     `json:"options,omitempty" yaml:"options,omitempty"`
	CorrectAnswer any          `json:"correctAnswer,omitempty" yaml:"correctAnswer,omitempty"`
}

// Quiz is a quiz definition embedded in a module.
type Quiz struct {
	ID        string     `json:"id" yaml:"id"`
	Key       string     `json:"key,omitempty" yaml:"key,omitempty"`
	Title     string     `json:"title" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// ContentItem is a generic completable element of a module.
type ContentItem struct {
	Key   string `json:"key,omitempty" yaml:"key,omitempty"`
	Title string `json:"title" yaml:"title"`
	Type  string `json:"type,omitempty" yaml:"type,omitempty"`
	URL   string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Module is a catalog unit whose structural fields define its completable items.
type Module struct {
	ID           string        `json:"id" yaml:"id"`
	CourseID     string        `json:"courseId" yaml:"courseId"`
	Title        string        `json:"title" yaml:"title"`
	Description  string        `json:"description,omitempty" yaml:"description,omitempty"`
	Content      string        `json:"content,omitempty" yaml:"content,omitempty"`
	VideoURL     string        `json:"videoUrl,omitempty" yaml:"videoUrl,omitempty"`
	Resources    []ContentItem `json:"resources,omitempty" yaml:"resources,omitempty"`
	Assessments  []ContentItem `json:"assessments,omitempty" yaml:"assessments,omitempty"`
	Quizzes      []Quiz        `json:"quizzes,omitempty" yaml:"quizzes,omitempty"`
	Discussions  []ContentItem `json:"discussions,omitempty" yaml:"discussions,omitempty"`
	ContentItems []ContentItem `json:"contentItems,omitempty" yaml:"contentItems,omitempty"`

	Rev string `json:"-" yaml:"-"`
}

// TotalItems counts the structural elements currently present on the module.
// It is recomputed on every call and never stored.
func (m Module) TotalItems() int {
	total := 0
	for _, s := range []string{m.Description, m.Content, m.VideoURL} {
		if strings.TrimSpace(s) != "" {
			total++
		}
	}
	return total +
		len(m.Resources) +
		len(m.Assessments) +
		len(m.Quizzes) +
		len(m.Discussions) +
		len(m.ContentItems)
}

// AssignItemKeys gives every keyless list item a stable key from newKey.
// It reports whether anything changed.
func (m *Module) AssignItemKeys(newKey func() string) bool {
	changed := false
	for _, items := range [][]ContentItem{m.Resources, m.Assessments, m.Discussions, m.ContentItems} {
		for i := range items {
			if items[i].Key == "" {
				items[i].Key = newKey()
				changed = true
			}
		}
	}
	for i := range m.Quizzes {
		if m.Quizzes[i].Key == "" {
			m.Quizzes[i].Key = newKey()
			changed = true
		}
	}
	return changed
}

// Course is the catalog root; it embeds per-user completion records.
type Course struct {
	ID        string             `json:"id" yaml:"id"`
	Title     string             `json:"title" yaml:"title"`
	ModuleIDs []string           `json:"moduleIds" yaml:"moduleIds"`
	Progress  []CompletionRecord `json:"progress,omitempty" yaml:"-"`

	Rev string `json:"-" yaml:"-"`
}

// HasModule reports whether moduleID is referenced by the course.
func (c Course) HasModule(moduleID string) bool {
	for _, id := range c.ModuleIDs {
		if id == moduleID {
			return true
		}
	}
	return false
}
