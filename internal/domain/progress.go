package domain

import "time"

// CompletionRecord tracks one user's completed items within one module.
type CompletionRecord struct {
	StudentID      string     `json:"studentId"`
	ModuleID       string     `json:"moduleId"`
	Completed      bool       `json:"completed"`
	Score          *int       `json:"score,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	CompletedItems []string   `json:"completedItems"`
}

// Has reports whether key is already in the completed set.
func (r *CompletionRecord) Has(key string) bool {
	for _, k := range r.CompletedItems {
		if k == key {
			return true
		}
	}
	return false
}

// Add inserts key if absent and reports whether the set changed.
func (r *CompletionRecord) Add(key string) bool {
	if r.Has(key) {
		return false
	}
	r.CompletedItems = append(r.CompletedItems, key)
	return true
}

// Remove deletes key if present and reports whether the set changed.
func (r *CompletionRecord) Remove(key string) bool {
	for i, k := range r.CompletedItems {
		if k == key {
			r.CompletedItems = append(r.CompletedItems[:i], r.CompletedItems[i+1:]...)
			return true
		}
	}
	return false
}

// Reconcile sets Completed from the item count and stamps or clears CompletedAt
// on the transition. It reports whether the record just became complete.
func (r *CompletionRecord) Reconcile(totalItems int, now time.Time) bool {
	done := totalItems > 0 && len(r.CompletedItems) >= totalItems
	switch {
	case done && !r.Completed:
		r.Completed = true
		t := now
		r.CompletedAt = &t
		return true
	case !done && r.Completed:
		r.Completed = false
		r.CompletedAt = nil
	}
	return false
}

// FindRecord returns the record for (userID, moduleID) or nil.
func (c *Course) FindRecord(userID, moduleID string) *CompletionRecord {
	for i := range c.Progress {
		if c.Progress[i].StudentID == userID && c.Progress[i].ModuleID == moduleID {
			return &c.Progress[i]
		}
	}
	return nil
}

// EnsureRecord returns the record for (userID, moduleID), creating it lazily.
func (c *Course) EnsureRecord(userID, moduleID string) *CompletionRecord {
	if r := c.FindRecord(userID, moduleID); r != nil {
		return r
	}
	c.Progress = append(c.Progress, CompletionRecord{
		StudentID:      userID,
		ModuleID:       moduleID,
		CompletedItems: []string{},
	})
	return &c.Progress[len(c.Progress)-1]
}

// RecordsFor lists every completion record held by userID.
func (c *Course) RecordsFor(userID string) []CompletionRecord {
	out := make([]CompletionRecord, 0)
	for _, r := range c.Progress {
		if r.StudentID == userID {
			out = append(out, r)
		}
	}
	return out
}

// ModuleProgress is the derived per-module view for one user.
type ModuleProgress struct {
	ModuleID       string   `json:"moduleId"`
	Title          string   `json:"title"`
	CompletedItems int      `json:"completedItems"`
	TotalItems     int      `json:"totalItems"`
	Percentage     float64  `json:"percentage"`
	Completed      bool     `json:"completed"`
	Items          []string `json:"items"`
}

// CourseProgress is recomputed on every read and never persisted.
//
// ProgressPercentage is the item ratio across all modules and drives progress bars.
// CompletedModules counts CompletionRecord.Completed flags and drives module badges
// and course-completion reporting. The two can disagree when a module's structure
// changes after a record was reconciled.
type CourseProgress struct {
	ProgressPercentage float64            `json:"progressPercentage"`
	TotalModules       int                `json:"totalModules"`
	CompletedModules   int                `json:"completedModules"`
	ModulesProgress    []ModuleProgress   `json:"modulesProgress"`
	AllCompletedItems  []string           `json:"allCompletedItems"`
	Records            []CompletionRecord `json:"progress"`
}
