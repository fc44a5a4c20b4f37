package app

import (
	"context"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"learning-progress-service/internal/domain"
)

// ItemType names a structural element kind of a module.
type ItemType string

const (
	ItemDescription ItemType = "description"
	ItemContent     ItemType = "content"
	ItemVideo       ItemType = "video"
	ItemResource    ItemType = "resource"
	ItemAssessment  ItemType = "assessment"
	ItemQuiz        ItemType = "quiz"
	ItemDiscussion  ItemType = "discussion"
	ItemGeneric     ItemType = "item"
)

// positionalOrder is the walk used for legacy positional keys. The description is
// the module header and sits outside the positional run.
var positionalOrder = []ItemType{ItemContent, ItemVideo, ItemResource, ItemAssessment, ItemQuiz, ItemDiscussion, ItemGeneric}

// ItemOutcome reports what a completion toggle did to the user's module record.
// Changed is false only when the course document needs no write.
type ItemOutcome struct {
	Record         domain.CompletionRecord
	TotalItems     int
	Changed        bool
	BecameComplete bool
}

// ProgressAggregator maintains completion records embedded in course documents
// and derives module and course percentages from them.
type ProgressAggregator struct {
	modules     ModuleReader
	concurrency int
	now         func() time.Time
}

func NewProgressAggregator(modules ModuleReader, concurrency int) *ProgressAggregator {
	return NewProgressAggregatorWithClock(modules, concurrency, time.Now)
}

// NewProgressAggregatorWithClock is used by tests for deterministic timestamps.
func NewProgressAggregatorWithClock(modules ModuleReader, concurrency int, now func() time.Time) *ProgressAggregator {
	if concurrency < 1 {
		concurrency = 4
	}
	return &ProgressAggregator{modules: modules, concurrency: concurrency, now: now}
}

// RecordItemCompletion toggles key in the (userID, moduleID) record of course.
// Adding a present key or removing an absent one is a no-op. The module is reloaded
// so totalItems reflects its current structure, then Completed and CompletedAt are
// reconciled. Only the in-memory course is mutated; the caller persists it.
func (a *ProgressAggregator) RecordItemCompletion(ctx context.Context, course *domain.Course, userID, moduleID, key string, completed bool) (ItemOutcome, error) {
	if strings.TrimSpace(key) == "" || userID == "" {
		return ItemOutcome{}, domain.ErrValidation
	}
	if !course.HasModule(moduleID) {
		return ItemOutcome{}, domain.ErrModuleNotFound
	}
	module, err := a.modules.GetModule(ctx, moduleID)
	if err != nil {
		return ItemOutcome{}, err
	}

	total := module.TotalItems()
	created := course.FindRecord(userID, moduleID) == nil
	if created && !completed {
		// nothing to remove; records are only created by a completion
		return ItemOutcome{
			Record:     domain.CompletionRecord{StudentID: userID, ModuleID: moduleID, CompletedItems: []string{}},
			TotalItems: total,
		}, nil
	}
	record := course.EnsureRecord(userID, moduleID)
	wasCompleted := record.Completed
	var changed bool
	if completed {
		changed = record.Add(key)
	} else {
		changed = record.Remove(key)
	}
	became := record.Reconcile(total, a.now())
	changed = changed || created || wasCompleted != record.Completed

	out := *record
	out.CompletedItems = append([]string(nil), record.CompletedItems...)
	return ItemOutcome{Record: out, TotalItems: total, Changed: changed, BecameComplete: became}, nil
}

// ComputeCourseProgress derives the user's progress across every module the
// course references. Modules that fail to load are logged and skipped.
func (a *ProgressAggregator) ComputeCourseProgress(ctx context.Context, course domain.Course, userID string) domain.CourseProgress {
	type loaded struct {
		module domain.Module
		ok     bool
	}
	results := make([]loaded, len(course.ModuleIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, id := range course.ModuleIDs {
		g.Go(func() error {
			m, err := a.modules.GetModule(gctx, id)
			if err != nil {
				log.Printf("progress: skip module %s of course %s: %v", id, course.ID, err)
				return nil
			}
			results[i] = loaded{module: m, ok: true}
			return nil
		})
	}
	_ = g.Wait()

	progress := domain.CourseProgress{
		TotalModules:      len(course.ModuleIDs),
		ModulesProgress:   make([]domain.ModuleProgress, 0, len(course.ModuleIDs)),
		AllCompletedItems: make([]string, 0),
		Records:           course.RecordsFor(userID),
	}

	var done, total int
	for i, id := range course.ModuleIDs {
		record := course.FindRecord(userID, id)
		if record != nil && record.Completed {
			progress.CompletedModules++
		}
		var items []string
		if record != nil {
			items = append(items, record.CompletedItems...)
		}
		progress.AllCompletedItems = append(progress.AllCompletedItems, items...)

		if !results[i].ok {
			continue
		}
		m := results[i].module
		moduleTotal := m.TotalItems()
		done += len(items)
		total += moduleTotal
		progress.ModulesProgress = append(progress.ModulesProgress, domain.ModuleProgress{
			ModuleID:       id,
			Title:          m.Title,
			CompletedItems: len(items),
			TotalItems:     moduleTotal,
			Percentage:     percentage(len(items), moduleTotal),
			Completed:      record != nil && record.Completed,
			Items:          nonNil(items),
		})
	}
	progress.ProgressPercentage = percentage(done, total)
	return progress
}

// QuizCompletionKey is the completion key of the quiz at quizIndex in module.
func QuizCompletionKey(module domain.Module, quizIndex int) string {
	return ItemCompletionKey(module, ItemQuiz, quizIndex)
}

// ItemCompletionKey prefers the item's stable key and falls back to the legacy
// positional key "<type>-<offset+index>", where offset counts the positioned
// items that precede this type. Positional keys shift when siblings are
// reordered or deleted; stable keys do not.
func ItemCompletionKey(module domain.Module, itemType ItemType, index int) string {
	if key := stableKey(module, itemType, index); key != "" {
		return string(itemType) + "-" + key
	}
	if itemType == ItemDescription {
		return string(ItemDescription) + "-0"
	}
	offset := 0
	for _, t := range positionalOrder {
		if t == itemType {
			break
		}
		offset += countOf(module, t)
	}
	return string(itemType) + "-" + strconv.Itoa(offset+index)
}

func stableKey(m domain.Module, t ItemType, index int) string {
	if t == ItemQuiz {
		if index >= 0 && index < len(m.Quizzes) {
			return m.Quizzes[index].Key
		}
		return ""
	}
	items := listOf(m, t)
	if index >= 0 && index < len(items) {
		return items[index].Key
	}
	return ""
}

func listOf(m domain.Module, t ItemType) []domain.ContentItem {
	switch t {
	case ItemResource:
		return m.Resources
	case ItemAssessment:
		return m.Assessments
	case ItemDiscussion:
		return m.Discussions
	case ItemGeneric:
		return m.ContentItems
	default:
		return nil
	}
}

func countOf(m domain.Module, t ItemType) int {
	switch t {
	case ItemContent:
		return presence(m.Content)
	case ItemVideo:
		return presence(m.VideoURL)
	case ItemQuiz:
		return len(m.Quizzes)
	default:
		return len(listOf(m, t))
	}
}

func presence(s string) int {
	if strings.TrimSpace(s) == "" {
		return 0
	}
	return 1
}

// percentage is done/total as 0..100 with two decimals; zero totals yield 0.
func percentage(done, total int) float64 {
	if total <= 0 || done <= 0 {
		return 0
	}
	p := float64(done) / float64(total) * 100
	if p > 100 {
		p = 100
	}
	return math.Round(p*100) / 100
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
