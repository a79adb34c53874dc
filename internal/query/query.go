// Package query derives the visible subset of tasks from filter criteria.
package query

import (
	"strings"

	"echotask/internal/task"
)

// Criteria is the ephemeral filter state owned by the session.
type Criteria struct {
	Status task.Filter
	Search string
	Tags   []string // normalized; AND semantics
}

// NewCriteria returns the default criteria: everything visible.
func NewCriteria() Criteria {
	return Criteria{Status: task.FilterAll}
}

// WithTagsCsv returns a copy with the tag filter parsed from user input.
func (c Criteria) WithTagsCsv(csv string) Criteria {
	c.Tags = task.ParseTags(csv)
	return c
}

// Filter returns the tasks passing the criteria. Pure: no side effects, no
// reordering, deterministic for identical inputs. Status is applied even
// when the caller already pre-filtered, so the function is correct in
// isolation.
func Filter(tasks []task.Task, c Criteria) []task.Task {
	search := strings.ToLower(strings.TrimSpace(c.Search))
	out := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		if !c.Status.Matches(t.Status) {
			continue
		}
		if !matchesText(t, search) {
			continue
		}
		if !matchesTags(t, c.Tags) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// matchesText is a case-insensitive substring test against the raw text or
// the cleaned-up text; an absent clean text never matches but never panics.
func matchesText(t task.Task, search string) bool {
	if search == "" {
		return true
	}
	if strings.Contains(strings.ToLower(t.RawText), search) {
		return true
	}
	return strings.Contains(strings.ToLower(t.CleanText), search)
}

// matchesTags requires every criteria tag to appear in the task's tag set.
// An empty criteria set matches everything.
func matchesTags(t task.Task, required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(t.Tags))
	for _, tag := range t.Tags {
		have[strings.ToLower(tag)] = struct{}{}
	}
	for _, tag := range required {
		if _, ok := have[tag]; !ok {
			return false
		}
	}
	return true
}
