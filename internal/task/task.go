package task

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusActive Status = "active"
	StatusDone   Status = "done"
)

// Filter selects tasks by status when listing.
type Filter string

const (
	FilterAll    Filter = "all"
	FilterActive Filter = "active"
	FilterDone   Filter = "done"
)

// ErrEmptyText is returned when a task would be created or updated with
// blank primary text.
var ErrEmptyText = errors.New("task text is empty")

// timeLayout is a millisecond-precision RFC 3339 UTC form. Fixed width keeps
// timestamps lexicographically sortable.
const timeLayout = "2006-01-02T15:04:05.000Z"

// dueLayout is a calendar date with no time component.
const dueLayout = "2006-01-02"

// SubTask is owned by exactly one Task and has no independent lifecycle.
type SubTask struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// Task is the persisted to-do record.
type Task struct {
	ID        string    `json:"id"`
	RawText   string    `json:"rawText"`
	CleanText string    `json:"cleanText,omitempty"`
	Status    Status    `json:"status"`
	Tags      []string  `json:"tags"`
	Due       string    `json:"due,omitempty"`
	Subtasks  []SubTask `json:"subtasks,omitempty"`
	CreatedAt string    `json:"createdAt"`
	UpdatedAt string    `json:"updatedAt"`
}

// New builds a task from user input. Raw text must be non-blank; tags are
// parsed from a comma-separated string and normalized.
func New(raw, clean, tagsCsv, due string) (Task, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Task{}, ErrEmptyText
	}
	if due != "" {
		parsed, err := ParseDue(due)
		if err != nil {
			return Task{}, err
		}
		due = parsed
	}
	now := NowISO()
	return Task{
		ID:        SafeID(),
		RawText:   raw,
		CleanText: strings.TrimSpace(clean),
		Status:    StatusActive,
		Tags:      ParseTags(tagsCsv),
		Due:       due,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NowISO returns the current UTC time in the stored timestamp form.
func NowISO() string {
	return time.Now().UTC().Format(timeLayout)
}

// ParseDue validates a YYYY-MM-DD due date and returns its canonical form.
func ParseDue(value string) (string, error) {
	value = strings.TrimSpace(value)
	t, err := time.Parse(dueLayout, value)
	if err != nil {
		return "", fmt.Errorf("due date %q: expected YYYY-MM-DD", value)
	}
	return t.Format(dueLayout), nil
}

// fallbackSuffixLen is the number of base-36 random characters appended to
// the timestamp when the UUID source is unavailable. A tunable: eight chars
// carry ~41 bits, plenty for single-user task volumes.
const fallbackSuffixLen = 8

// SafeID returns a collision-resistant identifier. When the platform random
// source fails it degrades to a timestamp plus pseudo-random suffix, trading
// perfect uniqueness for availability.
func SafeID() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	return fallbackID()
}

func fallbackID() string {
	var b strings.Builder
	b.WriteString("t_")
	b.WriteString(strconv.FormatInt(time.Now().UnixMilli(), 36))
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	for i := 0; i < fallbackSuffixLen; i++ {
		b.WriteByte(alphabet[rand.Intn(len(alphabet))])
	}
	return b.String()
}

// ParseTags splits a comma-separated tag string into a normalized list:
// trimmed, lowercased, empties dropped, duplicates collapsed.
func ParseTags(csv string) []string {
	return NormalizeTags(strings.Split(csv, ","))
}

// NormalizeTags applies the tag invariants to an existing list.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// FormatTags renders a tag list back into its comma-separated input form.
func FormatTags(tags []string) string {
	return strings.Join(tags, ", ")
}

// ParseFilter converts a string into a known status filter.
func ParseFilter(value string) (Filter, bool) {
	switch Filter(strings.ToLower(strings.TrimSpace(value))) {
	case FilterAll, "":
		return FilterAll, true
	case FilterActive:
		return FilterActive, true
	case FilterDone:
		return FilterDone, true
	default:
		return FilterAll, false
	}
}

// Matches reports whether a status passes the filter.
func (f Filter) Matches(s Status) bool {
	switch f {
	case FilterActive:
		return s == StatusActive
	case FilterDone:
		return s == StatusDone
	default:
		return true
	}
}

// Touch refreshes the updated timestamp.
func (t *Task) Touch() {
	t.UpdatedAt = NowISO()
}

// ToggleStatus flips active and done and touches the record.
func (t *Task) ToggleStatus() {
	if t.Status == StatusDone {
		t.Status = StatusActive
	} else {
		t.Status = StatusDone
	}
	t.Touch()
}

// Complete marks the task done and every subtask done in one mutation, so
// the record is never observable half-finished.
func (t *Task) Complete() {
	t.Status = StatusDone
	for i := range t.Subtasks {
		t.Subtasks[i].Done = true
	}
	t.Touch()
}

// AddSubtask appends a subtask with a fresh id and touches the parent.
func (t *Task) AddSubtask(text string) (SubTask, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return SubTask{}, ErrEmptyText
	}
	sub := SubTask{ID: SafeID(), Text: text}
	t.Subtasks = append(t.Subtasks, sub)
	t.Touch()
	return sub, nil
}

// ToggleSubtask flips a subtask's done flag. It reports whether the subtask
// was found; the parent is touched only on a hit.
func (t *Task) ToggleSubtask(subID string) bool {
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == subID {
			t.Subtasks[i].Done = !t.Subtasks[i].Done
			t.Touch()
			return true
		}
	}
	return false
}

// RemoveSubtask deletes a subtask by id, preserving the order of the rest.
func (t *Task) RemoveSubtask(subID string) bool {
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == subID {
			t.Subtasks = append(t.Subtasks[:i], t.Subtasks[i+1:]...)
			t.Touch()
			return true
		}
	}
	return false
}

// SubtaskProgress returns the done and total subtask counts.
func (t Task) SubtaskProgress() (done, total int) {
	for _, sub := range t.Subtasks {
		if sub.Done {
			done++
		}
	}
	return done, len(t.Subtasks)
}

// DisplayText prefers the cleaned-up text when present.
func (t Task) DisplayText() string {
	if t.CleanText != "" {
		return t.CleanText
	}
	return t.RawText
}

// ValidateRecord checks that an imported record carries the fields every
// stored task must have. Tags are normalized separately on import.
func ValidateRecord(t Task) error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("record missing id")
	}
	if strings.TrimSpace(t.RawText) == "" {
		return fmt.Errorf("record %s: missing rawText", t.ID)
	}
	if t.Status != StatusActive && t.Status != StatusDone {
		return fmt.Errorf("record %s: unknown status %q", t.ID, t.Status)
	}
	if t.CreatedAt == "" || t.UpdatedAt == "" {
		return fmt.Errorf("record %s: missing timestamps", t.ID)
	}
	return nil
}

// Clone returns a deep copy safe to mutate independently.
func (t Task) Clone() Task {
	cp := t
	if t.Tags != nil {
		cp.Tags = append([]string(nil), t.Tags...)
	}
	if t.Subtasks != nil {
		cp.Subtasks = append([]SubTask(nil), t.Subtasks...)
	}
	return cp
}
