// Package ordering produces the displayed task sequence: a default
// deadline-then-recency rule, overridden by a persisted manual order that is
// repaired incrementally as tasks come and go.
package ordering

import (
	"sort"

	"echotask/internal/task"
)

// Sort returns the input tasks in display order. With an empty manual order
// the default rule applies: due-dated tasks first, ascending by due date,
// then the rest by creation time, newest first. With a manual order, each
// task ranks by its index in the sequence; tasks absent from the sequence
// sort after all ranked ones, keeping their default-rule relative order.
func Sort(tasks []task.Task, manualOrder []string) []task.Task {
	out := append([]task.Task(nil), tasks...)
	if len(manualOrder) == 0 {
		sort.SliceStable(out, func(i, j int) bool {
			return defaultLess(out[i], out[j])
		})
		return out
	}

	rank := make(map[string]int, len(manualOrder))
	for i, id := range manualOrder {
		rank[id] = i
	}
	unranked := len(manualOrder)
	rankOf := func(t task.Task) int {
		if r, ok := rank[t.ID]; ok {
			return r
		}
		return unranked
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rankOf(out[i]), rankOf(out[j])
		if ri != rj {
			return ri < rj
		}
		return defaultLess(out[i], out[j])
	})
	return out
}

// defaultLess implements the two-level default key: deadlines surface first,
// then recency.
func defaultLess(a, b task.Task) bool {
	switch {
	case a.Due != "" && b.Due != "":
		if a.Due != b.Due {
			return a.Due < b.Due
		}
		return a.CreatedAt > b.CreatedAt
	case a.Due != "":
		return true
	case b.Due != "":
		return false
	default:
		return a.CreatedAt > b.CreatedAt
	}
}

// Merge repairs a drag-reorder result: the new explicit sequence comes
// first, followed by every known id not mentioned in it, in their old
// relative order. A task filtered out of view is never dropped from the
// persisted order.
func Merge(newIDs, knownIDs []string) []string {
	merged := append([]string(nil), newIDs...)
	seen := make(map[string]struct{}, len(newIDs))
	for _, id := range newIDs {
		seen[id] = struct{}{}
	}
	for _, id := range knownIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
	}
	return merged
}

// Prepend puts a freshly created id at the front of an active manual order,
// so new tasks appear first instead of unranked at the bottom.
func Prepend(order []string, id string) []string {
	if len(order) == 0 {
		return order
	}
	out := make([]string, 0, len(order)+1)
	out = append(out, id)
	for _, existing := range order {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}

// Prune drops an id from the order, leaving no dangling reference after a
// delete.
func Prune(order []string, id string) []string {
	out := make([]string, 0, len(order))
	for _, existing := range order {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
