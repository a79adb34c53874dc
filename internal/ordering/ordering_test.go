package ordering_test

import (
	"testing"

	"echotask/internal/ordering"
	"echotask/internal/task"
)

func tk(id, due, createdAt string) task.Task {
	return task.Task{ID: id, RawText: id, Status: task.StatusActive, Due: due, CreatedAt: createdAt}
}

func ids(tasks []task.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func assertOrder(t *testing.T, got []task.Task, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("expected %v, got %v", want, ids(got))
		}
	}
}

func TestDefaultOrderDueFirstThenRecency(t *testing.T) {
	t1 := tk("t1", "", "2025-01-01T08:00:00.000Z")
	t2 := tk("t2", "2025-01-01", "2025-01-01T09:00:00.000Z")
	t3 := tk("t3", "", "2025-01-02T08:00:00.000Z")

	got := ordering.Sort([]task.Task{t1, t2, t3}, nil)
	assertOrder(t, got, "t2", "t3", "t1")
}

func TestDefaultOrderSortsDueAscending(t *testing.T) {
	a := tk("a", "2025-03-01", "2025-01-01T08:00:00.000Z")
	b := tk("b", "2025-02-01", "2025-01-01T09:00:00.000Z")
	got := ordering.Sort([]task.Task{a, b}, nil)
	assertOrder(t, got, "b", "a")
}

func TestManualOrderRanksExplicitly(t *testing.T) {
	a := tk("a", "", "2025-01-03T08:00:00.000Z")
	b := tk("b", "", "2025-01-02T08:00:00.000Z")
	c := tk("c", "", "2025-01-01T08:00:00.000Z")

	got := ordering.Sort([]task.Task{a, b, c}, []string{"c", "a", "b"})
	assertOrder(t, got, "c", "a", "b")
}

func TestManualOrderSurvivesFiltering(t *testing.T) {
	// Manual order [b, a, c]; b filtered out of view. The visible pair keeps
	// its relative rank instead of reverting to the default rule.
	a := tk("a", "", "2025-01-05T08:00:00.000Z")
	c := tk("c", "", "2025-01-01T08:00:00.000Z")

	got := ordering.Sort([]task.Task{c, a}, []string{"b", "a", "c"})
	assertOrder(t, got, "a", "c")
}

func TestUnrankedTasksSortAfterRankedByDefaultRule(t *testing.T) {
	ranked := tk("ranked", "", "2025-01-01T08:00:00.000Z")
	newer := tk("newer", "", "2025-01-03T08:00:00.000Z")
	older := tk("older", "", "2025-01-02T08:00:00.000Z")
	due := tk("due", "2025-02-01", "2025-01-01T07:00:00.000Z")

	got := ordering.Sort([]task.Task{older, due, ranked, newer}, []string{"ranked"})
	assertOrder(t, got, "ranked", "due", "newer", "older")
}

func TestSortDoesNotMutateInput(t *testing.T) {
	in := []task.Task{
		tk("a", "", "2025-01-01T08:00:00.000Z"),
		tk("b", "", "2025-01-02T08:00:00.000Z"),
	}
	ordering.Sort(in, nil)
	if in[0].ID != "a" || in[1].ID != "b" {
		t.Fatalf("input mutated: %v", ids(in))
	}
}

func TestMergeAppendsUnseenIDs(t *testing.T) {
	// A reorder of a filtered view must not drop the out-of-view task.
	got := ordering.Merge([]string{"t2", "t1"}, []string{"t1", "t2", "t3"})
	want := []string{"t2", "t1", "t3"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestMergePreservesOldRelativeOrder(t *testing.T) {
	got := ordering.Merge([]string{"x"}, []string{"c", "a", "x", "b"})
	want := []string{"x", "c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestPrependOnlyWhenOrderActive(t *testing.T) {
	if got := ordering.Prepend(nil, "new"); len(got) != 0 {
		t.Fatalf("empty order must stay empty, got %v", got)
	}
	got := ordering.Prepend([]string{"a", "b"}, "new")
	if len(got) != 3 || got[0] != "new" || got[1] != "a" || got[2] != "b" {
		t.Fatalf("unexpected prepend result: %v", got)
	}
}

func TestPruneRemovesID(t *testing.T) {
	got := ordering.Prune([]string{"a", "b", "c"}, "b")
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("unexpected prune result: %v", got)
	}
	got = ordering.Prune(got, "missing")
	if len(got) != 2 {
		t.Fatalf("pruning a missing id changed the order: %v", got)
	}
}
