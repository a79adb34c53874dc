package manager_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"echotask/internal/logging"
	"echotask/internal/manager"
	"echotask/internal/storage"
	"echotask/internal/task"
)

func newManager(t *testing.T) *manager.Manager {
	t.Helper()
	dir := t.TempDir()
	logger := logging.NewNop()
	repo, err := storage.Open(storage.Options{
		DBPath:   filepath.Join(dir, "tasks.db"),
		FlatPath: filepath.Join(dir, "tasks.json"),
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	m := manager.New(repo, storage.NewOrderFile(filepath.Join(dir, "order.json"), logger), task.FilterAll, logger)
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}
	return m
}

func mustAdd(t *testing.T, m *manager.Manager, raw string) task.Task {
	t.Helper()
	created, err := m.Add(context.Background(), raw, "", "", "")
	if err != nil {
		t.Fatalf("add %q: %v", raw, err)
	}
	return created
}

func visibleIDs(m *manager.Manager) []string {
	tasks := m.Tasks()
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestAddRejectsBlankText(t *testing.T) {
	m := newManager(t)
	if _, err := m.Add(context.Background(), "   ", "", "", ""); !errors.Is(err, task.ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
	if len(m.Tasks()) != 0 {
		t.Fatal("rejected add must not persist anything")
	}
}

func TestAddMakesTaskVisible(t *testing.T) {
	m := newManager(t)
	created := mustAdd(t, m, "buy milk")
	tasks := m.Tasks()
	if len(tasks) != 1 || tasks[0].ID != created.ID {
		t.Fatalf("expected [%s], got %v", created.ID, visibleIDs(m))
	}
}

func TestToggleMissingTaskReturnsNotFound(t *testing.T) {
	m := newManager(t)
	if err := m.Toggle(context.Background(), "no-such-id"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCompleteTaskMarksTaskAndAllSubtasksInOneStep(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	created := mustAdd(t, m, "ship release")
	if err := m.AddSubtask(ctx, created.ID, "write changelog"); err != nil {
		t.Fatalf("add subtask: %v", err)
	}
	if err := m.AddSubtask(ctx, created.ID, "tag version"); err != nil {
		t.Fatalf("add subtask: %v", err)
	}

	if err := m.CompleteTask(ctx, created.ID); err != nil {
		t.Fatalf("complete task: %v", err)
	}

	tasks := m.Tasks()
	if len(tasks) != 1 {
		t.Fatalf("expected one task, got %v", visibleIDs(m))
	}
	got := tasks[0]
	if got.Status != task.StatusDone {
		t.Fatalf("expected done status, got %q", got.Status)
	}
	done, total := got.SubtaskProgress()
	if total != 2 || done != 2 {
		t.Fatalf("expected every subtask done, got %d/%d", done, total)
	}
}

func TestSubtaskOpsTolerateMissingParent(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	if err := m.AddSubtask(ctx, "vanished", "anything"); err != nil {
		t.Fatalf("missing parent must be tolerated, got %v", err)
	}
	if err := m.ToggleSubtask(ctx, "vanished", "sub"); err != nil {
		t.Fatalf("missing parent must be tolerated, got %v", err)
	}
	if err := m.RemoveSubtask(ctx, "vanished", "sub"); err != nil {
		t.Fatalf("missing parent must be tolerated, got %v", err)
	}
}

func TestAddSubtaskRejectsBlankText(t *testing.T) {
	m := newManager(t)
	created := mustAdd(t, m, "parent")
	if err := m.AddSubtask(context.Background(), created.ID, "  "); !errors.Is(err, task.ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestStatusFilterHidesNonMatchingTasks(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	open := mustAdd(t, m, "still open")
	closed := mustAdd(t, m, "already closed")
	if err := m.Toggle(ctx, closed.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	if err := m.SetStatusFilter(ctx, task.FilterActive); err != nil {
		t.Fatalf("set status filter: %v", err)
	}
	got := m.Tasks()
	if len(got) != 1 || got[0].ID != open.ID {
		t.Fatalf("expected only the open task, got %v", visibleIDs(m))
	}

	if err := m.SetStatusFilter(ctx, task.FilterDone); err != nil {
		t.Fatalf("set status filter: %v", err)
	}
	got = m.Tasks()
	if len(got) != 1 || got[0].ID != closed.ID {
		t.Fatalf("expected only the closed task, got %v", visibleIDs(m))
	}
}

func TestReorderMergesIDsAbsentFromTheNewSequence(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	t1 := mustAdd(t, m, "alpha report")
	t2 := mustAdd(t, m, "alpha review")
	t3 := mustAdd(t, m, "beta cleanup")

	// Reorder only two of the three ids. The third must survive the merge.
	if err := m.ReorderTasks(ctx, []string{t2.ID, t1.ID}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	order := m.ManualOrder()
	if len(order) != 3 || order[0] != t2.ID || order[1] != t1.ID || order[2] != t3.ID {
		t.Fatalf("expected [%s %s %s], got %v", t2.ID, t1.ID, t3.ID, order)
	}
	got := visibleIDs(m)
	if got[0] != t2.ID || got[1] != t1.ID || got[2] != t3.ID {
		t.Fatalf("visible sequence must follow the merged order, got %v", got)
	}
}

func TestManualOrderSurvivesFiltering(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	a := mustAdd(t, m, "alpha one")
	b := mustAdd(t, m, "beta two")
	c := mustAdd(t, m, "alpha three")

	if err := m.ReorderTasks(ctx, []string{b.ID, a.ID, c.ID}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if err := m.SetSearch(ctx, "alpha"); err != nil {
		t.Fatalf("set search: %v", err)
	}
	got := visibleIDs(m)
	if len(got) != 2 || got[0] != a.ID || got[1] != c.ID {
		t.Fatalf("expected [%s %s], got %v", a.ID, c.ID, got)
	}
}

func TestAddPrependsToActiveManualOrder(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	a := mustAdd(t, m, "first")
	b := mustAdd(t, m, "second")
	if err := m.ReorderTasks(ctx, []string{a.ID, b.ID}); err != nil {
		t.Fatalf("reorder: %v", err)
	}

	fresh := mustAdd(t, m, "freshly added")
	order := m.ManualOrder()
	if len(order) != 3 || order[0] != fresh.ID {
		t.Fatalf("expected fresh id first in %v", order)
	}
	if got := visibleIDs(m); got[0] != fresh.ID {
		t.Fatalf("expected fresh task first, got %v", got)
	}
}

func TestAddSucceedsWhenOrderWriteFails(t *testing.T) {
	dir := t.TempDir()
	logger := logging.NewNop()
	repo, err := storage.Open(storage.Options{
		DBPath:   filepath.Join(dir, "tasks.db"),
		FlatPath: filepath.Join(dir, "tasks.json"),
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	orderPath := filepath.Join(dir, "order.json")
	m := manager.New(repo, storage.NewOrderFile(orderPath, logger), task.FilterAll, logger)
	ctx := context.Background()
	if err := m.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	a := mustAdd(t, m, "first")
	b := mustAdd(t, m, "second")
	if err := m.ReorderTasks(ctx, []string{a.ID, b.ID}); err != nil {
		t.Fatalf("reorder: %v", err)
	}

	// A directory at the temp path blocks every further order write.
	if err := os.MkdirAll(orderPath+".tmp", 0o755); err != nil {
		t.Fatalf("plant blocker: %v", err)
	}

	fresh, err := m.Add(ctx, "still lands", "", "", "")
	if err != nil {
		t.Fatalf("add must succeed despite the order write failing: %v", err)
	}
	found := false
	for _, got := range m.Tasks() {
		if got.ID == fresh.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("added task is not visible")
	}
	order := m.ManualOrder()
	if len(order) != 2 || order[0] != a.ID || order[1] != b.ID {
		t.Fatalf("failed order write must leave the persisted order intact, got %v", order)
	}
}

func TestRemovePrunesManualOrder(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	a := mustAdd(t, m, "keep")
	b := mustAdd(t, m, "drop")
	if err := m.ReorderTasks(ctx, []string{b.ID, a.ID}); err != nil {
		t.Fatalf("reorder: %v", err)
	}

	if err := m.Remove(ctx, b.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	order := m.ManualOrder()
	if len(order) != 1 || order[0] != a.ID {
		t.Fatalf("expected order pruned to [%s], got %v", a.ID, order)
	}
	if got := visibleIDs(m); len(got) != 1 || got[0] != a.ID {
		t.Fatalf("expected only %s visible, got %v", a.ID, got)
	}
}

func TestUpdateRejectsBlankedText(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	created := mustAdd(t, m, "original")

	created.RawText = "   "
	if err := m.Update(ctx, created); !errors.Is(err, task.ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
	if got := m.Tasks(); got[0].RawText != "original" {
		t.Fatalf("rejected update must not persist, got %q", got[0].RawText)
	}
}

func TestTagFilterUsesANDSemantics(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	both, err := m.Add(ctx, "pay rent", "", "home, money", "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := m.Add(ctx, "water plants", "", "home", ""); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := m.SetTagFilter(ctx, "home, money"); err != nil {
		t.Fatalf("set tag filter: %v", err)
	}
	got := m.Tasks()
	if len(got) != 1 || got[0].ID != both.ID {
		t.Fatalf("expected only the task carrying both tags, got %v", visibleIDs(m))
	}
}

func TestObserverSeesEachRecompute(t *testing.T) {
	m := newManager(t)
	var last []task.Task
	calls := 0
	m.Subscribe(func(tasks []task.Task) {
		last = tasks
		calls++
	})

	created := mustAdd(t, m, "observed")
	if calls == 0 {
		t.Fatal("observer was never notified")
	}
	if len(last) != 1 || last[0].ID != created.ID {
		t.Fatalf("observer saw %d tasks, expected the created one", len(last))
	}
}

func TestImportRecomputesVisibleSequence(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	mustAdd(t, m, "exported")

	payload, err := m.ExportJSON(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	other := newManager(t)
	count, err := other.ImportJSON(ctx, payload)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 imported task, got %d", count)
	}
	if got := other.Tasks(); len(got) != 1 || got[0].RawText != "exported" {
		t.Fatalf("imported task not visible, got %v", visibleIDs(other))
	}
}
