package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"echotask/internal/logging"
	"echotask/internal/manager"
	"echotask/internal/storage"
	"echotask/internal/task"
)

func testSession(t *testing.T) *session {
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

	mgr := manager.New(repo, storage.NewOrderFile(filepath.Join(dir, "order.json"), logger), task.FilterAll, logger)
	if err := mgr.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return &session{logger: logger, repo: repo, mgr: mgr}
}

func TestResolveTaskByNumberAndID(t *testing.T) {
	s := testSession(t)
	ctx := context.Background()
	if _, err := s.mgr.Add(ctx, "first task", "", "", ""); err != nil {
		t.Fatalf("add: %v", err)
	}
	second, err := s.mgr.Add(ctx, "second task", "", "", "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	visible := s.mgr.Tasks()
	got, err := resolveTask(s, "1")
	if err != nil || got != visible[0].ID {
		t.Fatalf("resolve by number: got %q, %v", got, err)
	}

	got, err = resolveTask(s, second.ID)
	if err != nil || got != second.ID {
		t.Fatalf("resolve by full id: got %q, %v", got, err)
	}

	if _, err := resolveTask(s, "99"); err == nil {
		t.Fatal("out-of-range number must fail")
	}
	if _, err := resolveTask(s, "zzz-no-such-task"); err == nil {
		t.Fatal("unknown id must fail")
	}
}

func TestResolveTaskPrefixMustBeUnique(t *testing.T) {
	s := testSession(t)
	ctx := context.Background()
	created, err := s.mgr.Add(ctx, "only task", "", "", "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	got, err := resolveTask(s, created.ID[:8])
	if err != nil || got != created.ID {
		t.Fatalf("unique prefix should resolve: got %q, %v", got, err)
	}
}

func TestPlainTaskLineCarriesAllFields(t *testing.T) {
	line := plainTaskLine(3, task.Task{
		ID:      "abc-123",
		RawText: "walk the dog",
		Status:  task.StatusDone,
		Tags:    []string{"home", "pets"},
		Due:     "2025-06-01",
	})
	for _, want := range []string{"3", "[x]", "walk the dog", "#home #pets", "due:2025-06-01", "abc-123"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q missing %q", line, want)
		}
	}
}

func TestShortIDTruncates(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Fatalf("unexpected short id %q", got)
	}
	if got := shortID("tiny"); got != "tiny" {
		t.Fatalf("short ids pass through, got %q", got)
	}
}

func TestRenderTaskTableIncludesRows(t *testing.T) {
	out := renderTaskTable([]task.Task{
		{ID: "abcdefgh-1", RawText: "buy milk", Status: task.StatusActive, Subtasks: []task.SubTask{{ID: "s1", Text: "x", Done: true}}},
	})
	if !strings.Contains(out, "buy milk") || !strings.Contains(out, "1/1") {
		t.Fatalf("table missing expected content:\n%s", out)
	}
}
