package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"echotask/internal/task"
)

// flatStore is the fallback backend: every record lives in one JSON file,
// loaded into memory and rewritten wholesale on each mutation. Filtering is
// a full scan.
type flatStore struct {
	path  string
	mu    sync.RWMutex
	tasks map[string]task.Task
}

func openFlat(path string) (*flatStore, error) {
	if path == "" {
		return nil, errors.New("flat store path is empty")
	}
	s := &flatStore{path: path, tasks: make(map[string]task.Task)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *flatStore) Close() error { return nil }

func (s *flatStore) Create(_ context.Context, t task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, t.ID)
	}
	s.tasks[t.ID] = t.Clone()
	if err := s.save(); err != nil {
		delete(s.tasks, t.ID)
		return err
	}
	return nil
}

func (s *flatStore) GetAll(_ context.Context, filter task.Filter) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []task.Task
	for _, t := range s.tasks {
		if filter.Matches(t.Status) {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (s *flatStore) GetByID(_ context.Context, id string) (task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return task.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t.Clone(), nil
}

func (s *flatStore) Update(_ context.Context, t task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.tasks[t.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, t.ID)
	}
	s.tasks[t.ID] = t.Clone()
	if err := s.save(); err != nil {
		s.tasks[t.ID] = prev
		return err
	}
	return nil
}

func (s *flatStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.tasks[id]
	if !ok {
		return nil
	}
	delete(s.tasks, id)
	if err := s.save(); err != nil {
		s.tasks[id] = prev
		return err
	}
	return nil
}

func (s *flatStore) BulkUpsert(_ context.Context, tasks []task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := make(map[string]task.Task, len(s.tasks))
	for id, t := range s.tasks {
		prev[id] = t
	}
	for _, t := range tasks {
		s.tasks[t.ID] = t.Clone()
	}
	if err := s.save(); err != nil {
		s.tasks = prev
		return err
	}
	return nil
}

func (s *flatStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read task file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	var tasks []task.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return fmt.Errorf("parse task file: %w", err)
	}
	for _, t := range tasks {
		if t.ID != "" {
			s.tasks[t.ID] = t
		}
	}
	return nil
}

// save writes the file atomically via temp file + rename. Records are sorted
// newest-first for deterministic output; readers must not rely on it.
func (s *flatStore) save() error {
	tasks := make([]task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt != tasks[j].CreatedAt {
			return tasks[i].CreatedAt > tasks[j].CreatedAt
		}
		return tasks[i].ID < tasks[j].ID
	})

	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
