// Package manager orchestrates the task pipeline: every mutation is written
// through the repository, then the visible sequence is re-derived (status
// read, filter, order) and republished to observers.
package manager

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"echotask/internal/logging"
	"echotask/internal/ordering"
	"echotask/internal/query"
	"echotask/internal/storage"
	"echotask/internal/task"
)

// Observer receives the derived visible sequence after each recompute.
type Observer func([]task.Task)

// Manager owns the session state: filter criteria, the manual order, and
// the derived visible sequence. Mutations are serialized internally;
// callers are still expected to await each operation before issuing edits
// to the same task id (last write wins at the repository).
type Manager struct {
	repo      *storage.Repository
	orderFile *storage.OrderFile
	logger    *slog.Logger

	mu          sync.Mutex
	criteria    query.Criteria
	manualOrder []string
	visible     []task.Task
	observers   []Observer
}

// New builds a manager and loads the persisted manual order. Call Refresh
// before first use to populate the visible sequence.
func New(repo *storage.Repository, orderFile *storage.OrderFile, defaultFilter task.Filter, logger *slog.Logger) *Manager {
	criteria := query.NewCriteria()
	criteria.Status = defaultFilter
	return &Manager{
		repo:        repo,
		orderFile:   orderFile,
		logger:      logging.WithComponent(logger, "manager"),
		criteria:    criteria,
		manualOrder: orderFile.Load(),
	}
}

// Subscribe registers an observer for derived-sequence updates.
func (m *Manager) Subscribe(fn Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Tasks returns the current visible, ordered sequence.
func (m *Manager) Tasks() []task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]task.Task(nil), m.visible...)
}

// Criteria returns the active filter criteria.
func (m *Manager) Criteria() query.Criteria {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.criteria
	c.Tags = append([]string(nil), c.Tags...)
	return c
}

// ManualOrder returns a copy of the persisted manual order.
func (m *Manager) ManualOrder() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.manualOrder...)
}

// Refresh re-derives the visible sequence from storage.
func (m *Manager) Refresh(ctx context.Context) error {
	return m.run(ctx, func(context.Context) error { return nil })
}

// SetStatusFilter updates the status criterion and recomputes.
func (m *Manager) SetStatusFilter(ctx context.Context, filter task.Filter) error {
	return m.run(ctx, func(context.Context) error {
		m.criteria.Status = filter
		return nil
	})
}

// SetSearch updates the free-text criterion and recomputes.
func (m *Manager) SetSearch(ctx context.Context, search string) error {
	return m.run(ctx, func(context.Context) error {
		m.criteria.Search = search
		return nil
	})
}

// SetTagFilter updates the required-tag criterion and recomputes.
func (m *Manager) SetTagFilter(ctx context.Context, tagsCsv string) error {
	return m.run(ctx, func(context.Context) error {
		m.criteria = m.criteria.WithTagsCsv(tagsCsv)
		return nil
	})
}

// Add validates and persists a new task. While a manual order is active the
// new id is prepended so the task appears first. A failed order write is
// logged, not returned: the task is already persisted at that point, and an
// unranked id only costs its top-of-list position.
func (m *Manager) Add(ctx context.Context, raw, clean, tagsCsv, due string) (task.Task, error) {
	var created task.Task
	err := m.run(ctx, func(ctx context.Context) error {
		t, err := task.New(raw, clean, tagsCsv, due)
		if err != nil {
			return err
		}
		if err := m.repo.Create(ctx, t); err != nil {
			return err
		}
		created = t
		if len(m.manualOrder) > 0 {
			if err := m.saveOrder(ordering.Prepend(m.manualOrder, t.ID)); err != nil {
				m.logger.Warn("failed to persist manual order for new task",
					"task", t.ID, "error", err)
			}
		}
		return nil
	})
	return created, err
}

// Toggle flips a task between active and done.
func (m *Manager) Toggle(ctx context.Context, id string) error {
	return m.run(ctx, func(ctx context.Context) error {
		t, err := m.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		t.ToggleStatus()
		return m.repo.Update(ctx, t)
	})
}

// Remove deletes a task permanently. The manual order is pruned only after
// the delete is confirmed, so a failed delete never desynchronizes the two.
func (m *Manager) Remove(ctx context.Context, id string) error {
	return m.run(ctx, func(ctx context.Context) error {
		if err := m.repo.Remove(ctx, id); err != nil {
			return err
		}
		if len(m.manualOrder) > 0 {
			return m.saveOrder(ordering.Prune(m.manualOrder, id))
		}
		return nil
	})
}

// Update replaces a task wholesale after revalidating its text.
func (m *Manager) Update(ctx context.Context, t task.Task) error {
	return m.run(ctx, func(ctx context.Context) error {
		if strings.TrimSpace(t.RawText) == "" {
			return task.ErrEmptyText
		}
		t.Tags = task.NormalizeTags(t.Tags)
		t.Touch()
		return m.repo.Update(ctx, t)
	})
}

// CompleteTask marks a task done and every subtask done in one persisted
// write, so no observer sees the half-finished state.
func (m *Manager) CompleteTask(ctx context.Context, id string) error {
	return m.run(ctx, func(ctx context.Context) error {
		t, err := m.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		t.Complete()
		return m.repo.Update(ctx, t)
	})
}

// AddSubtask appends a subtask to a parent task. A vanished parent is
// tolerated: the parent may have been deleted by a legitimate overlapping
// operation, so the miss is logged rather than returned.
func (m *Manager) AddSubtask(ctx context.Context, taskID, text string) error {
	return m.run(ctx, func(ctx context.Context) error {
		return m.withParent(ctx, taskID, "add subtask", func(t *task.Task) error {
			_, err := t.AddSubtask(text)
			return err
		})
	})
}

// ToggleSubtask flips a subtask's done flag.
func (m *Manager) ToggleSubtask(ctx context.Context, taskID, subID string) error {
	return m.run(ctx, func(ctx context.Context) error {
		return m.withParent(ctx, taskID, "toggle subtask", func(t *task.Task) error {
			if !t.ToggleSubtask(subID) {
				m.logger.Warn("subtask not found", "task", taskID, "subtask", subID)
			}
			return nil
		})
	})
}

// RemoveSubtask deletes a subtask from its parent.
func (m *Manager) RemoveSubtask(ctx context.Context, taskID, subID string) error {
	return m.run(ctx, func(ctx context.Context) error {
		return m.withParent(ctx, taskID, "remove subtask", func(t *task.Task) error {
			if !t.RemoveSubtask(subID) {
				m.logger.Warn("subtask not found", "task", taskID, "subtask", subID)
			}
			return nil
		})
	})
}

// ReorderTasks persists a drag-reorder result. The new sequence is merged
// with every id the full record set knows about, so tasks filtered out of
// the current view keep their place instead of being dropped.
func (m *Manager) ReorderTasks(ctx context.Context, orderedIDs []string) error {
	return m.run(ctx, func(ctx context.Context) error {
		all, err := m.repo.GetAll(ctx, task.FilterAll)
		if err != nil {
			return err
		}
		known := ordering.Sort(all, m.manualOrder)
		knownIDs := make([]string, len(known))
		for i, t := range known {
			knownIDs[i] = t.ID
		}
		return m.saveOrder(ordering.Merge(orderedIDs, knownIDs))
	})
}

// ExportJSON serializes the full record set with its version marker.
func (m *Manager) ExportJSON(ctx context.Context) ([]byte, error) {
	return m.repo.ExportJSON(ctx)
}

// ImportJSON bulk-upserts an export payload and recomputes.
func (m *Manager) ImportJSON(ctx context.Context, data []byte) (int, error) {
	var count int
	err := m.run(ctx, func(ctx context.Context) error {
		n, err := m.repo.ImportJSON(ctx, data)
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	return count, err
}

// withParent reads, mutates, and rewrites a parent task. Parent-missing is
// the tolerated soft failure; every other error propagates.
func (m *Manager) withParent(ctx context.Context, taskID, op string, mutate func(*task.Task) error) error {
	t, err := m.repo.GetByID(ctx, taskID)
	if err != nil {
		if storageNotFound(err) {
			m.logger.Warn("parent task missing", "op", op, "task", taskID)
			return nil
		}
		return err
	}
	if err := mutate(&t); err != nil {
		return err
	}
	return m.repo.Update(ctx, t)
}

func storageNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

// run executes a mutation, re-derives the visible sequence, and notifies
// observers outside the lock. Recompute still happens after a failed
// mutation so the published view never goes stale.
func (m *Manager) run(ctx context.Context, mutation func(context.Context) error) error {
	m.mu.Lock()
	opErr := mutation(ctx)
	recomputeErr := m.recomputeLocked(ctx)
	snapshot := append([]task.Task(nil), m.visible...)
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(append([]task.Task(nil), snapshot...))
	}
	if opErr != nil {
		return opErr
	}
	return recomputeErr
}

func (m *Manager) recomputeLocked(ctx context.Context) error {
	rows, err := m.repo.GetAll(ctx, m.criteria.Status)
	if err != nil {
		return err
	}
	m.visible = ordering.Sort(query.Filter(rows, m.criteria), m.manualOrder)
	return nil
}

func (m *Manager) saveOrder(order []string) error {
	if err := m.orderFile.Save(order); err != nil {
		return err
	}
	m.manualOrder = order
	return nil
}
