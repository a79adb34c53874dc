// Package storage persists task records behind a single TaskStore contract.
// A rich SQLite backend is probed at startup; any initialization failure
// demotes to a flat JSON file with identical external behavior, so no caller
// ever branches on which backend is active.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofrs/flock"

	"echotask/internal/logging"
	"echotask/internal/task"
)

var (
	// ErrNotFound signals an operation against a missing task id.
	ErrNotFound = errors.New("task not found")
	// ErrDuplicateID signals a create with an id that already exists.
	ErrDuplicateID = errors.New("task id already exists")
	// ErrInvalidImport signals a malformed import payload. Nothing is
	// written when it is returned.
	ErrInvalidImport = errors.New("invalid import payload")
	// ErrLocked signals that another process holds the data directory.
	ErrLocked = errors.New("data directory is locked by another process")
)

// TaskStore is the backend strategy. Both implementations guarantee the
// same semantics; listing order is unspecified.
type TaskStore interface {
	Create(ctx context.Context, t task.Task) error
	GetAll(ctx context.Context, filter task.Filter) ([]task.Task, error)
	GetByID(ctx context.Context, id string) (task.Task, error)
	Update(ctx context.Context, t task.Task) error
	Remove(ctx context.Context, id string) error
	BulkUpsert(ctx context.Context, tasks []task.Task) error
	Close() error
}

// Options configures Open.
type Options struct {
	DBPath   string // rich backend location
	FlatPath string // fallback JSON file location
	LockPath string // empty disables the single-writer lock
	Logger   *slog.Logger
}

// Repository is the uniform CRUD surface over the selected backend.
type Repository struct {
	store  TaskStore
	lock   *flock.Flock
	logger *slog.Logger
}

// Open selects a backend once for the process lifetime. A rich backend that
// fails to initialize is logged and replaced by the flat fallback; only a
// fallback that also fails is an error.
func Open(opts Options) (*Repository, error) {
	logger := logging.WithComponent(opts.Logger, "storage")

	var lock *flock.Flock
	if opts.LockPath != "" {
		lock = flock.New(opts.LockPath)
		held, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire data lock: %w", err)
		}
		if !held {
			return nil, ErrLocked
		}
	}

	var store TaskStore
	var err error
	store, err = openSQLite(opts.DBPath)
	if err != nil {
		logger.Warn("task database unavailable, using flat file fallback",
			"error", err, "path", opts.FlatPath)
		store, err = openFlat(opts.FlatPath)
		if err != nil {
			if lock != nil {
				_ = lock.Unlock()
			}
			return nil, fmt.Errorf("open fallback store: %w", err)
		}
	}

	return &Repository{store: store, lock: lock, logger: logger}, nil
}

// NewRepository wraps an already constructed backend. Used by tests.
func NewRepository(store TaskStore, logger *slog.Logger) *Repository {
	return &Repository{store: store, logger: logging.WithComponent(logger, "storage")}
}

// Close releases the backend and the data lock.
func (r *Repository) Close() error {
	err := r.store.Close()
	if r.lock != nil {
		if unlockErr := r.lock.Unlock(); err == nil {
			err = unlockErr
		}
	}
	return err
}

// Create inserts a new record, failing with ErrDuplicateID on id collision.
func (r *Repository) Create(ctx context.Context, t task.Task) error {
	return r.store.Create(ctx, t)
}

// GetAll returns every record passing the status filter, in no guaranteed
// order. Ordering belongs to the caller.
func (r *Repository) GetAll(ctx context.Context, filter task.Filter) ([]task.Task, error) {
	return r.store.GetAll(ctx, filter)
}

// GetByID returns a record or ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id string) (task.Task, error) {
	return r.store.GetByID(ctx, id)
}

// Update replaces a record wholesale, failing with ErrNotFound when absent.
func (r *Repository) Update(ctx context.Context, t task.Task) error {
	return r.store.Update(ctx, t)
}

// Remove deletes by id. Removing an absent id is not an error.
func (r *Repository) Remove(ctx context.Context, id string) error {
	return r.store.Remove(ctx, id)
}

// ExportVersion marks the schema of the export envelope.
const ExportVersion = 1

type exportEnvelope struct {
	Version int         `json:"version"`
	Tasks   []task.Task `json:"tasks"`
}

type importEnvelope struct {
	Version int          `json:"version"`
	Tasks   *[]task.Task `json:"tasks"`
}

// ExportJSON serializes every record wrapped in the versioned envelope.
func (r *Repository) ExportJSON(ctx context.Context) ([]byte, error) {
	tasks, err := r.store.GetAll(ctx, task.FilterAll)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	return json.MarshalIndent(exportEnvelope{Version: ExportVersion, Tasks: tasks}, "", "  ")
}

// ImportJSON upserts every record of an export payload and returns the
// count. A payload without a tasks sequence, or with any malformed record,
// fails with ErrInvalidImport before anything is written.
func (r *Repository) ImportJSON(ctx context.Context, data []byte) (int, error) {
	var envelope importEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	if envelope.Tasks == nil {
		return 0, fmt.Errorf("%w: missing tasks sequence", ErrInvalidImport)
	}

	tasks := *envelope.Tasks
	for i := range tasks {
		if err := task.ValidateRecord(tasks[i]); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidImport, err)
		}
		tasks[i].Tags = task.NormalizeTags(tasks[i].Tags)
		tasks[i].UpdatedAt = task.NowISO()
	}

	if err := r.store.BulkUpsert(ctx, tasks); err != nil {
		return 0, err
	}
	r.logger.Info("imported tasks", "count", len(tasks))
	return len(tasks), nil
}
