package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"echotask/internal/logging"
)

// OrderFile persists the user's manual task order: a bare list of task ids
// in its own file, independent of the task records it orders. It is read
// once at startup and rewritten wholesale on every change.
type OrderFile struct {
	path   string
	logger *slog.Logger
}

func NewOrderFile(path string, logger *slog.Logger) *OrderFile {
	return &OrderFile{path: path, logger: logging.WithComponent(logger, "order")}
}

// Load returns the persisted id sequence. A missing file means no manual
// order; a corrupt file is logged and treated the same way rather than
// blocking startup.
func (o *OrderFile) Load() []string {
	data, err := os.ReadFile(o.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			o.logger.Warn("failed to read manual order, using default ordering", "error", err)
		}
		return nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		o.logger.Warn("manual order file is corrupt, using default ordering", "error", err)
		return nil
	}
	return ids
}

// Save rewrites the sequence atomically.
func (o *OrderFile) Save(ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("marshal manual order: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(o.path), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	tmpPath := o.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, o.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
