package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"echotask/internal/task"
)

// sqliteStore is the rich backend: records indexed by id with a secondary
// index on status, so status listing avoids a full scan.
type sqliteStore struct {
	db *sql.DB
}

func openSQLite(dbPath string) (*sqliteStore, error) {
	if dbPath == "" {
		return nil, errors.New("db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, err
	}
	dsn := sqliteDSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &sqliteStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ensureSchema() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	raw_text TEXT NOT NULL,
	clean_text TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	tags_json TEXT NOT NULL DEFAULT '[]',
	due TEXT DEFAULT NULL,
	subtasks_json TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks (status);`
	_, err := s.db.Exec(ddl)
	return err
}

const taskColumns = "id, raw_text, clean_text, status, tags_json, due, subtasks_json, created_at, updated_at"

func (s *sqliteStore) Create(ctx context.Context, t task.Task) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?;`, t.ID).Scan(&exists)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrDuplicateID, t.ID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check id: %w", err)
	}
	return s.exec(ctx, `INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`, t)
}

func (s *sqliteStore) GetAll(ctx context.Context, filter task.Filter) ([]task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := []any{}
	if filter == task.FilterActive || filter == task.FilterDone {
		query += ` WHERE status = ?`
		args = append(args, string(filter))
	}
	rows, err := s.db.QueryContext(ctx, query+`;`, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *sqliteStore) GetByID(ctx context.Context, id string) (task.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?;`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return task.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *sqliteStore) Update(ctx context.Context, t task.Task) error {
	tagsJSON, subtasksJSON, err := marshalAggregates(t)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks
         SET raw_text = ?, clean_text = ?, status = ?, tags_json = ?,
             due = ?, subtasks_json = ?, created_at = ?, updated_at = ?
         WHERE id = ?;`,
		t.RawText, t.CleanText, string(t.Status), tagsJSON,
		nullableString(t.Due), subtasksJSON, t.CreatedAt, t.UpdatedAt,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, t.ID)
	}
	return nil
}

func (s *sqliteStore) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?;`, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// BulkUpsert writes every record in one transaction, so a failure leaves the
// store untouched.
func (s *sqliteStore) BulkUpsert(ctx context.Context, tasks []task.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	for _, t := range tasks {
		tagsJSON, subtasksJSON, err := marshalAggregates(t)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
			t.ID, t.RawText, t.CleanText, string(t.Status), tagsJSON,
			nullableString(t.Due), subtasksJSON, t.CreatedAt, t.UpdatedAt,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert task %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) exec(ctx context.Context, query string, t task.Task) error {
	tagsJSON, subtasksJSON, err := marshalAggregates(t)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query,
		t.ID, t.RawText, t.CleanText, string(t.Status), tagsJSON,
		nullableString(t.Due), subtasksJSON, t.CreatedAt, t.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func marshalAggregates(t task.Task) (tagsJSON, subtasksJSON string, err error) {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsRaw, err := json.Marshal(tags)
	if err != nil {
		return "", "", fmt.Errorf("marshal tags: %w", err)
	}
	subtasks := t.Subtasks
	if subtasks == nil {
		subtasks = []task.SubTask{}
	}
	subtasksRaw, err := json.Marshal(subtasks)
	if err != nil {
		return "", "", fmt.Errorf("marshal subtasks: %w", err)
	}
	return string(tagsRaw), string(subtasksRaw), nil
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (task.Task, error) {
	var (
		t            task.Task
		statusStr    string
		tagsJSON     string
		due          sql.NullString
		subtasksJSON string
	)
	if err := scanner.Scan(
		&t.ID, &t.RawText, &t.CleanText, &statusStr, &tagsJSON,
		&due, &subtasksJSON, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return task.Task{}, err
	}
	t.Status = task.Status(statusStr)
	if due.Valid {
		t.Due = due.String
	}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &t.Tags); err != nil {
			return task.Task{}, fmt.Errorf("parse tags for %s: %w", t.ID, err)
		}
	}
	if subtasksJSON != "" {
		if err := json.Unmarshal([]byte(subtasksJSON), &t.Subtasks); err != nil {
			return task.Task{}, fmt.Errorf("parse subtasks for %s: %w", t.ID, err)
		}
	}
	return t, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	u := url.URL{
		Scheme: "file",
		Path:   path,
	}
	q := u.Query()
	q.Set("mode", "rwc")
	q.Set("_pragma", "busy_timeout(5000)")
	u.RawQuery = q.Encode()
	return u.String()
}
