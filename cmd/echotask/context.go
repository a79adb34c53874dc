package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"echotask/internal/config"
	"echotask/internal/logging"
	"echotask/internal/manager"
	"echotask/internal/storage"
	"echotask/internal/task"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	cfg        config.Config
	cfgErr     error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		path := ""
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		if path == "" {
			path = config.ResolveConfigPath()
		}
		c.cfg, c.cfgErr = config.LoadOrCreate(path)
	})
	return c.cfg, c.cfgErr
}

// session bundles everything a command needs to operate on tasks. Close
// releases the storage backend and the data-directory lock.
type session struct {
	cfg    config.Config
	logger *slog.Logger
	repo   *storage.Repository
	mgr    *manager.Manager
}

func (s *session) Close() error {
	return s.repo.Close()
}

// openSession loads config, opens storage under the single-writer lock,
// and builds a refreshed manager. fileOnlyLogs keeps slog output out of
// the terminal for full-screen sessions.
func (c *commandContext) openSession(ctx context.Context, fileOnlyLogs bool) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Options{
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		Path:     cfg.LogPath(),
		FileOnly: fileOnlyLogs,
	})
	if err != nil {
		return nil, err
	}

	repo, err := storage.Open(storage.Options{
		DBPath:   cfg.DBPath(),
		FlatPath: cfg.TasksFilePath(),
		LockPath: cfg.LockFilePath(),
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	filter, _ := task.ParseFilter(cfg.DefaultFilter)
	mgr := manager.New(repo, storage.NewOrderFile(cfg.OrderFilePath(), logger), filter, logger)
	if err := mgr.Refresh(ctx); err != nil {
		repo.Close()
		return nil, err
	}

	return &session{cfg: cfg, logger: logger, repo: repo, mgr: mgr}, nil
}

// withSession runs fn against an open session and always closes it.
func (c *commandContext) withSession(ctx context.Context, fn func(*session) error) error {
	s, err := c.openSession(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}
