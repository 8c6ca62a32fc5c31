package cmd

import (
	"fmt"

	"github.com/openabap/adtflow/internal/config"
	"github.com/openabap/adtflow/internal/connection"
	"github.com/openabap/adtflow/internal/lockreg"
	"github.com/openabap/adtflow/internal/logging"
	"github.com/openabap/adtflow/internal/session"
)

// environment bundles the wired-up collaborators every command needs.
type environment struct {
	cfg      *config.Config
	logger   *logging.Logger
	store    *session.Store
	registry *lockreg.Registry
	conn     *connection.HTTPConnection
}

// buildEnvironment loads configuration and constructs the store, registry,
// logger and connection. Callers must Close it.
func buildEnvironment() (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.State.Dir, cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	store, err := session.NewStore(cfg.State.ResolveSessionsDir())
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	registry, err := lockreg.Open(cfg.State.ResolveLockFile())
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	return &environment{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: registry,
		conn:     connection.NewHTTPConnection(cfg.Connection, logger),
	}, nil
}

func (e *environment) Close() {
	if e.logger != nil {
		_ = e.logger.Close()
	}
}
