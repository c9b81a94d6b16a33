// Package repomanager selects a metadata backend and vends the repositories
// bound to it.
package repomanager

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/blobkeeper/internal/logging"
	"github.com/dmitrijs2005/blobkeeper/internal/server/config"
	"github.com/dmitrijs2005/blobkeeper/internal/server/repositories/files"
	"github.com/dmitrijs2005/blobkeeper/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Users() users.Repository
	Files() files.Repository
	Close() error
}

// Open builds the manager named by cfg.MetadataBackend and brings its
// schema up to date.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger) (RepositoryManager, error) {
	var (
		m   RepositoryManager
		err error
	)

	switch cfg.MetadataBackend {
	case "postgres":
		m, err = NewPostgresRepositoryManager(cfg.DatabaseDSN)
	case "badger":
		m, err = NewBadgerRepositoryManager(cfg.BadgerDir, false, logger)
	default:
		return nil, fmt.Errorf("unknown metadata backend %q", cfg.MetadataBackend)
	}
	if err != nil {
		return nil, err
	}

	if err := m.RunMigrations(ctx); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	logger.Info(ctx, "metadata backend ready", "backend", cfg.MetadataBackend)
	return m, nil
}
