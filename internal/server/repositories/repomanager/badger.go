package repomanager

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dmitrijs2005/blobkeeper/internal/filex"
	"github.com/dmitrijs2005/blobkeeper/internal/logging"
	"github.com/dmitrijs2005/blobkeeper/internal/server/repositories/files"
	"github.com/dmitrijs2005/blobkeeper/internal/server/repositories/users"
)

// BadgerRepositoryManager keeps users and files in one embedded Badger
// database. It needs no migrations.
type BadgerRepositoryManager struct {
	db *badger.DB
}

// NewBadgerRepositoryManager opens (or creates) the database in dir. With
// inMemory set, dir is ignored and nothing touches the disk.
func NewBadgerRepositoryManager(dir string, inMemory bool, logger logging.Logger) (*BadgerRepositoryManager, error) {
	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		abs, err := filex.EnsureDir(dir)
		if err != nil {
			return nil, err
		}
		opts = badger.DefaultOptions(abs)
	}
	opts = opts.WithLogger(&badgerLogger{l: logger.With("module", "badger")}).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", dir, err)
	}
	return &BadgerRepositoryManager{db: db}, nil
}

func (m *BadgerRepositoryManager) Users() users.Repository {
	return users.NewBadgerRepository(m.db)
}

func (m *BadgerRepositoryManager) Files() files.Repository {
	return files.NewBadgerRepository(m.db)
}

func (m *BadgerRepositoryManager) RunMigrations(context.Context) error {
	return nil
}

func (m *BadgerRepositoryManager) Close() error {
	return m.db.Close()
}

// badgerLogger routes Badger's printf-style logging into the structured logger.
type badgerLogger struct {
	l logging.Logger
}

func (b *badgerLogger) Errorf(format string, args ...any) {
	b.l.Error(context.Background(), trim(format, args))
}

func (b *badgerLogger) Warningf(format string, args ...any) {
	b.l.Warn(context.Background(), trim(format, args))
}

func (b *badgerLogger) Infof(format string, args ...any) {
	b.l.Info(context.Background(), trim(format, args))
}

func (b *badgerLogger) Debugf(format string, args ...any) {
	b.l.Debug(context.Background(), trim(format, args))
}

func trim(format string, args []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
