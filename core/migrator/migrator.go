// Package migrator applies one-shot schema migrations to the registry
// database. Applied migrations are recorded under "migration:<name>" keys so
// reruns are no-ops, and a full backup is taken before any pending migration
// touches data.
package migrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/LumenWallet/lumen-core/core/backup"
	"github.com/LumenWallet/lumen-core/pkg/logger"
	"github.com/LumenWallet/lumen-core/storage"
)

// MigrationFunc rewrites records in place and returns how many it touched.
type MigrationFunc func(db storage.Storage) (int, error)

type Migration struct {
	Name     string
	Function MigrationFunc
}

type Migrator struct {
	db         storage.Storage
	migrations []Migration
	backup     *backup.Service
	logger     logger.Logger
	mu         sync.Mutex
}

// NewMigrator wires a migrator. backup may be nil; the pre-migration snapshot
// is then skipped.
func NewMigrator(db storage.Storage, backupService *backup.Service, migrations []Migration, log logger.Logger) *Migrator {
	return &Migrator{
		db:         db,
		migrations: migrations,
		backup:     backupService,
		logger:     logger.EnsureLogger(log),
	}
}

// Register appends a migration. Names are timestamp-prefixed
// (YYYYMMDD-HHMMSS-slug) so the recorded keys sort in application order.
func (m *Migrator) Register(name string, fn MigrationFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.migrations = append(m.migrations, Migration{Name: name, Function: fn})
}

func (m *Migrator) migrationKey(name string) []byte {
	return []byte(fmt.Sprintf("migration:%s", name))
}

func (m *Migrator) hasPending() bool {
	for _, migration := range m.migrations {
		exists, err := m.db.Exist(m.migrationKey(migration.Name))
		if err != nil || !exists {
			return true
		}
	}
	return false
}

// Run applies every migration not yet recorded in the database.
func (m *Migrator) Run(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasPending() {
		return nil
	}

	if m.backup != nil {
		file, err := m.backup.PerformBackup(ctx)
		if err != nil {
			return fmt.Errorf("failed to back up before migrations: %w", err)
		}
		m.logger.Info("pre-migration backup written", "file", file)
	}

	for _, migration := range m.migrations {
		key := m.migrationKey(migration.Name)
		exists, err := m.db.Exist(key)
		if err == nil && exists {
			continue
		}

		m.logger.Info("running migration", "name", migration.Name)
		updated, err := migration.Function(m.db)
		if err != nil {
			return fmt.Errorf("migration %s failed: %w", migration.Name, err)
		}

		record := fmt.Sprintf("records=%d,ts=%d", updated, time.Now().UnixMilli())
		if err := m.db.Set(key, []byte(record)); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Name, err)
		}
		m.logger.Info("migration applied", "name", migration.Name, "records", updated)
	}

	return nil
}
