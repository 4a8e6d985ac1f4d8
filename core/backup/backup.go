// Package backup snapshots the wallet registry database to timestamped files.
// A snapshot preserves wallet records and stored receipts; restoring a stale
// one can only under-report deployment state, which the reconciler repairs
// from chain.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/LumenWallet/lumen-core/pkg/logger"
	"github.com/LumenWallet/lumen-core/storage"
)

type Service struct {
	logger    logger.Logger
	db        storage.Storage
	backupDir string

	interval time.Duration
	running  bool
	stop     chan struct{}
}

func NewService(log logger.Logger, db storage.Storage, backupDir string) *Service {
	return &Service{
		logger:    logger.EnsureLogger(log),
		db:        db,
		backupDir: backupDir,
		stop:      make(chan struct{}),
	}
}

// StartPeriodicBackup snapshots the registry every interval until stopped.
func (s *Service) StartPeriodicBackup(interval time.Duration) error {
	if s.running {
		return fmt.Errorf("backup service already running")
	}
	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	s.interval = interval
	s.running = true
	go s.backupLoop()

	s.logger.Info("periodic registry backup started",
		"interval", interval.String(),
		"dir", s.backupDir)
	return nil
}

func (s *Service) StopPeriodicBackup() {
	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
	s.logger.Info("periodic registry backup stopped")
}

func (s *Service) backupLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if file, err := s.PerformBackup(context.Background()); err != nil {
				s.logger.Error("registry backup failed", "error", err)
			} else {
				s.logger.Info("registry backup written", "file", file)
			}
		case <-s.stop:
			return
		}
	}
}

// PerformBackup writes one full snapshot and returns its path.
func (s *Service) PerformBackup(ctx context.Context) (string, error) {
	timestamp := time.Now().UTC().Format("2006-01-02-1504")
	backupPath := filepath.Join(s.backupDir, timestamp)
	if err := os.MkdirAll(backupPath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	backupFile := filepath.Join(backupPath, "registry.db")
	f, err := os.Create(backupFile)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	defer f.Close()

	if _, err := s.db.Backup(ctx, f, 0); err != nil {
		return "", fmt.Errorf("backup failed: %w", err)
	}
	return backupFile, nil
}
