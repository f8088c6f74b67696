package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mintline/marketwatch/internal/common"
	"github.com/mintline/marketwatch/internal/config"
	"github.com/mintline/marketwatch/internal/logger"
)

// Maintenance keeps a long-running SQLite database healthy: periodic WAL
// checkpoints so the log does not grow without bound, and VACUUM to reclaim
// space freed by deleted dead letters and cancelled listings.
type Maintenance interface {
	// Start begins background maintenance. It returns immediately.
	Start(ctx context.Context)
	// Stop stops background maintenance and waits for the worker to exit.
	Stop()
	// Run performs one maintenance pass.
	Run(ctx context.Context) error
}

// NewMaintenance builds the maintenance worker for the given database.
// A nil or disabled configuration yields a no-op.
func NewMaintenance(dbPath string, database *sql.DB, cfg *config.MaintenanceConfig, log *logger.Logger) Maintenance {
	if cfg == nil || !cfg.Enabled {
		return noopMaintenance{}
	}

	return &maintenanceWorker{
		db:     database,
		dbPath: dbPath,
		cfg:    *cfg,
		log:    log.WithComponent(common.ComponentMaintain),
	}
}

type noopMaintenance struct{}

func (noopMaintenance) Start(context.Context)     {}
func (noopMaintenance) Stop()                     {}
func (noopMaintenance) Run(context.Context) error { return nil }

type maintenanceWorker struct {
	db     *sql.DB
	dbPath string
	cfg    config.MaintenanceConfig
	log    *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (m *maintenanceWorker) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	if m.cfg.VacuumOnStartup {
		m.log.Info("Running startup maintenance")
		if err := m.Run(ctx); err != nil {
			m.log.Warnf("Startup maintenance failed: %v", err)
		}
	}

	m.wg.Add(1)
	go m.loop(ctx)

	m.log.Infof("Background maintenance started - interval: %v, checkpoint mode: %s",
		m.cfg.CheckInterval.Duration, m.cfg.WALCheckpointMode)
}

func (m *maintenanceWorker) Stop() {
	if m.cancel == nil {
		return // never started
	}

	m.cancel()
	m.wg.Wait()
	m.log.Info("Background maintenance stopped")
}

func (m *maintenanceWorker) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CheckInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Run(ctx); err != nil {
				m.log.Warnf("Periodic maintenance failed: %v", err)
			}
		}
	}
}

// Run checkpoints the WAL and vacuums the database. Both steps are attempted
// even if the first fails; the first error is returned.
func (m *maintenanceWorker) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.log.Debug("Starting database maintenance")
	start := time.Now().UTC()
	MaintenanceRunsInc()

	initialSize, err := DBTotalSize(m.dbPath)
	if err != nil {
		m.log.Warnf("Failed to get initial DB size: %v", err)
	}

	var maintErr error
	if err := m.walCheckpoint(); err != nil {
		m.log.Errorf("WAL checkpoint failed: %v", err)
		maintErr = fmt.Errorf("WAL checkpoint failed: %w", err)
	}

	if err := m.vacuum(); err != nil {
		m.log.Warnf("VACUUM failed: %v", err)
		if maintErr == nil {
			maintErr = fmt.Errorf("VACUUM failed: %w", err)
		}
	}

	duration := time.Since(start)
	MaintenanceDurationLog(duration)

	if maintErr != nil {
		MaintenanceErrorInc()
		return maintErr
	}

	MaintenanceSuccessInc()

	finalSize, err := DBTotalSize(m.dbPath)
	if err != nil {
		m.log.Warnf("Failed to get final DB size: %v", err)
		m.log.Infof("Maintenance completed in %v", duration)
		return nil
	}

	DBSizeLog(finalSize)
	if initialSize > finalSize {
		m.log.Infof("Maintenance completed in %v, reclaimed %d bytes", duration, initialSize-finalSize)
	} else {
		m.log.Infof("Maintenance completed in %v", duration)
	}

	return nil
}

func (m *maintenanceWorker) walCheckpoint() error {
	isWAL, err := m.isWALMode()
	if err != nil {
		return fmt.Errorf("failed to check journal mode: %w", err)
	}

	if !isWAL {
		m.log.Debug("Database not in WAL mode, skipping WAL checkpoint")
		return nil
	}

	var busyCount, logFrames, checkpointedFrames int
	checkpointSQL := fmt.Sprintf("PRAGMA wal_checkpoint(%s)", m.cfg.WALCheckpointMode)
	if err := m.db.QueryRow(checkpointSQL).Scan(&busyCount, &logFrames, &checkpointedFrames); err != nil {
		return fmt.Errorf("failed to execute WAL checkpoint: %w", err)
	}

	WALCheckpointInc(strings.ToLower(m.cfg.WALCheckpointMode))

	if busyCount > 0 {
		m.log.Warnf("WAL checkpoint encountered %d busy pages", busyCount)
	}

	return nil
}

// vacuum requires exclusive access; with concurrent writers it fails with a
// busy error and is retried on the next maintenance pass.
func (m *maintenanceWorker) vacuum() error {
	if _, err := m.db.Exec("VACUUM"); err != nil {
		if strings.Contains(err.Error(), "database is locked") {
			return fmt.Errorf("cannot vacuum: database is locked (retry later)")
		}
		return fmt.Errorf("vacuum failed: %w", err)
	}

	VacuumRunsInc()
	return nil
}

func (m *maintenanceWorker) isWALMode() (bool, error) {
	var mode string
	if err := m.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		return false, err
	}
	return strings.EqualFold(mode, "wal"), nil
}
