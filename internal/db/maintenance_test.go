package db

import (
	"context"
	"testing"
	"time"

	mwcommon "github.com/mintline/marketwatch/internal/common"
	"github.com/mintline/marketwatch/internal/config"
	"github.com/mintline/marketwatch/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func maintenanceTestConfig() *config.MaintenanceConfig {
	cfg := &config.MaintenanceConfig{
		Enabled:       true,
		CheckInterval: mwcommon.NewDuration(25 * time.Millisecond),
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestNewMaintenance_Disabled(t *testing.T) {
	t.Parallel()

	sqlDB, dbPath := setupTestDB(t, "WAL")

	for _, cfg := range []*config.MaintenanceConfig{nil, {Enabled: false}} {
		m := NewMaintenance(dbPath, sqlDB, cfg, logger.GetDefaultLogger())
		require.IsType(t, noopMaintenance{}, m)

		m.Start(context.Background())
		require.NoError(t, m.Run(context.Background()))
		m.Stop()
	}
}

func TestMaintenance_Run(t *testing.T) {
	t.Parallel()

	sqlDB, dbPath := setupTestDB(t, "WAL")

	initialSize, err := DBTotalSize(dbPath)
	require.NoError(t, err)
	require.Greater(t, initialSize, int64(0))

	// Free up pages so the checkpoint and vacuum have something to reclaim.
	_, err = sqlDB.Exec("DELETE FROM test_table WHERE id > 100")
	require.NoError(t, err)

	m := NewMaintenance(dbPath, sqlDB, maintenanceTestConfig(), logger.GetDefaultLogger())
	require.NoError(t, m.Run(context.Background()))

	finalSize, err := DBTotalSize(dbPath)
	require.NoError(t, err)
	assert.LessOrEqual(t, finalSize, initialSize)
}

func TestMaintenance_Run_CancelledContext(t *testing.T) {
	t.Parallel()

	sqlDB, dbPath := setupTestDB(t, "WAL")

	m := NewMaintenance(dbPath, sqlDB, maintenanceTestConfig(), logger.GetDefaultLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, m.Run(ctx), context.Canceled)
}

func TestMaintenance_SkipsCheckpointOutsideWALMode(t *testing.T) {
	t.Parallel()

	sqlDB, dbPath := setupTestDB(t, "TRUNCATE")

	m := NewMaintenance(dbPath, sqlDB, maintenanceTestConfig(), logger.GetDefaultLogger())
	require.NoError(t, m.Run(context.Background()))
}

func TestMaintenance_BackgroundWorker(t *testing.T) {
	t.Parallel()

	sqlDB, dbPath := setupTestDB(t, "WAL")

	cfg := maintenanceTestConfig()
	cfg.VacuumOnStartup = true

	m := NewMaintenance(dbPath, sqlDB, cfg, logger.GetDefaultLogger())
	m.Start(context.Background())

	// Let a few ticker passes run before stopping.
	time.Sleep(100 * time.Millisecond)
	m.Stop()

	// Stop is idempotent.
	m.Stop()
}
