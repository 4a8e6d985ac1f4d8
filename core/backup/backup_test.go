package backup

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LumenWallet/lumen-core/core/testutil"
	"github.com/LumenWallet/lumen-core/core/wallet"
)

func TestPerformBackupWritesSnapshot(t *testing.T) {
	db := testutil.GetStorage(t)
	registry := wallet.NewRegistry(db, nil, nil)
	_, err := registry.CreateWallet(testutil.TestOwner, testutil.TestFactory, big.NewInt(0), testutil.TestChainID)
	require.NoError(t, err)

	service := NewService(testutil.GetLogger(), db, t.TempDir())

	file, err := service.PerformBackup(context.Background())
	require.NoError(t, err)

	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestStartPeriodicBackupRejectsDoubleStart(t *testing.T) {
	service := NewService(testutil.GetLogger(), testutil.GetStorage(t), t.TempDir())

	require.NoError(t, service.StartPeriodicBackup(time.Hour))
	defer service.StopPeriodicBackup()

	assert.Error(t, service.StartPeriodicBackup(time.Hour))
}

func TestPerformBackupCancelledContext(t *testing.T) {
	service := NewService(nil, testutil.GetStorage(t), t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.PerformBackup(ctx)
	assert.Error(t, err)
}
