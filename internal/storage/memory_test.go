package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sv2d/sv2d/internal/miningtypes"
)

func TestMemoryStoreConnectionLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	conn := miningtypes.NewConnection("10.0.0.1:3333")

	require.NoError(t, store.CreateConnection(ctx, conn))

	got, err := store.GetConnection(ctx, conn.ID.String())
	require.NoError(t, err)
	assert.Equal(t, conn.PeerAddress, got.PeerAddress)

	conn.TotalShares = 5
	require.NoError(t, store.UpdateConnection(ctx, conn))

	got, err = store.GetConnection(ctx, conn.ID.String())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got.TotalShares)

	require.NoError(t, store.DeleteConnection(ctx, conn.ID.String()))
	_, err = store.GetConnection(ctx, conn.ID.String())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreUpdateConnectionNotFound(t *testing.T) {
	store := NewMemoryStore()
	conn := miningtypes.NewConnection("10.0.0.1:3333")
	err := store.UpdateConnection(context.Background(), conn)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreShareStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	connID := "conn-1"

	require.NoError(t, store.CreateShare(ctx, &miningtypes.Share{IsValid: true}, connID))
	require.NoError(t, store.CreateShare(ctx, &miningtypes.Share{IsValid: false}, connID))
	require.NoError(t, store.CreateShare(ctx, &miningtypes.Share{IsValid: true, WinningBlockHash: "abc"}, connID))

	stats, err := store.GetShareStats(ctx, connID)
	require.NoError(t, err)
	assert.Equal(t, ShareStats{Total: 3, Valid: 2, Invalid: 1, Blocks: 1}, stats)
}

func TestMemoryStoreDeleteExpiredWorkTemplates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	expired := &miningtypes.WorkTemplate{ID: mustUUID(), CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute)}
	live := &miningtypes.WorkTemplate{ID: mustUUID(), CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, store.CreateWorkTemplate(ctx, expired))
	require.NoError(t, store.CreateWorkTemplate(ctx, live))

	n, err := store.DeleteExpiredWorkTemplates(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	remaining, err := store.ListWorkTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, live.ID, remaining[0].ID)
}

func TestMemoryStoreConfigHistoryOrderAndLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.StoreConfigHistory(ctx, &miningtypes.ConfigHistory{ConfigRaw: "cfg"}))
	}

	hist, err := store.ListConfigHistory(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, hist, 2)
	assert.Equal(t, int64(4), hist[0].ID)
	assert.Equal(t, int64(5), hist[1].ID)
}

func TestMemoryStoreHealthCheckAndClose(t *testing.T) {
	store := NewMemoryStore()
	assert.NoError(t, store.HealthCheck(context.Background()))
	assert.NoError(t, store.Close())
}

func mustUUID() uuid.UUID {
	return uuid.New()
}
