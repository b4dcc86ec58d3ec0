package storage

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sv2d/sv2d/internal/miningtypes"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newSQLStore(sqlx.NewDb(db, "postgres"), "postgres"), mock
}

func TestSQLStoreCreateConnection(t *testing.T) {
	store, mock := newMockStore(t)
	conn := miningtypes.NewConnection("127.0.0.1:3333")

	mock.ExpectExec("INSERT INTO connections").
		WithArgs(conn.ID.String(), conn.PeerAddress, conn.Protocol.String(), conn.State.String(),
			conn.CreatedAt, conn.LastActivity, conn.UserAgent, conn.Extranonce1, conn.Extranonce2Size).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.CreateConnection(context.Background(), conn))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreUpdateConnectionNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	conn := miningtypes.NewConnection("127.0.0.1:3333")

	mock.ExpectExec("UPDATE connections SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateConnection(context.Background(), conn)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreGetShareStats(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT(.|\n)*FROM shares WHERE connection_id").
		WithArgs("conn-1").
		WillReturnRows(sqlmock.NewRows([]string{"total", "valid", "invalid", "blocks"}).
			AddRow(int64(10), int64(9), int64(1), int64(0)))

	stats, err := store.GetShareStats(context.Background(), "conn-1")
	require.NoError(t, err)
	assert.Equal(t, ShareStats{Total: 10, Valid: 9, Invalid: 1, Blocks: 0}, stats)
}

func TestSQLStoreDeleteExpiredWorkTemplates(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectExec("DELETE FROM work_templates WHERE expires_at").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.DeleteExpiredWorkTemplates(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSQLStoreHealthCheck(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectPing()
	require.NoError(t, store.HealthCheck(context.Background()))
}
