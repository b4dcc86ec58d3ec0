package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sv2d/sv2d/internal/miningtypes"
)

// SQLStore is a single Store implementation over any database/sql driver
// sqlx wraps. It writes portable SQL using "?" placeholders and rebinds
// them per dialect with sqlx.Rebind, following the teacher's
// internal/database/database.go shape but made dialect-agnostic so the
// same queries serve both the Postgres backend (lib/pq) and the SQLite
// backend (modernc.org/sqlite) named in spec.md's storage section.
type SQLStore struct {
	db      *sqlx.DB
	dialect string // "postgres" or "sqlite"
}

func newSQLStore(db *sqlx.DB, dialect string) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) rebind(query string) string {
	return s.db.Rebind(query)
}

func (s *SQLStore) CreateConnection(ctx context.Context, c *miningtypes.Connection) error {
	q := s.rebind(`INSERT INTO connections
		(id, peer_address, protocol, state, created_at, last_activity, user_agent, extranonce1, extranonce2_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		c.ID.String(), c.PeerAddress, c.Protocol.String(), c.State.String(),
		c.CreatedAt, c.LastActivity, c.UserAgent, c.Extranonce1, c.Extranonce2Size)
	return err
}

func (s *SQLStore) UpdateConnection(ctx context.Context, c *miningtypes.Connection) error {
	q := s.rebind(`UPDATE connections SET
		state = ?, last_activity = ?, error_reason = ?, total_shares = ?,
		valid_shares = ?, invalid_shares = ?, blocks_found = ?
		WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, q,
		c.State.String(), c.LastActivity, c.ErrorReason, c.TotalShares,
		c.ValidShares, c.InvalidShares, c.BlocksFound, c.ID.String())
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (s *SQLStore) GetConnection(ctx context.Context, id string) (*miningtypes.Connection, error) {
	q := s.rebind(`SELECT id, peer_address, created_at, last_activity FROM connections WHERE id = ?`)
	row := s.db.QueryRowxContext(ctx, q, id)
	var rec struct {
		ID           string    `db:"id"`
		PeerAddress  string    `db:"peer_address"`
		CreatedAt    time.Time `db:"created_at"`
		LastActivity time.Time `db:"last_activity"`
	}
	if err := row.StructScan(&rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c := miningtypes.NewConnection(rec.PeerAddress)
	c.CreatedAt = rec.CreatedAt
	c.LastActivity = rec.LastActivity
	return c, nil
}

func (s *SQLStore) ListConnections(ctx context.Context) ([]*miningtypes.Connection, error) {
	q := s.rebind(`SELECT peer_address FROM connections ORDER BY created_at`)
	rows, err := s.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*miningtypes.Connection
	for rows.Next() {
		var peerAddress string
		if err := rows.Scan(&peerAddress); err != nil {
			return nil, err
		}
		out = append(out, miningtypes.NewConnection(peerAddress))
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteConnection(ctx context.Context, id string) error {
	q := s.rebind(`DELETE FROM connections WHERE id = ?`)
	_, err := s.db.ExecContext(ctx, q, id)
	return err
}

func (s *SQLStore) CreateShare(ctx context.Context, sh *miningtypes.Share, connectionID string) error {
	q := s.rebind(`INSERT INTO shares
		(connection_id, job_id, extranonce2, ntime, nonce, claimed_difficulty, is_valid, winning_block_hash, worker_name, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		connectionID, sh.JobID, sh.Extranonce2, sh.NTime, sh.Nonce,
		sh.ClaimedDifficulty, sh.IsValid, sh.WinningBlockHash, sh.WorkerName, sh.SubmittedAt)
	return err
}

func (s *SQLStore) GetShareStats(ctx context.Context, connectionID string) (ShareStats, error) {
	q := s.rebind(`SELECT
		COUNT(*) AS total,
		SUM(CASE WHEN is_valid THEN 1 ELSE 0 END) AS valid,
		SUM(CASE WHEN NOT is_valid THEN 1 ELSE 0 END) AS invalid,
		SUM(CASE WHEN winning_block_hash <> '' THEN 1 ELSE 0 END) AS blocks
		FROM shares WHERE connection_id = ?`)
	var stats ShareStats
	row := s.db.QueryRowContext(ctx, q, connectionID)
	if err := row.Scan(&stats.Total, &stats.Valid, &stats.Invalid, &stats.Blocks); err != nil {
		return ShareStats{}, err
	}
	return stats, nil
}

func (s *SQLStore) ListShares(ctx context.Context, connectionID string, limit int) ([]*miningtypes.Share, error) {
	q := s.rebind(`SELECT job_id, extranonce2, ntime, nonce, claimed_difficulty, is_valid, winning_block_hash, worker_name, submitted_at
		FROM shares WHERE connection_id = ? ORDER BY submitted_at DESC LIMIT ?`)
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, q, connectionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*miningtypes.Share
	for rows.Next() {
		sh := &miningtypes.Share{}
		if err := rows.Scan(&sh.JobID, &sh.Extranonce2, &sh.NTime, &sh.Nonce,
			&sh.ClaimedDifficulty, &sh.IsValid, &sh.WinningBlockHash, &sh.WorkerName, &sh.SubmittedAt); err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateWorkTemplate(ctx context.Context, t *miningtypes.WorkTemplate) error {
	q := s.rebind(`INSERT INTO work_templates
		(id, previous_hash, difficulty, bits, version, ntime, height, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		t.ID.String(), t.PreviousHash, t.Difficulty, t.Bits, t.Version, t.NTime, t.Height, t.CreatedAt, t.ExpiresAt)
	return err
}

func (s *SQLStore) GetWorkTemplate(ctx context.Context, id string) (*miningtypes.WorkTemplate, error) {
	q := s.rebind(`SELECT previous_hash, difficulty, bits, version, ntime, height, created_at, expires_at
		FROM work_templates WHERE id = ?`)
	row := s.db.QueryRowContext(ctx, q, id)
	t := &miningtypes.WorkTemplate{}
	if err := row.Scan(&t.PreviousHash, &t.Difficulty, &t.Bits, &t.Version, &t.NTime, &t.Height, &t.CreatedAt, &t.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *SQLStore) ListWorkTemplates(ctx context.Context) ([]*miningtypes.WorkTemplate, error) {
	q := s.rebind(`SELECT previous_hash, difficulty, bits, version, ntime, height, created_at, expires_at
		FROM work_templates ORDER BY created_at DESC`)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*miningtypes.WorkTemplate
	for rows.Next() {
		t := &miningtypes.WorkTemplate{}
		if err := rows.Scan(&t.PreviousHash, &t.Difficulty, &t.Bits, &t.Version, &t.NTime, &t.Height, &t.CreatedAt, &t.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteExpiredWorkTemplates(ctx context.Context, now time.Time) (int64, error) {
	q := s.rebind(`DELETE FROM work_templates WHERE expires_at <= ?`)
	res, err := s.db.ExecContext(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLStore) CreateAlert(ctx context.Context, a *miningtypes.Alert) error {
	q := s.rebind(`INSERT INTO alerts (id, level, title, message, component, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q, a.ID.String(), a.Level.String(), a.Title, a.Message, a.Component, a.CreatedAt)
	return err
}

func (s *SQLStore) UpdateAlert(ctx context.Context, a *miningtypes.Alert) error {
	q := s.rebind(`UPDATE alerts SET resolved_at = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, q, a.ResolvedAt, a.ID.String())
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (s *SQLStore) ListAlerts(ctx context.Context) ([]*miningtypes.Alert, error) {
	q := s.rebind(`SELECT title, message, component, created_at FROM alerts ORDER BY created_at DESC`)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*miningtypes.Alert
	for rows.Next() {
		a := &miningtypes.Alert{}
		if err := rows.Scan(&a.Title, &a.Message, &a.Component, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) StorePerformanceMetrics(ctx context.Context, p *miningtypes.PerformanceMetrics) error {
	q := s.rebind(`INSERT INTO performance_metrics
		(cpu_percent, mem_used_bytes, mem_total_bytes, net_rx_bytes, net_tx_bytes,
		 disk_used_bytes, disk_total_bytes, open_connections, db_connections, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		p.CPUPercent, p.MemUsedBytes, p.MemTotalBytes, p.NetRxBytes, p.NetTxBytes,
		p.DiskUsedBytes, p.DiskTotalBytes, p.OpenConnections, p.DBConnections, p.Timestamp)
	return err
}

func (s *SQLStore) GetLatestPerformanceMetrics(ctx context.Context) (*miningtypes.PerformanceMetrics, error) {
	q := s.rebind(`SELECT cpu_percent, mem_used_bytes, mem_total_bytes, net_rx_bytes, net_tx_bytes,
		disk_used_bytes, disk_total_bytes, open_connections, db_connections, ts
		FROM performance_metrics ORDER BY ts DESC LIMIT 1`)
	row := s.db.QueryRowContext(ctx, q)
	p := &miningtypes.PerformanceMetrics{}
	err := row.Scan(&p.CPUPercent, &p.MemUsedBytes, &p.MemTotalBytes, &p.NetRxBytes, &p.NetTxBytes,
		&p.DiskUsedBytes, &p.DiskTotalBytes, &p.OpenConnections, &p.DBConnections, &p.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *SQLStore) StoreConfigHistory(ctx context.Context, h *miningtypes.ConfigHistory) error {
	q := s.rebind(`INSERT INTO config_history (config_raw, applied_at, applied_by) VALUES (?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q, h.ConfigRaw, h.AppliedAt, h.AppliedBy)
	return err
}

func (s *SQLStore) ListConfigHistory(ctx context.Context, limit int) ([]*miningtypes.ConfigHistory, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.rebind(`SELECT id, config_raw, applied_at, applied_by FROM config_history ORDER BY applied_at DESC LIMIT ?`)
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*miningtypes.ConfigHistory
	for rows.Next() {
		h := &miningtypes.ConfigHistory{}
		if err := rows.Scan(&h.ID, &h.ConfigRaw, &h.AppliedAt, &h.AppliedBy); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *SQLStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func checkRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*SQLStore)(nil)
