// Package storage defines the persistence contract the core consumes
// (spec.md §6) and ships two backends that satisfy it: a Postgres store
// (the teacher's own backend) and a pure-Go SQLite store borrowed from
// the retrieval pack for the sqlite:// URL scheme. Any store satisfying
// Store is acceptable to the core; neither backend's SQL dialect leaks
// past this package.
package storage

import (
	"context"
	"time"

	"github.com/sv2d/sv2d/internal/miningtypes"
)

// ConnectionStore is the Connection slice of the persistence contract.
type ConnectionStore interface {
	CreateConnection(ctx context.Context, c *miningtypes.Connection) error
	UpdateConnection(ctx context.Context, c *miningtypes.Connection) error
	GetConnection(ctx context.Context, id string) (*miningtypes.Connection, error)
	ListConnections(ctx context.Context) ([]*miningtypes.Connection, error)
	DeleteConnection(ctx context.Context, id string) error
}

// ShareStats summarises accepted/rejected counts for a connection or the
// whole pool (spec.md §6 shares/ShareStats).
type ShareStats struct {
	Total   int64
	Valid   int64
	Invalid int64
	Blocks  int64
}

// ShareStore is the Share slice of the persistence contract.
type ShareStore interface {
	CreateShare(ctx context.Context, s *miningtypes.Share, connectionID string) error
	GetShareStats(ctx context.Context, connectionID string) (ShareStats, error)
	ListShares(ctx context.Context, connectionID string, limit int) ([]*miningtypes.Share, error)
}

// WorkTemplateStore is the WorkTemplate slice of the persistence contract.
type WorkTemplateStore interface {
	CreateWorkTemplate(ctx context.Context, t *miningtypes.WorkTemplate) error
	GetWorkTemplate(ctx context.Context, id string) (*miningtypes.WorkTemplate, error)
	ListWorkTemplates(ctx context.Context) ([]*miningtypes.WorkTemplate, error)
	DeleteExpiredWorkTemplates(ctx context.Context, now time.Time) (int64, error)
}

// AlertStore is the Alert slice of the persistence contract.
type AlertStore interface {
	CreateAlert(ctx context.Context, a *miningtypes.Alert) error
	UpdateAlert(ctx context.Context, a *miningtypes.Alert) error
	ListAlerts(ctx context.Context) ([]*miningtypes.Alert, error)
}

// MetricsStore is the PerformanceMetrics slice of the persistence contract.
type MetricsStore interface {
	StorePerformanceMetrics(ctx context.Context, m *miningtypes.PerformanceMetrics) error
	GetLatestPerformanceMetrics(ctx context.Context) (*miningtypes.PerformanceMetrics, error)
}

// ConfigHistoryStore is the ConfigHistory slice of the persistence contract.
type ConfigHistoryStore interface {
	StoreConfigHistory(ctx context.Context, h *miningtypes.ConfigHistory) error
	ListConfigHistory(ctx context.Context, limit int) ([]*miningtypes.ConfigHistory, error)
}

// Store is the full persistence contract any backend must satisfy
// (spec.md §6). It is deliberately small-interface-composed (ISP), as
// in internal/database/interfaces.go of the teacher.
type Store interface {
	ConnectionStore
	ShareStore
	WorkTemplateStore
	AlertStore
	MetricsStore
	ConfigHistoryStore

	HealthCheck(ctx context.Context) error
	Close() error
}

// ErrNotFound is returned by Get* operations when no row matches.
var ErrNotFound = &notFoundError{}

type notFoundError struct{}

func (e *notFoundError) Error() string { return "storage: not found" }
