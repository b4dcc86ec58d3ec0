package storage

import (
	"context"
	"sync"
	"time"

	"github.com/sv2d/sv2d/internal/miningtypes"
)

// MemoryStore is an in-process Store used by unit tests. Nothing in this
// repository selects a store from database.url, so it is not wired in as
// a default either. It mirrors
// the shape of internal/database/mocks.go in the teacher: simple guarded
// maps rather than a query engine.
type MemoryStore struct {
	mu sync.RWMutex

	connections map[string]*miningtypes.Connection
	shares      map[string][]*miningtypes.Share
	templates   map[string]*miningtypes.WorkTemplate
	alerts      []*miningtypes.Alert
	metrics     []*miningtypes.PerformanceMetrics
	configHist  []*miningtypes.ConfigHistory
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		connections: make(map[string]*miningtypes.Connection),
		shares:      make(map[string][]*miningtypes.Share),
		templates:   make(map[string]*miningtypes.WorkTemplate),
	}
}

func (m *MemoryStore) CreateConnection(_ context.Context, c *miningtypes.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.connections[c.ID.String()] = &cp
	return nil
}

func (m *MemoryStore) UpdateConnection(_ context.Context, c *miningtypes.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[c.ID.String()]; !ok {
		return ErrNotFound
	}
	cp := *c
	m.connections[c.ID.String()] = &cp
	return nil
}

func (m *MemoryStore) GetConnection(_ context.Context, id string) (*miningtypes.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.connections[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) ListConnections(_ context.Context) ([]*miningtypes.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*miningtypes.Connection, 0, len(m.connections))
	for _, c := range m.connections {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) DeleteConnection(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.connections, id)
	delete(m.shares, id)
	return nil
}

func (m *MemoryStore) CreateShare(_ context.Context, s *miningtypes.Share, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.shares[connectionID] = append(m.shares[connectionID], &cp)
	return nil
}

func (m *MemoryStore) GetShareStats(_ context.Context, connectionID string) (ShareStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stats ShareStats
	for _, s := range m.shares[connectionID] {
		stats.Total++
		if s.IsValid {
			stats.Valid++
		} else {
			stats.Invalid++
		}
		if s.WinningBlockHash != "" {
			stats.Blocks++
		}
	}
	return stats, nil
}

func (m *MemoryStore) ListShares(_ context.Context, connectionID string, limit int) ([]*miningtypes.Share, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	shares := m.shares[connectionID]
	if limit > 0 && limit < len(shares) {
		shares = shares[len(shares)-limit:]
	}
	out := make([]*miningtypes.Share, len(shares))
	copy(out, shares)
	return out, nil
}

func (m *MemoryStore) CreateWorkTemplate(_ context.Context, t *miningtypes.WorkTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.templates[t.ID.String()] = &cp
	return nil
}

func (m *MemoryStore) GetWorkTemplate(_ context.Context, id string) (*miningtypes.WorkTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) ListWorkTemplates(_ context.Context) ([]*miningtypes.WorkTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*miningtypes.WorkTemplate, 0, len(m.templates))
	for _, t := range m.templates {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) DeleteExpiredWorkTemplates(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.templates {
		if t.IsExpired(now) {
			delete(m.templates, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CreateAlert(_ context.Context, a *miningtypes.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.alerts = append(m.alerts, &cp)
	return nil
}

func (m *MemoryStore) UpdateAlert(_ context.Context, a *miningtypes.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.alerts {
		if existing.ID == a.ID {
			cp := *a
			m.alerts[i] = &cp
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryStore) ListAlerts(_ context.Context) ([]*miningtypes.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*miningtypes.Alert, len(m.alerts))
	copy(out, m.alerts)
	return out, nil
}

func (m *MemoryStore) StorePerformanceMetrics(_ context.Context, p *miningtypes.PerformanceMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.metrics = append(m.metrics, &cp)
	return nil
}

func (m *MemoryStore) GetLatestPerformanceMetrics(_ context.Context) (*miningtypes.PerformanceMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.metrics) == 0 {
		return nil, ErrNotFound
	}
	cp := *m.metrics[len(m.metrics)-1]
	return &cp, nil
}

func (m *MemoryStore) StoreConfigHistory(_ context.Context, h *miningtypes.ConfigHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *h
	cp.ID = int64(len(m.configHist) + 1)
	m.configHist = append(m.configHist, &cp)
	return nil
}

func (m *MemoryStore) ListConfigHistory(_ context.Context, limit int) ([]*miningtypes.ConfigHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hist := m.configHist
	if limit > 0 && limit < len(hist) {
		hist = hist[len(hist)-limit:]
	}
	out := make([]*miningtypes.ConfigHistory, len(hist))
	copy(out, hist)
	return out, nil
}

func (m *MemoryStore) HealthCheck(_ context.Context) error { return nil }
func (m *MemoryStore) Close() error                        { return nil }

var _ Store = (*MemoryStore)(nil)
