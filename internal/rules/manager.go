package rules

import (
	"context"
	"log/slog"
	"sync"
)

// Manager owns the live rule table. Many concurrent readers take snapshots
// during matching; reloads swap the table atomically under an exclusive
// lock. A failed reload keeps the previously loaded table in place.
type Manager struct {
	store  Store
	logger *slog.Logger

	mu     sync.RWMutex
	cfg    Config
	loaded bool
}

// NewManager wires a manager to its store. Call Reload once before serving.
func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		logger: logger.With(slog.String("agent", "rules")),
	}
}

// Reload fetches and swaps in a fresh configuration. The lock is held only
// for the swap, never across store I/O.
func (m *Manager) Reload(ctx context.Context) error {
	cfg, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Error("configuration reload failed, keeping current table", slog.Any("error", err))
		return err
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}

	m.mu.Lock()
	m.cfg = cfg
	m.loaded = true
	m.mu.Unlock()

	m.logger.Info("configuration loaded", slog.Int("routes", len(cfg.Routes)))
	return nil
}

// Snapshot returns the current configuration. The routes slice is shared and
// must be treated as read-only; a concurrent reload never tears a match in
// progress because it replaces the slice rather than mutating it.
func (m *Manager) Snapshot() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Loaded reports whether an initial load has succeeded.
func (m *Manager) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}
