// Package vannoy provides an approximate nearest-neighbor vector index
// persisted on a transactional, memory-mapped key-value store. Vectors
// are indexed by a forest of randomized space-partitioning binary trees
// (an Annoy variant); many independent indexes coexist in one database,
// distinguished by a 16-bit prefix.
package vannoy

import (
	"fmt"
	"sync"

	"github.com/xDarkicex/vannoy/internal/obs"
	"github.com/xDarkicex/vannoy/internal/store"
)

// Database represents the shared environment every Index binds to
type Database struct {
	mu      sync.RWMutex
	env     *store.Env
	indexes map[uint16]*Index
	metrics *obs.Metrics
	config  *Config
	closed  bool
}

// Config holds database-wide configuration
type Config struct {
	Path           string
	MetricsEnabled bool
	MaxIndexes     int
}

// New creates a new Database instance with the given options
func New(opts ...Option) (*Database, error) {
	config := &Config{
		Path:           "",
		MetricsEnabled: true,
		MaxIndexes:     256,
	}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	env, err := store.Open(config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage environment: %w", err)
	}

	var metrics *obs.Metrics
	if config.MetricsEnabled {
		metrics = obs.NewMetrics()
	}

	return &Database{
		env:     env,
		indexes: make(map[uint16]*Index),
		metrics: metrics,
		config:  config,
	}, nil
}

// Index returns the handle for the index stored under prefix, creating a
// new handle on first use. The same prefix always returns the same
// handle; options are applied only the first time.
func (db *Database) Index(prefix uint16, opts ...IndexOption) (*Index, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil, ErrDatabaseClosed
	}

	if idx, exists := db.indexes[prefix]; exists {
		return idx, nil
	}

	if len(db.indexes) >= db.config.MaxIndexes {
		return nil, ErrTooManyIndexes
	}

	idx, err := newIndex(db, prefix, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open index %d: %w", prefix, err)
	}

	db.indexes[prefix] = idx
	return idx, nil
}

// ListIndexes returns the prefixes of every index handle currently open
func (db *Database) ListIndexes() []uint16 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	prefixes := make([]uint16, 0, len(db.indexes))
	for p := range db.indexes {
		prefixes = append(prefixes, p)
	}
	return prefixes
}

// Metrics returns the database's Prometheus collaborator, or nil when
// metrics are disabled. Callers expose Metrics.Registry however they
// serve the rest of their telemetry.
func (db *Database) Metrics() *obs.Metrics {
	return db.metrics
}

// Close flushes the environment and invalidates every index handle
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true
	db.indexes = make(map[uint16]*Index)

	if err := db.env.Close(); err != nil {
		return fmt.Errorf("failed to close storage environment: %w", err)
	}
	return nil
}
