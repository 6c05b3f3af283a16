package vannoy

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/xDarkicex/vannoy/internal/builder"
	"github.com/xDarkicex/vannoy/internal/metric"
	"github.com/xDarkicex/vannoy/internal/reader"
	"github.com/xDarkicex/vannoy/internal/store"
	"github.com/xDarkicex/vannoy/internal/upgrade"
)

// IndexConfig holds per-index configuration
type IndexConfig struct {
	Dimensions int
	Distance   string
}

// Index is the handle for one logical vector index: a fixed prefix,
// dimensionality and distance metric over the database's shared
// environment. Handles are safe for concurrent use; writes serialize on
// the environment's single write transaction.
type Index struct {
	db     *Database
	prefix uint16
	config IndexConfig

	mu     sync.RWMutex // guards metric/writer across ChangeDistance
	metric metric.Metric
	writer *builder.Writer
}

func newIndex(db *Database, prefix uint16, opts ...IndexOption) (*Index, error) {
	config := &IndexConfig{Distance: "angular"}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if config.Dimensions <= 0 {
		return nil, fmt.Errorf("index requires WithDimensions")
	}

	m, err := metric.Lookup(config.Distance)
	if err != nil {
		return nil, err
	}

	// Refuse to touch an index persisted by a newer schema than this
	// build understands.
	if err := db.env.View(func(txn *store.ReadTxn) error {
		_, err := upgrade.CheckVersion(txn, prefix)
		return err
	}); err != nil {
		return nil, wrapError("index", "open", err)
	}

	w := builder.New(prefix, config.Dimensions, m)
	if db.metrics != nil {
		w.WithMetrics(db.metrics)
	}
	return &Index{db: db, prefix: prefix, config: *config, metric: m, writer: w}, nil
}

// Prefix returns the index's 16-bit namespace tag.
func (idx *Index) Prefix() uint16 { return idx.prefix }

// Dimensions returns the index's configured vector dimensionality.
func (idx *Index) Dimensions() int { return idx.config.Dimensions }

// Distance returns the name of the index's configured distance metric.
func (idx *Index) Distance() string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.metric.Name()
}

// Insert adds or overwrites one item's vector. The change is invisible to
// searches until the next Build.
func (idx *Index) Insert(ctx context.Context, id uint32, vector []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return wrapError("index", "insert", idx.db.env.Update(func(txn *store.WriteTxn) error {
		return idx.writer.AddItem(txn, id, vector)
	}))
}

// Append adds one item whose id must exceed every id already present in
// this index, which must also be the highest populated prefix. It writes
// the same records as Insert, after scanning the existing item ids to
// check the ordering.
func (idx *Index) Append(ctx context.Context, id uint32, vector []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return wrapError("index", "append", idx.db.env.Update(func(txn *store.WriteTxn) error {
		return idx.writer.AppendItem(txn, id, vector)
	}))
}

// Delete removes one item, reporting whether it existed. The removal is
// invisible to searches until the next Build.
func (idx *Index) Delete(ctx context.Context, id uint32) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var existed bool
	err := idx.db.env.Update(func(txn *store.WriteTxn) error {
		existed = idx.writer.DelItem(txn, id)
		return nil
	})
	return existed, wrapError("index", "delete", err)
}

// Clear drops every record belonging to this index: items, trees,
// metadata and pending markers alike.
func (idx *Index) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return wrapError("index", "clear", idx.db.env.Update(func(txn *store.WriteTxn) error {
		idx.writer.Clear(txn)
		return nil
	}))
}

// NeedBuild reports whether the index has pending changes (or has never
// been built) so that searches would be refused.
func (idx *Index) NeedBuild(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var need bool
	err := idx.db.env.View(func(txn *store.ReadTxn) error {
		var err error
		need, err = idx.writer.NeedBuild(txn)
		return err
	})
	return need, wrapError("index", "need_build", err)
}

// Build reconciles pending inserts and deletes into the tree forest. A
// no-op when nothing changed since the last build. Cancelling ctx aborts
// the build cooperatively and leaves the store unchanged.
func (idx *Index) Build(ctx context.Context, opts ...BuildOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg := buildConfig{parallelism: 0}
	for _, opt := range opts {
		opt(&cfg)
	}

	seed := time.Now().UnixNano()
	if cfg.seed != nil {
		seed = *cfg.seed
	}

	probe := func() bool { return ctx.Err() != nil }
	if cfg.cancel != nil {
		user := cfg.cancel
		probe = func() bool { return ctx.Err() != nil || user() }
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	b := idx.writer.Builder(rand.New(rand.NewSource(seed))).
		NTrees(cfg.nTrees).
		SplitAfter(cfg.splitAfter).
		AvailableMemory(cfg.memBudget).
		Parallelism(cfg.parallelism).
		Cancel(probe)

	return wrapError("index", "build", idx.db.env.Update(b.Build))
}

// ChangeDistance invalidates the index ahead of rebuilding it under a
// different metric: existing trees are dropped, every live item is marked
// dirty, and this handle is rebound to the new metric. The next Build
// regenerates the forest.
func (idx *Index) ChangeDistance(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := metric.Lookup(name)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	w := builder.New(idx.prefix, idx.config.Dimensions, m)
	if idx.db.metrics != nil {
		w.WithMetrics(idx.db.metrics)
	}
	if err := idx.db.env.Update(w.PrepareChangingDistance); err != nil {
		return wrapError("index", "change_distance", err)
	}

	idx.metric = m
	idx.writer = w
	idx.config.Distance = name
	return nil
}

// Migrate rewrites any records persisted under an older on-disk schema
// into the current one. A no-op when the index is already current.
func (idx *Index) Migrate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return wrapError("index", "migrate", idx.db.env.Update(func(txn *store.WriteTxn) error {
		return upgrade.FromPrevToCurrent(&txn.ReadTxn, txn, idx.prefix, idx.metric)
	}))
}

// Vector returns one stored item's decoded vector.
func (idx *Index) Vector(ctx context.Context, id uint32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var vec []float32
	err := idx.db.env.View(func(txn *store.ReadTxn) error {
		r, err := idx.openReader(txn)
		if err != nil {
			return err
		}
		vec, err = r.ItemVector(txn, id)
		return err
	})
	return vec, wrapError("index", "vector", err)
}

// DistanceBetween reports the normalized distance between two stored items.
func (idx *Index) DistanceBetween(ctx context.Context, a, b uint32) (float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var d float32
	err := idx.db.env.View(func(txn *store.ReadTxn) error {
		r, err := idx.openReader(txn)
		if err != nil {
			return err
		}
		d, err = r.DistanceByItems(txn, a, b)
		return err
	})
	return d, wrapError("index", "distance_between", err)
}

// Stats walks every tree in the forest and reports its shape.
func (idx *Index) Stats(ctx context.Context) (*IndexStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var stats reader.Stats
	err := idx.db.env.View(func(txn *store.ReadTxn) error {
		r, err := idx.openReader(txn)
		if err != nil {
			return err
		}
		stats, err = r.Stats(txn)
		return err
	})
	if err != nil {
		return nil, wrapError("index", "stats", err)
	}
	return &IndexStats{
		Trees:            stats.Trees,
		MaxDepth:         stats.MaxDepth,
		SplitPlaneNodes:  stats.SplitPlaneNodes,
		DegenerateSplits: stats.DegenerateSplits,
		DescendantsNodes: stats.DescendantsNodes,
		DescendantItems:  stats.DescendantItems,
	}, nil
}

// CheckIntegrity verifies the persisted forest's structural invariants:
// every root resolves, every split's children exist, and every referenced
// item is live.
func (idx *Index) CheckIntegrity(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return wrapError("index", "check_integrity", idx.db.env.View(func(txn *store.ReadTxn) error {
		r, err := idx.openReader(txn)
		if err != nil {
			return err
		}
		return r.AssertValidity(txn)
	}))
}

// openReader binds a reader against the current snapshot, refusing when a
// build is pending: searching through stale trees would silently return
// results that ignore recent inserts and deletes.
func (idx *Index) openReader(txn *store.ReadTxn) (*reader.Reader, error) {
	r, err := reader.New(txn, idx.prefix, idx.config.Dimensions, idx.metric)
	if err != nil {
		return nil, err
	}
	dirty, err := idx.writer.NeedBuild(txn)
	if err != nil {
		return nil, err
	}
	if dirty {
		return nil, &builder.NeedBuild{Prefix: idx.prefix}
	}
	if idx.db.metrics != nil {
		r.WithMetrics(idx.db.metrics)
	}
	return r, nil
}
