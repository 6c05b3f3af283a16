package vannoy

import (
	"context"
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/xDarkicex/vannoy/internal/reader"
	"github.com/xDarkicex/vannoy/internal/store"
)

// QueryBuilder provides a fluent interface for building nearest-neighbor
// queries
type QueryBuilder struct {
	ctx   context.Context
	index *Index

	vector []float32
	item   uint32
	byItem bool

	k            int
	searchK      int
	oversampling int
	filter       *roaring.Bitmap
	seed         int64
}

// Query returns a new query builder for this index
func (idx *Index) Query(ctx context.Context) *QueryBuilder {
	return &QueryBuilder{ctx: ctx, index: idx, k: 10}
}

// WithVector sets the query vector
func (qb *QueryBuilder) WithVector(vector []float32) *QueryBuilder {
	qb.vector = make([]float32, len(vector))
	copy(qb.vector, vector)
	qb.byItem = false
	return qb
}

// ByItem queries by an already-indexed item's vector instead of a
// caller-supplied one
func (qb *QueryBuilder) ByItem(id uint32) *QueryBuilder {
	qb.item = id
	qb.byItem = true
	return qb
}

// Limit sets how many results to return (default 10)
func (qb *QueryBuilder) Limit(k int) *QueryBuilder {
	qb.k = k
	return qb
}

// WithSearchK bounds how many leaves the probe queue visits; unset, it
// defaults to k times oversampling times the tree count
func (qb *QueryBuilder) WithSearchK(searchK int) *QueryBuilder {
	qb.searchK = searchK
	return qb
}

// WithOversampling widens the candidate pool kept before the exact
// re-rank; unset defaults to 1
func (qb *QueryBuilder) WithOversampling(n int) *QueryBuilder {
	qb.oversampling = n
	return qb
}

// WithFilterIDs restricts results to the given item ids
func (qb *QueryBuilder) WithFilterIDs(ids ...uint32) *QueryBuilder {
	if qb.filter == nil {
		qb.filter = roaring.New()
	}
	qb.filter.AddMany(ids)
	return qb
}

// WithSeed fixes the seed driving descent through degenerate splits, for
// reproducible orderings
func (qb *QueryBuilder) WithSeed(seed int64) *QueryBuilder {
	qb.seed = seed
	return qb
}

// Execute runs the query and returns the nearest neighbors, closest first
func (qb *QueryBuilder) Execute() (*SearchResult, error) {
	if err := qb.ctx.Err(); err != nil {
		return nil, err
	}
	if qb.k <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidK, qb.k)
	}
	if !qb.byItem && qb.vector == nil {
		return nil, fmt.Errorf("query requires WithVector or ByItem")
	}

	idx := qb.index
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	start := time.Now()
	defer func() {
		if idx.db.metrics != nil {
			idx.db.metrics.SearchLatency.Observe(time.Since(start).Seconds())
		}
	}()

	opts := reader.Options{
		SearchK:      qb.searchK,
		Oversampling: qb.oversampling,
		Filter:       qb.filter,
		Seed:         qb.seed,
	}

	var hits []reader.Result
	err := idx.db.env.View(func(txn *store.ReadTxn) error {
		r, err := idx.openReader(txn)
		if err != nil {
			return err
		}
		if qb.byItem {
			hits, err = r.NNSByItem(txn, qb.item, qb.k, opts)
		} else {
			hits, err = r.NNSByVector(txn, qb.vector, qb.k, opts)
		}
		return err
	})
	if err != nil {
		return nil, wrapError("query", "execute", err)
	}

	results := make([]Match, len(hits))
	for i, h := range hits {
		results[i] = Match{ID: h.ID, Distance: h.Distance}
	}
	return &SearchResult{Results: results, Took: time.Since(start)}, nil
}
