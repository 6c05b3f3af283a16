package reader

import (
	"math/rand"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/xDarkicex/vannoy/internal/store"
	"github.com/xDarkicex/vannoy/internal/treenode"
	"github.com/xDarkicex/vannoy/internal/util"
)

// Result is one scored nearest-neighbor hit.
type Result struct {
	ID       uint32
	Distance float32
}

// Options configures one NNSByItem/NNSByVector call. The zero value is
// valid: SearchK and Oversampling are both computed/defaulted by resolve.
type Options struct {
	// SearchK bounds how many leaves the probe queue visits before search
	// stops widening. <=0 defaults to k * Oversampling * tree count.
	SearchK int

	// Oversampling multiplies the candidate pool kept before the final
	// exact re-rank and truncation to k. <=0 defaults to 1.
	Oversampling int

	// Filter, if non-nil, restricts results to ids it contains.
	Filter *roaring.Bitmap

	// Seed drives the random margin assigned to degenerate (normal-less)
	// split planes during descent. Identical seeds against identical
	// persisted state produce identical orderings; the zero value is a
	// valid, fully deterministic seed like any other.
	Seed int64
}

func (o Options) resolve(k, treeCount int) (searchK, oversampling int) {
	oversampling = o.Oversampling
	if oversampling <= 0 {
		oversampling = 1
	}
	searchK = o.SearchK
	if searchK <= 0 {
		searchK = k * oversampling * treeCount
		if searchK <= 0 {
			searchK = k
		}
	}
	return searchK, oversampling
}

// NNSByItem searches for the k nearest neighbors of an already-indexed
// item. The item itself appears among the results: its distance to the
// query is computed like any other candidate's once its own subtree is
// visited.
func (r *Reader) NNSByItem(txn *store.ReadTxn, id uint32, k int, opts Options) ([]Result, error) {
	l, err := r.loadLeaf(txn, id)
	if err != nil {
		return nil, err
	}
	return r.search(txn, l.Header, l.Vec, k, opts)
}

// NNSByVector searches for the k nearest neighbors of an arbitrary query
// vector not necessarily stored in the index.
func (r *Reader) NNSByVector(txn *store.ReadTxn, v []float32, k int, opts Options) ([]Result, error) {
	if len(v) != r.dimensions {
		return nil, &InvalidVecDimension{Expected: r.dimensions, Received: len(v)}
	}
	header := r.metric.Init(v)
	return r.search(txn, header, v, k, opts)
}

// search is the multi-probe best-first walk over the forest: seed
// a max-heap with every root at +Inf priority, repeatedly pop the highest
// priority node, fan descendants into the candidate set and split planes
// into their two children at min(parent, ±margin) priority, until the
// candidate set reaches searchK or the heap empties. Candidates are then
// deduplicated, optionally filtered, scored by the metric's exact
// built_distance, and truncated to k with ties broken by item id.
func (r *Reader) search(txn *store.ReadTxn, qHeader []byte, q []float32, k int, opts Options) ([]Result, error) {
	if r.metrics != nil {
		r.metrics.SearchQueries.Inc()
	}

	searchK, _ := opts.resolve(k, len(r.roots))

	const posInf = float32(1e30)
	queue := util.NewMaxHeap(len(r.roots) * 2)
	for _, root := range r.roots {
		queue.PushCandidate(&util.Candidate{ID: root, Distance: posInf})
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	seen := make(map[uint32]bool)
	var candidates []uint32

	for queue.Len() > 0 && len(candidates) < searchK {
		top := queue.PopCandidate()
		node, err := r.loadTreeNode(txn, top.ID)
		if err != nil {
			if r.metrics != nil {
				r.metrics.SearchErrors.Inc()
			}
			return nil, err
		}

		switch node.Kind {
		case treenode.KindDescendants:
			for _, item := range node.Descendants {
				if !seen[item] {
					seen[item] = true
					candidates = append(candidates, item)
				}
			}
		case treenode.KindSplit:
			margin := r.splitMargin(node.Split, qHeader, q, rng)
			priority := top.Distance
			left := priority
			right := priority
			if -margin < left {
				left = -margin
			}
			if margin < right {
				right = margin
			}
			queue.PushCandidate(&util.Candidate{ID: node.Split.Left, Distance: left})
			queue.PushCandidate(&util.Candidate{ID: node.Split.Right, Distance: right})
		}
	}

	if opts.Filter != nil {
		filtered := candidates[:0]
		for _, id := range candidates {
			if opts.Filter.Contains(id) {
				filtered = append(filtered, id)
			}
		}
		candidates = filtered
	}

	scored := make([]Result, 0, len(candidates))
	for _, id := range candidates {
		l, err := r.loadLeaf(txn, id)
		if err != nil {
			if r.metrics != nil {
				r.metrics.SearchErrors.Inc()
			}
			return nil, err
		}
		d := r.metric.BuiltDistance(qHeader, q, l.Header, l.Vec)
		scored = append(scored, Result{ID: id, Distance: d})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Distance != scored[j].Distance {
			return scored[i].Distance < scored[j].Distance
		}
		return scored[i].ID < scored[j].ID
	})

	if k >= 0 && k < len(scored) {
		scored = scored[:k]
	}

	for i := range scored {
		scored[i].Distance = r.metric.NormalizedDistance(scored[i].Distance, r.dimensions)
	}
	return scored, nil
}

// splitMargin returns the signed margin of q against a split plane. A
// degenerate (normal-less) split returns a small random value so children
// are assigned randomly at query time.
func (r *Reader) splitMargin(s treenode.SplitPlane, qHeader []byte, q []float32, rng *rand.Rand) float32 {
	if len(s.Normal) == 0 {
		return (rng.Float32()*2 - 1) * 1e-6
	}
	normal := r.metric.Codec().Iter(s.Normal, r.dimensions)
	return r.metric.Margin(s.Header, normal, qHeader, q)
}
