package builder

import (
	"math"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/xDarkicex/vannoy/internal/meta"
	"github.com/xDarkicex/vannoy/internal/metric"
	"github.com/xDarkicex/vannoy/internal/store"
	"github.com/xDarkicex/vannoy/internal/treenode"
)

// Builder is the fluent configuration for one Build pass: every knob is
// optional and orthogonal, so each setter returns the Builder for
// chaining.
type Builder struct {
	w *Writer

	rng        *rand.Rand
	nTrees     int // <=0 means "choose automatically"
	splitAfter int // <=0 means "default to dimensions"
	memBudget  int64
	cancel     func() bool

	parallelism    int
	treesPerThread int
}

// Builder starts a new build configuration for w, seeded by rng. rng must
// be non-nil; the same rng seed (and the same persisted item set) always
// produces the same root ids and the same query orderings, since every
// per-tree RNG is derived deterministically from it before any goroutine
// starts.
func (w *Writer) Builder(rng *rand.Rand) *Builder {
	return &Builder{w: w, rng: rng, parallelism: runtime.NumCPU()}
}

// NTrees fixes the tree count; 0 (the default) asks Build to choose one
// from the item count and dimensionality.
func (b *Builder) NTrees(n int) *Builder { b.nTrees = n; return b }

// SplitAfter sets the descendants-vs-split threshold; 0 defaults to the
// index's dimensionality.
func (b *Builder) SplitAfter(n int) *Builder { b.splitAfter = n; return b }

// AvailableMemory bounds how many items one build pass holds resident at
// once; 0 (the default) means unbounded.
func (b *Builder) AvailableMemory(bytes int64) *Builder { b.memBudget = bytes; return b }

// Cancel installs a cooperative cancellation probe, polled between tree
// node writes. A nil Cancel (the default) disables cancellation. fn is
// shared across every build worker goroutine and must be safe to call
// concurrently.
func (b *Builder) Cancel(fn func() bool) *Builder { b.cancel = fn; return b }

// Parallelism sets the worker count building trees concurrently; <=0
// defaults to runtime.NumCPU().
func (b *Builder) Parallelism(n int) *Builder {
	if n > 0 {
		b.parallelism = n
	}
	return b
}

// NTreesPerThread batches tree indices into groups of n before handing them
// to the worker pool, trading off scheduling overhead against how evenly
// work balances when tree sizes are uneven; 0 defaults to 1.
func (b *Builder) NTreesPerThread(n int) *Builder { b.treesPerThread = n; return b }

// Build reconciles the writer's prefix against its currently persisted
// metadata and Updated markers: a no-op if nothing is dirty, otherwise a
// full forest rebuild over every currently live item. Every write goes
// into txn; a non-nil return can leave some of them (re-encoded leaves, a
// cleared tree range) pending in txn, and Env.Update discards every
// pending write when its function returns an error.
func (b *Builder) Build(txn *store.WriteTxn) error {
	w := b.w
	start := time.Now()

	existing, metaPresent, err := loadMetadata(txn, w.prefix)
	if err != nil {
		return err
	}
	if metaPresent && existing.Distance != "" && existing.Distance != w.metric.Name() {
		return &UnmatchingDistance{Expected: w.metric.Name(), Received: existing.Distance}
	}

	dirty, err := dirtyItemIDs(txn, w.prefix)
	if err != nil {
		return err
	}
	if metaPresent && len(dirty) == 0 {
		return nil // build is a no-op unless items changed
	}

	itemsBitmap, err := liveItemsBitmap(txn, w.prefix)
	if err != nil {
		return err
	}

	leaves, err := loadLeaves(txn, w.prefix, w.metric.HeaderLen(), w.metric.Codec(), w.dimensions)
	if err != nil {
		return err
	}

	// A fresh build, or a build where every live item is dirty (always true
	// right after PrepareChangingDistance), means headers on disk may have
	// been written by a different metric. Recompute every header from its
	// raw vector, and run the metric's one-shot preprocess pass, before
	// any split is computed against it.
	allLiveDirty := len(dirty) > 0 && uint64(len(dirty)) == itemsBitmap.GetCardinality()
	if !metaPresent || allLiveDirty {
		ids := sortedKeys(leaves)
		for _, id := range ids {
			leaf := leaves[id]
			leaf.Header = w.metric.Init(leaf.Vec)
			leaves[id] = leaf
		}
		if w.metric.RequiresPreprocess() {
			ordered := make([]metric.Leaf, len(ids))
			for i, id := range ids {
				ordered[i] = leaves[id]
			}
			w.metric.Preprocess(ordered)
			for i, id := range ids {
				leaves[id] = ordered[i]
			}
		}
		for _, id := range ids {
			leaf := leaves[id]
			body := treenode.EncodeLeaf(leaf.Header, w.metric.Codec().Encode(nil, leaf.Vec))
			txn.Put(treenode.ItemKey(w.prefix, id), body)
		}
	}

	allIDs := itemsBitmap.ToArray()

	target := 0
	if len(allIDs) > 0 {
		target = b.targetTreeCount(len(existing.Roots), len(allIDs))
	}
	splitAfter := b.splitAfter
	if splitAfter <= 0 {
		splitAfter = w.dimensions
	}

	itemSize := w.metric.HeaderLen() + w.metric.Codec().EncodedLen(w.dimensions)
	chunks := b.buildChunks(itemsBitmap, itemSize)

	seeds := make([]int64, target)
	for i := range seeds {
		seeds[i] = b.rng.Int63()
	}

	results, err := b.runWorkers(target, seeds, chunks, leaves, splitAfter)
	if err != nil {
		if _, ok := err.(*BuildCancelled); ok && w.metrics != nil {
			w.metrics.BuildCancelled.Inc()
		} else if w.metrics != nil {
			w.metrics.BuildFailures.Inc()
		}
		return err
	}

	txn.DeleteRange(treenode.ModeLowerBound(w.prefix, treenode.ModeTree), treenode.ModeUpperBound(w.prefix, treenode.ModeTree))

	// Workers number their nodes locally from zero; final ids are assigned
	// here in tree-index order, so identical seeds over identical item
	// sets persist identical node and root ids no matter how goroutines
	// were scheduled.
	rootIDs := make([]uint32, len(results))
	var next uint32
	for i, r := range results {
		base := next
		if uint64(base)+uint64(len(r.records)) > math.MaxUint32 {
			return &DatabaseFull{Prefix: w.prefix}
		}
		for _, rec := range r.records {
			txn.Put(treenode.TreeKey(w.prefix, base+rec.ID), treenode.OffsetSplitChildren(rec.Body, base))
		}
		rootIDs[i] = base + r.rootID
		next = base + uint32(len(r.records))
	}

	encoded, err := meta.Encode(meta.Metadata{
		Dimensions: uint32(w.dimensions),
		Distance:   w.metric.Name(),
		Roots:      rootIDs,
		Items:      itemsBitmap,
	})
	if err != nil {
		return err
	}
	txn.Put(treenode.MetadataKey(w.prefix), encoded)
	txn.Put(treenode.VersionKey(w.prefix), meta.EncodeVersion(meta.Current))

	txn.DeleteRange(treenode.ModeLowerBound(w.prefix, treenode.ModeUpdated), treenode.ModeUpperBound(w.prefix, treenode.ModeUpdated))

	if w.metrics != nil {
		w.metrics.BuildsTotal.Inc()
		w.metrics.BuildDuration.Observe(time.Since(start).Seconds())
		w.metrics.BuildTreesCount.Set(float64(len(rootIDs)))
		w.metrics.IndexedItems.Set(float64(itemsBitmap.GetCardinality()))
	}
	return nil
}

func loadMetadata(txn *store.WriteTxn, prefix uint16) (meta.Metadata, bool, error) {
	b, ok := txn.Get(treenode.MetadataKey(prefix))
	if !ok {
		return meta.Metadata{}, false, nil
	}
	m, err := meta.Decode(b)
	if err != nil {
		return meta.Metadata{}, false, err
	}
	return m, true, nil
}

// targetTreeCount picks roughly min(dimensions, 2·log2(N)) trees, capped,
// with a shrink guard: an automatically chosen tree count never shrinks
// below the existing root count unless the existing count is at least 20%
// above the freshly computed target.
func (b *Builder) targetTreeCount(existingRoots, n int) int {
	if b.nTrees > 0 {
		return b.nTrees
	}

	target := int(math.Ceil(2 * math.Log2(float64(n+1))))
	if target < 1 {
		target = 1
	}
	if target > b.w.dimensions {
		target = b.w.dimensions
	}
	const hardCap = 1000
	if target > hardCap {
		target = hardCap
	}

	if existingRoots > 0 && existingRoots > target && float64(existingRoots) < float64(target)*1.2 {
		target = existingRoots
	}
	return target
}

// buildChunks partitions the live item set into one or more id slices no
// larger than the configured memory budget allows. With no budget
// configured, every tree is built over the complete item set.
func (b *Builder) buildChunks(items *roaring.Bitmap, itemSize int) [][]uint32 {
	if b.memBudget <= 0 {
		return [][]uint32{items.ToArray()}
	}
	remaining := items.Clone()
	var chunks [][]uint32
	for remaining.GetCardinality() > 0 {
		chunk := fitInMemory(b.memBudget, remaining, itemSize, b.w.dimensions, b.rng)
		if chunk.GetCardinality() == 0 {
			break
		}
		chunks = append(chunks, chunk.ToArray())
	}
	if len(chunks) == 0 {
		chunks = [][]uint32{nil}
	}
	return chunks
}

type workerResult struct {
	index   int
	rootID  uint32
	records []spillRecord
	err     error
}

// runWorkers builds `target` trees across a pool of up to b.parallelism
// goroutines. Tree indices are assigned chunks round-robin, every tree
// numbers its nodes locally from zero, and every worker's spill is merged
// back in tree-index order once all trees have finished, so the result is
// independent of goroutine scheduling given the same seeds and the same
// chunk assignment. Workers never see txn at all, only the in-memory
// leaves map and their own spill file, so the write transaction is never
// shared across goroutines.
func (b *Builder) runWorkers(target int, seeds []int64, chunks [][]uint32, leaves map[uint32]metric.Leaf, splitAfter int) ([]workerResult, error) {
	if target == 0 {
		return nil, nil
	}

	jobs := make(chan int)
	results := make([]workerResult, target)

	var wg sync.WaitGroup
	workers := b.parallelism
	if workers <= 0 {
		workers = 1
	}
	if workers > target {
		workers = target
	}

	per := b.treesPerThread
	if per <= 0 {
		per = 1
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for start := range jobs {
				for idx := start; idx < start+per && idx < target; idx++ {
					results[idx] = b.buildOneTree(idx, seeds[idx], chunks[idx%len(chunks)], leaves, splitAfter)
				}
			}
		}()
	}

	for i := 0; i < target; i += per {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
	}
	return results, nil
}

func (b *Builder) buildOneTree(index int, seed int64, indices []uint32, leaves map[uint32]metric.Leaf, splitAfter int) workerResult {
	sw, err := newSpillWriter()
	if err != nil {
		return workerResult{index: index, err: err}
	}

	tb := &treeBuilder{
		metric:     b.w.metric,
		rng:        rand.New(rand.NewSource(seed)),
		leaves:     leaves,
		splitAfter: splitAfter,
		spill:      sw,
		ids:        newIDSource(0, nil),
		cancel:     b.cancel,
	}

	rootID, buildErr := tb.makeTree(indices)
	if buildErr != nil {
		sw.Discard()
		return workerResult{index: index, err: buildErr}
	}

	path, closeErr := sw.Close()
	if closeErr != nil {
		return workerResult{index: index, err: closeErr}
	}
	records, readErr := readSpill(path)
	if readErr != nil {
		return workerResult{index: index, err: readErr}
	}
	return workerResult{index: index, rootID: rootID, records: records}
}

func sortedKeys(m map[uint32]metric.Leaf) []uint32 {
	ids := make([]uint32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
