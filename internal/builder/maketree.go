package builder

import (
	"math/rand"

	"github.com/xDarkicex/vannoy/internal/metric"
	"github.com/xDarkicex/vannoy/internal/treenode"
)

const (
	rebalanceRetryImbalance = 0.95
	rebalanceGiveUpAt       = 0.99
	rebalanceMaxRetries     = 3
)

// treeBuilder holds the state one make_tree recursion needs, shared by
// every call in a single tree's construction.
type treeBuilder struct {
	metric     metric.Metric
	rng        *rand.Rand
	leaves     map[uint32]metric.Leaf
	splitAfter int
	spill      *spillWriter
	ids        *idSource
	cancel     func() bool
}

// makeTree emits a descendants node for small enough leaf sets,
// otherwise splits via the metric's CreateSplit, rebalances if needed,
// and recurses. It returns the id of the node it
// wrote to the calling goroutine's spill file.
func (b *treeBuilder) makeTree(indices []uint32) (uint32, error) {
	if b.cancel != nil && b.cancel() {
		return 0, &BuildCancelled{}
	}

	if len(indices) <= b.splitAfter {
		return b.emitDescendants(indices)
	}

	split, left, right := b.createBalancedSplit(indices)

	var leftID, rightID uint32
	var err error
	// Recurse into the smaller side first for cache locality, though
	// correctness does not depend on the order.
	if len(left) <= len(right) {
		if leftID, err = b.makeTree(left); err != nil {
			return 0, err
		}
		if rightID, err = b.makeTree(right); err != nil {
			return 0, err
		}
	} else {
		if rightID, err = b.makeTree(right); err != nil {
			return 0, err
		}
		if leftID, err = b.makeTree(left); err != nil {
			return 0, err
		}
	}

	id := b.ids.Next()
	body := treenode.EncodeSplit(split.Header, b.encodeNormal(split), leftID, rightID)
	if err := b.spill.Write(id, body); err != nil {
		return 0, err
	}
	return id, nil
}

func (b *treeBuilder) emitDescendants(indices []uint32) (uint32, error) {
	id := b.ids.Next()
	if err := b.spill.Write(id, treenode.EncodeDescendants(indices)); err != nil {
		return 0, err
	}
	return id, nil
}

// createBalancedSplit runs the metric's CreateSplit, retrying up to
// rebalanceMaxRetries times when one side ends up holding
// rebalanceRetryImbalance or more of the items; if every retry still
// lands at rebalanceGiveUpAt or worse it gives up on the normal entirely
// and partitions uniformly at random.
func (b *treeBuilder) createBalancedSplit(indices []uint32) (metric.Leaf, []uint32, []uint32) {
	children := make([]metric.Leaf, len(indices))
	for i, id := range indices {
		children[i] = b.leaves[id]
	}

	var split metric.Leaf
	var left, right []uint32
	for attempt := 0; attempt <= rebalanceMaxRetries; attempt++ {
		split = b.metric.CreateSplit(b.rng, children)
		if isDegenerate(split) {
			left, right = randomPartition(b.rng, indices)
			return metric.Leaf{}, left, right
		}
		left, right = partition(b.metric, split, indices, b.leaves)
		if !imbalanced(len(left), len(right), rebalanceRetryImbalance) {
			return split, left, right
		}
		if attempt == rebalanceMaxRetries && imbalanced(len(left), len(right), rebalanceGiveUpAt) {
			left, right = randomPartition(b.rng, indices)
			return metric.Leaf{}, left, right
		}
	}
	return split, left, right
}

func partition(m metric.Metric, split metric.Leaf, indices []uint32, leaves map[uint32]metric.Leaf) (left, right []uint32) {
	for _, id := range indices {
		leaf := leaves[id]
		if m.Side(split.Header, split.Vec, leaf.Header, leaf.Vec) == metric.SideLeft {
			left = append(left, id)
		} else {
			right = append(right, id)
		}
	}
	return left, right
}

func imbalanced(left, right int, threshold float64) bool {
	total := left + right
	if total == 0 {
		return false
	}
	bigger := left
	if right > bigger {
		bigger = right
	}
	return float64(bigger)/float64(total) >= threshold
}

// randomPartition assigns every index to a side by coin flip, retrying
// until both sides are non-empty (guaranteed to terminate almost surely
// whenever len(indices) >= 2, the only case this is ever called from).
func randomPartition(rng *rand.Rand, indices []uint32) (left, right []uint32) {
	if len(indices) < 2 {
		return indices, nil
	}
	for {
		left, right = nil, nil
		for _, id := range indices {
			if rng.Intn(2) == 0 {
				left = append(left, id)
			} else {
				right = append(right, id)
			}
		}
		if len(left) > 0 && len(right) > 0 {
			return left, right
		}
	}
}

// isDegenerate reports whether CreateSplit produced the zero normal, the
// "absent" split: at query time it contributes no margin and children
// are assigned randomly.
func isDegenerate(split metric.Leaf) bool {
	if len(split.Vec) == 0 {
		return true
	}
	for _, x := range split.Vec {
		if x != 0 {
			return false
		}
	}
	return true
}

// encodeNormal returns the on-disk normal bytes for a split leaf, or nil
// for a degenerate split (metric.Leaf{} has no Header/Vec to encode). It
// uses the metric's own codec so a binary-quantized normal is packed the
// same way a binary-quantized item vector is.
func (b *treeBuilder) encodeNormal(split metric.Leaf) []byte {
	if len(split.Vec) == 0 {
		return nil
	}
	return b.metric.Codec().Encode(nil, split.Vec)
}
