// Package reader implements the read side of one index: multi-probe
// best-first search across the tree forest a builder produced, exact
// re-ranking, and validity/statistics reporting.
package reader

import (
	"github.com/xDarkicex/vannoy/internal/meta"
	"github.com/xDarkicex/vannoy/internal/metric"
	"github.com/xDarkicex/vannoy/internal/obs"
	"github.com/xDarkicex/vannoy/internal/store"
	"github.com/xDarkicex/vannoy/internal/treenode"
)

// Reader is the query side of one index: a fixed prefix, dimensionality
// and distance metric, bound once against a store.ReadTxn's persisted
// metadata and reused across many reads.
type Reader struct {
	prefix     uint16
	dimensions int
	metric     metric.Metric
	roots      []uint32
	metrics    *obs.Metrics
}

// New binds a Reader to prefix, verifying that persisted metadata's
// dimensionality and distance name agree with dimensions and m.
func New(txn *store.ReadTxn, prefix uint16, dimensions int, m metric.Metric) (*Reader, error) {
	b, ok := txn.Get(treenode.MetadataKey(prefix))
	if !ok {
		return nil, &MissingMetadata{Prefix: prefix}
	}
	md, err := meta.Decode(b)
	if err != nil {
		return nil, err
	}
	if md.Distance != m.Name() {
		return nil, &UnmatchingDistance{Expected: m.Name(), Received: md.Distance}
	}
	if int(md.Dimensions) != dimensions {
		return nil, &InvalidVecDimension{Expected: dimensions, Received: int(md.Dimensions)}
	}
	return &Reader{prefix: prefix, dimensions: dimensions, metric: m, roots: md.Roots}, nil
}

// WithMetrics attaches a Prometheus collaborator; nil (the default)
// disables instrumentation entirely.
func (r *Reader) WithMetrics(m *obs.Metrics) *Reader {
	r.metrics = m
	return r
}

// ItemVector returns id's decoded vector.
func (r *Reader) ItemVector(txn *store.ReadTxn, id uint32) ([]float32, error) {
	leaf, err := r.loadLeaf(txn, id)
	if err != nil {
		return nil, err
	}
	return leaf.Vec, nil
}

// DistanceByItems reports the normalized distance between two stored
// items.
func (r *Reader) DistanceByItems(txn *store.ReadTxn, a, b uint32) (float32, error) {
	la, err := r.loadLeaf(txn, a)
	if err != nil {
		return 0, err
	}
	lb, err := r.loadLeaf(txn, b)
	if err != nil {
		return 0, err
	}
	d := r.metric.BuiltDistance(la.Header, la.Vec, lb.Header, lb.Vec)
	return r.metric.NormalizedDistance(d, r.dimensions), nil
}

// leaf is the decoded form of one stored item record.
type leaf struct {
	Header []byte
	Vec    []float32
}

func (r *Reader) loadLeaf(txn *store.ReadTxn, id uint32) (leaf, error) {
	b, ok := txn.Get(treenode.ItemKey(r.prefix, id))
	if !ok {
		return leaf{}, &MissingKey{Prefix: r.prefix, Mode: treenode.ModeItem.String(), Item: id}
	}
	tl, err := treenode.DecodeLeaf(b, r.metric.HeaderLen())
	if err != nil {
		return leaf{}, err
	}
	return leaf{Header: tl.Header, Vec: r.metric.Codec().Iter(tl.Vector, r.dimensions)}, nil
}

func (r *Reader) loadTreeNode(txn *store.ReadTxn, id uint32) (treenode.TreeNode, error) {
	b, ok := txn.Get(treenode.TreeKey(r.prefix, id))
	if !ok {
		return treenode.TreeNode{}, &MissingKey{Prefix: r.prefix, Mode: treenode.ModeTree.String(), Item: id}
	}
	return treenode.DecodeTreeNode(b, r.metric.HeaderLen())
}
