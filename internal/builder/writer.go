package builder

import (
	"github.com/xDarkicex/vannoy/internal/meta"
	"github.com/xDarkicex/vannoy/internal/metric"
	"github.com/xDarkicex/vannoy/internal/obs"
	"github.com/xDarkicex/vannoy/internal/store"
	"github.com/xDarkicex/vannoy/internal/treenode"
)

// Writer is the mutation side of one index: a fixed prefix, dimensionality,
// and distance metric, bound to a shared environment. All of AddItem,
// AppendItem, DelItem, Clear and PrepareChangingDistance run inside a
// caller-supplied store.WriteTxn so they compose with the caller's own
// transaction boundaries.
type Writer struct {
	prefix     uint16
	dimensions int
	metric     metric.Metric
	metrics    *obs.Metrics
}

// New binds a Writer to prefix, vectors of the given dimensionality, and m.
func New(prefix uint16, dimensions int, m metric.Metric) *Writer {
	return &Writer{prefix: prefix, dimensions: dimensions, metric: m}
}

// WithMetrics attaches a Prometheus collaborator; nil (the default) disables
// instrumentation entirely.
func (w *Writer) WithMetrics(m *obs.Metrics) *Writer {
	w.metrics = m
	return w
}

// AddItem inserts or overwrites item id's vector, marking it dirty for the
// next Build.
func (w *Writer) AddItem(txn *store.WriteTxn, id uint32, vec []float32) error {
	if len(vec) != w.dimensions {
		return &InvalidVecDimension{Expected: w.dimensions, Received: len(vec)}
	}
	w.putItem(txn, id, vec)
	if w.metrics != nil {
		w.metrics.VectorInserts.Inc()
	}
	return nil
}

// AppendItem inserts id, which must be strictly greater than every item id
// already present under this writer's prefix; it also fails while any
// higher-numbered prefix in the shared environment holds items. Past
// those checks it writes exactly what AddItem writes.
func (w *Writer) AppendItem(txn *store.WriteTxn, id uint32, vec []float32) error {
	if len(vec) != w.dimensions {
		return &InvalidVecDimension{Expected: w.dimensions, Received: len(vec)}
	}

	higherPrefixHasItems, err := higherPrefixHasItems(txn, w.prefix)
	if err != nil {
		return err
	}
	if higherPrefixHasItems {
		return &InvalidItemAppend{Reason: "a higher-numbered prefix already holds items"}
	}

	maxExisting, ok, err := maxItemID(txn, w.prefix)
	if err != nil {
		return err
	}
	if ok && id <= maxExisting {
		return &InvalidItemAppend{Reason: "id must be greater than every existing item id"}
	}

	w.putItem(txn, id, vec)
	if w.metrics != nil {
		w.metrics.VectorInserts.Inc()
	}
	return nil
}

func (w *Writer) putItem(txn *store.WriteTxn, id uint32, vec []float32) {
	header := w.metric.NewHeader(vec)
	body := treenode.EncodeLeaf(header, w.metric.Codec().Encode(nil, vec))
	txn.Put(treenode.ItemKey(w.prefix, id), body)
	txn.Put(treenode.UpdatedKey(w.prefix, id), []byte{})
}

// DelItem removes id's vector, if present, marking it dirty for the next
// Build. It reports whether id existed.
func (w *Writer) DelItem(txn *store.WriteTxn, id uint32) bool {
	existed := txn.Delete(treenode.ItemKey(w.prefix, id))
	if existed {
		txn.Put(treenode.UpdatedKey(w.prefix, id), []byte{})
		if w.metrics != nil {
			w.metrics.VectorDeletes.Inc()
		}
	}
	return existed
}

// Clear drops every record under this writer's prefix: items, tree nodes,
// metadata, version and Updated markers alike.
func (w *Writer) Clear(txn *store.WriteTxn) {
	txn.DeleteRange(treenode.PrefixLowerBound(w.prefix), treenode.PrefixUpperBound(w.prefix))
}

// PrepareChangingDistance invalidates the index ahead of binding a Writer
// configured with a different metric to the same prefix: it drops every
// existing tree node, rewrites metadata to name this writer's metric with
// an empty root list, and marks every live item dirty so the next Build
// reprocesses all of them under the new distance.
func (w *Writer) PrepareChangingDistance(txn *store.WriteTxn) error {
	// Re-encode every stored leaf under the new metric's header and codec
	// before anything else: header layouts and vector packings differ
	// between metrics, so old-format leaves left behind would be misread
	// by the next Build.
	if mdBytes, ok := txn.Get(treenode.MetadataKey(w.prefix)); ok {
		md, err := meta.Decode(mdBytes)
		if err != nil {
			return err
		}
		if md.Distance != "" && md.Distance != w.metric.Name() {
			old, err := metric.Lookup(md.Distance)
			if err != nil {
				return err
			}
			dims := int(md.Dimensions)
			c := txn.PrefixCursor(treenode.ModeLowerBound(w.prefix, treenode.ModeItem), treenode.ModeUpperBound(w.prefix, treenode.ModeItem))
			for c.Next() {
				k, err := treenode.Decode(c.Key())
				if err != nil {
					return err
				}
				leaf, err := treenode.DecodeLeaf(c.Value(), old.HeaderLen())
				if err != nil {
					return err
				}
				vec := old.Codec().Iter(leaf.Vector, dims)
				body := treenode.EncodeLeaf(w.metric.NewHeader(vec), w.metric.Codec().Encode(nil, vec))
				txn.Put(treenode.ItemKey(w.prefix, k.Item), body)
			}
		}
	}

	txn.DeleteRange(treenode.ModeLowerBound(w.prefix, treenode.ModeTree), treenode.ModeUpperBound(w.prefix, treenode.ModeTree))

	items, err := w.liveItemIDs(txn)
	if err != nil {
		return err
	}
	for _, id := range items {
		txn.Put(treenode.UpdatedKey(w.prefix, id), []byte{})
	}

	bitmap, err := liveItemsBitmap(txn, w.prefix)
	if err != nil {
		return err
	}
	encoded, err := meta.Encode(meta.Metadata{
		Dimensions: uint32(w.dimensions),
		Distance:   w.metric.Name(),
		Roots:      nil,
		Items:      bitmap,
	})
	if err != nil {
		return err
	}
	txn.Put(treenode.MetadataKey(w.prefix), encoded)
	return nil
}

// NeedBuild reports whether metadata is missing or at least one item is
// dirty, i.e. whether a read relying on a built forest should refuse to
// proceed.
func (w *Writer) NeedBuild(txn *store.ReadTxn) (bool, error) {
	if _, ok := txn.Get(treenode.MetadataKey(w.prefix)); !ok {
		return true, nil
	}
	c := txn.PrefixCursor(treenode.ModeLowerBound(w.prefix, treenode.ModeUpdated), treenode.ModeUpperBound(w.prefix, treenode.ModeUpdated))
	return c.Next(), nil
}

func (w *Writer) liveItemIDs(txn *store.WriteTxn) ([]uint32, error) {
	var ids []uint32
	c := txn.PrefixCursor(treenode.ModeLowerBound(w.prefix, treenode.ModeItem), treenode.ModeUpperBound(w.prefix, treenode.ModeItem))
	for c.Next() {
		k, err := treenode.Decode(c.Key())
		if err != nil {
			return nil, err
		}
		ids = append(ids, k.Item)
	}
	return ids, nil
}

func maxItemID(txn *store.WriteTxn, prefix uint16) (uint32, bool, error) {
	var max uint32
	found := false
	c := txn.PrefixCursor(treenode.ModeLowerBound(prefix, treenode.ModeItem), treenode.ModeUpperBound(prefix, treenode.ModeItem))
	for c.Next() {
		k, err := treenode.Decode(c.Key())
		if err != nil {
			return 0, false, err
		}
		max = k.Item
		found = true
	}
	return max, found, nil
}

// higherPrefixHasItems scans the tail of the keyspace above prefix for any
// item-mode key. Because keys sort by (prefix, mode, item) and ModeItem is
// the smallest mode value, the first record belonging to any higher prefix
// is an item record if that prefix has any items at all.
func higherPrefixHasItems(txn *store.WriteTxn, prefix uint16) (bool, error) {
	c := txn.PrefixCursor(treenode.PrefixUpperBound(prefix), nil)
	for c.Next() {
		k, err := treenode.Decode(c.Key())
		if err != nil {
			return false, err
		}
		if k.Mode == treenode.ModeItem {
			return true, nil
		}
	}
	return false, nil
}
