package builder

import (
	"github.com/RoaringBitmap/roaring/v2"
	"github.com/xDarkicex/vannoy/internal/metric"
	"github.com/xDarkicex/vannoy/internal/store"
	"github.com/xDarkicex/vannoy/internal/treenode"
	"github.com/xDarkicex/vannoy/internal/vector"
)

// liveItemsBitmap scans every ModeItem key under prefix and returns the set
// of ids currently present, the authoritative "what is actually live right
// now" view a Build reconciles against metadata's last-build snapshot.
func liveItemsBitmap(txn *store.WriteTxn, prefix uint16) (*roaring.Bitmap, error) {
	bitmap := roaring.New()
	c := txn.PrefixCursor(treenode.ModeLowerBound(prefix, treenode.ModeItem), treenode.ModeUpperBound(prefix, treenode.ModeItem))
	for c.Next() {
		k, err := treenode.Decode(c.Key())
		if err != nil {
			return nil, err
		}
		bitmap.Add(k.Item)
	}
	return bitmap, nil
}

// loadLeaves decodes every ModeItem record under prefix into a metric.Leaf,
// using headerLen and codec to split and unpack each stored record.
func loadLeaves(txn *store.WriteTxn, prefix uint16, headerLen int, codec vector.Codec, dims int) (map[uint32]metric.Leaf, error) {
	leaves := make(map[uint32]metric.Leaf)
	c := txn.PrefixCursor(treenode.ModeLowerBound(prefix, treenode.ModeItem), treenode.ModeUpperBound(prefix, treenode.ModeItem))
	for c.Next() {
		k, err := treenode.Decode(c.Key())
		if err != nil {
			return nil, err
		}
		leaf, err := treenode.DecodeLeaf(c.Value(), headerLen)
		if err != nil {
			return nil, err
		}
		vec := codec.Iter(leaf.Vector, dims)
		leaves[k.Item] = metric.Leaf{Header: leaf.Header, Vec: vec}
	}
	return leaves, nil
}

// dirtyItemIDs returns every id with a live ModeUpdated marker under prefix.
func dirtyItemIDs(txn *store.WriteTxn, prefix uint16) ([]uint32, error) {
	var ids []uint32
	c := txn.PrefixCursor(treenode.ModeLowerBound(prefix, treenode.ModeUpdated), treenode.ModeUpperBound(prefix, treenode.ModeUpdated))
	for c.Next() {
		k, err := treenode.Decode(c.Key())
		if err != nil {
			return nil, err
		}
		ids = append(ids, k.Item)
	}
	return ids, nil
}
