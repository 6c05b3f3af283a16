package reader

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/xDarkicex/vannoy/internal/meta"
	"github.com/xDarkicex/vannoy/internal/store"
	"github.com/xDarkicex/vannoy/internal/treenode"
)

// Stats summarizes the shape of every tree in the forest: depth, split
// node count, degenerate-normal count, and total descendants.
type Stats struct {
	Trees            int
	MaxDepth         int
	SplitPlaneNodes  int
	DegenerateSplits int
	DescendantsNodes int
	DescendantItems  int
}

// Stats walks every root's subtree and accumulates structural counters.
func (r *Reader) Stats(txn *store.ReadTxn) (Stats, error) {
	s := Stats{Trees: len(r.roots)}
	for _, root := range r.roots {
		depth, err := r.walkStats(txn, root, 1, &s)
		if err != nil {
			return Stats{}, err
		}
		if depth > s.MaxDepth {
			s.MaxDepth = depth
		}
	}
	return s, nil
}

func (r *Reader) walkStats(txn *store.ReadTxn, id uint32, depth int, s *Stats) (int, error) {
	node, err := r.loadTreeNode(txn, id)
	if err != nil {
		return 0, err
	}
	switch node.Kind {
	case treenode.KindDescendants:
		s.DescendantsNodes++
		s.DescendantItems += len(node.Descendants)
		return depth, nil
	case treenode.KindSplit:
		s.SplitPlaneNodes++
		if len(node.Split.Normal) == 0 {
			s.DegenerateSplits++
		}
		ld, err := r.walkStats(txn, node.Split.Left, depth+1, s)
		if err != nil {
			return 0, err
		}
		rd, err := r.walkStats(txn, node.Split.Right, depth+1, s)
		if err != nil {
			return 0, err
		}
		if ld > rd {
			return ld, nil
		}
		return rd, nil
	default:
		return depth, nil
	}
}

// AssertValidity verifies the structural invariants of persisted
// state: every split-plane's children exist, every item a descendants
// node references lives in the items bitmap, and every listed root
// resolves to an existing tree node.
func (r *Reader) AssertValidity(txn *store.ReadTxn) error {
	b, ok := txn.Get(treenode.MetadataKey(r.prefix))
	if !ok {
		return &MissingMetadata{Prefix: r.prefix}
	}
	md, err := meta.Decode(b)
	if err != nil {
		return err
	}
	liveItems := md.Items
	if liveItems == nil {
		liveItems = roaring.New()
	}

	for _, root := range r.roots {
		if _, err := r.loadTreeNode(txn, root); err != nil {
			return fmt.Errorf("reader: root %d: %w", root, err)
		}
		if err := r.assertSubtreeValid(txn, root, liveItems); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) assertSubtreeValid(txn *store.ReadTxn, id uint32, liveItems *roaring.Bitmap) error {
	node, err := r.loadTreeNode(txn, id)
	if err != nil {
		return err
	}
	switch node.Kind {
	case treenode.KindDescendants:
		for _, item := range node.Descendants {
			if !liveItems.Contains(item) {
				return fmt.Errorf("reader: descendants node %d references item %d not in the items bitmap", id, item)
			}
			if _, ok := txn.Get(treenode.ItemKey(r.prefix, item)); !ok {
				return &MissingKey{Prefix: r.prefix, Mode: treenode.ModeItem.String(), Item: item}
			}
		}
		return nil
	case treenode.KindSplit:
		if _, err := r.loadTreeNode(txn, node.Split.Left); err != nil {
			return fmt.Errorf("reader: split %d left child: %w", id, err)
		}
		if _, err := r.loadTreeNode(txn, node.Split.Right); err != nil {
			return fmt.Errorf("reader: split %d right child: %w", id, err)
		}
		if err := r.assertSubtreeValid(txn, node.Split.Left, liveItems); err != nil {
			return err
		}
		return r.assertSubtreeValid(txn, node.Split.Right, liveItems)
	default:
		return fmt.Errorf("reader: tree node %d has unknown kind %d", id, node.Kind)
	}
}
