package upgrade

import (
	"encoding/binary"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/xDarkicex/vannoy/internal/meta"
	"github.com/xDarkicex/vannoy/internal/metric"
	"github.com/xDarkicex/vannoy/internal/store"
	"github.com/xDarkicex/vannoy/internal/treenode"
)

// encodeLegacySplit writes the pre-versioning split-plane layout: kind
// tag, fixed header, a normal always present at full width, two child ids.
func encodeLegacySplit(header, normal []byte, left, right uint32) []byte {
	b := make([]byte, 0, 1+len(header)+len(normal)+8)
	b = append(b, byte(treenode.KindSplit))
	b = append(b, header...)
	b = append(b, normal...)
	b = binary.BigEndian.AppendUint32(b, left)
	b = binary.BigEndian.AppendUint32(b, right)
	return b
}

func newLegacyEnv(t *testing.T) *store.Env {
	t.Helper()
	env, err := store.Open("")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}

	m := metric.Euclidean{}
	err = env.Update(func(txn *store.WriteTxn) error {
		// Two items at ids 10 and 11.
		for id, vec := range map[uint32][]float32{10: {1, 0}, 11: {0, 1}} {
			body := treenode.EncodeLeaf(m.NewHeader(vec), m.Codec().Encode(nil, vec))
			txn.Put(treenode.ItemKey(0, id), body)
		}

		// A legacy root split whose children address items directly and
		// whose degenerate normal is written as all zeros.
		zeroNormal := make([]byte, m.Codec().EncodedLen(2))
		zeroHeader := make([]byte, m.HeaderLen())
		txn.Put(treenode.TreeKey(0, 0), encodeLegacySplit(zeroHeader, zeroNormal, 10, 11))

		items := roaring.New()
		items.AddMany([]uint32{10, 11})
		md, err := meta.Encode(meta.Metadata{
			Dimensions: 2,
			Distance:   m.Name(),
			Roots:      []uint32{0},
			Items:      items,
		})
		if err != nil {
			return err
		}
		txn.Put(treenode.MetadataKey(0), md)
		// No version record: the index predates versioning.
		return nil
	})
	if err != nil {
		t.Fatalf("seeding legacy env: %v", err)
	}
	return env
}

func TestCheckVersion_DefaultsToBeforeVersioning(t *testing.T) {
	env := newLegacyEnv(t)
	_ = env.View(func(txn *store.ReadTxn) error {
		v, err := CheckVersion(txn, 0)
		if err != nil {
			t.Fatalf("CheckVersion: %v", err)
		}
		if v != meta.BeforeVersioning {
			t.Fatalf("expected BeforeVersioning, got %v", v)
		}
		return nil
	})
}

func TestCheckVersion_RefusesNewerMajor(t *testing.T) {
	env := newLegacyEnv(t)
	err := env.Update(func(txn *store.WriteTxn) error {
		future := meta.Version{Major: meta.Current.Major + 1}
		txn.Put(treenode.VersionKey(0), meta.EncodeVersion(future))
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	_ = env.View(func(txn *store.ReadTxn) error {
		_, err := CheckVersion(txn, 0)
		if err == nil {
			t.Fatal("expected an error for a future major version")
		}
		if _, ok := err.(*UnsupportedVersion); !ok {
			t.Fatalf("expected *UnsupportedVersion, got %T: %v", err, err)
		}
		return nil
	})
}

func TestFromPrevToCurrent_ReifiesItemChildrenAndZeroNormals(t *testing.T) {
	env := newLegacyEnv(t)
	m := metric.Euclidean{}

	err := env.Update(func(txn *store.WriteTxn) error {
		return FromPrevToCurrent(&txn.ReadTxn, txn, 0, m)
	})
	if err != nil {
		t.Fatalf("FromPrevToCurrent: %v", err)
	}

	_ = env.View(func(txn *store.ReadTxn) error {
		v, err := CheckVersion(txn, 0)
		if err != nil {
			t.Fatalf("CheckVersion after migration: %v", err)
		}
		if v != meta.Current {
			t.Fatalf("expected version %v after migration, got %v", meta.Current, v)
		}

		rootBytes, ok := txn.Get(treenode.TreeKey(0, 0))
		if !ok {
			t.Fatal("root tree node vanished during migration")
		}
		root, err := treenode.DecodeTreeNode(rootBytes, m.HeaderLen())
		if err != nil {
			t.Fatalf("decoding migrated root: %v", err)
		}
		if root.Kind != treenode.KindSplit {
			t.Fatalf("expected the root to stay a split, got kind %d", root.Kind)
		}
		if len(root.Split.Normal) != 0 {
			t.Fatalf("expected the zero normal to become absent, got %d bytes", len(root.Split.Normal))
		}

		for _, child := range []uint32{root.Split.Left, root.Split.Right} {
			b, ok := txn.Get(treenode.TreeKey(0, child))
			if !ok {
				t.Fatalf("migrated child %d is not a tree node", child)
			}
			node, err := treenode.DecodeTreeNode(b, m.HeaderLen())
			if err != nil {
				t.Fatalf("decoding migrated child %d: %v", child, err)
			}
			if node.Kind != treenode.KindDescendants || len(node.Descendants) != 1 {
				t.Fatalf("expected child %d to be a singleton descendants node, got %+v", child, node)
			}
			if id := node.Descendants[0]; id != 10 && id != 11 {
				t.Fatalf("migrated descendants node holds unexpected item %d", id)
			}
		}
		return nil
	})
}

func TestFromPrevToCurrent_NoOpWhenCurrent(t *testing.T) {
	env := newLegacyEnv(t)
	m := metric.Euclidean{}

	for i := 0; i < 2; i++ {
		err := env.Update(func(txn *store.WriteTxn) error {
			return FromPrevToCurrent(&txn.ReadTxn, txn, 0, m)
		})
		if err != nil {
			t.Fatalf("migration pass %d: %v", i, err)
		}
	}

	_ = env.View(func(txn *store.ReadTxn) error {
		root, _ := txn.Get(treenode.TreeKey(0, 0))
		node, err := treenode.DecodeTreeNode(root, m.HeaderLen())
		if err != nil {
			t.Fatalf("decoding root after double migration: %v", err)
		}
		if node.Kind != treenode.KindSplit {
			t.Fatalf("expected the root to stay a split, got kind %d", node.Kind)
		}
		return nil
	})
}
