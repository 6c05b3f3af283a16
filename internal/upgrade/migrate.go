package upgrade

import (
	"encoding/binary"
	"fmt"

	"github.com/xDarkicex/vannoy/internal/idalloc"
	"github.com/xDarkicex/vannoy/internal/meta"
	"github.com/xDarkicex/vannoy/internal/metric"
	"github.com/xDarkicex/vannoy/internal/store"
	"github.com/xDarkicex/vannoy/internal/treenode"
)

// FormatVersion is the schema this build writes; MaxSupportedVersion is
// the newest schema this build knows how to open or migrate.
var (
	FormatVersion       = meta.Current
	MaxSupportedVersion = meta.Current
)

// CheckVersion reads prefix's on-disk version record (defaulting to
// meta.BeforeVersioning if absent, since versioning did not always
// exist) and refuses any version whose major number is newer than
// MaxSupportedVersion's.
func CheckVersion(txn *store.ReadTxn, prefix uint16) (meta.Version, error) {
	b, ok := txn.Get(treenode.VersionKey(prefix))
	if !ok {
		return meta.BeforeVersioning, nil
	}
	v, err := meta.DecodeVersion(b)
	if err != nil {
		return meta.Version{}, err
	}
	if v.Major > MaxSupportedVersion.Major {
		return meta.Version{}, &UnsupportedVersion{Found: v.String(), MaxSupported: MaxSupportedVersion.String()}
	}
	return v, nil
}

// FromPrevToCurrent migrates prefix from whatever version CheckVersion
// reports to meta.Current. Two structural changes are applied to every legacy split-plane
// tree node: a child id that pointed directly at an item (rather than a
// tree node) is reified into a fresh singleton descendants node, and a
// zero-valued normal is converted to "absent" (an empty Normal, matching
// the hasNormal-flag encoding treenode.EncodeSplit already writes).
// Descendants and leaf records are unchanged by this migration and are
// copied through as-is. The current version is written last, so a
// migration that fails partway leaves the prefix's version record
// exactly where CheckVersion found it.
func FromPrevToCurrent(rTxn *store.ReadTxn, wTxn *store.WriteTxn, prefix uint16, m metric.Metric) error {
	v, err := CheckVersion(rTxn, prefix)
	if err != nil {
		return err
	}
	if v == meta.Current {
		return nil
	}

	mdBytes, ok := rTxn.Get(treenode.MetadataKey(prefix))
	if !ok {
		return &MissingMetadata{Prefix: prefix}
	}
	md, err := meta.Decode(mdBytes)
	if err != nil {
		return err
	}

	headerLen := m.HeaderLen()
	normalLen := m.Codec().EncodedLen(int(md.Dimensions))

	nextID, err := highestTreeID(rTxn, prefix)
	if err != nil {
		return err
	}
	alloc := idalloc.New(nextID + 1)

	for _, root := range md.Roots {
		if _, err := migrateSubtree(rTxn, wTxn, prefix, root, headerLen, normalLen, alloc); err != nil {
			return err
		}
	}

	wTxn.Put(treenode.VersionKey(prefix), meta.EncodeVersion(meta.Current))
	return nil
}

// migrateSubtree rewrites id's record in place (descendants untouched,
// legacy splits reified/normalized) and recurses into its children.
func migrateSubtree(rTxn *store.ReadTxn, wTxn *store.WriteTxn, prefix uint16, id uint32, headerLen, normalLen int, alloc *idalloc.Counter) (uint32, error) {
	key := treenode.TreeKey(prefix, id)
	b, ok := rTxn.Get(key)
	if !ok {
		return 0, &CorruptLegacyRecord{Prefix: prefix, Item: id, Reason: "tree node referenced but not present"}
	}

	if len(b) == 0 {
		return 0, &CorruptLegacyRecord{Prefix: prefix, Item: id, Reason: "empty record"}
	}

	switch treenode.Kind(b[0]) {
	case treenode.KindDescendants:
		// Unchanged by this migration; copied through as-is.
		wTxn.Put(key, b)
		return id, nil
	case treenode.KindSplit:
		header, normal, left, right, err := decodeLegacySplit(b[1:], headerLen, normalLen)
		if err != nil {
			return 0, &CorruptLegacyRecord{Prefix: prefix, Item: id, Reason: err.Error()}
		}
		if isZero(normal) {
			normal = nil
		}

		newLeft, err := reifyChild(rTxn, wTxn, prefix, left, headerLen, normalLen, alloc)
		if err != nil {
			return 0, err
		}
		newRight, err := reifyChild(rTxn, wTxn, prefix, right, headerLen, normalLen, alloc)
		if err != nil {
			return 0, err
		}

		wTxn.Put(key, treenode.EncodeSplit(header, normal, newLeft, newRight))
		return id, nil
	default:
		return 0, &CorruptLegacyRecord{Prefix: prefix, Item: id, Reason: fmt.Sprintf("unknown tag %d", b[0])}
	}
}

// reifyChild resolves one legacy split-plane child id: if it already
// addresses a tree node, it's migrated recursively and returned
// unchanged; if it instead addresses an item directly (which the legacy
// layout allowed), a fresh singleton descendants node is allocated and
// written, and its id is returned in place of the item id.
func reifyChild(rTxn *store.ReadTxn, wTxn *store.WriteTxn, prefix uint16, child uint32, headerLen, normalLen int, alloc *idalloc.Counter) (uint32, error) {
	if _, ok := rTxn.Get(treenode.TreeKey(prefix, child)); ok {
		return migrateSubtree(rTxn, wTxn, prefix, child, headerLen, normalLen, alloc)
	}
	if _, ok := rTxn.Get(treenode.ItemKey(prefix, child)); ok {
		newID := alloc.Next()
		wTxn.Put(treenode.TreeKey(prefix, newID), treenode.EncodeDescendants([]uint32{child}))
		return newID, nil
	}
	return 0, &CorruptLegacyRecord{Prefix: prefix, Item: child, Reason: "split child addresses neither a tree node nor an item"}
}

// highestTreeID scans every ModeTree key under prefix to find the
// highest id already in use, so reification can allocate ids guaranteed
// not to collide with either existing tree nodes or existing item ids
// used as legacy split children.
func highestTreeID(txn *store.ReadTxn, prefix uint16) (uint32, error) {
	var max uint32
	c := txn.PrefixCursor(treenode.ModeLowerBound(prefix, treenode.ModeTree), treenode.ModeUpperBound(prefix, treenode.ModeTree))
	for c.Next() {
		k, err := treenode.Decode(c.Key())
		if err != nil {
			return 0, err
		}
		if k.Item > max {
			max = k.Item
		}
	}
	ic := txn.PrefixCursor(treenode.ModeLowerBound(prefix, treenode.ModeItem), treenode.ModeUpperBound(prefix, treenode.ModeItem))
	for ic.Next() {
		k, err := treenode.Decode(ic.Key())
		if err != nil {
			return 0, err
		}
		if k.Item > max {
			max = k.Item
		}
	}
	return max, nil
}

// decodeLegacySplit reads the pre-versioning split-plane encoding: a
// fixed-length header, a normal ALWAYS present at its full metric width
// (zero-filled rather than omitted to mean degenerate), and two child
// ids. There is no hasNormal flag byte in this layout; b starts right
// after the one-byte kind tag the caller has already consumed.
func decodeLegacySplit(b []byte, headerLen, normalLen int) (header, normal []byte, left, right uint32, err error) {
	want := headerLen + normalLen + 8
	if len(b) != want {
		return nil, nil, 0, 0, fmt.Errorf("legacy split record must be %d bytes, got %d", want, len(b))
	}
	header = b[:headerLen]
	b = b[headerLen:]
	normal = b[:normalLen]
	b = b[normalLen:]
	left = binary.BigEndian.Uint32(b[0:4])
	right = binary.BigEndian.Uint32(b[4:8])
	return header, normal, left, right, nil
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
