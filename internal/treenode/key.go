// Package treenode encodes the fixed-width keys and variable-length node
// values that make up one index's on-disk tree forest: the key space is
// `(prefix, mode, item)` big-endian so ordered iteration groups records by
// index and by kind. Item-mode records hold untagged leaves; tree-mode
// records hold a descendants or split-plane node behind a single tag byte.
package treenode

import (
	"encoding/binary"
	"fmt"
)

// Mode is the stable on-disk discriminant for what a key's item number
// addresses. Changing these values is a breaking on-disk format change.
type Mode uint8

const (
	ModeItem     Mode = 0
	ModeTree     Mode = 1
	ModeMetadata Mode = 2
	ModeUpdated  Mode = 3
)

func (m Mode) String() string {
	switch m {
	case ModeItem:
		return "item"
	case ModeTree:
		return "tree"
	case ModeMetadata:
		return "metadata"
	case ModeUpdated:
		return "updated"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// KeyLen is the fixed width of an encoded key: prefix(2) + mode(1) + padding(1) + item(4).
const KeyLen = 8

// MetadataItem and VersionItem are the two reserved item slots under
// ModeMetadata: the index's metadata record, and its on-disk format version.
const (
	MetadataItem uint32 = 0
	VersionItem  uint32 = 1
)

// Key identifies one record: a user-chosen prefix (independent index
// namespace), a mode, and an item number whose meaning depends on mode.
type Key struct {
	Prefix uint16
	Mode   Mode
	Item   uint32
}

// Encode packs k into an 8-byte big-endian key suitable for ordered storage.
func Encode(k Key) []byte {
	b := make([]byte, KeyLen)
	binary.BigEndian.PutUint16(b[0:2], k.Prefix)
	b[2] = byte(k.Mode)
	binary.BigEndian.PutUint32(b[4:8], k.Item)
	return b
}

// Decode reverses Encode. It returns an error if b is not exactly KeyLen bytes.
func Decode(b []byte) (Key, error) {
	if len(b) != KeyLen {
		return Key{}, fmt.Errorf("treenode: key must be %d bytes, got %d", KeyLen, len(b))
	}
	return Key{
		Prefix: binary.BigEndian.Uint16(b[0:2]),
		Mode:   Mode(b[2]),
		Item:   binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

// ItemKey addresses a leaf node for item id under prefix.
func ItemKey(prefix uint16, id uint32) []byte { return Encode(Key{prefix, ModeItem, id}) }

// TreeKey addresses an internal tree node (descendants or split-plane).
func TreeKey(prefix uint16, id uint32) []byte { return Encode(Key{prefix, ModeTree, id}) }

// MetadataKey addresses the index's metadata record.
func MetadataKey(prefix uint16) []byte { return Encode(Key{prefix, ModeMetadata, MetadataItem}) }

// VersionKey addresses the index's on-disk format version record.
func VersionKey(prefix uint16) []byte { return Encode(Key{prefix, ModeMetadata, VersionItem}) }

// UpdatedKey addresses an "item id mutated since the last build" marker.
func UpdatedKey(prefix uint16, id uint32) []byte { return Encode(Key{prefix, ModeUpdated, id}) }

// PrefixLowerBound and PrefixUpperBound bound the key range that holds
// every record belonging to prefix, for ranged/prefix iteration.
func PrefixLowerBound(prefix uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, prefix)
	return b
}

// PrefixUpperBound returns nil (meaning "no upper bound") for prefix
// 0xFFFF, since there is no larger prefix to bound against.
func PrefixUpperBound(prefix uint16) []byte {
	if prefix == 0xFFFF {
		return nil
	}
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, prefix+1)
	return b
}

// ModeLowerBound and ModeUpperBound bound the key range for one mode
// within a prefix, e.g. iterating every tree node of an index.
func ModeLowerBound(prefix uint16, mode Mode) []byte {
	return Encode(Key{prefix, mode, 0})
}

// ModeUpperBound is exclusive: it is the first key of the next mode, so
// item id 0xFFFFFFFF stays inside the range.
func ModeUpperBound(prefix uint16, mode Mode) []byte {
	return Encode(Key{prefix, mode + 1, 0})
}
