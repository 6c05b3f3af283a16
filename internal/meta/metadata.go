// Package meta encodes the per-index metadata record (dimensionality,
// distance name, root node ids, live item set) and the on-disk schema
// version record read before trusting any of it.
package meta

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

// Metadata is the single record that anchors one index's tree forest: how
// many dimensions its vectors have, which distance built it, which tree
// node ids are roots, and the authoritative set of live item ids.
type Metadata struct {
	Dimensions uint32
	Distance   string
	Roots      []uint32
	Items      *roaring.Bitmap
}

// Encode packs m as a NUL-terminated distance name, big-endian dimensions, a length-prefixed roaring bitmap,
// and the root id list as trailing big-endian u32s.
func Encode(m Metadata) ([]byte, error) {
	if bytes.IndexByte([]byte(m.Distance), 0) >= 0 {
		return nil, fmt.Errorf("meta: distance name %q must not contain a NUL byte", m.Distance)
	}

	items := m.Items
	if items == nil {
		items = roaring.New()
	}
	itemsBuf, err := items.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("meta: serializing items bitmap: %w", err)
	}

	out := make([]byte, 0, len(m.Distance)+1+4+4+len(itemsBuf)+4*len(m.Roots))
	out = append(out, []byte(m.Distance)...)
	out = append(out, 0)
	out = binary.BigEndian.AppendUint32(out, m.Dimensions)
	out = binary.BigEndian.AppendUint32(out, uint32(len(itemsBuf)))
	out = append(out, itemsBuf...)
	for _, r := range m.Roots {
		out = binary.BigEndian.AppendUint32(out, r)
	}
	return out, nil
}

// Decode reverses Encode.
func Decode(b []byte) (Metadata, error) {
	nul := bytes.IndexByte(b, 0)
	if nul < 0 {
		return Metadata{}, fmt.Errorf("meta: missing NUL terminator after distance name")
	}
	distance := string(b[:nul])
	b = b[nul+1:]

	if len(b) < 8 {
		return Metadata{}, fmt.Errorf("meta: record truncated before dimensions/items-size")
	}
	dimensions := binary.BigEndian.Uint32(b[0:4])
	itemsSize := binary.BigEndian.Uint32(b[4:8])
	b = b[8:]

	if uint32(len(b)) < itemsSize {
		return Metadata{}, fmt.Errorf("meta: record truncated inside items bitmap (want %d, have %d)", itemsSize, len(b))
	}
	items := roaring.New()
	if _, err := items.FromBuffer(b[:itemsSize]); err != nil {
		return Metadata{}, fmt.Errorf("meta: decoding items bitmap: %w", err)
	}
	b = b[itemsSize:]

	if len(b)%4 != 0 {
		return Metadata{}, fmt.Errorf("meta: root id list not a multiple of 4 bytes (%d)", len(b))
	}
	roots := make([]uint32, len(b)/4)
	for i := range roots {
		roots[i] = binary.BigEndian.Uint32(b[i*4:])
	}

	return Metadata{Dimensions: dimensions, Distance: distance, Roots: roots, Items: items}, nil
}
