package vector

import "encoding/binary"

// BinaryCodec packs already-binary {0,1} scalars into 64-bit words, LSB
// first. It is the storage representation for Hamming vectors: unlike
// BinaryQuantizedCodec it does not threshold on sign: every component is
// expected to already be 0 or 1, and any nonzero value sets its bit.
type BinaryCodec struct{}

func (BinaryCodec) Name() string { return "binary" }

func (BinaryCodec) EncodedLen(dim int) int {
	words := (dim + quantizedWordBits - 1) / quantizedWordBits
	return words * quantizedWordBytes
}

func (BinaryCodec) Encode(dst []byte, v []float32) []byte {
	for chunkStart := 0; chunkStart < len(v); chunkStart += quantizedWordBits {
		end := chunkStart + quantizedWordBits
		if end > len(v) {
			end = len(v)
		}
		var word uint64
		for i, f := range v[chunkStart:end] {
			if f != 0 {
				word |= 1 << uint(i)
			}
		}
		dst = binary.LittleEndian.AppendUint64(dst, word)
	}
	return dst
}

func (c BinaryCodec) Validate(b []byte, dim int) error {
	want := c.EncodedLen(dim)
	if len(b) != want {
		return &SizeMismatch{Codec: c.Name(), Remainder: len(b) - want}
	}
	return nil
}

func (BinaryCodec) Iter(b []byte, dim int) []float32 {
	out := make([]float32, dim)
	for i := 0; i < dim; i++ {
		wordIdx := i / quantizedWordBits
		bitIdx := uint(i % quantizedWordBits)
		word := binary.LittleEndian.Uint64(b[wordIdx*quantizedWordBytes:])
		if (word>>bitIdx)&1 == 1 {
			out[i] = 1.0
		}
	}
	return out
}

func (BinaryCodec) IsZero(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}
