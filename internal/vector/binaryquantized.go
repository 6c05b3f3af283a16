package vector

import "encoding/binary"

const quantizedWordBits = 64
const quantizedWordBytes = quantizedWordBits / 8

// BinaryQuantizedCodec packs the sign bit of each scalar (positive ⇒ 1,
// else 0) into 64-bit words, zero-padded to a whole word. It is used by
// the binary-quantized fast-path variants of Cosine, Euclidean and
// Manhattan, where two_means still runs in f32 space but the stored leaf
// vector is this packed representation.
type BinaryQuantizedCodec struct{}

func (BinaryQuantizedCodec) Name() string { return "binary-quantized" }

func (BinaryQuantizedCodec) EncodedLen(dim int) int {
	words := (dim + quantizedWordBits - 1) / quantizedWordBits
	return words * quantizedWordBytes
}

func (BinaryQuantizedCodec) Encode(dst []byte, v []float32) []byte {
	for chunkStart := 0; chunkStart < len(v); chunkStart += quantizedWordBits {
		end := chunkStart + quantizedWordBits
		if end > len(v) {
			end = len(v)
		}
		var word uint64
		for i, f := range v[chunkStart:end] {
			if f > 0 {
				word |= 1 << uint(i)
			}
		}
		dst = binary.LittleEndian.AppendUint64(dst, word)
	}
	return dst
}

func (c BinaryQuantizedCodec) Validate(b []byte, dim int) error {
	want := c.EncodedLen(dim)
	if len(b) != want {
		return &SizeMismatch{Codec: c.Name(), Remainder: len(b) - want}
	}
	return nil
}

// Iter reconstructs a ±1 approximation of the original vector: a set bit
// decodes to +1, an unset bit decodes to -1. This lossy reconstruction is
// what the binary-quantized distance formulas are derived against.
func (BinaryQuantizedCodec) Iter(b []byte, dim int) []float32 {
	out := make([]float32, dim)
	for i := 0; i < dim; i++ {
		wordIdx := i / quantizedWordBits
		bitIdx := uint(i % quantizedWordBits)
		word := binary.LittleEndian.Uint64(b[wordIdx*quantizedWordBytes:])
		if (word>>bitIdx)&1 == 1 {
			out[i] = 1.0
		} else {
			out[i] = -1.0
		}
	}
	return out
}

func (BinaryQuantizedCodec) IsZero(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}

// Words returns the packed representation as native uint64 words, for the
// popcount-based distance fast path.
func Words(b []byte) []uint64 {
	words := make([]uint64, len(b)/quantizedWordBytes)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(b[i*quantizedWordBytes:])
	}
	return words
}
