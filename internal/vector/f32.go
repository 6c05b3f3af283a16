package vector

import (
	"encoding/binary"
	"math"
)

// F32Codec stores each component as a 4-byte little-endian float, read and
// written without relying on host memory alignment.
type F32Codec struct{}

func (F32Codec) Name() string { return "f32" }

func (F32Codec) EncodedLen(dim int) int { return dim * 4 }

func (F32Codec) Encode(dst []byte, v []float32) []byte {
	for _, f := range v {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
	}
	return dst
}

func (F32Codec) Validate(b []byte, dim int) error {
	want := dim * 4
	if len(b) != want {
		return &SizeMismatch{Codec: "f32", Remainder: len(b) - want}
	}
	return nil
}

func (F32Codec) Iter(b []byte, dim int) []float32 {
	out := make([]float32, dim)
	for i := 0; i < dim; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func (F32Codec) IsZero(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}
