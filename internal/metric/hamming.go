package metric

import (
	"math/rand"

	"github.com/xDarkicex/vannoy/internal/vector"
	"github.com/xDarkicex/vannoy/internal/vmath"
)

const hammingOversampling = 3
const hammingLSHSteps = 200

// Hamming counts differing bit positions between two binary vectors. Any
// non-zero scalar is treated as 1. Instead of a separating hyperplane it
// builds a locality-sensitive hash by bit sampling: the split picks one
// coordinate and routes an item by whether that coordinate is set.
//
// https://en.wikipedia.org/wiki/Locality-sensitive_hashing#Bit_sampling_for_Hamming_distance
type Hamming struct{}

func (Hamming) Name() string { return "hamming" }
func (Hamming) Codec() vector.Codec { return vector.BinaryCodec{} }
func (Hamming) HeaderLen() int { return 0 }
func (Hamming) NewHeader(_ []float32) []byte { return nil }
func (Hamming) Init(_ []float32) []byte { return nil }

func (Hamming) Norm(_ []byte, raw []float32) float32 { return Hamming{}.NormNoHeader(raw) }
func (Hamming) NormNoHeader(raw []float32) float32 {
	return float32(vmath.PopcountWords(packWords(raw)))
}
func (Hamming) Normalize(raw []float32) []float32 {
	out := make([]float32, len(raw))
	copy(out, raw)
	return out
}

func (Hamming) BuiltDistance(_ []byte, a []float32, _ []byte, b []float32) float32 {
	return float32(vmath.XorPopcountWords(packWords(a), packWords(b)))
}
func (h Hamming) NonBuiltDistance(ah []byte, a []float32, bh []byte, b []float32) float32 {
	return h.BuiltDistance(ah, a, bh, b)
}

func (Hamming) NormalizedDistance(d float32, dim int) float32 {
	if d < 0 {
		d = 0
	}
	return d / float32(dim)
}

// Margin and MarginNoHeader treat normal as a one-hot mask and return the
// number of set bits shared with q (0 or 1, since normal has one bit set).
func (Hamming) Margin(_ []byte, normal []float32, _ []byte, q []float32) float32 {
	return float32(vmath.AndPopcountWords(packWords(normal), packWords(q)))
}
func (Hamming) MarginNoHeader(normal, q []float32) float32 {
	return float32(vmath.AndPopcountWords(packWords(normal), packWords(q)))
}
func (h Hamming) Side(nh []byte, n []float32, qh []byte, q []float32) Side {
	if h.Margin(nh, n, qh, q) > 0 {
		return SideRight
	}
	return SideLeft
}

func (Hamming) CosineTwoMeans() bool { return false }

func (h Hamming) CreateSplit(rng *rand.Rand, children []Leaf) Leaf {
	dim := len(children[0].Vec)

	isValidSplit := func(normal []float32) bool {
		count := 0
		for i := 0; i < hammingLSHSteps; i++ {
			u := choose(rng, children)
			if h.MarginNoHeader(normal, u.Vec) > 0 {
				count++
			}
		}
		return count > 0 && count < hammingLSHSteps
	}

	mkNormal := func(idx int) []float32 {
		n := make([]float32, dim)
		n[idx] = 1
		return n
	}

	idx := rng.Intn(dim)
	normal := mkNormal(idx)
	if isValidSplit(normal) {
		return Leaf{Vec: normal}
	}
	for j := 0; j < dim; j++ {
		normal = mkNormal(j)
		if isValidSplit(normal) {
			return Leaf{Vec: normal}
		}
	}
	return Leaf{Vec: normal}
}

func (Hamming) RequiresPreprocess() bool { return false }
func (Hamming) Preprocess(_ []Leaf) {}

func packWords(v []float32) []uint64 {
	words := make([]uint64, (len(v)+63)/64)
	for i, f := range v {
		if f != 0 {
			words[i/64] |= 1 << uint(i%64)
		}
	}
	return words
}
