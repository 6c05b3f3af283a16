package metric

import (
	"math"
	"math/rand"

	"github.com/xDarkicex/vannoy/internal/vector"
	"github.com/xDarkicex/vannoy/internal/vmath"
)

// BQEuclidean is squared Euclidean distance over binary-quantized (±1)
// vectors, computed as 4× the Hamming weight of the XOR between the two
// packed sign-bit words (same sign contributes 0, opposite contributes 4).
// Split planes are still built by clustering in full f32 space via the
// Euclidean companion metric.
type BQEuclidean struct{}

func (BQEuclidean) Name() string { return "binary-quantized-euclidean" }
func (BQEuclidean) Codec() vector.Codec { return vector.BinaryQuantizedCodec{} }
func (BQEuclidean) HeaderLen() int { return 4 }

func (BQEuclidean) NewHeader(_ []float32) []byte { return encodeF32s(0) }
func (BQEuclidean) Init(_ []float32) []byte { return encodeF32s(0) }

func (e BQEuclidean) Norm(_ []byte, raw []float32) float32 { return e.NormNoHeader(raw) }
func (BQEuclidean) NormNoHeader(raw []float32) float32 {
	return float32(math.Sqrt(float64(bqDot(raw, raw))))
}
func (e BQEuclidean) Normalize(raw []float32) []float32 { return quantizeSign(raw) }

func (BQEuclidean) BuiltDistance(_ []byte, a []float32, _ []byte, b []float32) float32 {
	return 4 * float32(vmath.XorPopcountWords(packSignWords(a), packSignWords(b)))
}
func (e BQEuclidean) NonBuiltDistance(ah []byte, a []float32, bh []byte, b []float32) float32 {
	return e.BuiltDistance(ah, a, bh, b)
}

func (BQEuclidean) NormalizedDistance(d float32, dim int) float32 { return d / float32(dim) }

func (BQEuclidean) Margin(normalHeader []byte, normal []float32, _ []byte, q []float32) float32 {
	return decodeF32(normalHeader, 0) + bqDot(normal, q)
}
func (BQEuclidean) MarginNoHeader(normal, q []float32) float32 { return bqDot(normal, q) }
func (e BQEuclidean) Side(nh []byte, n []float32, qh []byte, q []float32) Side {
	return sideFromMargin(e.Margin(nh, n, qh, q))
}

func (BQEuclidean) CosineTwoMeans() bool { return false }

func (BQEuclidean) CreateSplit(rng *rand.Rand, children []Leaf) Leaf {
	p, q := twoMeans(rng, Euclidean{}, children, false)
	normal := quantizeSign(sub(p.Vec, q.Vec))
	return Leaf{Header: encodeF32s(0), Vec: normal}
}

func (BQEuclidean) RequiresPreprocess() bool { return false }
func (BQEuclidean) Preprocess(_ []Leaf) {}

func quantizeSign(v []float32) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		if f > 0 {
			out[i] = 1
		} else {
			out[i] = -1
		}
	}
	return out
}
