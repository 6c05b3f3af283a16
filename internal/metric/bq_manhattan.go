package metric

import (
	"math/rand"

	"github.com/xDarkicex/vannoy/internal/vector"
	"github.com/xDarkicex/vannoy/internal/vmath"
)

// BQManhattan is L1 distance over binary-quantized (±1) vectors: 2× the
// Hamming weight of the XOR between packed sign-bit words.
type BQManhattan struct{}

func (BQManhattan) Name() string { return "binary-quantized-manhattan" }
func (BQManhattan) Codec() vector.Codec { return vector.BinaryQuantizedCodec{} }
func (BQManhattan) HeaderLen() int { return 4 }

func (BQManhattan) NewHeader(_ []float32) []byte { return encodeF32s(0) }
func (BQManhattan) Init(_ []float32) []byte { return encodeF32s(0) }

func (m BQManhattan) Norm(_ []byte, raw []float32) float32 { return m.NormNoHeader(raw) }
func (BQManhattan) NormNoHeader(raw []float32) float32 {
	var sum float32
	for _, x := range raw {
		if x < 0 {
			x = -x
		}
		sum += x
	}
	return sum
}
func (m BQManhattan) Normalize(raw []float32) []float32 { return quantizeSign(raw) }

func (BQManhattan) BuiltDistance(_ []byte, a []float32, _ []byte, b []float32) float32 {
	return 2 * float32(vmath.XorPopcountWords(packSignWords(a), packSignWords(b)))
}
func (m BQManhattan) NonBuiltDistance(ah []byte, a []float32, bh []byte, b []float32) float32 {
	return m.BuiltDistance(ah, a, bh, b)
}

func (BQManhattan) NormalizedDistance(d float32, dim int) float32 {
	if d < 0 {
		d = 0
	}
	return d / float32(dim)
}

func (BQManhattan) Margin(normalHeader []byte, normal []float32, _ []byte, q []float32) float32 {
	return decodeF32(normalHeader, 0) + bqDot(normal, q)
}
func (BQManhattan) MarginNoHeader(normal, q []float32) float32 { return bqDot(normal, q) }
func (m BQManhattan) Side(nh []byte, n []float32, qh []byte, q []float32) Side {
	return sideFromMargin(m.Margin(nh, n, qh, q))
}

func (BQManhattan) CosineTwoMeans() bool { return false }

func (BQManhattan) CreateSplit(rng *rand.Rand, children []Leaf) Leaf {
	p, q := twoMeans(rng, Manhattan{}, children, false)
	normal := quantizeSign(sub(p.Vec, q.Vec))
	return Leaf{Header: encodeF32s(0), Vec: normal}
}

func (BQManhattan) RequiresPreprocess() bool { return false }
func (BQManhattan) Preprocess(_ []Leaf) {}
