package metric

import (
	"math"
	"math/rand"

	"github.com/xDarkicex/vannoy/internal/vector"
	"github.com/xDarkicex/vannoy/internal/vmath"
)

// BQAngular is Angular distance over binary-quantized (±1) vectors.
// Split-plane construction still clusters in full f32 space (via Angular
// as the companion metric) so the two means can move continuously; only
// the stored leaf vector and the live distance formula are quantized.
type BQAngular struct{}

func (BQAngular) Name() string { return "binary-quantized-angular" }
func (BQAngular) Codec() vector.Codec { return vector.BinaryQuantizedCodec{} }
func (BQAngular) HeaderLen() int { return 4 }

func (a BQAngular) NewHeader(raw []float32) []byte { return encodeF32s(a.NormNoHeader(raw)) }
func (a BQAngular) Init(raw []float32) []byte { return a.NewHeader(raw) }

func (BQAngular) Norm(header []byte, _ []float32) float32 { return decodeF32(header, 0) }
func (BQAngular) NormNoHeader(raw []float32) float32 {
	return float32(math.Sqrt(float64(bqDot(raw, raw))))
}
func (a BQAngular) Normalize(raw []float32) []float32 { return defaultNormalize(a, raw) }

func (BQAngular) BuiltDistance(aHeader []byte, a []float32, bHeader []byte, b []float32) float32 {
	pn := decodeF32(aHeader, 0)
	qn := decodeF32(bHeader, 0)
	pnqn := pn * qn
	if pnqn == 0 {
		return 0
	}
	cos := bqDot(a, b) / pnqn
	return (1 - cos) / 2
}

func (a BQAngular) NonBuiltDistance(aHeader []byte, av []float32, bHeader []byte, bv []float32) float32 {
	return a.BuiltDistance(aHeader, av, bHeader, bv)
}

func (BQAngular) NormalizedDistance(d float32, _ int) float32 { return d }

func (BQAngular) Margin(_ []byte, normal []float32, _ []byte, q []float32) float32 {
	return bqDot(normal, q)
}
func (BQAngular) MarginNoHeader(normal, q []float32) float32 { return bqDot(normal, q) }
func (a BQAngular) Side(nh []byte, n []float32, qh []byte, q []float32) Side {
	return sideFromMargin(a.Margin(nh, n, qh, q))
}

func (BQAngular) CosineTwoMeans() bool { return true }

func (a BQAngular) CreateSplit(rng *rand.Rand, children []Leaf) Leaf {
	p, q := twoMeans(rng, Angular{}, children, true)
	normal := sub(p.Vec, q.Vec)
	normal = a.Normalize(normal)
	return Leaf{Header: a.Init(normal), Vec: normal}
}

func (BQAngular) RequiresPreprocess() bool { return false }
func (BQAngular) Preprocess(_ []Leaf) {}

// bqDot reconstructs the ±1 dot product from packed sign bits using the
// identity dot = bits - 2*popcount(xor), counted over whole storage words
// (any tail padding bits, always equal on both sides, contribute +1 each).
func bqDot(a, b []float32) float32 {
	wa := packSignWords(a)
	wb := packSignWords(b)
	totalBits := len(wa) * 64
	xor := vmath.XorPopcountWords(wa, wb)
	return float32(totalBits) - 2*float32(xor)
}
