package metric

import (
	"math"
	"math/rand"

	"github.com/xDarkicex/vannoy/internal/vector"
)

// Euclidean is plain L2 distance. Its header carries a bias term so the
// split plane can sit anywhere along the normal rather than always
// through the origin.
type Euclidean struct{}

func (Euclidean) Name() string { return "euclidean" }
func (Euclidean) Codec() vector.Codec { return vector.F32Codec{} }
func (Euclidean) HeaderLen() int { return 4 }

func (Euclidean) NewHeader(_ []float32) []byte { return encodeF32s(0) }
func (Euclidean) Init(_ []float32) []byte { return encodeF32s(0) }

func (e Euclidean) Norm(_ []byte, raw []float32) float32 { return e.NormNoHeader(raw) }
func (Euclidean) NormNoHeader(raw []float32) float32 {
	return float32(math.Sqrt(float64(dot(raw, raw))))
}
func (e Euclidean) Normalize(raw []float32) []float32 { return defaultNormalize(e, raw) }

func (Euclidean) BuiltDistance(_ []byte, a []float32, _ []byte, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func (e Euclidean) NonBuiltDistance(ah []byte, a []float32, bh []byte, b []float32) float32 {
	return e.BuiltDistance(ah, a, bh, b)
}

func (Euclidean) NormalizedDistance(d float32, _ int) float32 {
	return float32(math.Sqrt(float64(d)))
}

func (Euclidean) Margin(normalHeader []byte, normal []float32, _ []byte, q []float32) float32 {
	return decodeF32(normalHeader, 0) + dot(normal, q)
}
func (Euclidean) MarginNoHeader(normal, q []float32) float32 { return dot(normal, q) }
func (e Euclidean) Side(nh []byte, n []float32, qh []byte, q []float32) Side {
	return sideFromMargin(e.Margin(nh, n, qh, q))
}

func (Euclidean) CosineTwoMeans() bool { return false }

func (e Euclidean) CreateSplit(rng *rand.Rand, children []Leaf) Leaf {
	p, q := twoMeans(rng, e, children, false)
	normal := sub(p.Vec, q.Vec)
	normal = e.Normalize(normal)

	var bias float32
	for i := range normal {
		bias += -normal[i] * (p.Vec[i] + q.Vec[i]) / 2
	}
	return Leaf{Header: encodeF32s(bias), Vec: normal}
}

func (Euclidean) RequiresPreprocess() bool { return false }
func (Euclidean) Preprocess(_ []Leaf) {}
