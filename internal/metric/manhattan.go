package metric

import (
	"math/rand"

	"github.com/xDarkicex/vannoy/internal/vector"
)

// Manhattan is taxicab (L1) distance: the sum of absolute per-dimension
// differences. Its split plane carries the same bias term as Euclidean.
type Manhattan struct{}

func (Manhattan) Name() string { return "manhattan" }
func (Manhattan) Codec() vector.Codec { return vector.F32Codec{} }
func (Manhattan) HeaderLen() int { return 4 }

func (Manhattan) NewHeader(_ []float32) []byte { return encodeF32s(0) }
func (Manhattan) Init(_ []float32) []byte { return encodeF32s(0) }

func (m Manhattan) Norm(_ []byte, raw []float32) float32 { return m.NormNoHeader(raw) }
func (Manhattan) NormNoHeader(raw []float32) float32 {
	var sum float32
	for _, x := range raw {
		if x < 0 {
			x = -x
		}
		sum += x
	}
	return sum
}
func (m Manhattan) Normalize(raw []float32) []float32 { return defaultNormalize(m, raw) }

func (Manhattan) BuiltDistance(_ []byte, a []float32, _ []byte, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum
}

func (m Manhattan) NonBuiltDistance(ah []byte, a []float32, bh []byte, b []float32) float32 {
	return m.BuiltDistance(ah, a, bh, b)
}

func (Manhattan) NormalizedDistance(d float32, _ int) float32 {
	if d < 0 {
		return 0
	}
	return d
}

func (Manhattan) Margin(normalHeader []byte, normal []float32, _ []byte, q []float32) float32 {
	return decodeF32(normalHeader, 0) + dot(normal, q)
}
func (Manhattan) MarginNoHeader(normal, q []float32) float32 { return dot(normal, q) }
func (m Manhattan) Side(nh []byte, n []float32, qh []byte, q []float32) Side {
	return sideFromMargin(m.Margin(nh, n, qh, q))
}

func (Manhattan) CosineTwoMeans() bool { return false }

func (m Manhattan) CreateSplit(rng *rand.Rand, children []Leaf) Leaf {
	p, q := twoMeans(rng, m, children, false)
	normal := sub(p.Vec, q.Vec)
	normal = m.Normalize(normal)

	var bias float32
	for i := range normal {
		bias += -normal[i] * (p.Vec[i] + q.Vec[i]) / 2
	}
	return Leaf{Header: encodeF32s(bias), Vec: normal}
}

func (Manhattan) RequiresPreprocess() bool { return false }
func (Manhattan) Preprocess(_ []Leaf) {}
