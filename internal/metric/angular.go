package metric

import (
	"math"
	"math/rand"

	"github.com/xDarkicex/vannoy/internal/vector"
)

// Angular is the Cosine / angular-distance metric: the angle between two
// non-zero vectors, reported in the Annoy [0, 1] convention where
// 0 is identical direction and 1 is opposite direction.
type Angular struct{}

func (Angular) Name() string { return "angular" }
func (Angular) Codec() vector.Codec { return vector.F32Codec{} }
func (Angular) HeaderLen() int { return 4 }
func (a Angular) NewHeader(raw []float32) []byte {
	return encodeF32s(a.NormNoHeader(raw))
}
func (a Angular) Init(raw []float32) []byte { return a.NewHeader(raw) }

func (Angular) Norm(header []byte, _ []float32) float32 { return decodeF32(header, 0) }
func (Angular) NormNoHeader(raw []float32) float32 { return float32(math.Sqrt(float64(dot(raw, raw)))) }
func (a Angular) Normalize(raw []float32) []float32 { return defaultNormalize(a, raw) }

func (Angular) BuiltDistance(aHeader []byte, a []float32, bHeader []byte, b []float32) float32 {
	pn := decodeF32(aHeader, 0)
	qn := decodeF32(bHeader, 0)
	pnqn := pn * qn
	if pnqn <= float32EPS {
		return 0
	}
	cos := dot(a, b) / pnqn
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return (1 - cos) / 2
}

func (a Angular) NonBuiltDistance(aHeader []byte, av []float32, bHeader []byte, bv []float32) float32 {
	return a.BuiltDistance(aHeader, av, bHeader, bv)
}

func (Angular) NormalizedDistance(d float32, _ int) float32 { return d }

func (a Angular) Margin(_ []byte, normal []float32, _ []byte, q []float32) float32 {
	return dot(normal, q)
}
func (a Angular) MarginNoHeader(normal, q []float32) float32 { return dot(normal, q) }
func (a Angular) Side(nh []byte, n []float32, qh []byte, q []float32) Side {
	return sideFromMargin(a.Margin(nh, n, qh, q))
}

func (Angular) CosineTwoMeans() bool { return true }

func (a Angular) CreateSplit(rng *rand.Rand, children []Leaf) Leaf {
	p, q := twoMeans(rng, a, children, true)
	normal := sub(p.Vec, q.Vec)
	normal = a.Normalize(normal)
	return Leaf{Header: a.Init(normal), Vec: normal}
}

func (Angular) RequiresPreprocess() bool { return false }
func (Angular) Preprocess(_ []Leaf) {}

const float32EPS = 1.1920929e-7
