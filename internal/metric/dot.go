package metric

import (
	"math"
	"math/rand"

	"github.com/xDarkicex/vannoy/internal/vector"
)

// Dot is the plain dot-product (maximum inner product) metric. Because
// inner product is not a true metric on its own, it uses the Bachrach et
// al. transform (see Preprocess) to fold every vector into an extra
// dimension that makes angular-style splitting and search correct.
//
// https://www.microsoft.com/en-us/research/wp-content/uploads/2016/02/XboxInnerProduct.pdf
type Dot struct{}

// Header layout: [extraDim float32][norm float32]. norm doubles as the
// squared per-vector norm during build and as the shared max-norm² constant
// once Preprocess has run.
func (Dot) Name() string { return "dot-product" }
func (Dot) Codec() vector.Codec { return vector.F32Codec{} }
func (Dot) HeaderLen() int { return 8 }

func (Dot) NewHeader(_ []float32) []byte { return encodeF32s(0, 0) }
func (Dot) Init(raw []float32) []byte { return encodeF32s(0, dot(raw, raw)) }

func (Dot) extraDim(h []byte) float32 { return decodeF32(h, 0) }
func (Dot) headerNorm(h []byte) float32 { return decodeF32(h, 1) }

func (d Dot) Norm(header []byte, raw []float32) float32 {
	e := d.extraDim(header)
	return float32(math.Sqrt(float64(dot(raw, raw) + e*e)))
}
func (Dot) NormNoHeader(raw []float32) float32 {
	return float32(math.Sqrt(float64(dot(raw, raw))))
}
func (d Dot) Normalize(raw []float32) []float32 { return defaultNormalize(d, raw) }

func (Dot) BuiltDistance(_ []byte, a []float32, _ []byte, b []float32) float32 {
	return -dot(a, b)
}

func (d Dot) NonBuiltDistance(aHeader []byte, a []float32, bHeader []byte, b []float32) float32 {
	pp := d.headerNorm(aHeader)
	qq := d.headerNorm(bHeader)
	pq := dot(a, b) + d.extraDim(aHeader)*d.extraDim(bHeader)
	ppqq := pp * qq
	if ppqq >= minPositiveF32 {
		return 2 - 2*pq/float32(math.Sqrt(float64(ppqq)))
	}
	return 2
}

func (Dot) NormalizedDistance(dist float32, _ int) float32 { return -dist }

func (d Dot) Margin(normalHeader []byte, normal []float32, qHeader []byte, q []float32) float32 {
	return dot(normal, q) + d.extraDim(normalHeader)*d.extraDim(qHeader)
}
func (Dot) MarginNoHeader(normal, q []float32) float32 { return dot(normal, q) }
func (d Dot) Side(nh []byte, n []float32, qh []byte, q []float32) Side {
	return sideFromMargin(d.Margin(nh, n, qh, q))
}

func (Dot) CosineTwoMeans() bool { return true }

func (d Dot) CreateSplit(rng *rand.Rand, children []Leaf) Leaf {
	p, q := twoMeans(rng, d, children, true)
	vec := sub(p.Vec, q.Vec)
	extra := d.extraDim(p.Header) - d.extraDim(q.Header)

	norm := float32(math.Sqrt(float64(dot(vec, vec) + extra*extra)))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
		extra /= norm
	}
	return Leaf{Header: encodeF32s(extra, 0), Vec: vec}
}

func (Dot) RequiresPreprocess() bool { return true }

// Preprocess implements the Bachrach transform: every vector's extra
// dimension is set so that the largest-norm item in the collection has
// norm equal to every other item's norm plus its extra dimension,
// collapsing maximum-inner-product search into nearest-neighbor search.
func (d Dot) Preprocess(leaves []Leaf) {
	var maxNorm float32
	for _, l := range leaves {
		if n := d.NormNoHeader(l.Vec); n > maxNorm {
			maxNorm = n
		}
	}
	maxNormSq := maxNorm * maxNorm
	for i := range leaves {
		n := d.NormNoHeader(leaves[i].Vec)
		diff := maxNormSq - n*n
		if diff < 0 {
			diff = 0
		}
		leaves[i].Header = encodeF32s(float32(math.Sqrt(float64(diff))), maxNormSq)
	}
}

const minPositiveF32 = 1.1754944e-38
