// Package metric implements the pluggable distance-metric capability used
// to build split planes, compare vectors, and report distances. Each
// metric owns its leaf header layout, its own split-plane heuristic, and
// the handful of formulas the Annoy family of indexes relies on to keep
// search correct once a split has been frozen into the tree.
package metric

import (
	"encoding/binary"
	"math"
	"math/rand"

	"github.com/xDarkicex/vannoy/internal/vector"
)

// Side identifies which child of a split plane a vector falls on.
type Side int

const (
	SideLeft Side = iota
	SideRight
)

// Leaf is the in-memory, decoded form of one item's vector plus its
// per-metric header, as used while a tree node is being built. Storage
// encoding only happens at the treenode/store boundary.
type Leaf struct {
	Header []byte
	Vec    []float32
}

// Metric is the capability struct every distance implements: a header
// layout, a vector codec, and the formulas
// needed to build split planes and report distances both mid-build (when
// children have no header yet) and post-build (when headers are cached).
type Metric interface {
	// Name identifies the metric in on-disk metadata.
	Name() string

	// Codec is the on-disk packing for this metric's vectors.
	Codec() vector.Codec

	// HeaderLen is the fixed size, in bytes, of this metric's leaf header.
	HeaderLen() int

	// NewHeader computes a fresh header for a freshly-inserted raw vector.
	NewHeader(raw []float32) []byte

	// Init recomputes header fields from the current vector, used after a
	// split-plane candidate's vector has been assembled or normalized.
	Init(raw []float32) []byte

	// Norm returns the leaf's cached or recomputed norm.
	Norm(header []byte, raw []float32) float32

	// NormNoHeader computes a vector's norm without reading a header.
	NormNoHeader(raw []float32) float32

	// Normalize returns raw divided by its norm, or raw unchanged if the
	// norm is zero.
	Normalize(raw []float32) []float32

	// BuiltDistance returns the metric's raw (non-normalized) distance
	// between two leaves once the index is fully built.
	BuiltDistance(aHeader []byte, a []float32, bHeader []byte, b []float32) float32

	// NonBuiltDistance is used by two_means while the headers involved are
	// still being assembled; it defaults to BuiltDistance.
	NonBuiltDistance(aHeader []byte, a []float32, bHeader []byte, b []float32) float32

	// NormalizedDistance maps a raw distance to the value reported to callers.
	NormalizedDistance(d float32, dim int) float32

	// Margin is the signed offset of q from the split plane described by
	// normal. Its sign decides which side of the tree q belongs on.
	Margin(normalHeader []byte, normal []float32, qHeader []byte, q []float32) float32

	// MarginNoHeader is Margin for a normal that has not been given a
	// header yet (used by Hamming's LSH validity check).
	MarginNoHeader(normal, q []float32) float32

	// Side deterministically assigns a leaf to Left or Right of normal.
	Side(normalHeader []byte, normal []float32, qHeader []byte, q []float32) Side

	// CosineTwoMeans reports whether two_means should L2-normalize its two
	// seed candidates before iterating (true for Cosine and DotProduct).
	CosineTwoMeans() bool

	// CreateSplit builds a split-plane leaf from a sample of children.
	CreateSplit(rng *rand.Rand, children []Leaf) Leaf

	// RequiresPreprocess reports whether Preprocess must run once over the
	// full item set before trees can be built (true only for DotProduct).
	RequiresPreprocess() bool

	// Preprocess rewrites every leaf's header in place, given the full set
	// of stored leaves. No-op for metrics that don't need a global pass.
	Preprocess(leaves []Leaf)
}

func encodeF32s(xs ...float32) []byte {
	b := make([]byte, 0, len(xs)*4)
	for _, x := range xs {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(x))
	}
	return b
}

func decodeF32(b []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func sub(a, b []float32) []float32 {
	out := make([]float32, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

func defaultNormalize(m Metric, raw []float32) []float32 {
	n := m.NormNoHeader(raw)
	if n <= 0 {
		out := make([]float32, len(raw))
		copy(out, raw)
		return out
	}
	out := make([]float32, len(raw))
	for i, x := range raw {
		out[i] = x / n
	}
	return out
}

func chooseTwo(rng *rand.Rand, children []Leaf) (Leaf, Leaf) {
	i := rng.Intn(len(children))
	j := rng.Intn(len(children) - 1)
	if j >= i {
		j++
	}
	return children[i], children[j]
}

func choose(rng *rand.Rand, children []Leaf) Leaf {
	return children[rng.Intn(len(children))]
}

func sideFromMargin(d float32) Side {
	if math.Signbit(float64(d)) {
		return SideLeft
	}
	return SideRight
}
