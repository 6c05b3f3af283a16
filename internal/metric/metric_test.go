package metric

import (
	"math"
	"math/rand"
	"testing"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{"angular", "euclidean", "manhattan", "dot-product", "hamming",
		"binary-quantized-angular", "binary-quantized-euclidean", "binary-quantized-manhattan"} {
		if _, err := Lookup(name); err != nil {
			t.Errorf("Lookup(%q) = %v, want nil error", name, err)
		}
	}
	if _, err := Lookup("nonsense"); err == nil {
		t.Error("Lookup(\"nonsense\") = nil error, want *ErrUnknownMetric")
	}
}

func TestAngularIdentityIsZero(t *testing.T) {
	a := Angular{}
	v := []float32{1, 2, 3}
	h := a.NewHeader(v)
	d := a.BuiltDistance(h, v, h, v)
	if d > 1e-5 {
		t.Errorf("BuiltDistance(v, v) = %v, want ~0", d)
	}
}

func TestAngularOrthogonalIsHalf(t *testing.T) {
	a := Angular{}
	u := []float32{1, 0}
	v := []float32{0, 1}
	hu, hv := a.NewHeader(u), a.NewHeader(v)
	d := a.BuiltDistance(hu, u, hv, v)
	if math.Abs(float64(d-0.5)) > 1e-5 {
		t.Errorf("BuiltDistance(orthogonal) = %v, want 0.5", d)
	}
}

func TestEuclideanDistance(t *testing.T) {
	e := Euclidean{}
	a := []float32{0, 0}
	b := []float32{3, 4}
	got := e.NormalizedDistance(e.BuiltDistance(nil, a, nil, b), 2)
	if math.Abs(float64(got-5)) > 1e-4 {
		t.Errorf("Euclidean distance = %v, want 5", got)
	}
}

func TestManhattanDistance(t *testing.T) {
	m := Manhattan{}
	a := []float32{0, 0}
	b := []float32{3, -4}
	got := m.NormalizedDistance(m.BuiltDistance(nil, a, nil, b), 2)
	if got != 7 {
		t.Errorf("Manhattan distance = %v, want 7", got)
	}
}

func TestDotPreprocessScalesHeaders(t *testing.T) {
	d := Dot{}
	leaves := []Leaf{
		{Vec: []float32{1, 0}},
		{Vec: []float32{3, 4}},
	}
	for i := range leaves {
		leaves[i].Header = d.Init(leaves[i].Vec)
	}
	d.Preprocess(leaves)
	for _, l := range leaves {
		n := d.headerNorm(l.Header)
		if math.Abs(float64(n-25)) > 1e-3 {
			t.Errorf("header norm = %v, want 25 (max norm² = 5²)", n)
		}
	}
}

func TestHammingDistance(t *testing.T) {
	h := Hamming{}
	a := []float32{1, 0, 1, 0}
	b := []float32{1, 1, 0, 0}
	got := h.NormalizedDistance(h.BuiltDistance(nil, a, nil, b), 4)
	if math.Abs(float64(got-0.5)) > 1e-5 {
		t.Errorf("Hamming distance = %v, want 0.5", got)
	}
}

func TestHammingCreateSplitIsOneHot(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	h := Hamming{}
	children := []Leaf{
		{Vec: []float32{1, 0, 0}},
		{Vec: []float32{0, 1, 0}},
		{Vec: []float32{0, 0, 1}},
		{Vec: []float32{1, 1, 0}},
	}
	split := h.CreateSplit(rng, children)
	count := 0
	for _, f := range split.Vec {
		if f != 0 {
			count++
		}
	}
	if count != 1 {
		t.Errorf("CreateSplit produced %d set bits, want exactly 1", count)
	}
}

func TestBQAngularRoundTripsThroughCodec(t *testing.T) {
	a := BQAngular{}
	codec := a.Codec()
	v := []float32{1, -1, 1, 1}
	enc := codec.Encode(nil, v)
	got := codec.Iter(enc, len(v))
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("round trip[%d] = %v, want %v", i, got[i], v[i])
		}
	}
}

func TestBQEuclideanIdentityIsZero(t *testing.T) {
	e := BQEuclidean{}
	v := []float32{1, -1, 1, -1}
	if d := e.BuiltDistance(nil, v, nil, v); d != 0 {
		t.Errorf("BuiltDistance(v, v) = %v, want 0", d)
	}
}

func TestTwoMeansProducesDistinctCentroids(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	e := Euclidean{}
	children := make([]Leaf, 0, 8)
	for i := 0; i < 8; i++ {
		x := float32(i)
		children = append(children, Leaf{Vec: []float32{x, -x}})
	}
	p, q := twoMeans(rng, e, children, false)
	if len(p.Vec) != 2 || len(q.Vec) != 2 {
		t.Fatalf("unexpected centroid dimensionality: %v, %v", p.Vec, q.Vec)
	}
	if p.Vec[0] == q.Vec[0] && p.Vec[1] == q.Vec[1] {
		t.Fatalf("two_means returned identical centroids: %v, %v", p.Vec, q.Vec)
	}
}
