package vector

import (
	"reflect"
	"testing"
)

func TestF32RoundTrip(t *testing.T) {
	v := []float32{1.5, -2.25, 0, 3.75}
	view := FromSlice(F32Codec{}, v)
	wantLen := (F32Codec{}).EncodedLen(len(v))
	if view.Len() != wantLen {
		t.Fatalf("Len() = %d, want %d", view.Len(), wantLen)
	}
	got := view.ToVec(F32Codec{}, len(v))
	if !reflect.DeepEqual(got, v) {
		t.Errorf("round trip = %v, want %v", got, v)
	}
}

func TestF32Validate(t *testing.T) {
	c := F32Codec{}
	if err := c.Validate(make([]byte, 16), 4); err != nil {
		t.Errorf("Validate(16 bytes, dim 4) = %v, want nil", err)
	}
	if err := c.Validate(make([]byte, 15), 4); err == nil {
		t.Error("Validate(15 bytes, dim 4) = nil, want error")
	}
}

func TestF32IsZero(t *testing.T) {
	c := F32Codec{}
	zero := FromSlice(c, []float32{0, 0, 0})
	nonzero := FromSlice(c, []float32{0, 0.1, 0})
	if !c.IsZero(zero) {
		t.Error("IsZero(zero vector) = false, want true")
	}
	if c.IsZero(nonzero) {
		t.Error("IsZero(nonzero vector) = true, want false")
	}
}

func TestBinaryQuantizedRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   []float32
		want []float32
	}{
		{"simple", []float32{1, -1, 0.5, -0.5}, []float32{1, -1, 1, -1}},
		{"spans-word", makeRamp(70, 1), nil},
	}
	c := BinaryQuantizedCodec{}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			view := FromSlice(c, tc.in)
			wantLen := c.EncodedLen(len(tc.in))
			if view.Len() != wantLen {
				t.Fatalf("Len() = %d, want %d", view.Len(), wantLen)
			}
			got := view.ToVec(c, len(tc.in))
			want := tc.want
			if want == nil {
				want = signBits(tc.in)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("round trip = %v, want %v", got, want)
			}
		})
	}
}

func TestBinaryQuantizedWords(t *testing.T) {
	c := BinaryQuantizedCodec{}
	view := FromSlice(c, []float32{1, 1, 1})
	words := Words(view)
	if len(words) != 1 {
		t.Fatalf("len(words) = %d, want 1", len(words))
	}
	if words[0] != 0b111 {
		t.Errorf("words[0] = %b, want %b", words[0], 0b111)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	in := []float32{0, 1, 1, 0, 1}
	c := BinaryCodec{}
	view := FromSlice(c, in)
	got := view.ToVec(c, len(in))
	if !reflect.DeepEqual(got, in) {
		t.Errorf("round trip = %v, want %v", got, in)
	}
}

func TestBinaryValidate(t *testing.T) {
	c := BinaryCodec{}
	if err := c.Validate(make([]byte, 8), 64); err != nil {
		t.Errorf("Validate(8 bytes, dim 64) = %v, want nil", err)
	}
	if err := c.Validate(make([]byte, 8), 65); err == nil {
		t.Error("Validate(8 bytes, dim 65) = nil, want error")
	}
}

func makeRamp(n int, _ int) []float32 {
	out := make([]float32, n)
	for i := range out {
		if i%3 == 0 {
			out[i] = -1
		} else {
			out[i] = 1
		}
	}
	return out
}

func signBits(v []float32) []float32 {
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
