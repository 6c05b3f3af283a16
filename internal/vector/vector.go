// Package vector implements unaligned, byte-level vector views over
// memory-mapped storage, with pluggable codecs for how a []float32 is
// packed into bytes on disk.
package vector

import "fmt"

// SizeMismatch is returned when a byte slice's length differs from the
// codec's encoded length for the expected dimensionality. Remainder is the
// actual length minus the expected one, negative for a short slice.
type SizeMismatch struct {
	Codec     string
	Remainder int
}

func (e *SizeMismatch) Error() string {
	return fmt.Sprintf("vector: %s codec: byte slice length is off by %d bytes", e.Codec, e.Remainder)
}

// Codec packs and unpacks a []float32 of a fixed dimensionality into a byte
// representation that can be read back without requiring host alignment.
type Codec interface {
	// Name identifies the codec for error messages and metadata records.
	Name() string

	// EncodedLen returns the number of bytes a vector of the given
	// dimensionality occupies once encoded.
	EncodedLen(dim int) int

	// Encode appends the byte encoding of v to dst and returns the result.
	Encode(dst []byte, v []float32) []byte

	// Validate reports whether b is a well-formed encoding for dim
	// elements, returning a *SizeMismatch otherwise.
	Validate(b []byte, dim int) error

	// Iter decodes b into an aligned []float32 of length dim.
	Iter(b []byte, dim int) []float32

	// IsZero reports whether the encoded vector is the all-zero vector.
	IsZero(b []byte) bool
}

// View is an unaligned byte-slice wrapper around one encoded vector. It is
// intentionally just a named byte slice: the codec that produced it, and
// the dimensionality, live alongside it (in the leaf header / metadata),
// not inside the view itself.
type View []byte

// ToVec decodes the view into an aligned, owned []float32 using codec c.
func (v View) ToVec(c Codec, dim int) []float32 {
	return c.Iter(v, dim)
}

// Len returns the number of encoded bytes in the view.
func (v View) Len() int { return len(v) }

// FromSlice encodes a []float32 using codec c into a fresh View.
func FromSlice(c Codec, v []float32) View {
	return View(c.Encode(make([]byte, 0, c.EncodedLen(len(v))), v))
}
