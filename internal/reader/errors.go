package reader

import "fmt"

// MissingMetadata is returned when a Reader is opened or queried against
// a prefix that has never had a successful build.
type MissingMetadata struct{ Prefix uint16 }

func (e *MissingMetadata) Error() string {
	return fmt.Sprintf("reader: no metadata for prefix %d, nothing has been built", e.Prefix)
}

// UnmatchingDistance is returned when this Reader's configured metric or
// dimensionality does not match what persisted metadata records.
type UnmatchingDistance struct{ Expected, Received string }

func (e *UnmatchingDistance) Error() string {
	return fmt.Sprintf("reader: bound to distance %q but metadata says %q", e.Expected, e.Received)
}

// InvalidVecDimension is returned by NNSByVector/DistanceByVector when a
// caller-supplied query vector does not match the index's dimensionality.
type InvalidVecDimension struct{ Expected, Received int }

func (e *InvalidVecDimension) Error() string {
	return fmt.Sprintf("reader: expected %d-dimensional query vector, got %d", e.Expected, e.Received)
}

// MissingKey indicates a corrupted database: a tree node or item a
// split-plane or root list refers to does not exist under its expected key.
type MissingKey struct {
	Prefix uint16
	Mode   string
	Item   uint32
}

func (e *MissingKey) Error() string {
	return fmt.Sprintf("reader: missing key (prefix=%d, mode=%s, item=%d): database is corrupted", e.Prefix, e.Mode, e.Item)
}
