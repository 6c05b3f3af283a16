// Package builder implements the Writer: transactional add/delete of
// items and the build algorithm that turns a dirty item set into a
// forest of tree nodes, spooling each tree through a per-worker spill
// file before a single write transaction merges them into the store.
package builder

import "fmt"

// InvalidVecDimension is returned by AddItem/AppendItem when the supplied
// vector's length does not match the index's configured dimensionality.
type InvalidVecDimension struct {
	Expected, Received int
}

func (e *InvalidVecDimension) Error() string {
	return fmt.Sprintf("builder: expected %d-dimensional vector, got %d", e.Expected, e.Received)
}

// InvalidItemAppend is returned by AppendItem when id would violate the
// monotonic-id invariant append_item requires, or when this prefix is not
// the highest-numbered prefix holding items in the environment.
type InvalidItemAppend struct {
	Reason string
}

func (e *InvalidItemAppend) Error() string { return "builder: invalid append: " + e.Reason }

// MissingMetadata is returned by any read that requires persisted
// metadata before one has ever been written by a successful Build.
type MissingMetadata struct{ Prefix uint16 }

func (e *MissingMetadata) Error() string {
	return fmt.Sprintf("builder: no metadata for prefix %d, build has never run", e.Prefix)
}

// NeedBuild is returned when Updated markers are present and the caller
// asked for an operation that requires a clean (built) index.
type NeedBuild struct{ Prefix uint16 }

func (e *NeedBuild) Error() string {
	return fmt.Sprintf("builder: prefix %d has pending changes, build is required", e.Prefix)
}

// UnmatchingDistance is returned when this Writer's configured metric
// does not match the distance name recorded in persisted metadata.
type UnmatchingDistance struct{ Expected, Received string }

func (e *UnmatchingDistance) Error() string {
	return fmt.Sprintf("builder: writer configured for distance %q but metadata says %q (call PrepareChangingDistance first)", e.Expected, e.Received)
}

// DatabaseFull is returned when the tree-node id space for a prefix is
// exhausted (all 2^32 ids in use).
type DatabaseFull struct{ Prefix uint16 }

func (e *DatabaseFull) Error() string {
	return fmt.Sprintf("builder: prefix %d has exhausted its tree node id space", e.Prefix)
}

// BuildCancelled is returned when the build's cancellation probe returns
// true. No partial writes leak: the caller's surrounding write
// transaction aborts when this error propagates out of it.
type BuildCancelled struct{}

func (e *BuildCancelled) Error() string { return "builder: build cancelled" }

// MissingKey indicates a corrupted database: a tree node or item a split
// plane or root list refers to does not exist under its expected key.
type MissingKey struct {
	Prefix uint16
	Mode   string
	Item   uint32
}

func (e *MissingKey) Error() string {
	return fmt.Sprintf("builder: missing key (prefix=%d, mode=%s, item=%d): database is corrupted", e.Prefix, e.Mode, e.Item)
}
