package store

import (
	"bytes"
	"sort"
)

// ReadTxn is a read-only view of the environment, stable for its whole
// lifetime regardless of concurrent writers (snapshot isolation).
type ReadTxn struct {
	snap *snapshot
}

// Get returns the value stored at key, if any.
func (t *ReadTxn) Get(key []byte) ([]byte, bool) {
	return t.snap.get(key)
}

// Cursor returns a cursor over every key in the environment, in order.
func (t *ReadTxn) Cursor() *Cursor {
	return t.PrefixCursor(nil, nil)
}

// PrefixCursor returns a cursor over every key k with lower <= k < upper.
// A nil bound is unbounded on that side.
func (t *ReadTxn) PrefixCursor(lower, upper []byte) *Cursor {
	lo, hi := t.snap.bounds(lower, upper)
	return &Cursor{entries: t.snap.entries[lo:hi], pos: -1}
}

// Cursor iterates a bounded, ordered range of entries fixed at creation
// time. It is not safe for concurrent use.
type Cursor struct {
	entries []entry
	pos     int
}

// Next advances the cursor and reports whether a key is now available.
func (c *Cursor) Next() bool {
	c.pos++
	return c.pos < len(c.entries)
}

// Key returns the current entry's key. Valid only after a Next that
// returned true.
func (c *Cursor) Key() []byte { return c.entries[c.pos].key }

// Value returns the current entry's value.
func (c *Cursor) Value() []byte { return c.entries[c.pos].value }

// WriteTxn is the environment's single concurrent write transaction. Its
// writes are invisible to other transactions until Env.Update returns nil.
type WriteTxn struct {
	ReadTxn
	pending map[string]*[]byte // nil value => delete
	order   []string           // first-touch order, for deterministic WAL replay
}

// Cursor returns a cursor over every key, including this transaction's
// own pending writes.
func (t *WriteTxn) Cursor() *Cursor {
	return t.PrefixCursor(nil, nil)
}

// PrefixCursor overlays this transaction's pending writes onto the base
// snapshot, so a transaction's cursors observe its own earlier Put and
// Delete calls. The view is fixed when the cursor is created; mutating
// the transaction while iterating is safe and does not move the cursor.
func (t *WriteTxn) PrefixCursor(lower, upper []byte) *Cursor {
	lo, hi := t.ReadTxn.snap.bounds(lower, upper)
	base := t.ReadTxn.snap.entries[lo:hi]

	merged := make([]entry, 0, len(base)+len(t.pending))
	for _, e := range base {
		if v, touched := t.pending[string(e.key)]; touched {
			if v != nil {
				merged = append(merged, entry{key: e.key, value: *v})
			}
			continue
		}
		merged = append(merged, e)
	}
	for k, v := range t.pending {
		if v == nil {
			continue
		}
		kb := []byte(k)
		if lower != nil && bytes.Compare(kb, lower) < 0 {
			continue
		}
		if upper != nil && bytes.Compare(kb, upper) >= 0 {
			continue
		}
		if _, exists := t.ReadTxn.snap.get(kb); exists {
			continue // already emitted above, carrying the pending value
		}
		merged = append(merged, entry{key: kb, value: *v})
	}
	sort.Slice(merged, func(i, j int) bool { return bytes.Compare(merged[i].key, merged[j].key) < 0 })
	return &Cursor{entries: merged, pos: -1}
}

// Get overlays this transaction's own pending writes on top of the base
// snapshot it started from.
func (t *WriteTxn) Get(key []byte) ([]byte, bool) {
	if v, ok := t.pending[string(key)]; ok {
		if v == nil {
			return nil, false
		}
		return *v, true
	}
	return t.ReadTxn.Get(key)
}

// Put upserts key/value, visible to this transaction's own subsequent
// reads immediately and to everyone else once the transaction commits.
func (t *WriteTxn) Put(key, value []byte) {
	k := string(key)
	if _, touched := t.pending[k]; !touched {
		t.order = append(t.order, k)
	}
	v := append([]byte(nil), value...)
	t.pending[k] = &v
}

// Delete removes key and reports whether it was present beforehand,
// checking both this transaction's own pending writes and the base
// snapshot.
func (t *WriteTxn) Delete(key []byte) bool {
	_, existed := t.Get(key)
	k := string(key)
	if _, touched := t.pending[k]; !touched {
		t.order = append(t.order, k)
	}
	t.pending[k] = nil
	return existed
}

// DeleteRange removes every key k with lower <= k < upper and reports
// how many were removed, backing Clear, PrepareChangingDistance and
// Build's drops of tree nodes and Updated markers.
func (t *WriteTxn) DeleteRange(lower, upper []byte) int {
	n := 0
	lo, hi := t.ReadTxn.snap.bounds(lower, upper)
	for i := lo; i < hi; i++ {
		k := t.ReadTxn.snap.entries[i].key
		if _, touched := t.pending[string(k)]; touched {
			continue
		}
		if t.Delete(k) {
			n++
		}
	}
	// Also account for keys this transaction itself inserted within range
	// before DeleteRange was called.
	for k, v := range t.pending {
		if v == nil {
			continue
		}
		kb := []byte(k)
		if (lower == nil || bytes.Compare(kb, lower) >= 0) && (upper == nil || bytes.Compare(kb, upper) < 0) {
			t.pending[k] = nil
			n++
		}
	}
	return n
}
