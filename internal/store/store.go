// Package store implements the ordered, transactional key-value
// environment the rest of vannoy treats as an opaque external collaborator:
// byte keys, byte values, one snapshot-isolated write transaction at a
// time, many concurrent read transactions, and prefix/range iteration in
// key order. The engine consumes this interface rather than owning it; a
// different ordered store could stand in.
//
// On disk it keeps a write-ahead log for durability plus a periodic
// memory-mapped checkpoint of the full sorted key space.
package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
)

// entry is one key/value pair in a snapshot. Keys and values are never
// mutated in place; a new snapshot is built on every commit.
type entry struct {
	key   []byte
	value []byte
}

// snapshot is an immutable, key-sorted view of the entire keyspace.
// ReadTxn and WriteTxn both read through one; a WriteTxn layers its
// pending changes on top without mutating the snapshot it started from.
type snapshot struct {
	entries []entry
}

func (s *snapshot) find(key []byte) (int, bool) {
	i := sort.Search(len(s.entries), func(i int) bool {
		return bytes.Compare(s.entries[i].key, key) >= 0
	})
	if i < len(s.entries) && bytes.Equal(s.entries[i].key, key) {
		return i, true
	}
	return i, false
}

func (s *snapshot) get(key []byte) ([]byte, bool) {
	i, ok := s.find(key)
	if !ok {
		return nil, false
	}
	return s.entries[i].value, true
}

// bounds returns the half-open index range [lo, hi) of entries whose key
// is within [lower, upper). A nil lower/upper means unbounded on that side.
func (s *snapshot) bounds(lower, upper []byte) (int, int) {
	lo := 0
	if lower != nil {
		lo = sort.Search(len(s.entries), func(i int) bool {
			return bytes.Compare(s.entries[i].key, lower) >= 0
		})
	}
	hi := len(s.entries)
	if upper != nil {
		hi = sort.Search(len(s.entries), func(i int) bool {
			return bytes.Compare(s.entries[i].key, upper) >= 0
		})
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// Env is the shared environment: every Index in this module binds to one
// Env and distinguishes itself by key prefix, the way a single LMDB or
// bbolt environment hosts many logical databases.
type Env struct {
	writeMu sync.Mutex // serializes write transactions; readers never block
	snap    atomic.Pointer[snapshot]

	path string
	wal  *walFile
	seq  uint64 // bumped on every commit
}

// Open opens (creating if absent) the environment rooted at dir: a
// checkpoint file (if one exists) plus a write-ahead log replayed on top
// of it. A zero-value dir opens a process-local, non-persistent Env
// (useful for tests that never call Close).
func Open(dir string) (*Env, error) {
	e := &Env{path: dir}

	base := &snapshot{}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: creating environment directory: %w", err)
		}
		ckpt, err := readCheckpoint(checkpointPath(dir))
		if err != nil {
			return nil, fmt.Errorf("store: reading checkpoint: %w", err)
		}
		base = ckpt

		w, err := openWAL(walPath(dir))
		if err != nil {
			return nil, fmt.Errorf("store: opening write-ahead log: %w", err)
		}
		e.wal = w

		replayed, err := w.replay()
		if err != nil {
			return nil, fmt.Errorf("store: replaying write-ahead log: %w", err)
		}
		base = mergeOps(base, replayed)
	}

	e.snap.Store(base)
	return e, nil
}

// Close flushes a final checkpoint (when the Env is backed by a
// directory) and releases its write-ahead log.
func (e *Env) Close() error {
	if e.path == "" {
		return nil
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := writeCheckpoint(checkpointPath(e.path), e.snap.Load()); err != nil {
		return fmt.Errorf("store: writing checkpoint: %w", err)
	}
	if e.wal != nil {
		if err := e.wal.truncate(); err != nil {
			return fmt.Errorf("store: truncating write-ahead log: %w", err)
		}
		if err := e.wal.close(); err != nil {
			return fmt.Errorf("store: closing write-ahead log: %w", err)
		}
	}
	return nil
}

// View runs fn against a read-only, point-in-time snapshot. Any number of
// View calls may run concurrently with each other and with one Update.
func (e *Env) View(fn func(*ReadTxn) error) error {
	txn := &ReadTxn{snap: e.snap.Load()}
	return fn(txn)
}

// Update runs fn against the single write transaction, serialized against
// every other Update. fn's writes become visible to new View/Update calls
// only if fn returns nil; a non-nil return discards every pending write.
func (e *Env) Update(fn func(*WriteTxn) error) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	base := e.snap.Load()
	txn := &WriteTxn{
		ReadTxn: ReadTxn{snap: base},
		pending: make(map[string]*[]byte),
		order:   nil,
	}
	if err := fn(txn); err != nil {
		return err
	}
	return e.commit(txn)
}

func (e *Env) commit(txn *WriteTxn) error {
	if len(txn.order) == 0 {
		return nil
	}
	if e.wal != nil {
		if err := e.wal.append(txn); err != nil {
			return fmt.Errorf("store: appending to write-ahead log: %w", err)
		}
	}
	e.snap.Store(applyPending(txn.ReadTxn.snap, txn))
	e.seq++
	return nil
}

// applyPending merges a write transaction's pending changes into base,
// producing a new sorted snapshot. base is never mutated.
func applyPending(base *snapshot, txn *WriteTxn) *snapshot {
	out := make([]entry, 0, len(base.entries)+len(txn.order))
	pending := make(map[string]*[]byte, len(txn.pending))
	for k, v := range txn.pending {
		pending[k] = v
	}

	for _, e := range base.entries {
		if v, touched := pending[string(e.key)]; touched {
			delete(pending, string(e.key))
			if v != nil {
				out = append(out, entry{key: e.key, value: *v})
			}
			continue
		}
		out = append(out, e)
	}
	for _, k := range txn.order {
		v, ok := pending[k]
		if !ok {
			continue // already consumed against an existing key above
		}
		if v != nil {
			out = append(out, entry{key: []byte(k), value: *v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].key, out[j].key) < 0 })
	return &snapshot{entries: out}
}

func checkpointPath(dir string) string { return filepath.Join(dir, "vannoy.ckpt") }
func walPath(dir string) string { return filepath.Join(dir, "vannoy.wal") }
