package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// walFile is the write-ahead log backing one Env: every committed write
// transaction is appended as a sequence of put/delete records before the
// in-memory snapshot is swapped, so a crash between those two steps still
// leaves a replayable log. Records are raw keys and values; this store
// has no notion of an item beyond a byte string.
type walFile struct {
	file   *os.File
	writer *bufio.Writer
	path   string
}

const (
	walOpPut    byte = 0
	walOpDelete byte = 1
)

func openWAL(path string) (*walFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening wal file: %w", err)
	}
	return &walFile{file: f, writer: bufio.NewWriter(f), path: path}, nil
}

// append writes every pending change in txn, in first-touch order, as one
// record per key, then flushes and fsyncs so the log is durable before
// the caller's commit proceeds.
func (w *walFile) append(txn *WriteTxn) error {
	for _, k := range txn.order {
		v := txn.pending[k]
		if v == nil {
			if err := w.writeRecord(walOpDelete, []byte(k), nil); err != nil {
				return err
			}
			continue
		}
		if err := w.writeRecord(walOpPut, []byte(k), *v); err != nil {
			return err
		}
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("flushing wal: %w", err)
	}
	return w.file.Sync()
}

func (w *walFile) writeRecord(op byte, key, value []byte) error {
	if err := w.writer.WriteByte(op); err != nil {
		return err
	}
	if err := binary.Write(w.writer, binary.BigEndian, uint32(len(key))); err != nil {
		return err
	}
	if _, err := w.writer.Write(key); err != nil {
		return err
	}
	if op == walOpDelete {
		return nil
	}
	if err := binary.Write(w.writer, binary.BigEndian, uint32(len(value))); err != nil {
		return err
	}
	_, err := w.writer.Write(value)
	return err
}

type walOp struct {
	op    byte
	key   []byte
	value []byte
}

// replay reads every record written since the log was created (or last
// truncated), in commit order, for the caller to fold onto a base snapshot.
func (w *walFile) replay() ([]walOp, error) {
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	r := bufio.NewReader(w.file)
	var ops []walOp
	for {
		op, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		var keyLen uint32
		if err := binary.Read(r, binary.BigEndian, &keyLen); err != nil {
			return nil, fmt.Errorf("reading wal key length: %w", err)
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, fmt.Errorf("reading wal key: %w", err)
		}
		if op == walOpDelete {
			ops = append(ops, walOp{op: op, key: key})
			continue
		}
		var valLen uint32
		if err := binary.Read(r, binary.BigEndian, &valLen); err != nil {
			return nil, fmt.Errorf("reading wal value length: %w", err)
		}
		value := make([]byte, valLen)
		if _, err := io.ReadFull(r, value); err != nil {
			return nil, fmt.Errorf("reading wal value: %w", err)
		}
		ops = append(ops, walOp{op: op, key: key, value: value})
	}
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return nil, err
	}
	return ops, nil
}

// truncate discards the log's contents, used right after a checkpoint has
// durably captured everything the log described.
func (w *walFile) truncate() error {
	if err := w.file.Truncate(0); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	w.writer = bufio.NewWriter(w.file)
	return nil
}

func (w *walFile) close() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Close()
}

// mergeOps folds a replayed WAL op sequence onto a checkpoint snapshot,
// applying operations in log order (later writes win).
func mergeOps(base *snapshot, ops []walOp) *snapshot {
	if len(ops) == 0 {
		return base
	}
	pending := make(map[string]*[]byte, len(ops))
	order := make([]string, 0, len(ops))
	for _, op := range ops {
		k := string(op.key)
		if _, touched := pending[k]; !touched {
			order = append(order, k)
		}
		if op.op == walOpDelete {
			pending[k] = nil
		} else {
			v := op.value
			pending[k] = &v
		}
	}
	txn := &WriteTxn{pending: pending, order: order}
	return applyPending(base, txn)
}
