package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// checkpointMagic identifies a vannoy store checkpoint file.
var checkpointMagic = [8]byte{'V', 'A', 'N', 'N', 'C', 'K', 'P', 0}

const checkpointVersion = uint32(1)

// writeCheckpoint persists snap as the environment's full state: every
// live key/value pair, sorted, so a fresh Open can mmap it back in one
// pass instead of replaying the write-ahead log from scratch.
func writeCheckpoint(path string, snap *snapshot) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating checkpoint file: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(checkpointMagic[:])
	_ = binary.Write(&buf, binary.BigEndian, checkpointVersion)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(snap.entries)))
	for _, e := range snap.entries {
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(e.key)))
		buf.Write(e.key)
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(e.value)))
		buf.Write(e.value)
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("writing checkpoint contents: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing checkpoint file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing checkpoint file: %w", err)
	}
	return os.Rename(tmp, path)
}

// readCheckpoint memory-maps path read-only and decodes it into a
// snapshot. A missing file is treated as an empty environment.
func readCheckpoint(path string) (*snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &snapshot{}, nil
		}
		return nil, fmt.Errorf("opening checkpoint file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("statting checkpoint file: %w", err)
	}
	if stat.Size() == 0 {
		return &snapshot{}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(stat.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmapping checkpoint file: %w", err)
	}
	defer unix.Munmap(data)

	return decodeCheckpoint(data)
}

func decodeCheckpoint(data []byte) (*snapshot, error) {
	if len(data) < 8+4+4 {
		return nil, fmt.Errorf("checkpoint file truncated before header")
	}
	if !bytes.Equal(data[:8], checkpointMagic[:]) {
		return nil, fmt.Errorf("checkpoint file has wrong magic")
	}
	version := binary.BigEndian.Uint32(data[8:12])
	if version > checkpointVersion {
		return nil, fmt.Errorf("checkpoint file version %d newer than this build understands (%d)", version, checkpointVersion)
	}
	count := binary.BigEndian.Uint32(data[12:16])
	r := bytes.NewReader(data[16:])

	entries := make([]entry, 0, count)
	for i := uint32(0); i < count; i++ {
		key, err := readFramed(r)
		if err != nil {
			return nil, fmt.Errorf("reading checkpoint key %d: %w", i, err)
		}
		val, err := readFramed(r)
		if err != nil {
			return nil, fmt.Errorf("reading checkpoint value %d: %w", i, err)
		}
		entries = append(entries, entry{key: key, value: val})
	}
	return &snapshot{entries: entries}, nil
}

func readFramed(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
