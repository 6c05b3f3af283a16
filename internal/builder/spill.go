package builder

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// spillMagic identifies a per-tree construction spill file. Every tree a
// build worker constructs goes into a spill file of its own so
// the single write transaction at the end of Build only has to drain
// already-encoded bytes, never holding the store's write lock across
// goroutines.
var spillMagic = [8]byte{'V', 'A', 'N', 'N', 'S', 'P', 'L', 0}

const spillFormatVersion = uint32(1)

// spillHeader carries the magic, format version, record count, and a
// payload CRC: a spill file is transient, but the merge phase still
// refuses one that was truncated mid-write (e.g. by a crash during a
// cancelled build).
type spillHeader struct {
	Magic      [8]byte
	Version    uint32
	NodeCount  uint32
	PayloadCRC uint32
}

const spillHeaderLen = 8 + 4 + 4 + 4

// spillRecord is one encoded tree node plus the id it will occupy once
// merged into the store.
type spillRecord struct {
	ID   uint32
	Body []byte
}

// spillWriter accumulates one tree's finished nodes in a
// temporary file, appending as it goes and keeping only a CRC running
// total resident — node bodies themselves never need to live in memory
// all at once.
type spillWriter struct {
	file   *os.File
	writer *bufio.Writer
	crc    uint32
	count  uint32
}

func newSpillWriter() (*spillWriter, error) {
	f, err := os.CreateTemp("", "vannoy-spill-*")
	if err != nil {
		return nil, fmt.Errorf("builder: creating spill file: %w", err)
	}
	if _, err := f.Write(make([]byte, spillHeaderLen)); err != nil {
		f.Close()
		return nil, fmt.Errorf("builder: reserving spill header: %w", err)
	}
	return &spillWriter{file: f, writer: bufio.NewWriter(f)}, nil
}

// Write appends one tree node record: id, length-prefixed body.
func (w *spillWriter) Write(id uint32, body []byte) error {
	var lenBuf [8]byte
	binary.BigEndian.PutUint32(lenBuf[0:4], id)
	binary.BigEndian.PutUint32(lenBuf[4:8], uint32(len(body)))
	if _, err := w.writer.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.writer.Write(body); err != nil {
		return err
	}
	w.crc = crc32.Update(w.crc, crc32.IEEETable, lenBuf[:])
	w.crc = crc32.Update(w.crc, crc32.IEEETable, body)
	w.count++
	return nil
}

// Close finalizes the header and closes the file, returning its path for
// the merge phase to read back. Callers that abandon a spill (build
// cancelled) should call Discard instead.
func (w *spillWriter) Close() (string, error) {
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return "", err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		w.file.Close()
		return "", err
	}
	hdr := spillHeader{Magic: spillMagic, Version: spillFormatVersion, NodeCount: w.count, PayloadCRC: w.crc}
	if err := writeSpillHeader(w.file, hdr); err != nil {
		w.file.Close()
		return "", err
	}
	path := w.file.Name()
	return path, w.file.Close()
}

// Discard removes a spill file's backing storage without finalizing its
// header, used when a build is cancelled mid-tree.
func (w *spillWriter) Discard() error {
	path := w.file.Name()
	w.file.Close()
	return os.Remove(path)
}

func writeSpillHeader(f *os.File, hdr spillHeader) error {
	buf := make([]byte, 0, spillHeaderLen)
	buf = append(buf, hdr.Magic[:]...)
	buf = binary.BigEndian.AppendUint32(buf, hdr.Version)
	buf = binary.BigEndian.AppendUint32(buf, hdr.NodeCount)
	buf = binary.BigEndian.AppendUint32(buf, hdr.PayloadCRC)
	_, err := f.WriteAt(buf, 0)
	return err
}

// readSpill opens path, validates its header, and returns every record in
// append order. It always removes the file before returning.
func readSpill(path string) ([]spillRecord, error) {
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("builder: opening spill file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	hdrBuf := make([]byte, spillHeaderLen)
	if _, err := io.ReadFull(r, hdrBuf); err != nil {
		return nil, fmt.Errorf("builder: reading spill header: %w", err)
	}
	var hdr spillHeader
	copy(hdr.Magic[:], hdrBuf[0:8])
	hdr.Version = binary.BigEndian.Uint32(hdrBuf[8:12])
	hdr.NodeCount = binary.BigEndian.Uint32(hdrBuf[12:16])
	hdr.PayloadCRC = binary.BigEndian.Uint32(hdrBuf[16:20])
	if hdr.Magic != spillMagic {
		return nil, fmt.Errorf("builder: spill file has wrong magic, truncated or corrupt")
	}
	if hdr.Version > spillFormatVersion {
		return nil, fmt.Errorf("builder: spill file version %d newer than this build understands", hdr.Version)
	}

	records := make([]spillRecord, 0, hdr.NodeCount)
	var crc uint32
	for i := uint32(0); i < hdr.NodeCount; i++ {
		var lenBuf [8]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("builder: spill file truncated reading record %d: %w", i, err)
		}
		id := binary.BigEndian.Uint32(lenBuf[0:4])
		bodyLen := binary.BigEndian.Uint32(lenBuf[4:8])
		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("builder: spill file truncated reading record %d body: %w", i, err)
		}
		crc = crc32.Update(crc, crc32.IEEETable, lenBuf[:])
		crc = crc32.Update(crc, crc32.IEEETable, body)
		records = append(records, spillRecord{ID: id, Body: body})
	}
	if crc != hdr.PayloadCRC {
		return nil, fmt.Errorf("builder: spill file payload CRC mismatch, truncated or corrupt")
	}
	return records, nil
}
