// Package store persists and opens the final index: the record file, the
// offset directory, the address table and the manifest that ties them to a
// single indexing run.
package store

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/webindex/pkg/errors"
	"github.com/google/uuid"
)

const (
	IndexFile     = "index.dat"
	OffsetsFile   = "offsets.fst"
	AddressesFile = "addresses.json"
	ManifestFile  = "manifest.json"

	MagicBytes    uint32 = 0x57494458
	FormatVersion uint32 = 1
	HeaderSize           = 32

	checksumSize = 4
)

type fileHeader struct {
	Magic   uint32
	Version uint32
	RunID   uuid.UUID
}

func encodeHeader(h fileHeader) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	copy(buf[8:24], h.RunID[:])
	return buf
}

func decodeHeader(buf []byte) (fileHeader, error) {
	if len(buf) < HeaderSize {
		return fileHeader{}, fmt.Errorf("short index header")
	}
	h := fileHeader{
		Magic:   binary.LittleEndian.Uint32(buf[0:4]),
		Version: binary.LittleEndian.Uint32(buf[4:8]),
	}
	copy(h.RunID[:], buf[8:24])
	if h.Magic != MagicBytes {
		return fileHeader{}, fmt.Errorf("bad magic bytes %x", h.Magic)
	}
	if h.Version != FormatVersion {
		return fileHeader{}, fmt.Errorf("unsupported version %d", h.Version)
	}
	return h, nil
}

// appendRecord frames payload as uvarint(len) | payload | crc32(payload).
func appendRecord(dst, payload []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(payload)))
	dst = append(dst, payload...)
	return binary.LittleEndian.AppendUint32(dst, crc32.ChecksumIEEE(payload))
}

// readRecord decodes the single record starting at off.
func readRecord(r io.ReaderAt, off, size int64) (index.TermEntry, error) {
	if off < HeaderSize || off >= size {
		return index.TermEntry{}, fmt.Errorf("%w: offset %d outside index", apperrors.ErrCorruptRecord, off)
	}
	head := make([]byte, binary.MaxVarintLen64)
	if rem := size - off; rem < int64(len(head)) {
		head = head[:rem]
	}
	if _, err := r.ReadAt(head, off); err != nil && err != io.EOF {
		return index.TermEntry{}, fmt.Errorf("reading record length at %d: %w", off, err)
	}
	length, n := binary.Uvarint(head)
	if n <= 0 {
		return index.TermEntry{}, fmt.Errorf("%w: bad length prefix at %d", apperrors.ErrCorruptRecord, off)
	}
	if rem := size - off - int64(n) - checksumSize; rem < 0 || length > uint64(rem) {
		return index.TermEntry{}, fmt.Errorf("%w: record at %d overruns index", apperrors.ErrCorruptRecord, off)
	}
	buf := make([]byte, int(length)+checksumSize)
	if _, err := r.ReadAt(buf, off+int64(n)); err != nil {
		return index.TermEntry{}, fmt.Errorf("reading record at %d: %w", off, err)
	}
	payload := buf[:length]
	if crc32.ChecksumIEEE(payload) != binary.LittleEndian.Uint32(buf[length:]) {
		return index.TermEntry{}, fmt.Errorf("%w: checksum mismatch at %d", apperrors.ErrCorruptRecord, off)
	}
	entry, err := index.UnmarshalEntry(payload)
	if err != nil {
		return index.TermEntry{}, fmt.Errorf("%w: %v", apperrors.ErrCorruptRecord, err)
	}
	return entry, nil
}
