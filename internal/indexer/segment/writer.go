// Package segment reads and writes shard files: immutable partial indexes
// offloaded from memory during indexing and consumed once by the merge.
package segment

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/index"
)

// MagicBytes identifies a valid .spx shard file.
const (
	MagicBytes    uint32 = 0x53505831
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 32
	Extension            = ".spx"
)

// SegmentHeader is the 64-byte header written at the start of every shard.
type SegmentHeader struct {
	Magic       uint32
	Version     uint32
	TermCount   uint32
	DocCount    uint32
	CreatedAt   int64
	RecordsOff  int64
	RecordsSize int64
}

// Writer serialises TermEntry slices into numbered shard files.
type Writer struct {
	dataDir string
	next    int
}

// NewWriter creates a Writer that writes shards into the given directory,
// numbering them from zero.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Name returns the file name of shard n.
func Name(n int) string {
	return fmt.Sprintf("partial_%06d%s", n, Extension)
}

// Write atomically creates the next shard file containing entries. It writes
// to a .tmp file first and renames on success, returning the final path.
func (w *Writer) Write(entries []index.TermEntry, docCount int) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("cannot write empty shard")
	}
	finalPath := filepath.Join(w.dataDir, Name(w.next))
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating shard directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp shard file: %w", err)
	}
	defer f.Close()

	header := SegmentHeader{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		TermCount:  uint32(len(entries)),
		DocCount:   uint32(docCount),
		CreatedAt:  time.Now().Unix(),
		RecordsOff: int64(HeaderSize),
	}
	if _, err := f.Write(make([]byte, HeaderSize)); err != nil {
		return "", fmt.Errorf("reserving header: %w", err)
	}

	crc := crc32.NewIEEE()
	bw := bufio.NewWriterSize(f, 256*1024)
	size, err := writeRecords(io.MultiWriter(bw, crc), entries)
	if err != nil {
		return "", err
	}
	if err := bw.Flush(); err != nil {
		return "", fmt.Errorf("flushing records: %w", err)
	}
	header.RecordsSize = size

	if _, err := f.Write(encodeFooter(crc, header)); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}
	if _, err := f.WriteAt(encodeHeader(header), 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing shard file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming shard file: %w", err)
	}
	w.next++
	return finalPath, nil
}

func writeRecords(w io.Writer, entries []index.TermEntry) (int64, error) {
	var written int64
	lenBuf := make([]byte, binary.MaxVarintLen64)
	for _, entry := range entries {
		payload := index.MarshalEntry(entry)
		n := binary.PutUvarint(lenBuf, uint64(len(payload)))
		if _, err := w.Write(lenBuf[:n]); err != nil {
			return 0, fmt.Errorf("writing record length for term %q: %w", entry.Term, err)
		}
		if _, err := w.Write(payload); err != nil {
			return 0, fmt.Errorf("writing record for term %q: %w", entry.Term, err)
		}
		written += int64(n + len(payload))
	}
	return written, nil
}

func encodeHeader(h SegmentHeader) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.RecordsOff))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(h.RecordsSize))
	return buf
}

func encodeFooter(crc hash.Hash32, h SegmentHeader) []byte {
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc.Sum32())
	binary.LittleEndian.PutUint32(footer[4:8], h.TermCount)
	binary.LittleEndian.PutUint32(footer[8:12], h.DocCount)
	binary.LittleEndian.PutUint64(footer[16:24], uint64(h.RecordsSize))
	binary.LittleEndian.PutUint32(footer[28:32], h.Magic)
	return footer
}
