package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/index"
	"github.com/blevesearch/vellum"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// Manifest is written last and names the run every other artifact belongs
// to. Its presence marks the index as built.
type Manifest struct {
	RunID             string    `json:"run_id"`
	Documents         int       `json:"documents"`
	AcceptedDocuments int       `json:"accepted_documents"`
	Terms             int       `json:"terms"`
	Shards            int       `json:"shards"`
	IndexSize         int64     `json:"index_size"`
	OffsetsChecksum   uint32    `json:"offsets_crc32"`
	CreatedAt         time.Time `json:"created_at"`
}

// Writer streams the final index. Records must be appended in ascending term
// order; each append also feeds the offset directory, which is only made
// visible by CommitOffsets after CommitIndex has succeeded.
type Writer struct {
	dir   string
	runID uuid.UUID

	indexFile *os.File
	indexBuf  *bufio.Writer
	cursor    int64

	offsetsFile *os.File
	offsetsBuf  *bufio.Writer
	offsetsCRC  hash.Hash32
	builder     *vellum.Builder

	lastTerm string
	terms    int
	scratch  []byte

	indexCommitted bool
	indexSize      int64
}

// NewWriter opens temporary index and offset files in dir.
func NewWriter(dir string, runID uuid.UUID) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	w := &Writer{dir: dir, runID: runID}

	var err error
	w.indexFile, err = os.Create(w.tmp(IndexFile))
	if err != nil {
		return nil, fmt.Errorf("creating temp index file: %w", err)
	}
	w.indexBuf = bufio.NewWriterSize(w.indexFile, 1<<20)
	n, err := w.indexBuf.Write(encodeHeader(fileHeader{Magic: MagicBytes, Version: FormatVersion, RunID: runID}))
	if err != nil {
		w.Abort()
		return nil, fmt.Errorf("writing index header: %w", err)
	}
	w.cursor = int64(n)

	w.offsetsFile, err = os.Create(w.tmp(OffsetsFile))
	if err != nil {
		w.Abort()
		return nil, fmt.Errorf("creating temp offsets file: %w", err)
	}
	w.offsetsCRC = crc32.NewIEEE()
	w.offsetsBuf = bufio.NewWriter(w.offsetsFile)
	w.builder, err = vellum.New(io.MultiWriter(w.offsetsBuf, w.offsetsCRC), nil)
	if err != nil {
		w.Abort()
		return nil, fmt.Errorf("creating offset directory builder: %w", err)
	}
	return w, nil
}

func (w *Writer) tmp(name string) string {
	return filepath.Join(w.dir, name+".tmp")
}

// Append writes one record and registers its start offset.
func (w *Writer) Append(entry index.TermEntry) (int64, error) {
	if w.terms > 0 && entry.Term <= w.lastTerm {
		return 0, fmt.Errorf("term %q appended after %q", entry.Term, w.lastTerm)
	}
	offset := w.cursor
	if err := w.builder.Insert([]byte(entry.Term), uint64(offset)); err != nil {
		return 0, fmt.Errorf("recording offset of %q: %w", entry.Term, err)
	}
	w.scratch = appendRecord(w.scratch[:0], index.MarshalEntry(entry))
	n, err := w.indexBuf.Write(w.scratch)
	if err != nil {
		return 0, fmt.Errorf("writing record for %q: %w", entry.Term, err)
	}
	w.cursor += int64(n)
	w.lastTerm = entry.Term
	w.terms++
	return offset, nil
}

// Terms returns how many records have been appended.
func (w *Writer) Terms() int {
	return w.terms
}

// CommitIndex makes the record file durable and moves it into place. It
// returns the file size.
func (w *Writer) CommitIndex() (int64, error) {
	if err := w.indexBuf.Flush(); err != nil {
		return 0, fmt.Errorf("flushing index file: %w", err)
	}
	if err := w.indexFile.Sync(); err != nil {
		return 0, fmt.Errorf("syncing index file: %w", err)
	}
	if err := w.indexFile.Close(); err != nil {
		return 0, fmt.Errorf("closing index file: %w", err)
	}
	w.indexFile = nil
	if err := os.Rename(w.tmp(IndexFile), filepath.Join(w.dir, IndexFile)); err != nil {
		return 0, fmt.Errorf("renaming index file: %w", err)
	}
	w.indexCommitted = true
	w.indexSize = w.cursor
	return w.cursor, nil
}

// CommitOffsets finishes the offset directory and moves it into place. It
// returns the directory's crc32.
func (w *Writer) CommitOffsets() (uint32, error) {
	if !w.indexCommitted {
		return 0, fmt.Errorf("offset directory committed before index file")
	}
	if err := w.builder.Close(); err != nil {
		return 0, fmt.Errorf("finishing offset directory: %w", err)
	}
	w.builder = nil
	if err := w.offsetsBuf.Flush(); err != nil {
		return 0, fmt.Errorf("flushing offset directory: %w", err)
	}
	if err := w.offsetsFile.Sync(); err != nil {
		return 0, fmt.Errorf("syncing offset directory: %w", err)
	}
	if err := w.offsetsFile.Close(); err != nil {
		return 0, fmt.Errorf("closing offset directory: %w", err)
	}
	w.offsetsFile = nil
	if err := os.Rename(w.tmp(OffsetsFile), filepath.Join(w.dir, OffsetsFile)); err != nil {
		return 0, fmt.Errorf("renaming offset directory: %w", err)
	}
	return w.offsetsCRC.Sum32(), nil
}

// Abort closes and removes whatever temporary files are still open.
func (w *Writer) Abort() error {
	var result *multierror.Error
	if w.builder != nil {
		w.builder.Close()
		w.builder = nil
	}
	if w.indexFile != nil {
		w.indexFile.Close()
		w.indexFile = nil
		if err := os.Remove(w.tmp(IndexFile)); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, err)
		}
	}
	if w.offsetsFile != nil {
		w.offsetsFile.Close()
		w.offsetsFile = nil
		if err := os.Remove(w.tmp(OffsetsFile)); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// WriteAddresses persists the doc_id → url table.
func WriteAddresses(dir string, addresses map[index.DocID]string) error {
	out := make(map[string]string, len(addresses))
	for id, url := range addresses {
		out[strconv.FormatUint(uint64(id), 10)] = url
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encoding address table: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, AddressesFile), data)
}

// WriteManifest persists m. It must be the last artifact of a run.
func WriteManifest(dir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, ManifestFile), data)
}

// RemoveManifest unpublishes the current index before a rebuild touches
// any artifact.
func RemoveManifest(dir string) error {
	err := os.Remove(filepath.Join(dir, ManifestFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing manifest: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmpPath, err)
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmpPath, err)
	}
	return nil
}
