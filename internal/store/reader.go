package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/webindex/pkg/errors"
	"github.com/blevesearch/vellum"
	"github.com/hashicorp/go-multierror"
)

// Index is an opened, immutable final index. All methods are safe for
// concurrent use; lookups use positional reads and share no cursor.
type Index struct {
	dir       string
	file      *os.File
	size      int64
	offsets   *vellum.FST
	addresses map[index.DocID]string
	manifest  Manifest
}

// Open loads the manifest, offset directory and address table of dir and
// checks that they belong to the index file on disk. Missing or mismatched
// artifacts are reported as ErrIndexNotBuilt.
func Open(dir string) (*Index, error) {
	manifest, err := readManifest(dir)
	if err != nil {
		return nil, err
	}

	offsetsData, err := os.ReadFile(filepath.Join(dir, OffsetsFile))
	if err != nil {
		return nil, notBuilt(err, "reading offset directory")
	}
	if crc32.ChecksumIEEE(offsetsData) != manifest.OffsetsChecksum {
		return nil, fmt.Errorf("%w: offset directory checksum does not match manifest", apperrors.ErrIndexNotBuilt)
	}
	fst, err := vellum.Load(offsetsData)
	if err != nil {
		return nil, fmt.Errorf("%w: loading offset directory: %v", apperrors.ErrIndexNotBuilt, err)
	}

	addresses, err := readAddresses(dir)
	if err != nil {
		fst.Close()
		return nil, err
	}

	f, err := os.Open(filepath.Join(dir, IndexFile))
	if err != nil {
		fst.Close()
		return nil, notBuilt(err, "opening index file")
	}
	ix := &Index{
		dir:       dir,
		file:      f,
		offsets:   fst,
		addresses: addresses,
		manifest:  manifest,
	}
	if err := ix.verifyIndexFile(); err != nil {
		ix.Close()
		return nil, err
	}
	return ix, nil
}

func (ix *Index) verifyIndexFile() error {
	info, err := ix.file.Stat()
	if err != nil {
		return fmt.Errorf("stat index file: %w", err)
	}
	ix.size = info.Size()
	if ix.size != ix.manifest.IndexSize {
		return fmt.Errorf("%w: index file is %d bytes, manifest says %d", apperrors.ErrIndexNotBuilt, ix.size, ix.manifest.IndexSize)
	}
	buf := make([]byte, HeaderSize)
	if _, err := ix.file.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("%w: reading index header: %v", apperrors.ErrIndexNotBuilt, err)
	}
	header, err := decodeHeader(buf)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrIndexNotBuilt, err)
	}
	if header.RunID.String() != ix.manifest.RunID {
		return fmt.Errorf("%w: index file belongs to run %s, manifest to %s", apperrors.ErrIndexNotBuilt, header.RunID, ix.manifest.RunID)
	}
	if ix.offsets.Len() != ix.manifest.Terms {
		return fmt.Errorf("%w: offset directory holds %d terms, manifest says %d", apperrors.ErrIndexNotBuilt, ix.offsets.Len(), ix.manifest.Terms)
	}
	return nil
}

// Lookup returns the postings of term, or ok == false when the term is not
// in the offset directory.
func (ix *Index) Lookup(term string) (*index.PostingsList, bool, error) {
	offset, ok, err := ix.offsets.Get([]byte(term))
	if err != nil {
		return nil, false, fmt.Errorf("looking up offset of %q: %w", term, err)
	}
	if !ok {
		return nil, false, nil
	}
	entry, err := ix.ReadAt(int64(offset))
	if err != nil {
		return nil, false, err
	}
	if entry.Term != term {
		return nil, false, fmt.Errorf("%w: offset of %q points at %q", apperrors.ErrCorruptRecord, term, entry.Term)
	}
	return entry.List, true, nil
}

// ReadAt decodes the record that starts at offset.
func (ix *Index) ReadAt(offset int64) (index.TermEntry, error) {
	return readRecord(ix.file, offset, ix.size)
}

// Offsets calls fn for every term in ascending order with its record offset.
func (ix *Index) Offsets(fn func(term string, offset int64) error) error {
	it, err := ix.offsets.Iterator(nil, nil)
	for err == nil {
		key, val := it.Current()
		if ferr := fn(string(key), int64(val)); ferr != nil {
			it.Close()
			return ferr
		}
		err = it.Next()
	}
	if err != vellum.ErrIteratorDone {
		return fmt.Errorf("iterating offset directory: %w", err)
	}
	return nil
}

// Address returns the URL registered for doc.
func (ix *Index) Address(doc index.DocID) (string, bool) {
	url, ok := ix.addresses[doc]
	return url, ok
}

func (ix *Index) Manifest() Manifest {
	return ix.manifest
}

func (ix *Index) Dir() string {
	return ix.dir
}

func (ix *Index) Close() error {
	var result *multierror.Error
	if ix.offsets != nil {
		if err := ix.offsets.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if ix.file != nil {
		if err := ix.file.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// ReadManifest returns the manifest of the index in dir.
func ReadManifest(dir string) (Manifest, error) {
	return readManifest(dir)
}

func readManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return Manifest{}, notBuilt(err, "reading manifest")
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: decoding manifest: %v", apperrors.ErrIndexNotBuilt, err)
	}
	return m, nil
}

func readAddresses(dir string) (map[index.DocID]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, AddressesFile))
	if err != nil {
		return nil, notBuilt(err, "reading address table")
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decoding address table: %v", apperrors.ErrIndexNotBuilt, err)
	}
	addresses := make(map[index.DocID]string, len(raw))
	for key, url := range raw {
		id, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: address table key %q", apperrors.ErrIndexNotBuilt, key)
		}
		addresses[index.DocID(id)] = url
	}
	return addresses, nil
}

func notBuilt(err error, what string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s: missing", apperrors.ErrIndexNotBuilt, what)
	}
	return fmt.Errorf("%w: %s: %v", apperrors.ErrIndexNotBuilt, what, err)
}
