package segment

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/webindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/webindex/pkg/errors"
)

// Reader streams the records of one shard file.
type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	checksum uint32
}

// OpenReader validates the header and footer of a shard. Any structural
// problem is reported as ErrCorruptShard.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening shard file: %w", err)
	}
	r, err := open(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func open(f *os.File, path string) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat shard file: %w", err)
	}
	if info.Size() < int64(HeaderSize+FooterSize) {
		return nil, fmt.Errorf("%w: %s: truncated (%d bytes)", apperrors.ErrCorruptShard, path, info.Size())
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading shard header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		return nil, fmt.Errorf("%w: %s: bad magic bytes %x", apperrors.ErrCorruptShard, path, magic)
	}
	header := SegmentHeader{
		Magic:       magic,
		Version:     binary.LittleEndian.Uint32(headerBytes[4:8]),
		TermCount:   binary.LittleEndian.Uint32(headerBytes[8:12]),
		DocCount:    binary.LittleEndian.Uint32(headerBytes[12:16]),
		CreatedAt:   int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		RecordsOff:  int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		RecordsSize: int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version %d", apperrors.ErrCorruptShard, path, header.Version)
	}
	if header.RecordsOff != int64(HeaderSize) || header.RecordsOff+header.RecordsSize+int64(FooterSize) != info.Size() {
		return nil, fmt.Errorf("%w: %s: record region does not match file size", apperrors.ErrCorruptShard, path)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, info.Size()-int64(FooterSize)); err != nil {
		return nil, fmt.Errorf("reading shard footer: %w", err)
	}
	if binary.LittleEndian.Uint32(footer[28:32]) != MagicBytes ||
		binary.LittleEndian.Uint32(footer[4:8]) != header.TermCount ||
		int64(binary.LittleEndian.Uint64(footer[16:24])) != header.RecordsSize {
		return nil, fmt.Errorf("%w: %s: footer does not match header", apperrors.ErrCorruptShard, path)
	}
	return &Reader{
		file:     f,
		filePath: path,
		header:   header,
		checksum: binary.LittleEndian.Uint32(footer[0:4]),
	}, nil
}

// Each decodes every record in file order and passes it to fn. The record
// checksum is verified once the region has been read; a mismatch, a short
// record or a term count that disagrees with the header is ErrCorruptShard.
func (r *Reader) Each(fn func(index.TermEntry) error) error {
	crc := crc32.NewIEEE()
	section := io.NewSectionReader(r.file, r.header.RecordsOff, r.header.RecordsSize)
	br := bufio.NewReaderSize(io.TeeReader(section, crc), 256*1024)

	var terms uint32
	var payload []byte
	for {
		length, err := binary.ReadUvarint(br)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %s: reading record length: %v", apperrors.ErrCorruptShard, r.filePath, err)
		}
		if length > uint64(r.header.RecordsSize) {
			return fmt.Errorf("%w: %s: record length %d exceeds region", apperrors.ErrCorruptShard, r.filePath, length)
		}
		if uint64(cap(payload)) < length {
			payload = make([]byte, length)
		}
		payload = payload[:length]
		if _, err := io.ReadFull(br, payload); err != nil {
			return fmt.Errorf("%w: %s: reading record: %v", apperrors.ErrCorruptShard, r.filePath, err)
		}
		entry, err := index.UnmarshalEntry(payload)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", apperrors.ErrCorruptShard, r.filePath, err)
		}
		terms++
		if err := fn(entry); err != nil {
			return err
		}
	}
	if terms != r.header.TermCount {
		return fmt.Errorf("%w: %s: read %d terms, header says %d", apperrors.ErrCorruptShard, r.filePath, terms, r.header.TermCount)
	}
	if crc.Sum32() != r.checksum {
		return fmt.Errorf("%w: %s: checksum mismatch", apperrors.ErrCorruptShard, r.filePath)
	}
	return nil
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) Terms() int {
	return int(r.header.TermCount)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Close() error {
	return r.file.Close()
}

// List returns the shard files in dataDir in ascending shard order. A missing
// directory holds no shards.
func List(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading shard directory: %w", err)
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), Extension) {
			paths = append(paths, filepath.Join(dataDir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
