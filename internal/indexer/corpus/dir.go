package corpus

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DirSource reads one JSON record per *.json file under a directory tree,
// visiting files in lexical path order.
type DirSource struct {
	files []string
	pos   int
}

func NewDirSource(root string) (*DirSource, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking corpus directory %s: %w", root, err)
	}
	return &DirSource{files: files}, nil
}

func (s *DirSource) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if s.pos >= len(s.files) {
		return Record{}, io.EOF
	}
	path := s.files[s.pos]
	s.pos++
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("reading corpus file %s: %w", path, err)
	}
	rec, err := Decode(data)
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

// Len reports how many files the walk found.
func (s *DirSource) Len() int {
	return len(s.files)
}

func (s *DirSource) Close() error {
	return nil
}
