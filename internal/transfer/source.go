// Package transfer abstracts the remote drop location settlement files
// are fetched from. The production deployment points this at an SFTP
// endpoint; tests and local runs use the directory-backed source.
package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileSource lists and fetches settlement files from a drop location.
type FileSource interface {
	// List returns the file names available at the source, sorted.
	List(ctx context.Context) ([]string, error)
	// Fetch opens the named file for reading. The caller closes it.
	Fetch(ctx context.Context, name string) (io.ReadCloser, error)
}

// DirSource reads settlement files from a local directory.
type DirSource struct {
	dir    string
	suffix string
}

// NewDirSource wires a DirSource over dir, filtered to names ending in
// suffix (matched case-insensitively; empty accepts everything).
func NewDirSource(dir, suffix string) *DirSource {
	return &DirSource{dir: dir, suffix: strings.ToLower(suffix)}
}

func (s *DirSource) List(ctx context.Context) ([]string, error) {
	if errCtx := ctx.Err(); errCtx != nil {
		return nil, errCtx
	}
	entries, errRead := os.ReadDir(s.dir)
	if errRead != nil {
		return nil, fmt.Errorf("transfer: list %s: %w", s.dir, errRead)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if s.suffix != "" && !strings.HasSuffix(strings.ToLower(name), s.suffix) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *DirSource) Fetch(ctx context.Context, name string) (io.ReadCloser, error) {
	if errCtx := ctx.Err(); errCtx != nil {
		return nil, errCtx
	}
	if filepath.Base(name) != name {
		return nil, fmt.Errorf("transfer: invalid file name %q", name)
	}
	file, errOpen := os.Open(filepath.Join(s.dir, name))
	if errOpen != nil {
		return nil, fmt.Errorf("transfer: fetch %s: %w", name, errOpen)
	}
	return file, nil
}
