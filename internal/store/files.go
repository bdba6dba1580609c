package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps the bytes of downloaded resources on disk. Paths handed
// out are relative to the root directory.
type FileStore struct {
	root string
}

// NewFileStore creates root if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create file store %s: %w", root, err)
	}
	return &FileStore{root: root}, nil
}

// Put copies r into storage for the node id and returns the relative
// storage path and the number of bytes written.
func (f *FileStore) Put(id string, r io.Reader) (string, int64, error) {
	rel := storagePath(id)
	full := filepath.Join(f.root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", 0, fmt.Errorf("store file %s: %w", id, err)
	}
	out, err := os.Create(full)
	if err != nil {
		return "", 0, fmt.Errorf("store file %s: %w", id, err)
	}
	n, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(full)
		return "", 0, fmt.Errorf("store file %s: %w", id, err)
	}
	return rel, n, nil
}

// Open returns a reader for a path returned by Put.
func (f *FileStore) Open(rel string) (io.ReadCloser, error) {
	full, err := f.resolve(rel)
	if err != nil {
		return nil, err
	}
	r, err := os.Open(full)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("open %s: %w", rel, ErrNotFound)
	}
	return r, err
}

// Remove deletes a stored file. Missing files are not an error.
func (f *FileStore) Remove(rel string) error {
	full, err := f.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", rel, err)
	}
	return nil
}

func (f *FileStore) resolve(rel string) (string, error) {
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid storage path %q", rel)
	}
	return filepath.Join(f.root, clean), nil
}

// storagePath fans files out over two directory levels keyed by the id.
func storagePath(id string) string {
	if len(id) < 4 {
		return filepath.Join("_", id)
	}
	return filepath.Join(id[0:2], id[2:4], id)
}
