package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskStore keeps cached audio as plain files in one directory. A file's
// presence is the only state, so the cache survives restarts. Temporary
// downloads live in a ".partial" subdirectory of the same filesystem, which
// makes Commit an atomic rename.
type DiskStore struct {
	dir string
	tmp string
}

var _ Store = (*DiskStore)(nil)

// NewDiskStore creates dir (and its temp subdirectory) if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cache: disk store: %w", err)
	}
	tmp := filepath.Join(abs, ".partial")
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return nil, fmt.Errorf("cache: disk store: %w", err)
	}
	return &DiskStore{dir: abs, tmp: tmp}, nil
}

// Dir returns the absolute cache directory.
func (s *DiskStore) Dir() string { return s.dir }

// TempDir returns the directory for in-progress downloads.
func (s *DiskStore) TempDir() string { return s.tmp }

// Exists reports whether a non-empty file exists for key.
func (s *DiskStore) Exists(_ context.Context, key string) (bool, error) {
	fi, err := os.Stat(filepath.Join(s.dir, key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.Mode().IsRegular() && fi.Size() > 0, nil
}

// Commit renames tmpPath to its final name. When tmpPath is on another
// filesystem the file is copied instead.
func (s *DiskStore) Commit(_ context.Context, key, tmpPath string) error {
	fi, err := os.Stat(tmpPath)
	if err != nil {
		return err
	}
	if fi.Size() == 0 {
		return fmt.Errorf("cache: refusing to commit empty file for %s", key)
	}
	dst := filepath.Join(s.dir, key)
	if err := os.Rename(tmpPath, dst); err == nil {
		return nil
	}
	return copyFile(tmpPath, dst)
}

// Ref returns the absolute file path for key.
func (s *DiskStore) Ref(key string) (string, error) {
	return filepath.Join(s.dir, key), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.copy")
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(out.Name())
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(out.Name())
		return err
	}
	return os.Rename(out.Name(), dst)
}
