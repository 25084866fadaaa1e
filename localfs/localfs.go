// Package localfs provides a keymanager.BlobStore rooted in a local directory.
//
// Blob paths are "/"-separated and always resolved inside the root; ".." cannot
// climb out of it. Writes go to a uniquely named temporary file in the target
// directory, are synced, and then renamed over the destination, so readers see
// either the previous blob or the new one.
package localfs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/rbaliyan/keymanager"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

// Store is a filesystem-backed blob store.
type Store struct {
	root string
}

// Compile-time interface check.
var _ keymanager.BlobStore = (*Store)(nil)

// New constructs a Store rooted at root. The directory will be created if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return nil, err
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string {
	return s.root
}

// Get reads the blob at p. Missing blobs yield an error matching fs.ErrNotExist.
func (s *Store) Get(_ context.Context, p string) ([]byte, error) {
	b, err := os.ReadFile(s.pathFor(p))
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Put atomically replaces the blob at p. The parent directory must exist.
func (s *Store) Put(_ context.Context, p string, data []byte) error {
	dst := s.pathFor(p)
	if dst == s.root {
		return &fs.PathError{Op: "put", Path: p, Err: fs.ErrInvalid}
	}
	tmp := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+"."+uuid.NewString()+".tmp")

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Exists reports whether a file or directory exists at p.
func (s *Store) Exists(_ context.Context, p string) (bool, error) {
	_, err := os.Stat(s.pathFor(p))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Mkdir creates the directory p and any missing parents.
// Concurrent callers creating the same directory all succeed.
func (s *Store) Mkdir(_ context.Context, p string) error {
	return os.MkdirAll(s.pathFor(p), dirPerm)
}

// pathFor maps a blob path onto the filesystem. Cleaning against "/" first
// drops any ".." that would leave the root.
func (s *Store) pathFor(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(path.Clean("/"+p)))
}
