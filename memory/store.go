// Package memory provides in-process implementations of the keymanager
// collaborators: a BlobStore with directory semantics and a ShareIndex.
// They are meant for tests and for embedding in single-process tools.
package memory

import (
	"context"
	"errors"
	"io/fs"
	"path"
	"sort"
	"sync"

	"github.com/rbaliyan/keymanager"
)

// Store is an in-memory keymanager.BlobStore.
//
// Unlike a flat map it tracks directories: Put fails with fs.ErrNotExist when
// the parent directory was never created, mirroring a real filesystem.
// It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]struct{}
}

// NewStore creates an empty store containing only the root directory.
func NewStore() *Store {
	return &Store{
		files: make(map[string][]byte),
		dirs:  map[string]struct{}{"/": {}},
	}
}

// Compile-time interface check.
var _ keymanager.BlobStore = (*Store)(nil)

// Get returns a copy of the blob at p.
func (s *Store) Get(_ context.Context, p string) ([]byte, error) {
	p = clean(p)
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.files[p]
	if !ok {
		return nil, &fs.PathError{Op: "get", Path: p, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), b...), nil
}

// Put replaces the blob at p. The swap happens under the write lock, so readers
// observe either the old or the new content.
func (s *Store) Put(_ context.Context, p string, data []byte) error {
	p = clean(p)
	if p == "/" {
		return &fs.PathError{Op: "put", Path: p, Err: fs.ErrInvalid}
	}
	b := append([]byte(nil), data...)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dirs[path.Dir(p)]; !ok {
		return &fs.PathError{Op: "put", Path: p, Err: fs.ErrNotExist}
	}
	if _, ok := s.dirs[p]; ok {
		return &fs.PathError{Op: "put", Path: p, Err: errors.New("is a directory")}
	}
	s.files[p] = b
	return nil
}

// Exists reports whether a blob or a directory exists at p.
func (s *Store) Exists(_ context.Context, p string) (bool, error) {
	p = clean(p)
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[p]; ok {
		return true, nil
	}
	_, ok := s.dirs[p]
	return ok, nil
}

// Mkdir creates p and its missing parents. Existing directories are not an error.
func (s *Store) Mkdir(_ context.Context, p string) error {
	p = clean(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []string
	for d := p; ; d = path.Dir(d) {
		if _, ok := s.dirs[d]; ok {
			break
		}
		if _, ok := s.files[d]; ok {
			return &fs.PathError{Op: "mkdir", Path: d, Err: errors.New("not a directory")}
		}
		missing = append(missing, d)
	}
	for _, d := range missing {
		s.dirs[d] = struct{}{}
	}
	return nil
}

// Paths lists every stored blob path in lexical order.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.files))
	for p := range s.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func clean(p string) string {
	return path.Clean("/" + p)
}
