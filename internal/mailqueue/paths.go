package mailqueue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dir returns the directory of a queue entry relative to the spool root,
// with a trailing slash. Hashed queues get one forest level per leading
// character of id, with "_" standing in for characters past the end.
func (s *Store) Dir(queue, id string) string {
	if !ValidName(queue) {
		panic(fmt.Sprintf("mailqueue: bad queue name %q", queue))
	}
	if !ValidID(id) {
		panic(fmt.Sprintf("mailqueue: bad queue id %q", id))
	}
	var b strings.Builder
	b.WriteString(queue)
	b.WriteByte('/')
	if _, ok := s.hashed[queue]; ok {
		for i := 0; i < s.depth; i++ {
			if i < len(id) {
				b.WriteByte(id[i])
			} else {
				b.WriteByte('_')
			}
			b.WriteByte('/')
		}
	}
	return b.String()
}

// Path returns the location of a queue entry relative to the spool root.
func (s *Store) Path(queue, id string) string {
	return s.Dir(queue, id) + id
}

// AbsPath returns Path joined onto the spool root.
func (s *Store) AbsPath(queue, id string) string {
	return filepath.Join(s.root, filepath.FromSlash(s.Path(queue, id)))
}

// Root returns the spool root directory.
func (s *Store) Root() string {
	return s.root
}

// MakeDirs creates the missing parent directories of the spool-relative
// path. Existing directories are left alone.
func (s *Store) MakeDirs(path string) error {
	dir := filepath.Dir(s.abs(path))
	if err := os.MkdirAll(dir, dirMode); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("create queue directory %s: %w", dir, err)
	}
	return nil
}

func (s *Store) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.root, filepath.FromSlash(path))
}

// EnsureQueue creates the top-level directory of queue. Enter expects it to
// exist and retries until it does.
func (s *Store) EnsureQueue(queue string) error {
	if !ValidName(queue) {
		panic(fmt.Sprintf("mailqueue: bad queue name %q", queue))
	}
	dir := filepath.Join(s.root, queue)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create queue directory %s: %w", dir, err)
	}
	return nil
}
