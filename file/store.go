package file

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Store is a lake.Store which keeps tables in a directory on local disk.
type Store struct {
	root string
}

// NewStore gets a Store rooted at the directory root, creating it if need be.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrap(err, "making store directory")
	}
	return &Store{root: root}, nil
}

// Root returns the directory the Store writes under.
func (s *Store) Root() string { return s.root }

func (s *Store) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Create implements lake.Store.
func (s *Store) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := s.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return nil, errors.Wrapf(err, "making directory for %s", name)
	}
	f, err := os.Create(p)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", name)
	}
	return &syncFile{f}, nil
}

// syncFile fsyncs before closing so that a swapped in table is durable.
type syncFile struct {
	*os.File
}

func (f *syncFile) Close() error {
	if err := f.File.Sync(); err != nil {
		f.File.Close()
		return errors.Wrap(err, "syncing")
	}
	return f.File.Close()
}

// Swap implements lake.Store. The previous contents of final are moved aside,
// staging is renamed to final, and then the previous contents are deleted. If
// the rename fails the previous contents are moved back.
func (s *Store) Swap(ctx context.Context, staging, final string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sp, fp := s.path(staging), s.path(final)
	if _, err := os.Stat(sp); err != nil {
		return errors.Wrapf(err, "statting staged %s", staging)
	}
	if err := os.MkdirAll(filepath.Dir(fp), 0755); err != nil {
		return errors.Wrapf(err, "making directory for %s", final)
	}
	old := fp + ".old"
	if err := os.RemoveAll(old); err != nil {
		return errors.Wrapf(err, "clearing leftover %s", old)
	}
	hadOld := true
	if err := os.Rename(fp, old); os.IsNotExist(err) {
		hadOld = false
	} else if err != nil {
		return errors.Wrapf(err, "moving %s aside", final)
	}
	if err := os.Rename(sp, fp); err != nil {
		if hadOld {
			if rerr := os.Rename(old, fp); rerr != nil {
				return errors.Wrapf(err, "renaming staged data (and restoring previous %s failed: %v)", final, rerr)
			}
		}
		return errors.Wrapf(err, "renaming staged data to %s", final)
	}
	if hadOld {
		// the swap itself succeeded; a leftover is cleared by the next Swap
		_ = os.RemoveAll(old)
	}
	return nil
}

// RemoveAll implements lake.Store.
func (s *Store) RemoveAll(ctx context.Context, name string) error {
	return errors.Wrapf(os.RemoveAll(s.path(name)), "removing %s", name)
}

// Open opens a file in the store for reading.
func (s *Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(name))
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", name)
	}
	return f, nil
}

// List returns the names of every file under dir, relative to the store's
// root and in lexical order.
func (s *Store) List(ctx context.Context, dir string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.path(dir), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	return names, errors.Wrapf(err, "listing %s", dir)
}
