package mock

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Store is an in-memory lake.Store. Failures can be injected by setting
// FailCreate or FailSwap.
type Store struct {
	mu    sync.Mutex
	files map[string][]byte

	// FailCreate, if set, is called with the name of each file created; a
	// non-nil return fails the Create.
	FailCreate func(name string) error
	// FailSwap, if set, is called with the final name of each swap; a non-nil
	// return fails the Swap before anything is changed.
	FailSwap func(final string) error
}

// NewStore gets an empty Store.
func NewStore() *Store {
	return &Store{files: make(map[string][]byte)}
}

type memFile struct {
	bytes.Buffer
	s    *Store
	name string
}

func (f *memFile) Close() error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.files[f.name] = f.Bytes()
	return nil
}

// Create implements lake.Store.
func (s *Store) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.FailCreate != nil {
		if err := s.FailCreate(name); err != nil {
			return nil, err
		}
	}
	return &memFile{s: s, name: name}, nil
}

func under(name, dir string) bool {
	return name == dir || strings.HasPrefix(name, dir+"/")
}

// Swap implements lake.Store.
func (s *Store) Swap(ctx context.Context, staging, final string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.FailSwap != nil {
		if err := s.FailSwap(final); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	moved := make(map[string][]byte)
	for name, data := range s.files {
		if under(name, staging) {
			moved[final+strings.TrimPrefix(name, staging)] = data
		}
	}
	if len(moved) == 0 {
		return errors.Errorf("nothing staged under %s", staging)
	}
	for name := range s.files {
		if under(name, staging) || under(name, final) {
			delete(s.files, name)
		}
	}
	for name, data := range moved {
		s.files[name] = data
	}
	return nil
}

// RemoveAll implements lake.Store.
func (s *Store) RemoveAll(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for n := range s.files {
		if under(n, name) {
			delete(s.files, n)
		}
	}
	return nil
}

// Open returns the contents of a stored file.
func (s *Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[name]
	if !ok {
		return nil, errors.Errorf("no file %s", name)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// List returns the names of the stored files under dir, in order. An empty
// dir lists everything.
func (s *Store) List(ctx context.Context, dir string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for n := range s.files {
		if dir == "" || under(n, dir) {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names, nil
}
