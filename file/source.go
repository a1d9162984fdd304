package file

import (
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sparkify/lake"
)

// RawSource is a lake.RawSource over the files in a directory tree (or a
// single file) on local disk.
type RawSource struct {
	root    string
	files   []string
	fileIdx *uint64
}

// NewRawSource gets a RawSource for every regular file under root whose path
// relative to root matches pattern. The pattern is slash separated and each
// segment is matched with path.Match, so "song_data/*/*/*/*.json" matches
// files exactly four directories below song_data. An empty pattern matches
// every file. Files are returned in lexical order of their paths.
func NewRawSource(root, pattern string) (*RawSource, error) {
	fileIdx := uint64(0)
	s := &RawSource{
		root:    root,
		fileIdx: &fileIdx,
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(lake.ErrSourceUnavailable, "statting %s: %v", root, err)
	}
	if !info.IsDir() {
		s.files = []string{root}
		return s, nil
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, errors.Wrapf(err, "bad pattern '%s'", pattern)
	}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if MatchPattern(pattern, filepath.ToSlash(rel)) {
			s.files = append(s.files, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(lake.ErrSourceUnavailable, "walking %s: %v", root, err)
	}
	sort.Strings(s.files)
	return s, nil
}

// MatchPattern reports whether the slash separated name matches pattern
// segment by segment. An empty pattern matches everything.
func MatchPattern(pattern, name string) bool {
	if pattern == "" {
		return true
	}
	psegs := strings.Split(pattern, "/")
	nsegs := strings.Split(name, "/")
	if len(psegs) != len(nsegs) {
		return false
	}
	for i, p := range psegs {
		if ok, _ := path.Match(p, nsegs[i]); !ok {
			return false
		}
	}
	return true
}

// Files returns the paths the RawSource will read, in order.
func (s *RawSource) Files() []string { return s.files }

type metaFile struct {
	*os.File
	name string
}

func (m *metaFile) Name() string { return m.name }

func (m *metaFile) Meta() map[string]interface{} { return nil }

// NextReader implements lake.RawSource.
func (s *RawSource) NextReader() (lake.NamedReadCloser, error) {
	idx := atomic.AddUint64(s.fileIdx, 1) - 1
	if int(idx) >= len(s.files) {
		return nil, io.EOF
	}

	file, err := os.Open(s.files[idx])
	if err != nil {
		return nil, errors.Wrapf(lake.ErrSourceUnavailable, "opening %s: %v", s.files[idx], err)
	}
	name, err := filepath.Rel(s.root, s.files[idx])
	if err != nil || name == "." {
		name = filepath.Base(s.files[idx])
	}
	return &metaFile{File: file, name: filepath.ToSlash(name)}, nil
}
