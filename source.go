package lake

import (
	"io"
)

// Source is the interface for getting decoded records one at a time. Record
// returns io.EOF once the source is exhausted. A *RecordParseError means the
// current record was skipped and reading may continue.
type Source interface {
	Record() (interface{}, error)
}

// RawSource is the interface for getting at each file in a logical location.
// NextReader returns io.EOF when there are no more files. Implementations must
// return files in the same order for the same underlying data so that runs are
// reproducible.
type RawSource interface {
	NextReader() (NamedReadCloser, error)
}

// NamedReadCloser is an io.ReadCloser which also knows the name of the file or
// object it reads from.
type NamedReadCloser interface {
	io.ReadCloser
	Name() string
	Meta() map[string]interface{}
}
