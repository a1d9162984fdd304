package lake

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error is a constant error type so that sentinel errors can be declared as
// constants and compared after errors.Cause.
type Error string

func (e Error) Error() string { return string(e) }

const (
	// ErrSourceUnavailable is the cause of any error which means an input
	// location could not be opened or listed. It is fatal to a run.
	ErrSourceUnavailable = Error("source unavailable")

	// ErrWriteFailure is the cause of any error which means an output table
	// could not be written. It is fatal to a run, but the previous contents of
	// the table are left in place.
	ErrWriteFailure = Error("write failure")
)

// RecordParseError is returned by a Source when a single record could not be
// decoded as a JSON object. The record is skipped.
type RecordParseError struct {
	// Name of the file or object the record came from.
	Name string
	// Index of the record within that file.
	Index int
	Err   error
}

func (e *RecordParseError) Error() string {
	return fmt.Sprintf("record %d of %s: %v", e.Index, e.Name, e.Err)
}

func (e *RecordParseError) Unwrap() error { return e.Err }

// InvalidTimestampError is returned when an event timestamp is negative or
// could not be interpreted as integral epoch milliseconds.
type InvalidTimestampError struct {
	Value interface{}
}

func (e *InvalidTimestampError) Error() string {
	return fmt.Sprintf("invalid timestamp %v", e.Value)
}

// IsRecordError returns true if err only concerns a single record, meaning the
// record should be counted and skipped rather than failing the run.
func IsRecordError(err error) bool {
	switch errors.Cause(err).(type) {
	case *RecordParseError, *InvalidTimestampError:
		return true
	}
	return false
}
