package lake

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// SuccessMarker is written into a table's location after all of its data
	// files. A table location without it is incomplete.
	SuccessMarker = "_SUCCESS"

	// StagingDir is the top level location under which tables are written
	// before being swapped into place.
	StagingDir = "_staging"

	// DefaultPartition is the partition directory value used for null or
	// empty partition column values.
	DefaultPartition = "__HIVE_DEFAULT_PARTITION__"

	// DefaultMaxRowsPerFile bounds the size of a single data file.
	DefaultMaxRowsPerFile = 500000
)

// Store is the interface to wherever output tables are kept. Names are slash
// separated and relative to the Store's root.
type Store interface {
	// Create creates (or truncates) the named file. The data is only
	// guaranteed to be stored once Close returns nil.
	Create(ctx context.Context, name string) (io.WriteCloser, error)

	// Swap replaces everything under final with everything under staging,
	// and removes staging. If Swap fails, final must either still hold its
	// previous contents or lack a SuccessMarker.
	Swap(ctx context.Context, staging, final string) error

	// RemoveAll removes name and everything under it. Removing something
	// which does not exist is not an error.
	RemoveAll(ctx context.Context, name string) error
}

// FileCodec encodes rows into data files of a particular format.
type FileCodec interface {
	// Extension is the file name suffix for the format, including the dot.
	Extension() string
	NewRowWriter(w io.Writer, t Table) (RowWriter, error)
}

// RowWriter encodes rows of a single table to an underlying io.Writer. Close
// flushes any buffered rows but does not close the underlying writer.
type RowWriter interface {
	Write(r Row) error
	Close() error
}

// WriteResult summarizes a successful table write.
type WriteResult struct {
	Table      string
	Rows       int64
	Partitions int
	Files      int
}

// Writer writes tables to a Store, partitioned and with overwrite semantics.
type Writer struct {
	MaxRowsPerFile int
	Log            Logger
	Stats          Statter

	store Store
	codec FileCodec
	runID string
}

// NewWriter gets a Writer. runID distinguishes the staging location of this
// run from that of any other run.
func NewWriter(store Store, codec FileCodec, runID string) *Writer {
	return &Writer{
		MaxRowsPerFile: DefaultMaxRowsPerFile,
		Log:            NopLogger{},
		Stats:          NopStatter{},
		store:          store,
		codec:          codec,
		runID:          runID,
	}
}

// StagingPath returns where a run stages a table before swapping it in.
func StagingPath(runID, table string) string {
	return path.Join(StagingDir, runID, table)
}

// Write replaces the contents of table t with rows. Rows are grouped into
// partitions by the values of t.PartitionBy. Everything is first written to a
// staging location, and only once that has fully succeeded is it swapped in
// place of the previous table. Any error has ErrWriteFailure as its cause.
func (w *Writer) Write(ctx context.Context, t Table, rows Rows) (WriteResult, error) {
	res := WriteResult{Table: t.Name}
	parts := make(map[string][]Row)
	err := rows(func(r Row) error {
		p, err := PartitionPath(t, r.Values())
		if err != nil {
			return err
		}
		parts[p] = append(parts[p], r)
		return nil
	})
	if err != nil {
		return res, errors.Wrapf(ErrWriteFailure, "grouping %s rows: %v", t.Name, err)
	}
	keys := make([]string, 0, len(parts))
	for k := range parts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	staging := StagingPath(w.runID, t.Name)
	fail := func(err error) (WriteResult, error) {
		// the staged data is useless now, but ctx may well be what failed
		if rerr := w.store.RemoveAll(context.WithoutCancel(ctx), staging); rerr != nil {
			w.Log.Printf("removing staged data for %s: %v", t.Name, rerr)
		}
		return res, errors.Wrapf(ErrWriteFailure, "writing table %s: %v", t.Name, err)
	}

	for _, p := range keys {
		prows := parts[p]
		for i := 0; i*w.maxRows() < len(prows); i++ {
			if err := ctx.Err(); err != nil {
				return fail(err)
			}
			end := (i + 1) * w.maxRows()
			if end > len(prows) {
				end = len(prows)
			}
			name := path.Join(staging, p, fmt.Sprintf("part-%05d%s", i, w.codec.Extension()))
			if err := w.writeFile(ctx, t, name, prows[i*w.maxRows():end]); err != nil {
				return fail(err)
			}
			res.Files++
		}
		res.Rows += int64(len(prows))
		res.Partitions++
	}
	if err := w.writeMarker(ctx, path.Join(staging, SuccessMarker)); err != nil {
		return fail(err)
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	// a swap that has started runs to the end, or the table is left half
	// replaced
	if err := w.store.Swap(context.WithoutCancel(ctx), staging, t.Name); err != nil {
		return fail(errors.Wrap(err, "swapping staged data into place"))
	}
	w.Stats.Count(StatRowsWritten, res.Rows, 1, "table:"+t.Name)
	w.Log.Debugf("wrote %d rows of %s in %d files", res.Rows, t.Name, res.Files)
	return res, nil
}

func (w *Writer) maxRows() int {
	if w.MaxRowsPerFile <= 0 {
		return DefaultMaxRowsPerFile
	}
	return w.MaxRowsPerFile
}

func (w *Writer) writeFile(ctx context.Context, t Table, name string, rows []Row) error {
	f, err := w.store.Create(ctx, name)
	if err != nil {
		return errors.Wrapf(err, "creating %s", name)
	}
	rw, err := w.codec.NewRowWriter(f, t)
	if err != nil {
		f.Close()
		return errors.Wrapf(err, "starting %s", name)
	}
	for _, r := range rows {
		if err := rw.Write(r); err != nil {
			rw.Close()
			f.Close()
			return errors.Wrapf(err, "encoding row into %s", name)
		}
	}
	if err := rw.Close(); err != nil {
		f.Close()
		return errors.Wrapf(err, "flushing %s", name)
	}
	return errors.Wrapf(f.Close(), "closing %s", name)
}

func (w *Writer) writeMarker(ctx context.Context, name string) error {
	f, err := w.store.Create(ctx, name)
	if err != nil {
		return errors.Wrap(err, "creating success marker")
	}
	return errors.Wrap(f.Close(), "closing success marker")
}

// PartitionPath returns the hive style partition directory ("year=2018/month=11")
// for a row of t with the given values. It is empty for unpartitioned tables.
func PartitionPath(t Table, values map[string]interface{}) (string, error) {
	segs := make([]string, 0, len(t.PartitionBy))
	for _, col := range t.PartitionBy {
		v, ok := values[col]
		if !ok {
			return "", errors.Errorf("row has no value for partition column %s", col)
		}
		segs = append(segs, col+"="+PartitionValue(v))
	}
	return strings.Join(segs, "/"), nil
}

// PartitionValue formats a partition column value for use in a path.
func PartitionValue(v interface{}) string {
	switch vt := v.(type) {
	case nil:
		return DefaultPartition
	case string:
		if vt == "" {
			return DefaultPartition
		}
		return url.PathEscape(vt)
	case int64:
		return strconv.FormatInt(vt, 10)
	case int:
		return strconv.Itoa(vt)
	case float64:
		return strconv.FormatFloat(vt, 'f', -1, 64)
	case time.Time:
		return url.PathEscape(vt.Format(StartTimeLayout))
	default:
		return url.PathEscape(fmt.Sprint(vt))
	}
}

// ParsePartitionPath splits a partition directory back into column values.
// Values are returned as the strings they were formatted to, with
// DefaultPartition left as is.
func ParsePartitionPath(p string) (map[string]string, error) {
	vals := make(map[string]string)
	if p == "" || p == "." {
		return vals, nil
	}
	for _, seg := range strings.Split(p, "/") {
		i := strings.Index(seg, "=")
		if i < 1 {
			return nil, errors.Errorf("malformed partition segment '%s'", seg)
		}
		v, err := url.PathUnescape(seg[i+1:])
		if err != nil {
			return nil, errors.Wrapf(err, "unescaping partition segment '%s'", seg)
		}
		vals[seg[:i]] = v
	}
	return vals, nil
}
