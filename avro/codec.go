// Package avro encodes output tables as Avro object container files.
package avro

import (
	"encoding/json"
	"io"
	"time"

	"github.com/linkedin/goavro/v2"
	"github.com/pkg/errors"
	"github.com/sparkify/lake"
)

// Namespace is the Avro namespace of every table record schema.
const Namespace = "lake"

// Codec is a lake.FileCodec writing Avro object container files.
type Codec struct {
	// CompressionName is one of goavro's compression labels: "null",
	// "deflate" or "snappy".
	CompressionName string
}

// NewCodec gets a Codec which compresses blocks with snappy.
func NewCodec() *Codec {
	return &Codec{CompressionName: goavro.CompressionSnappyLabel}
}

// Extension implements lake.FileCodec.
func (c *Codec) Extension() string { return ".avro" }

// NewRowWriter implements lake.FileCodec.
func (c *Codec) NewRowWriter(w io.Writer, t lake.Table) (lake.RowWriter, error) {
	schema, err := Schema(t)
	if err != nil {
		return nil, err
	}
	ocfw, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Schema:          schema,
		CompressionName: c.CompressionName,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "creating OCF writer for %s", t.Name)
	}
	return &rowWriter{
		t:     t,
		ocfw:  ocfw,
		batch: make([]interface{}, 0, blockSize),
	}, nil
}

// rows are appended in blocks of this many
const blockSize = 1000

type rowWriter struct {
	t     lake.Table
	ocfw  *goavro.OCFWriter
	batch []interface{}
}

func (w *rowWriter) Write(r lake.Row) error {
	native, err := toNative(w.t, r.Values())
	if err != nil {
		return err
	}
	w.batch = append(w.batch, native)
	if len(w.batch) >= blockSize {
		return w.flush()
	}
	return nil
}

func (w *rowWriter) flush() error {
	if len(w.batch) == 0 {
		return nil
	}
	err := w.ocfw.Append(w.batch)
	w.batch = w.batch[:0]
	return errors.Wrapf(err, "appending %s block", w.t.Name)
}

func (w *rowWriter) Close() error { return w.flush() }

func typeName(ct lake.ColumnType) (interface{}, error) {
	switch ct {
	case lake.TypeString:
		return "string", nil
	case lake.TypeLong:
		return "long", nil
	case lake.TypeDouble:
		return "double", nil
	case lake.TypeTimestamp:
		return map[string]string{"type": "long", "logicalType": "timestamp-millis"}, nil
	}
	return nil, errors.Errorf("unknown column type %d", ct)
}

// Schema returns the Avro record schema for t. Nullable columns are unions
// with null, defaulting to null.
func Schema(t lake.Table) (string, error) {
	fields := make([]map[string]interface{}, 0, len(t.Columns))
	for _, c := range t.Columns {
		typ, err := typeName(c.Type)
		if err != nil {
			return "", errors.Wrapf(err, "column %s of %s", c.Name, t.Name)
		}
		f := map[string]interface{}{"name": c.Name, "type": typ}
		if c.Nullable {
			f["type"] = []interface{}{"null", typ}
			f["default"] = nil
		}
		fields = append(fields, f)
	}
	bs, err := json.Marshal(map[string]interface{}{
		"type":      "record",
		"name":      t.Name,
		"namespace": Namespace,
		"fields":    fields,
	})
	return string(bs), errors.Wrap(err, "marshaling schema")
}

// unionBranch is the name goavro knows a union branch by.
func unionBranch(ct lake.ColumnType) string {
	switch ct {
	case lake.TypeString:
		return "string"
	case lake.TypeDouble:
		return "double"
	case lake.TypeTimestamp:
		return "long.timestamp-millis"
	}
	return "long"
}

func toNative(t lake.Table, values map[string]interface{}) (map[string]interface{}, error) {
	native := make(map[string]interface{}, len(t.Columns))
	for _, c := range t.Columns {
		v, ok := values[c.Name]
		if !ok {
			return nil, errors.Errorf("row of %s has no value for %s", t.Name, c.Name)
		}
		if v == nil {
			if !c.Nullable {
				return nil, errors.Errorf("null value for non-nullable column %s of %s", c.Name, t.Name)
			}
			native[c.Name] = nil
			continue
		}
		if c.Type == lake.TypeTimestamp {
			if _, ok := v.(time.Time); !ok {
				return nil, errors.Errorf("column %s of %s needs a time.Time, got %T", c.Name, t.Name, v)
			}
		}
		if c.Nullable {
			v = goavro.Union(unionBranch(c.Type), v)
		}
		native[c.Name] = v
	}
	return native, nil
}
