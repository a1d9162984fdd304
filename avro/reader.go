package avro

import (
	"io"

	"github.com/linkedin/goavro/v2"
	"github.com/pkg/errors"
)

// ReadAll decodes every record of an object container file. Union values are
// unwrapped, so nullable columns come back as their plain value or nil.
func ReadAll(r io.Reader) ([]map[string]interface{}, error) {
	ocfr, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "creating OCF reader")
	}
	var recs []map[string]interface{}
	for ocfr.Scan() {
		datum, err := ocfr.Read()
		if err != nil {
			return nil, errors.Wrap(err, "reading record")
		}
		rec, ok := datum.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("expected a record, but got %T", datum)
		}
		for k, v := range rec {
			rec[k] = unwrap(v)
		}
		recs = append(recs, rec)
	}
	return recs, errors.Wrap(ocfr.Err(), "scanning")
}

func unwrap(v interface{}) interface{} {
	u, ok := v.(map[string]interface{})
	if !ok || len(u) != 1 {
		return v
	}
	for _, inner := range u {
		return inner
	}
	return v
}
