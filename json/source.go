package json

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/sparkify/lake"
)

// Source is a lake.Source for reading a stream of JSON objects, such as
// newline delimited JSON.
type Source struct {
	name string
	r    *bufio.Reader
	dec  *json.Decoder
	idx  int
	done bool
}

// NewSource gets a new json source which will decode from the given reader.
func NewSource(r io.Reader) *Source {
	return NewNamedSource(r, "")
}

// NewNamedSource is NewSource, with name used to identify the input in
// errors.
func NewNamedSource(r io.Reader, name string) *Source {
	s := &Source{name: name}
	s.reset(r)
	return s
}

func (s *Source) reset(r io.Reader) {
	s.r = bufio.NewReader(r)
	s.dec = json.NewDecoder(s.r)
	s.dec.UseNumber()
}

// Record implements lake.Source. It returns the next JSON object that can be
// decoded from the reader as a map[string]interface{}, with numbers as
// json.Number. A value which is not an object, or is not valid JSON, gets a
// *lake.RecordParseError; invalid JSON is skipped up to the end of the line
// it starts on so that following records can still be read.
func (s *Source) Record() (interface{}, error) {
	if s.done {
		return nil, io.EOF
	}
	var res interface{}
	err := s.dec.Decode(&res)
	if err == io.EOF {
		s.done = true
		return nil, io.EOF
	}
	idx := s.idx
	s.idx++
	switch err.(type) {
	case nil:
	case *json.SyntaxError:
		if rerr := s.resync(); rerr != nil {
			return nil, errors.Wrapf(rerr, "skipping malformed record in %s", s.name)
		}
		return nil, &lake.RecordParseError{Name: s.name, Index: idx, Err: err}
	default:
		if err == io.ErrUnexpectedEOF {
			// truncated final record
			s.done = true
			return nil, &lake.RecordParseError{Name: s.name, Index: idx, Err: err}
		}
		return nil, errors.Wrapf(err, "reading %s", s.name)
	}
	m, ok := res.(map[string]interface{})
	if !ok {
		return nil, &lake.RecordParseError{Name: s.name, Index: idx, Err: errors.Errorf("expected an object, but got %T", res)}
	}
	return m, nil
}

// resync discards the rest of the line holding the value the decoder choked
// on, and restarts decoding after it.
func (s *Source) resync() error {
	br := bufio.NewReader(io.MultiReader(s.dec.Buffered(), s.r))
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			s.reset(br)
			return nil
		} else if err != nil {
			return err
		}
		if b != ' ' && b != '\t' && b != '\r' && b != '\n' {
			break
		}
	}
	_, err := br.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return err
	}
	s.reset(br)
	return nil
}

type rawSourceSource struct {
	rs lake.RawSource

	cur lake.NamedReadCloser
	s   *Source
}

// NewSourceFromRawSource gets a lake.Source which decodes JSON objects from
// each file of rs in turn.
func NewSourceFromRawSource(rs lake.RawSource) lake.Source {
	return &rawSourceSource{rs: rs}
}

func (r *rawSourceSource) Record() (rec interface{}, err error) {
	for {
		if r.s == nil {
			reader, err := r.rs.NextReader()
			if err == io.EOF {
				return nil, io.EOF
			} else if err != nil {
				return nil, errors.Wrap(err, "getting next reader")
			}
			r.cur = reader
			r.s = NewNamedSource(reader, reader.Name())
		}
		rec, err = r.s.Record()
		if err != io.EOF {
			return rec, err
		}
		if cerr := r.cur.Close(); cerr != nil {
			return nil, errors.Wrapf(cerr, "closing %s", r.cur.Name())
		}
		r.cur, r.s = nil, nil
	}
}
