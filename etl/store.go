package etl

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/sparkify/lake"
	"github.com/sparkify/lake/aws/s3"
	"github.com/sparkify/lake/file"
)

// Store is a lake.Store which can also be read back from.
type Store interface {
	lake.Store
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, dir string) ([]string, error)
}

var (
	_ Store = &file.Store{}
	_ Store = &s3.Store{}
)

// OpenStore gets a Store for location, which is a local directory or an
// s3://bucket/prefix URL.
func OpenStore(location string, c s3.Config) (Store, error) {
	if !s3.IsURL(location) {
		s, err := file.NewStore(location)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	bucket, prefix, err := s3.ParseURL(location)
	if err != nil {
		return nil, err
	}
	client, err := s3.NewClient(c)
	if err != nil {
		return nil, errors.Wrap(err, "getting s3 client")
	}
	return s3.NewStore(client, bucket, prefix), nil
}

// OpenRawSource gets a lake.RawSource for the files under location (a local
// directory or an s3://bucket/prefix URL) matching pattern.
func OpenRawSource(ctx context.Context, location, pattern string, c s3.Config) (lake.RawSource, error) {
	if !s3.IsURL(location) {
		rs, err := file.NewRawSource(location, pattern)
		if err != nil {
			return nil, err
		}
		return rs, nil
	}
	bucket, prefix, err := s3.ParseURL(location)
	if err != nil {
		return nil, err
	}
	client, err := s3.NewClient(c)
	if err != nil {
		return nil, errors.Wrapf(lake.ErrSourceUnavailable, "getting s3 client: %v", err)
	}
	rs, err := s3.NewRawSource(ctx, client, bucket, prefix, pattern)
	if err != nil {
		return nil, err
	}
	return rs, nil
}
