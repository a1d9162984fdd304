package s3

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
	"github.com/sparkify/lake"
	"github.com/sparkify/lake/file"
)

// RawSource is a lake.RawSource over the objects under a prefix in an S3
// bucket.
type RawSource struct {
	ctx    context.Context
	client s3iface.S3API
	bucket string
	prefix string

	keys   []string
	objIdx *uint64
}

// NewRawSource lists every object under prefix in bucket whose key, relative
// to prefix, matches pattern (see file.MatchPattern). Objects are returned in
// lexical key order. ctx bounds the listing and every later fetch.
func NewRawSource(ctx context.Context, client s3iface.S3API, bucket, prefix, pattern string) (*RawSource, error) {
	idx := uint64(0)
	rs := &RawSource{
		ctx:    ctx,
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		objIdx: &idx,
	}
	err := client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(dirPrefix(rs.prefix)),
	}, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			if file.MatchPattern(pattern, rs.rel(key)) {
				rs.keys = append(rs.keys, key)
			}
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(lake.ErrSourceUnavailable, "listing s3://%s/%s: %v", bucket, rs.prefix, err)
	}
	sort.Strings(rs.keys)
	return rs, nil
}

func (rs *RawSource) rel(key string) string {
	return strings.TrimPrefix(strings.TrimPrefix(key, rs.prefix), "/")
}

// Keys returns the object keys the RawSource will read, in order.
func (rs *RawSource) Keys() []string { return rs.keys }

type objReader struct {
	io.ReadCloser
	name string
	meta map[string]interface{}
}

func (o *objReader) Name() string { return o.name }

func (o *objReader) Meta() map[string]interface{} { return o.meta }

// NextReader implements lake.RawSource. Names are keys relative to the
// source's prefix.
func (rs *RawSource) NextReader() (lake.NamedReadCloser, error) {
	idx := atomic.AddUint64(rs.objIdx, 1) - 1
	if int(idx) >= len(rs.keys) {
		return nil, io.EOF
	}
	key := rs.keys[idx]

	result, err := rs.client.GetObjectWithContext(rs.ctx, &s3.GetObjectInput{
		Bucket: aws.String(rs.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrapf(lake.ErrSourceUnavailable, "fetching s3://%s/%s: %v", rs.bucket, key, err)
	}
	return &objReader{
		ReadCloser: result.Body,
		name:       rs.rel(key),
		meta: map[string]interface{}{
			"bucket": rs.bucket,
			"key":    key,
		},
	}, nil
}
