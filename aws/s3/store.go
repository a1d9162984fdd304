package s3

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"
	"github.com/sparkify/lake"
)

// maximum number of keys in one DeleteObjects request
const deleteBatch = 1000

// Store is a lake.Store which keeps tables under a prefix in an S3 bucket.
//
// S3 has no rename, so Swap copies the staged objects over the final location
// and then deletes whatever is left of the previous table. The final
// SuccessMarker is deleted before anything else is touched and copied last,
// so a table caught mid swap is recognisable by its missing marker.
type Store struct {
	client   s3iface.S3API
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

// NewStore gets a Store writing under prefix in bucket.
func NewStore(client s3iface.S3API, bucket, prefix string) *Store {
	return &Store{
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
	}
}

func (s *Store) key(name string) string { return join(s.prefix, name) }

// Create implements lake.Store. Data is streamed to S3 as it is written; the
// object exists once Close returns nil.
func (s *Store) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	u := &upload{pw: pw, done: make(chan error, 1)}
	key := s.key(name)
	go func() {
		_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   pr,
		})
		// unblock any writer if the upload gave up early
		pr.CloseWithError(err)
		u.done <- errors.Wrapf(err, "uploading s3://%s/%s", s.bucket, key)
	}()
	return u, nil
}

type upload struct {
	pw   *io.PipeWriter
	done chan error
}

func (u *upload) Write(p []byte) (int, error) { return u.pw.Write(p) }

func (u *upload) Close() error {
	u.pw.Close()
	return <-u.done
}

// list returns every key under prefix.
func (s *Store) list(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	return keys, errors.Wrapf(err, "listing s3://%s/%s", s.bucket, prefix)
}

func (s *Store) delete(ctx context.Context, keys []string) error {
	for len(keys) > 0 {
		n := len(keys)
		if n > deleteBatch {
			n = deleteBatch
		}
		objs := make([]*s3.ObjectIdentifier, n)
		for i, k := range keys[:n] {
			objs[i] = &s3.ObjectIdentifier{Key: aws.String(k)}
		}
		out, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3.Delete{Objects: objs, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return errors.Wrapf(err, "deleting %d objects", n)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return errors.Errorf("deleting %s: %s", aws.StringValue(e.Key), aws.StringValue(e.Message))
		}
		keys = keys[n:]
	}
	return nil
}

func (s *Store) copy(ctx context.Context, from, to string) error {
	src := (&url.URL{Path: s.bucket + "/" + from}).EscapedPath()
	_, err := s.client.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(src),
		Key:        aws.String(to),
	})
	return errors.Wrapf(err, "copying %s to %s", from, to)
}

// Swap implements lake.Store.
func (s *Store) Swap(ctx context.Context, staging, final string) error {
	sp, fp := dirPrefix(s.key(staging)), dirPrefix(s.key(final))
	staged, err := s.list(ctx, sp)
	if err != nil {
		return err
	}
	if len(staged) == 0 {
		return errors.Errorf("nothing staged under %s", staging)
	}
	existing, err := s.list(ctx, fp)
	if err != nil {
		return err
	}

	marker := fp + lake.SuccessMarker
	if err := s.delete(ctx, []string{marker}); err != nil {
		return errors.Wrap(err, "invalidating previous table")
	}
	keep := make(map[string]bool, len(staged))
	var stagedMarker string
	for _, k := range staged {
		rel := strings.TrimPrefix(k, sp)
		if rel == lake.SuccessMarker {
			stagedMarker = k
			continue
		}
		keep[fp+rel] = true
		if err := s.copy(ctx, k, fp+rel); err != nil {
			return err
		}
	}
	var stale []string
	for _, k := range existing {
		if !keep[k] && k != marker {
			stale = append(stale, k)
		}
	}
	if err := s.delete(ctx, stale); err != nil {
		return errors.Wrap(err, "deleting previous table")
	}
	if stagedMarker != "" {
		if err := s.copy(ctx, stagedMarker, marker); err != nil {
			return err
		}
	}
	return errors.Wrap(s.delete(ctx, staged), "deleting staged objects")
}

// RemoveAll implements lake.Store.
func (s *Store) RemoveAll(ctx context.Context, name string) error {
	key := s.key(name)
	keys, err := s.list(ctx, dirPrefix(key))
	if err != nil {
		return err
	}
	return s.delete(ctx, append(keys, key))
}

// Open fetches an object from the store for reading.
func (s *Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", name)
	}
	return out.Body, nil
}

// List returns the names of every object under dir, relative to the store's
// root.
func (s *Store) List(ctx context.Context, dir string) ([]string, error) {
	keys, err := s.list(ctx, dirPrefix(s.key(dir)))
	if err != nil {
		return nil, err
	}
	root := dirPrefix(s.prefix)
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, root)
	}
	return keys, nil
}
