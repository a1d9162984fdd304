package s3

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
	"github.com/sparkify/lake"
	"github.com/sparkify/lake/avro"
	"github.com/stretchr/testify/require"
)

const testBucket = "lake-test"

// fakeS3 answers S3 requests from memory. It sits in place of the client's
// send handler, so requests are still built, validated and signed by the SDK.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    map[string]bool
	// served, if set, is called after each request is answered.
	served func(r *request.Request)
}

func newFakeS3(objects map[string]string) *fakeS3 {
	f := &fakeS3{objects: make(map[string][]byte), fail: make(map[string]bool)}
	for k, v := range objects {
		f.objects[k] = []byte(v)
	}
	return f
}

func (f *fakeS3) client(t *testing.T) *s3.S3 {
	t.Helper()
	sess, err := NewSession(Config{
		Region:          "us-east-1",
		AccessKeyID:     "AKID",
		SecretAccessKey: "SECRET",
		Endpoint:        "http://s3.test",
	})
	if err != nil {
		t.Fatalf("getting session: %v", err)
	}
	c := s3.New(sess, aws.NewConfig().WithMaxRetries(0))
	c.Handlers.Send.Clear()
	c.Handlers.Unmarshal.Clear()
	c.Handlers.UnmarshalMeta.Clear()
	c.Handlers.UnmarshalError.Clear()
	c.Handlers.Send.PushBack(f.serve)
	return c
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeS3) get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.objects[key]
	return string(v), ok
}

func (f *fakeS3) serve(r *request.Request) {
	if f.served != nil {
		defer f.served(r)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	body := ""
	defer func() {
		r.HTTPResponse = &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader(body)),
		}
	}()
	if err := r.Context().Err(); err != nil {
		r.Error = awserr.New(request.CanceledErrorCode, "request context canceled", err)
		return
	}
	if f.fail[r.Operation.Name] {
		r.Error = awserr.New("AccessDenied", "injected failure", nil)
		return
	}
	switch in := r.Params.(type) {
	case *s3.ListObjectsV2Input:
		out := r.Data.(*s3.ListObjectsV2Output)
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, aws.StringValue(in.Prefix)) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			out.Contents = append(out.Contents, &s3.Object{Key: aws.String(k)})
		}
		out.IsTruncated = aws.Bool(false)
	case *s3.GetObjectInput:
		data, ok := f.objects[aws.StringValue(in.Key)]
		if !ok {
			r.Error = awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
			return
		}
		r.Data.(*s3.GetObjectOutput).Body = io.NopCloser(bytes.NewReader(data))
	case *s3.PutObjectInput:
		if _, err := in.Body.Seek(0, io.SeekStart); err != nil {
			r.Error = err
			return
		}
		data, err := io.ReadAll(in.Body)
		if err != nil {
			r.Error = err
			return
		}
		f.objects[aws.StringValue(in.Key)] = data
	case *s3.CopyObjectInput:
		src, err := url.PathUnescape(aws.StringValue(in.CopySource))
		if err != nil {
			r.Error = err
			return
		}
		data, ok := f.objects[strings.TrimPrefix(src, testBucket+"/")]
		if !ok {
			r.Error = awserr.New(s3.ErrCodeNoSuchKey, "no such key "+src, nil)
			return
		}
		f.objects[aws.StringValue(in.Key)] = append([]byte{}, data...)
		body = `<CopyObjectResult><ETag>"etag"</ETag></CopyObjectResult>`
	case *s3.DeleteObjectsInput:
		for _, obj := range in.Delete.Objects {
			delete(f.objects, aws.StringValue(obj.Key))
		}
	default:
		r.Error = errors.Errorf("fake s3 does not handle %s", r.Operation.Name)
	}
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		location string
		bucket   string
		prefix   string
		err      bool
	}{
		{location: "s3://bucket", bucket: "bucket"},
		{location: "s3://bucket/", bucket: "bucket"},
		{location: "s3://bucket/a/b/", bucket: "bucket", prefix: "a/b"},
		{location: "/local/path", err: true},
		{location: "s3:///nobucket", err: true},
	}
	for _, test := range tests {
		t.Run(test.location, func(t *testing.T) {
			bucket, prefix, err := ParseURL(test.location)
			if test.err {
				if err == nil {
					t.Fatalf("expected error parsing %s", test.location)
				}
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.bucket, bucket)
			require.Equal(t, test.prefix, prefix)
		})
	}
	if !IsURL("s3://x/y") || IsURL("x/y") {
		t.Fatal("IsURL misclassified a location")
	}
}

func TestRawSource(t *testing.T) {
	f := newFakeS3(map[string]string{
		"in/song_data/A/B/C/TRAAA.json":         `{"song_id":"S1"}`,
		"in/song_data/A/B/C/TRAAB.json":         `{"song_id":"S2"}`,
		"in/song_data/A/B/TRAAC.json":           `{"song_id":"S3"}`,
		"in/log_data/2018/11/2018-11-01.json":   `{}`,
		"other/song_data/A/B/C/TRAAD.json":      `{"song_id":"S4"}`,
		"in/song_data/A/B/C/README.txt":         `not json`,
		"in/song_data/A/B/C/TRAAE.json.partial": `{}`,
	})
	rs, err := NewRawSource(context.Background(), f.client(t), testBucket, "in/", "song_data/*/*/*/*.json")
	if err != nil {
		t.Fatalf("getting raw source: %v", err)
	}
	require.Equal(t, []string{"in/song_data/A/B/C/TRAAA.json", "in/song_data/A/B/C/TRAAB.json"}, rs.Keys())

	var names, bodies []string
	for {
		r, err := rs.NextReader()
		if err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("getting next reader: %v", err)
		}
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		require.NoError(t, r.Close())
		names = append(names, r.Name())
		bodies = append(bodies, string(data))
		require.Equal(t, testBucket, r.Meta()["bucket"])
	}
	require.Equal(t, []string{"song_data/A/B/C/TRAAA.json", "song_data/A/B/C/TRAAB.json"}, names)
	require.Equal(t, []string{`{"song_id":"S1"}`, `{"song_id":"S2"}`}, bodies)
}

func TestRawSourceUnavailable(t *testing.T) {
	f := newFakeS3(nil)
	f.fail["ListObjectsV2"] = true
	_, err := NewRawSource(context.Background(), f.client(t), testBucket, "in", "")
	if errors.Cause(err) != lake.ErrSourceUnavailable {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}

	f = newFakeS3(map[string]string{"in/a.json": "{}"})
	c := f.client(t)
	rs, err := NewRawSource(context.Background(), c, testBucket, "in", "")
	require.NoError(t, err)
	f.fail["GetObject"] = true
	_, err = rs.NextReader()
	if errors.Cause(err) != lake.ErrSourceUnavailable {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func put(t *testing.T, s *Store, name, data string) {
	t.Helper()
	w, err := s.Create(context.Background(), name)
	if err != nil {
		t.Fatalf("creating %s: %v", name, err)
	}
	if _, err := io.WriteString(w, data); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing %s: %v", name, err)
	}
}

func TestStoreSwap(t *testing.T) {
	f := newFakeS3(map[string]string{
		"out/songs/year=2017/part-00000.avro": "old",
		"out/songs/year=2018/part-00000.avro": "old",
		"out/songs/_SUCCESS":                  "",
		"out/songsx/part-00000.avro":          "neighbour",
	})
	s := NewStore(f.client(t), testBucket, "out")
	put(t, s, "_staging/r1/songs/year=2018/part-00000.avro", "new 2018")
	put(t, s, "_staging/r1/songs/year=2019/part-00000.avro", "new 2019")
	put(t, s, "_staging/r1/songs/_SUCCESS", "")

	if err := s.Swap(context.Background(), "_staging/r1/songs", "songs"); err != nil {
		t.Fatalf("swapping: %v", err)
	}
	require.Equal(t, []string{
		"out/songs/_SUCCESS",
		"out/songs/year=2018/part-00000.avro",
		"out/songs/year=2019/part-00000.avro",
		"out/songsx/part-00000.avro",
	}, f.keys())
	v, _ := f.get("out/songs/year=2018/part-00000.avro")
	require.Equal(t, "new 2018", v)

	names, err := s.List(context.Background(), "songs")
	require.NoError(t, err)
	require.Equal(t, []string{"songs/_SUCCESS", "songs/year=2018/part-00000.avro", "songs/year=2019/part-00000.avro"}, names)
}

func TestStoreSwapFailure(t *testing.T) {
	f := newFakeS3(map[string]string{
		"out/users/part-00000.avro": "old",
		"out/users/_SUCCESS":        "",
	})
	s := NewStore(f.client(t), testBucket, "out")
	put(t, s, "_staging/r2/users/part-00000.avro", "new")
	put(t, s, "_staging/r2/users/_SUCCESS", "")
	f.fail["CopyObject"] = true

	if err := s.Swap(context.Background(), "_staging/r2/users", "users"); err == nil {
		t.Fatal("expected swap to fail")
	}
	if _, ok := f.get("out/users/" + lake.SuccessMarker); ok {
		t.Fatal("interrupted swap left the previous success marker in place")
	}
}

func TestStoreRemoveAll(t *testing.T) {
	f := newFakeS3(map[string]string{
		"out/_staging/r3/a/part-00000.avro": "x",
		"out/_staging/r3/b/part-00000.avro": "x",
		"out/_staging/r4/a/part-00000.avro": "x",
	})
	s := NewStore(f.client(t), testBucket, "out")
	require.NoError(t, s.RemoveAll(context.Background(), "_staging/r3"))
	require.Equal(t, []string{"out/_staging/r4/a/part-00000.avro"}, f.keys())
	require.NoError(t, s.RemoveAll(context.Background(), "nothing/here"))
}

func TestStoreWithWriter(t *testing.T) {
	f := newFakeS3(nil)
	s := NewStore(f.client(t), testBucket, "lake")
	w := lake.NewWriter(s, avro.NewCodec(), "run1")
	users := []lake.UserRecord{
		{UserID: "10", FirstName: "Sylvie", LastName: "Cruz", Gender: "F", Level: "free"},
		{UserID: "26", FirstName: "Ryan", LastName: "Smith", Gender: "M", Level: "paid"},
	}
	res, err := w.Write(context.Background(), lake.UsersTable, lake.SliceRows(users))
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Rows)
	require.Equal(t, []string{"lake/users/_SUCCESS", "lake/users/part-00000.avro"}, f.keys())

	rc, err := s.Open(context.Background(), "users/part-00000.avro")
	require.NoError(t, err)
	defer rc.Close()
	recs, err := avro.ReadAll(rc)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "Sylvie", recs[0]["first_name"])
	require.Equal(t, "paid", recs[1]["level"])
}

func TestWriterSwapOutlivesCancel(t *testing.T) {
	f := newFakeS3(map[string]string{
		"out/users/part-00000.avro": "old",
		"out/users/_SUCCESS":        "",
	})
	s := NewStore(f.client(t), testBucket, "out")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// a sibling table failing cancels the run right after the first copy
	f.served = func(r *request.Request) {
		if r.Operation.Name == "CopyObject" {
			cancel()
		}
	}

	w := lake.NewWriter(s, avro.NewCodec(), "r5")
	_, err := w.Write(ctx, lake.UsersTable, lake.SliceRows([]lake.UserRecord{{UserID: "7", Level: "free"}}))
	require.NoError(t, err)
	require.Equal(t, []string{"out/users/_SUCCESS", "out/users/part-00000.avro"}, f.keys())

	data, _ := f.get("out/users/part-00000.avro")
	recs, err := avro.ReadAll(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "7", recs[0]["user_id"])
}
