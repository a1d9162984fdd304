package lake_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/sparkify/lake"
	"github.com/sparkify/lake/avro"
	"github.com/sparkify/lake/mock"
	"github.com/stretchr/testify/require"
)

func readTable(t *testing.T, s *mock.Store, table string) (files []string, recs []map[string]interface{}) {
	t.Helper()
	ctx := context.Background()
	names, err := s.List(ctx, table)
	require.NoError(t, err)
	for _, name := range names {
		files = append(files, name)
		if name == table+"/"+lake.SuccessMarker {
			continue
		}
		rc, err := s.Open(ctx, name)
		require.NoError(t, err)
		rs, err := avro.ReadAll(rc)
		require.NoError(t, err)
		recs = append(recs, rs...)
	}
	return files, recs
}

func songRows(songs ...lake.SongRecord) lake.Rows {
	return lake.SliceRows(songs)
}

func TestWriterPartitions(t *testing.T) {
	s := mock.NewStore()
	w := lake.NewWriter(s, avro.NewCodec(), "r1")
	w.MaxRowsPerFile = 2
	stats := &mock.RecordingStatter{}
	w.Stats = stats

	res, err := w.Write(context.Background(), lake.SongsTable, songRows(
		lake.SongRecord{SongID: "S1", ArtistID: "A1", Year: 2004},
		lake.SongRecord{SongID: "S2", ArtistID: "A1", Year: 2004},
		lake.SongRecord{SongID: "S3", ArtistID: "A1", Year: 2004},
		lake.SongRecord{SongID: "S4", ArtistID: "A2"},
	))
	require.NoError(t, err)
	require.Equal(t, lake.WriteResult{Table: "songs", Rows: 4, Partitions: 2, Files: 3}, res)
	require.Equal(t, int64(4), stats.Counted(lake.StatRowsWritten, "table:songs"))

	files, recs := readTable(t, s, "songs")
	require.Equal(t, []string{
		"songs/_SUCCESS",
		"songs/year=0/artist_id=A2/part-00000.avro",
		"songs/year=2004/artist_id=A1/part-00000.avro",
		"songs/year=2004/artist_id=A1/part-00001.avro",
	}, files)
	require.Len(t, recs, 4)

	staged, err := s.List(context.Background(), lake.StagingDir)
	require.NoError(t, err)
	require.Empty(t, staged)
}

func TestWriterOverwrites(t *testing.T) {
	s := mock.NewStore()
	ctx := context.Background()
	_, err := lake.NewWriter(s, avro.NewCodec(), "r1").Write(ctx, lake.SongsTable, songRows(
		lake.SongRecord{SongID: "S1", ArtistID: "A1", Year: 2004},
		lake.SongRecord{SongID: "S2", ArtistID: "A9", Year: 1999},
	))
	require.NoError(t, err)
	_, err = lake.NewWriter(s, avro.NewCodec(), "r2").Write(ctx, lake.SongsTable, songRows(
		lake.SongRecord{SongID: "S1", ArtistID: "A1", Year: 2004},
	))
	require.NoError(t, err)

	files, recs := readTable(t, s, "songs")
	require.Equal(t, []string{"songs/_SUCCESS", "songs/year=2004/artist_id=A1/part-00000.avro"}, files)
	require.Len(t, recs, 1)
}

func TestWriterEmptyTable(t *testing.T) {
	s := mock.NewStore()
	res, err := lake.NewWriter(s, avro.NewCodec(), "r1").Write(context.Background(), lake.UsersTable, lake.SliceRows([]lake.UserRecord{}))
	require.NoError(t, err)
	require.Equal(t, int64(0), res.Rows)
	files, _ := readTable(t, s, "users")
	require.Equal(t, []string{"users/_SUCCESS"}, files)
}

func TestWriterFailureKeepsPrevious(t *testing.T) {
	s := mock.NewStore()
	ctx := context.Background()
	_, err := lake.NewWriter(s, avro.NewCodec(), "r1").Write(ctx, lake.UsersTable, lake.SliceRows([]lake.UserRecord{{UserID: "1"}}))
	require.NoError(t, err)

	s.FailCreate = func(name string) error {
		if name == "_staging/r2/users/"+lake.SuccessMarker {
			return errors.New("disk full")
		}
		return nil
	}
	_, err = lake.NewWriter(s, avro.NewCodec(), "r2").Write(ctx, lake.UsersTable, lake.SliceRows([]lake.UserRecord{{UserID: "2"}, {UserID: "3"}}))
	require.Equal(t, lake.ErrWriteFailure, errors.Cause(err))

	s.FailCreate = nil
	s.FailSwap = func(final string) error { return errors.New("swap refused") }
	_, err = lake.NewWriter(s, avro.NewCodec(), "r3").Write(ctx, lake.UsersTable, lake.SliceRows([]lake.UserRecord{{UserID: "4"}}))
	require.Equal(t, lake.ErrWriteFailure, errors.Cause(err))

	_, recs := readTable(t, s, "users")
	require.Len(t, recs, 1)
	require.Equal(t, "1", recs[0]["user_id"])

	staged, err := s.List(ctx, lake.StagingDir)
	require.NoError(t, err)
	require.Empty(t, staged)
}

func TestWriterCanceledBeforeSwap(t *testing.T) {
	s := mock.NewStore()
	_, err := lake.NewWriter(s, avro.NewCodec(), "r1").Write(context.Background(), lake.UsersTable, lake.SliceRows([]lake.UserRecord{{UserID: "1"}}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.FailCreate = func(name string) error {
		if name == "_staging/r2/users/"+lake.SuccessMarker {
			cancel()
		}
		return nil
	}
	_, err = lake.NewWriter(s, avro.NewCodec(), "r2").Write(ctx, lake.UsersTable, lake.SliceRows([]lake.UserRecord{{UserID: "2"}}))
	require.Equal(t, lake.ErrWriteFailure, errors.Cause(err))

	_, recs := readTable(t, s, "users")
	require.Len(t, recs, 1)
	require.Equal(t, "1", recs[0]["user_id"])

	staged, err := s.List(context.Background(), lake.StagingDir)
	require.NoError(t, err)
	require.Empty(t, staged)
}

func TestPartitionPath(t *testing.T) {
	p, err := lake.PartitionPath(lake.SongsTable, lake.SongRecord{SongID: "S1", ArtistID: "AR 1/x", Year: 1994}.Values())
	require.NoError(t, err)
	require.Equal(t, "year=1994/artist_id=AR%201%2Fx", p)

	vals, err := lake.ParsePartitionPath(p)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"year": "1994", "artist_id": "AR 1/x"}, vals)

	p, err = lake.PartitionPath(lake.SongsTable, lake.SongRecord{SongID: "S1"}.Values())
	require.NoError(t, err)
	require.Equal(t, "year=0/artist_id="+lake.DefaultPartition, p)

	p, err = lake.PartitionPath(lake.UsersTable, lake.UserRecord{UserID: "1"}.Values())
	require.NoError(t, err)
	require.Equal(t, "", p)

	_, err = lake.PartitionPath(lake.TimeTable, map[string]interface{}{"year": int64(2018)})
	require.Error(t, err)

	_, err = lake.ParsePartitionPath("year2018")
	require.Error(t, err)
}
