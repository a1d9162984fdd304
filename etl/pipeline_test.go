package etl

import (
	"context"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sparkify/lake"
	"github.com/sparkify/lake/avro"
	"github.com/sparkify/lake/json"
	"github.com/sparkify/lake/mock"
	"github.com/stretchr/testify/require"
)

const catalog = `{"num_songs": 1, "artist_id": "ARFU0001", "artist_latitude": null, "artist_longitude": null, "artist_location": "", "artist_name": "Fu", "song_id": "SOSOME12", "title": "Some Song", "duration": 201.5, "year": 2018}
{"num_songs": 1, "artist_id": "ARCASUAL", "artist_latitude": 37.8, "artist_longitude": -122.27, "artist_location": "Oakland, CA", "artist_name": "Casual", "song_id": "SOCAS001", "title": "I Didn't Mean To", "duration": 218.93179, "year": 0}
{"num_songs": 1, "artist_id": "ARCASUAL", "artist_latitude": 37.8, "artist_longitude": -122.27, "artist_location": "Oakland, CA", "artist_name": "Casual", "song_id": "SOCAS002", "title": "Mind Games", "duration": 190.1, "year": 1994}
{"num_songs": 1, "artist_id": "ARFU0001", "artist_name": "Fu", "song_id": "SOSOME12", "title": "Some Song (dup)", "duration": 201.5, "year": 2018}
`

const events = `{"artist": "Fu", "auth": "Logged In", "firstName": "Kaylee", "gender": "F", "lastName": "Summers", "level": "free", "location": "Phoenix-Mesa-Scottsdale, AZ", "page": "NextSong", "sessionId": 139, "song": "Some Song", "ts": 1541721820796, "userAgent": "Mozilla/5.0", "userId": "8"}
{"artist": null, "auth": "Logged In", "firstName": "Walter", "gender": "M", "lastName": "Frye", "level": "free", "location": "San Francisco", "page": "Home", "sessionId": 38, "ts": 1541721820800, "userId": "39"}
{"artist": "Nobody Famous", "auth": "Logged In", "firstName": "Kaylee", "gender": "F", "lastName": "Summers", "level": "paid", "location": "Phoenix-Mesa-Scottsdale, AZ", "page": "NextSong", "sessionId": 140, "song": "Who", "ts": 1541721900000, "userAgent": "Mozilla/5.0", "userId": "8"}
{"artist": "Casual", "firstName": "Lily", "gender": "F", "lastName": "Koch", "level": "paid", "page": "NextSong", "sessionId": 172, "song": "Mind Games", "ts": "1543537327796", "userId": "15"}
{"page": "NextSong" "ts": 0}
{"artist": "Fu", "firstName": "Lily", "gender": "F", "lastName": "Koch", "level": "paid", "page": "NextSong", "sessionId": 172, "song": "Some Song", "ts": "soon", "userId": "15"}
`

func newPipeline(t *testing.T, store lake.Store, runID, songs, evs string) (*Pipeline, *mock.RecordingStatter) {
	t.Helper()
	cal, err := lake.NewCalendar("")
	require.NoError(t, err)
	stats := &mock.RecordingStatter{}
	w := lake.NewWriter(store, avro.NewCodec(), runID)
	w.Stats = stats
	return &Pipeline{
		Songs:       json.NewNamedSource(strings.NewReader(songs), "songs.json"),
		Events:      json.NewNamedSource(strings.NewReader(evs), "events.json"),
		Writer:      w,
		Calendar:    cal,
		IDs:         lake.NewNexter(),
		Concurrency: 2,
		Stats:       stats,
	}, stats
}

func readBack(t *testing.T, s *mock.Store, table string) []map[string]interface{} {
	t.Helper()
	ctx := context.Background()
	names, err := s.List(ctx, table)
	require.NoError(t, err)
	var recs []map[string]interface{}
	for _, name := range names {
		if !strings.HasSuffix(name, ".avro") {
			continue
		}
		rc, err := s.Open(ctx, name)
		require.NoError(t, err)
		rs, err := avro.ReadAll(rc)
		require.NoError(t, err)
		recs = append(recs, rs...)
	}
	return recs
}

func TestPipelineMinimal(t *testing.T) {
	s := mock.NewStore()
	p, _ := newPipeline(t, s, "r1",
		`{"song_id": "SOSOME12", "artist_id": "ARFU0001", "artist_name": "Fu", "title": "Some Song", "duration": 201.5, "year": 2018}`,
		`{"page": "NextSong", "artist": "Fu", "song": "Some Song", "userId": "8", "firstName": "Kaylee", "lastName": "Summers", "gender": "F", "level": "free", "sessionId": 139, "ts": 1541721820796}
{"page": "Home", "userId": "39", "firstName": "Walter", "level": "free", "ts": 1541721820800}`)

	sum, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), sum.SongRecords)
	require.Equal(t, int64(2), sum.EventRecords)
	require.Equal(t, int64(1), sum.EventsFiltered)

	for table, exp := range map[string]int{"songs": 1, "artists": 1, "users": 1, "time": 1, "songplays": 1} {
		got, ok := sum.Table(table)
		require.True(t, ok, table)
		require.Equal(t, int64(exp), got.Rows, table)
		require.Len(t, readBack(t, s, table), exp, table)
	}
	plays := readBack(t, s, "songplays")
	require.Equal(t, "SOSOME12", plays[0]["song_id"])
	require.Equal(t, "ARFU0001", plays[0]["artist_id"])
	users := readBack(t, s, "users")
	require.Equal(t, "8", users[0]["user_id"])
}

func TestPipelineCounts(t *testing.T) {
	s := mock.NewStore()
	p, stats := newPipeline(t, s, "r1", catalog, events)

	sum, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(4), sum.SongRecords)
	require.Equal(t, int64(5), sum.EventRecords)
	require.Equal(t, int64(1), sum.ParseErrors)
	require.Equal(t, int64(1), sum.InvalidTimestamps)
	require.Equal(t, int64(1), sum.EventsFiltered)
	require.Equal(t, int64(1), sum.JoinMisses)

	rows := func(table string) int64 {
		ts, ok := sum.Table(table)
		require.True(t, ok, table)
		return ts.Rows
	}
	require.Equal(t, int64(3), rows("songs"))
	require.Equal(t, int64(2), rows("artists"))
	require.Equal(t, int64(2), rows("users"))
	require.Equal(t, int64(3), rows("time"))
	// one play of Fu's only song, one of Casual's two songs
	require.Equal(t, int64(3), rows("songplays"))

	require.Equal(t, int64(1), stats.Counted(lake.StatDuplicates, "table:songs"))
	require.Equal(t, int64(2), stats.Counted(lake.StatDuplicates, "table:artists"))
	// user 15's play with the unusable timestamp still counts toward users
	require.Equal(t, int64(2), stats.Counted(lake.StatDuplicates, "table:users"))
	require.Equal(t, int64(1), stats.Counted(lake.StatJoinMisses))
	require.Equal(t, int64(1), stats.Counted(lake.StatParseErrors, "input:events"))

	// the Home event's user never shows up
	for _, u := range readBack(t, s, "users") {
		require.NotEqual(t, "39", u["user_id"])
		if u["user_id"] == "8" {
			require.Equal(t, "paid", u["level"])
		}
	}
	songs := readBack(t, s, "songs")
	for _, song := range songs {
		if song["song_id"] == "SOSOME12" {
			require.Equal(t, "Some Song", song["title"])
		}
	}
}

func TestPipelinePartitions(t *testing.T) {
	s := mock.NewStore()
	p, _ := newPipeline(t, s, "r1", catalog, events)
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	for _, table := range lake.Tables {
		rep, err := Inspect(context.Background(), s, table.Name)
		require.NoError(t, err, table.Name)
		require.True(t, rep.Complete, table.Name)
	}
	rep, err := Inspect(context.Background(), s, "songs")
	require.NoError(t, err)
	var paths []string
	for _, pr := range rep.Partitions {
		paths = append(paths, pr.Path)
	}
	require.Equal(t, []string{
		"year=0/artist_id=ARCASUAL",
		"year=1994/artist_id=ARCASUAL",
		"year=2018/artist_id=ARFU0001",
	}, paths)

	rep, err = Inspect(context.Background(), s, "artists")
	require.NoError(t, err)
	require.Len(t, rep.Partitions, 2)
	require.Equal(t, map[string]string{"artist_id": "ARCASUAL"}, rep.Partitions[0].Values)
}

// withoutIDs drops songplay_id, which is not stable across runs, and sorts
// what is left.
func withoutIDs(recs []map[string]interface{}) []string {
	var out []string
	for _, r := range recs {
		delete(r, "songplay_id")
		keys := make([]string, 0, len(r))
		for k := range r {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		for _, k := range keys {
			sb.WriteString(k + "=" + lake.PartitionValue(r[k]) + ";")
		}
		out = append(out, sb.String())
	}
	sort.Strings(out)
	return out
}

func TestPipelineIdempotent(t *testing.T) {
	s := mock.NewStore()
	p, _ := newPipeline(t, s, "r1", catalog, events)
	first, err := p.Run(context.Background())
	require.NoError(t, err)
	before := make(map[string][]string)
	for _, table := range lake.Tables {
		before[table.Name] = withoutIDs(readBack(t, s, table.Name))
	}

	p, _ = newPipeline(t, s, "r2", catalog, events)
	p.IDs = lake.NewNexter(lake.NexterStartFrom(1000))
	second, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, first.Tables, second.Tables)
	for _, table := range lake.Tables {
		require.Equal(t, before[table.Name], withoutIDs(readBack(t, s, table.Name)), table.Name)
	}
	plays := readBack(t, s, "songplays")
	require.True(t, plays[0]["songplay_id"].(int64) >= 1000)
}

func TestPipelineLevelDB(t *testing.T) {
	mem := mock.NewStore()
	p, _ := newPipeline(t, mem, "r1", catalog, events)
	memSum, err := p.Run(context.Background())
	require.NoError(t, err)

	disk := mock.NewStore()
	dir := t.TempDir()
	p, _ = newPipeline(t, disk, "r1", catalog, events)
	p.DedupeStore = DedupeLevelDB
	p.DedupeDir = dir
	diskSum, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, memSum, diskSum)
	for _, table := range lake.Tables {
		require.Equal(t, withoutIDs(readBack(t, mem, table.Name)), withoutIDs(readBack(t, disk, table.Name)), table.Name)
	}

	scratch, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, scratch, "dedupe scratch space should be removed")
}

func TestPipelineWriteFailure(t *testing.T) {
	s := mock.NewStore()
	p, _ := newPipeline(t, s, "r1", catalog, events)
	_, err := p.Run(context.Background())
	require.NoError(t, err)
	before := withoutIDs(readBack(t, s, "songplays"))

	s.FailSwap = func(final string) error {
		if final == "songplays" {
			return errors.New("bucket policy says no")
		}
		return nil
	}
	p, _ = newPipeline(t, s, "r2", catalog, strings.SplitAfter(events, "\n")[0])
	sum, err := p.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, "write-songplays", Stage(err))
	require.Equal(t, lake.ErrWriteFailure, errors.Cause(err))
	_, ok := sum.Table("songplays")
	require.False(t, ok)

	require.Equal(t, before, withoutIDs(readBack(t, s, "songplays")))
	staged, err := s.List(context.Background(), lake.StagingDir)
	require.NoError(t, err)
	require.Empty(t, staged)
}

type failingSource struct{}

func (failingSource) Record() (interface{}, error) {
	return nil, errors.Wrap(lake.ErrSourceUnavailable, "connection reset")
}

func TestPipelineSourceFailure(t *testing.T) {
	s := mock.NewStore()
	p, _ := newPipeline(t, s, "r1", catalog, events)
	p.Events = failingSource{}
	_, err := p.Run(context.Background())
	require.Equal(t, StageReadEvents, Stage(err))
	require.Equal(t, lake.ErrSourceUnavailable, errors.Cause(err))

	names, err := s.List(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestPipelineUnknownDedupeStore(t *testing.T) {
	p, _ := newPipeline(t, mock.NewStore(), "r1", catalog, events)
	p.DedupeStore = "redis"
	_, err := p.Run(context.Background())
	require.Equal(t, StageSetup, Stage(err))
}
