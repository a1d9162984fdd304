package avro

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/sparkify/lake"
	"github.com/stretchr/testify/require"
)

func writeRows(t *testing.T, c *Codec, table lake.Table, rows ...lake.Row) []byte {
	t.Helper()
	var buf bytes.Buffer
	rw, err := c.NewRowWriter(&buf, table)
	require.NoError(t, err)
	for _, r := range rows {
		require.NoError(t, rw.Write(r))
	}
	require.NoError(t, rw.Close())
	return buf.Bytes()
}

func TestSchema(t *testing.T) {
	schema, err := Schema(lake.ArtistsTable)
	require.NoError(t, err)
	require.Contains(t, schema, `"name":"artists"`)
	require.Contains(t, schema, `"namespace":"lake"`)
	require.Contains(t, schema, `{"default":null,"name":"location","type":["null","string"]}`)

	schema, err = Schema(lake.TimeTable)
	require.NoError(t, err)
	require.Contains(t, schema, `"logicalType":"timestamp-millis"`)
}

func TestCodecRoundTrip(t *testing.T) {
	lat := 35.14968
	data := writeRows(t, NewCodec(), lake.ArtistsTable,
		lake.ArtistRecord{ArtistID: "AR1", Name: "Casual", Location: "Oakland, CA", Latitude: &lat},
		lake.ArtistRecord{ArtistID: "AR2", Name: "Blue Rodeo"},
	)
	recs, err := ReadAll(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "AR1", recs[0]["artist_id"])
	require.Equal(t, "Oakland, CA", recs[0]["location"])
	require.Equal(t, lat, recs[0]["latitude"])
	require.Nil(t, recs[0]["longitude"])
	require.Nil(t, recs[1]["location"])
}

func TestCodecTimestamps(t *testing.T) {
	cal, err := lake.NewCalendar("")
	require.NoError(t, err)
	tr, err := cal.Decompose(1541721820796)
	require.NoError(t, err)

	data := writeRows(t, &Codec{CompressionName: "null"}, lake.TimeTable, tr)
	recs, err := ReadAll(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	got, ok := recs[0]["start_time"].(time.Time)
	require.True(t, ok, "start_time decoded as %T", recs[0]["start_time"])
	require.Equal(t, int64(1541721820796), got.UnixMilli())
	require.Equal(t, int64(45), recs[0]["week"])
	require.Equal(t, int64(5), recs[0]["weekday"])
}

func TestCodecManyBlocks(t *testing.T) {
	rows := make([]lake.Row, 0, 2500)
	for i := 0; i < 2500; i++ {
		rows = append(rows, lake.UserRecord{UserID: strings.Repeat("x", i%7+1), Level: "free"})
	}
	data := writeRows(t, NewCodec(), lake.UsersTable, rows...)
	recs, err := ReadAll(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, recs, 2500)
	require.Nil(t, recs[0]["first_name"])
	require.Equal(t, "free", recs[2499]["level"])
}

type badRow struct{}

func (badRow) Values() map[string]interface{} {
	return map[string]interface{}{"user_id": nil}
}

func TestCodecRejectsNull(t *testing.T) {
	var buf bytes.Buffer
	rw, err := NewCodec().NewRowWriter(&buf, lake.UsersTable)
	require.NoError(t, err)
	require.Error(t, rw.Write(badRow{}))
}
