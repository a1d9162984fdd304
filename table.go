package lake

// ColumnType is the logical type of an output column.
type ColumnType int

const (
	TypeString ColumnType = iota
	TypeLong
	TypeDouble
	// TypeTimestamp columns hold a time.Time and are stored with millisecond
	// precision.
	TypeTimestamp
)

// Column describes one column of an output table.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Table describes an output table: its columns, in output order, and the
// columns it is physically partitioned by, in path order.
type Table struct {
	Name        string
	Columns     []Column
	PartitionBy []string
}

// Row is a single output record. Values returns a value for every column of
// the row's table, keyed by column name; nil means null.
type Row interface {
	Values() map[string]interface{}
}

// Rows is an iterator over output rows. It calls fn for each row and stops at
// the first error.
type Rows func(fn func(Row) error) error

// SliceRows returns a Rows which iterates over rows.
func SliceRows[T Row](rows []T) Rows {
	return func(fn func(Row) error) error {
		for _, r := range rows {
			if err := fn(r); err != nil {
				return err
			}
		}
		return nil
	}
}

// The five tables of the star schema.
var (
	SongsTable = Table{
		Name: "songs",
		Columns: []Column{
			{Name: "song_id", Type: TypeString},
			{Name: "title", Type: TypeString},
			{Name: "artist_id", Type: TypeString},
			{Name: "year", Type: TypeLong},
			{Name: "duration", Type: TypeDouble},
		},
		PartitionBy: []string{"year", "artist_id"},
	}

	// ArtistsTable is partitioned by artist_id alone. Artist records carry
	// no year, so there is nothing meaningful to partition by there.
	ArtistsTable = Table{
		Name: "artists",
		Columns: []Column{
			{Name: "artist_id", Type: TypeString},
			{Name: "name", Type: TypeString},
			{Name: "location", Type: TypeString, Nullable: true},
			{Name: "latitude", Type: TypeDouble, Nullable: true},
			{Name: "longitude", Type: TypeDouble, Nullable: true},
		},
		PartitionBy: []string{"artist_id"},
	}

	UsersTable = Table{
		Name: "users",
		Columns: []Column{
			{Name: "user_id", Type: TypeString},
			{Name: "first_name", Type: TypeString, Nullable: true},
			{Name: "last_name", Type: TypeString, Nullable: true},
			{Name: "gender", Type: TypeString, Nullable: true},
			{Name: "level", Type: TypeString, Nullable: true},
		},
	}

	TimeTable = Table{
		Name: "time",
		Columns: []Column{
			{Name: "start_time", Type: TypeTimestamp},
			{Name: "hour", Type: TypeLong},
			{Name: "day", Type: TypeLong},
			{Name: "week", Type: TypeLong},
			{Name: "month", Type: TypeLong},
			{Name: "year", Type: TypeLong},
			{Name: "weekday", Type: TypeLong},
		},
		PartitionBy: []string{"year", "month"},
	}

	SongplaysTable = Table{
		Name: "songplays",
		Columns: []Column{
			{Name: "songplay_id", Type: TypeLong},
			{Name: "start_time", Type: TypeTimestamp},
			{Name: "user_id", Type: TypeString},
			{Name: "level", Type: TypeString, Nullable: true},
			{Name: "song_id", Type: TypeString},
			{Name: "artist_id", Type: TypeString},
			{Name: "session_id", Type: TypeLong},
			{Name: "location", Type: TypeString, Nullable: true},
			{Name: "user_agent", Type: TypeString, Nullable: true},
			{Name: "year", Type: TypeLong},
			{Name: "month", Type: TypeLong},
		},
		PartitionBy: []string{"year", "month"},
	}
)

// Tables lists every table a run produces.
var Tables = []Table{SongsTable, ArtistsTable, UsersTable, TimeTable, SongplaysTable}
