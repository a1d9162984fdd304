package lake

// Catalog indexes songs by artist name for resolving events to songs.
//
// Events only carry the artist's display name, so the match is exact string
// equality on that name. It is lossy: two artists sharing a name are
// indistinguishable, and an event whose artist is spelled differently in the
// catalog does not match at all.
type Catalog struct {
	byArtist map[string][]SongRecord
	songs    int
}

// NewCatalog gets an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		byArtist: make(map[string][]SongRecord),
	}
}

// Add adds a song to the catalog. Songs without an artist name can never be
// matched and are not indexed.
func (c *Catalog) Add(s SongRecord) {
	if s.ArtistName == "" {
		return
	}
	c.byArtist[s.ArtistName] = append(c.byArtist[s.ArtistName], s)
	c.songs++
}

// Match returns the catalog songs by the named artist, in the order they were
// added.
func (c *Catalog) Match(artistName string) []SongRecord {
	return c.byArtist[artistName]
}

// Len returns the number of indexed songs.
func (c *Catalog) Len() int { return c.songs }

// FactBuilder builds the songplays fact table. Each song play event is joined
// against the Catalog by artist name, inner join style: an event produces one
// row per catalog song by its artist, and no row at all if the artist is not
// in the catalog.
type FactBuilder struct {
	cal     Calendar
	ids     IDGenerator
	catalog *Catalog

	rows   []SongplayRecord
	misses int64
}

// NewFactBuilder gets a FactBuilder. Timestamps are decomposed with cal and
// each row gets an id from ids.
func NewFactBuilder(cal Calendar, ids IDGenerator, catalog *Catalog) *FactBuilder {
	return &FactBuilder{
		cal:     cal,
		ids:     ids,
		catalog: catalog,
	}
}

// Add joins an event against the catalog and returns the number of rows it
// produced. Events other than song plays are ignored. An event with an
// unusable timestamp gets an *InvalidTimestampError and produces nothing.
func (f *FactBuilder) Add(ev LogEvent) (int, error) {
	if !ev.IsSongPlay() {
		return 0, nil
	}
	tr, err := f.cal.Decompose(ev.TS)
	if err != nil {
		return 0, err
	}
	matches := f.catalog.Match(ev.Artist)
	if len(matches) == 0 {
		f.misses++
		return 0, nil
	}
	for _, s := range matches {
		f.rows = append(f.rows, SongplayRecord{
			SongplayID: f.ids.Next(),
			StartTime:  tr.StartTime,
			UserID:     ev.UserID,
			Level:      ev.Level,
			SongID:     s.SongID,
			ArtistID:   s.ArtistID,
			SessionID:  ev.SessionID,
			Location:   ev.Location,
			UserAgent:  ev.UserAgent,
			Year:       tr.Year,
			Month:      tr.Month,
		})
	}
	return len(matches), nil
}

// Misses returns the number of song play events which matched no song.
func (f *FactBuilder) Misses() int64 { return f.misses }

// Len returns the number of fact rows built so far.
func (f *FactBuilder) Len() int { return len(f.rows) }

// Rows returns the rows of the songplays table.
func (f *FactBuilder) Rows() Rows { return SliceRows(f.rows) }
