package lake

import (
	"strconv"
)

// SongsBuilder builds the songs dimension: one row per song_id, the first
// catalog entry seen wins.
type SongsBuilder struct {
	d *Deduper[SongRecord]
}

// NewSongsBuilder gets a SongsBuilder which groups songs in store.
func NewSongsBuilder(store KeyStore[SongRecord]) *SongsBuilder {
	return &SongsBuilder{
		d: NewDeduper(store, func(s SongRecord) string { return s.SongID }),
	}
}

// Add adds a catalog entry.
func (b *SongsBuilder) Add(s SongRecord) error { return b.d.Add(s) }

// Len returns the number of distinct songs.
func (b *SongsBuilder) Len() int { return b.d.Len() }

// Rows returns the rows of the songs table.
func (b *SongsBuilder) Rows() Rows {
	return func(fn func(Row) error) error {
		return b.d.Each(func(s SongRecord) error { return fn(s) })
	}
}

// Catalog indexes the distinct songs for joining against events.
func (b *SongsBuilder) Catalog() (*Catalog, error) {
	c := NewCatalog()
	err := b.d.Each(func(s SongRecord) error {
		c.Add(s)
		return nil
	})
	return c, err
}

// Duplicates returns the number of records dropped as duplicates.
func (b *SongsBuilder) Duplicates() int64 { return b.d.Duplicates() }

// Close releases the underlying store.
func (b *SongsBuilder) Close() error { return b.d.Close() }

// ArtistsBuilder builds the artists dimension: one row per artist_id, taken
// from the first catalog entry seen for that artist.
type ArtistsBuilder struct {
	d *Deduper[ArtistRecord]
}

// NewArtistsBuilder gets an ArtistsBuilder which groups artists in store.
func NewArtistsBuilder(store KeyStore[ArtistRecord]) *ArtistsBuilder {
	return &ArtistsBuilder{
		d: NewDeduper(store, func(a ArtistRecord) string { return a.ArtistID }),
	}
}

// Add adds the artist of a catalog entry.
func (b *ArtistsBuilder) Add(s SongRecord) error { return b.d.Add(s.Artist()) }

// Len returns the number of distinct artists.
func (b *ArtistsBuilder) Len() int { return b.d.Len() }

// Rows returns the rows of the artists table.
func (b *ArtistsBuilder) Rows() Rows {
	return func(fn func(Row) error) error {
		return b.d.Each(func(a ArtistRecord) error { return fn(a) })
	}
}

// Duplicates returns the number of records dropped as duplicates.
func (b *ArtistsBuilder) Duplicates() int64 { return b.d.Duplicates() }

// Close releases the underlying store.
func (b *ArtistsBuilder) Close() error { return b.d.Close() }

// UsersBuilder builds the users dimension from song play events. A user's
// level can change over time, so the row is taken from the user's most recent
// event; between events with the same timestamp the one read first wins.
type UsersBuilder struct {
	d *Deduper[LogEvent]
}

// NewUsersBuilder gets a UsersBuilder which groups events by user in store.
func NewUsersBuilder(store KeyStore[LogEvent]) *UsersBuilder {
	d := NewDeduper(store, func(e LogEvent) string { return e.UserID })
	d.Prefer = func(existing, candidate LogEvent) bool {
		return candidate.TS > existing.TS
	}
	return &UsersBuilder{d: d}
}

// Add adds an event. Events other than song plays are ignored, and Add
// reports whether ev was used.
func (b *UsersBuilder) Add(ev LogEvent) (bool, error) {
	if !ev.IsSongPlay() {
		return false, nil
	}
	return true, b.d.Add(ev)
}

// Len returns the number of distinct users.
func (b *UsersBuilder) Len() int { return b.d.Len() }

// Rows returns the rows of the users table.
func (b *UsersBuilder) Rows() Rows {
	return func(fn func(Row) error) error {
		return b.d.Each(func(e LogEvent) error { return fn(e.User()) })
	}
}

// Duplicates returns the number of records dropped as duplicates.
func (b *UsersBuilder) Duplicates() int64 { return b.d.Duplicates() }

// Close releases the underlying store.
func (b *UsersBuilder) Close() error { return b.d.Close() }

// TimeBuilder builds the time dimension: one row per distinct song play
// instant.
type TimeBuilder struct {
	cal Calendar
	d   *Deduper[TimeRecord]
}

// NewTimeBuilder gets a TimeBuilder which decomposes timestamps with cal and
// groups them in store.
func NewTimeBuilder(cal Calendar, store KeyStore[TimeRecord]) *TimeBuilder {
	return &TimeBuilder{
		cal: cal,
		d: NewDeduper(store, func(t TimeRecord) string {
			return strconv.FormatInt(t.StartTime.UnixMilli(), 10)
		}),
	}
}

// Add adds the timestamp of a song play event. Other events are ignored. An
// event with an unusable timestamp gets an *InvalidTimestampError.
func (b *TimeBuilder) Add(ev LogEvent) error {
	if !ev.IsSongPlay() {
		return nil
	}
	tr, err := b.cal.Decompose(ev.TS)
	if err != nil {
		return err
	}
	return b.d.Add(tr)
}

// Len returns the number of distinct instants.
func (b *TimeBuilder) Len() int { return b.d.Len() }

// Rows returns the rows of the time table.
func (b *TimeBuilder) Rows() Rows {
	return func(fn func(Row) error) error {
		return b.d.Each(func(t TimeRecord) error { return fn(t) })
	}
}

// Duplicates returns the number of records dropped as duplicates.
func (b *TimeBuilder) Duplicates() int64 { return b.d.Duplicates() }

// Close releases the underlying store.
func (b *TimeBuilder) Close() error { return b.d.Close() }
