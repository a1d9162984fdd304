package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/pkg/errors"
	"github.com/sparkify/lake"
	"github.com/sparkify/lake/fake/gen"
)

// Config describes the input trees Generate writes.
type Config struct {
	Seed    int64
	Artists int
	Songs   int
	Users   int

	// Days of activity, one log file per day, starting on Start (UTC).
	Days   int
	Events int
	Start  time.Time

	// DuplicateRate is the fraction of catalog files which repeat an
	// earlier song.
	DuplicateRate float64

	// BadLineRate is the fraction of log lines which are not valid JSON.
	BadLineRate float64
}

// NewConfig gets a Config for a small data set in November 2018.
func NewConfig() Config {
	return Config{
		Seed:          1,
		Artists:       50,
		Songs:         200,
		Users:         20,
		Days:          3,
		Events:        300,
		Start:         time.Date(2018, 11, 1, 0, 0, 0, 0, time.UTC),
		DuplicateRate: 0.05,
	}
}

// Summary counts what Generate wrote.
type Summary struct {
	SongFiles  int
	Songs      int
	EventFiles int
	Events     int
	SongPlays  int
	BadLines   int
}

// SongPath is where the catalog document for a track lives, sharded by the
// third to fifth characters of its track ID.
func SongPath(trackID string) string {
	return path.Join("song_data", trackID[2:3], trackID[3:4], trackID[4:5], trackID+".json")
}

// EventPath is where the log of the given day lives.
func EventPath(day time.Time) string {
	return path.Join("log_data", day.Format("2006"), day.Format("01"), day.Format("2006-01-02")+"-events.json")
}

// Generate writes a song catalog tree and an activity log tree into store.
func Generate(ctx context.Context, store lake.Store, c Config) (Summary, error) {
	var sum Summary
	cat := NewCatalogGenerator(c.Seed, c.Artists)
	g := gen.NewGenerator(c.Seed + 1)
	songs := make([]Song, 0, c.Songs)
	for i := 0; i < c.Songs; i++ {
		s := cat.Song()
		songs = append(songs, s)
		if err := writeJSON(ctx, store, SongPath(s.TrackID), s); err != nil {
			return sum, err
		}
		sum.SongFiles++
		// "0" is outside the track ID alphabet, so duplicates get their own file
		if i > 0 && g.Chance(c.DuplicateRate) {
			dup := songs[g.Uniform(i)]
			if err := writeJSON(ctx, store, SongPath(s.TrackID[:2]+"0"+s.TrackID[3:]), dup); err != nil {
				return sum, err
			}
			sum.SongFiles++
		}
	}
	sum.Songs = len(songs)

	ug := NewUserGenerator(c.Seed + 2)
	users := make([]*User, c.Users)
	for i := range users {
		users[i] = ug.User()
	}
	eg := NewEventGenerator(c.Seed+3, users, songs)
	for d := 0; d < c.Days; d++ {
		day := c.Start.AddDate(0, 0, d)
		n, err := writeDay(ctx, store, day, c, eg, g, &sum)
		if err != nil {
			return sum, err
		}
		sum.Events += n
		sum.EventFiles++
	}
	return sum, nil
}

func writeDay(ctx context.Context, store lake.Store, day time.Time, c Config, eg *EventGenerator, g *gen.Generator, sum *Summary) (n int, err error) {
	name := EventPath(day)
	w, err := store.Create(ctx, name)
	if err != nil {
		return 0, errors.Wrapf(err, "creating %s", name)
	}
	enc := json.NewEncoder(w)
	maxDelta := 24 * time.Hour / time.Duration(c.Events+1)
	for i := 0; i < c.Events; i++ {
		if g.Chance(c.BadLineRate) {
			if _, err := io.WriteString(w, "{\"page\": \"NextSong\" \"ts\": 0}\n"); err != nil {
				w.Close()
				return n, errors.Wrapf(err, "writing %s", name)
			}
			sum.BadLines++
			continue
		}
		ev := eg.Event(g.Time(day, maxDelta))
		if err := enc.Encode(ev); err != nil {
			w.Close()
			return n, errors.Wrapf(err, "writing %s", name)
		}
		if ev.Page == "NextSong" {
			sum.SongPlays++
		}
		n++
	}
	return n, errors.Wrapf(w.Close(), "closing %s", name)
}

func writeJSON(ctx context.Context, store lake.Store, name string, v interface{}) error {
	w, err := store.Create(ctx, name)
	if err != nil {
		return errors.Wrapf(err, "creating %s", name)
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		w.Close()
		return errors.Wrapf(err, "writing %s", name)
	}
	return errors.Wrapf(w.Close(), "closing %s", name)
}

func (s Summary) String() string {
	return fmt.Sprintf("%d songs in %d files, %d events (%d song plays, %d bad lines) in %d files",
		s.Songs, s.SongFiles, s.Events, s.SongPlays, s.BadLines, s.EventFiles)
}
