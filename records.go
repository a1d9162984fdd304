package lake

import (
	"time"
)

// PageNextSong is the page value of events which record a song being played.
// Only these events feed the users, time and songplays tables.
const PageNextSong = "NextSong"

// SongRecord is one entry of the song catalog. It carries the artist
// attributes too, since the catalog is denormalized.
type SongRecord struct {
	SongID   string
	Title    string
	ArtistID string
	// Year is 0 when the catalog does not know the release year.
	Year     int64
	Duration float64

	ArtistName      string
	ArtistLocation  string
	ArtistLatitude  *float64
	ArtistLongitude *float64
}

// Values implements Row for the songs table.
func (s SongRecord) Values() map[string]interface{} {
	return map[string]interface{}{
		"song_id":   s.SongID,
		"title":     s.Title,
		"artist_id": s.ArtistID,
		"year":      s.Year,
		"duration":  s.Duration,
	}
}

// ArtistRecord is a row of the artists table.
type ArtistRecord struct {
	ArtistID  string
	Name      string
	Location  string
	Latitude  *float64
	Longitude *float64
}

// Artist projects the artist columns out of a catalog entry.
func (s SongRecord) Artist() ArtistRecord {
	return ArtistRecord{
		ArtistID:  s.ArtistID,
		Name:      s.ArtistName,
		Location:  s.ArtistLocation,
		Latitude:  s.ArtistLatitude,
		Longitude: s.ArtistLongitude,
	}
}

// Values implements Row for the artists table.
func (a ArtistRecord) Values() map[string]interface{} {
	return map[string]interface{}{
		"artist_id": a.ArtistID,
		"name":      a.Name,
		"location":  nullString(a.Location),
		"latitude":  nullFloat(a.Latitude),
		"longitude": nullFloat(a.Longitude),
	}
}

// LogEvent is one entry of the activity log.
type LogEvent struct {
	UserID    string
	FirstName string
	LastName  string
	Gender    string
	Level     string
	Page      string
	Artist    string
	Song      string
	SessionID int64
	Location  string
	UserAgent string
	// TS is the event time in milliseconds since the epoch. It is negative if
	// the raw value could not be interpreted.
	TS int64
}

// IsSongPlay returns true for events which record a song being played.
func (e LogEvent) IsSongPlay() bool { return e.Page == PageNextSong }

// User projects the user columns out of an event.
func (e LogEvent) User() UserRecord {
	return UserRecord{
		UserID:    e.UserID,
		FirstName: e.FirstName,
		LastName:  e.LastName,
		Gender:    e.Gender,
		Level:     e.Level,
	}
}

// UserRecord is a row of the users table.
type UserRecord struct {
	UserID    string
	FirstName string
	LastName  string
	Gender    string
	Level     string
}

// Values implements Row for the users table.
func (u UserRecord) Values() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    u.UserID,
		"first_name": nullString(u.FirstName),
		"last_name":  nullString(u.LastName),
		"gender":     nullString(u.Gender),
		"level":      nullString(u.Level),
	}
}

// TimeRecord is a row of the time table: an event instant and its calendar
// attributes in the Calendar's time zone.
type TimeRecord struct {
	StartTime time.Time
	Hour      int
	Day       int
	Week      int
	Month     int
	Year      int
	// Weekday runs from 1 (Sunday) to 7 (Saturday).
	Weekday int
}

// Values implements Row for the time table.
func (t TimeRecord) Values() map[string]interface{} {
	return map[string]interface{}{
		"start_time": t.StartTime,
		"hour":       int64(t.Hour),
		"day":        int64(t.Day),
		"week":       int64(t.Week),
		"month":      int64(t.Month),
		"year":       int64(t.Year),
		"weekday":    int64(t.Weekday),
	}
}

// String returns the display form of the start time.
func (t TimeRecord) String() string {
	return t.StartTime.Format(StartTimeLayout)
}

// SongplayRecord is a row of the songplays fact table.
type SongplayRecord struct {
	SongplayID int64
	StartTime  time.Time
	UserID     string
	Level      string
	SongID     string
	ArtistID   string
	SessionID  int64
	Location   string
	UserAgent  string
	Year       int
	Month      int
}

// Values implements Row for the songplays table.
func (s SongplayRecord) Values() map[string]interface{} {
	return map[string]interface{}{
		"songplay_id": s.SongplayID,
		"start_time":  s.StartTime,
		"user_id":     s.UserID,
		"level":       nullString(s.Level),
		"song_id":     s.SongID,
		"artist_id":   s.ArtistID,
		"session_id":  s.SessionID,
		"location":    nullString(s.Location),
		"user_agent":  nullString(s.UserAgent),
		"year":        int64(s.Year),
		"month":       int64(s.Month),
	}
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
