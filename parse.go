package lake

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// rawSong mirrors the song catalog JSON. Older catalog files use the short
// location field names (including the "lattitude" misspelling), newer ones
// prefix them with "artist_"; both are accepted.
type rawSong struct {
	SongID          string   `mapstructure:"song_id"`
	Title           string   `mapstructure:"title"`
	ArtistID        string   `mapstructure:"artist_id"`
	ArtistName      string   `mapstructure:"artist_name"`
	Year            int64    `mapstructure:"year"`
	Duration        float64  `mapstructure:"duration"`
	NumSongs        int64    `mapstructure:"num_songs"`
	Lattitude       *float64 `mapstructure:"lattitude"`
	Longitude       *float64 `mapstructure:"longitude"`
	Location        string   `mapstructure:"location"`
	ArtistLatitude  *float64 `mapstructure:"artist_latitude"`
	ArtistLongitude *float64 `mapstructure:"artist_longitude"`
	ArtistLocation  string   `mapstructure:"artist_location"`
}

// rawEvent mirrors the activity log JSON. Fields this pipeline has no use for
// (auth, itemInSession, method, registration, status, ...) are ignored.
type rawEvent struct {
	UserID    string      `mapstructure:"userId"`
	FirstName string      `mapstructure:"firstName"`
	LastName  string      `mapstructure:"lastName"`
	Gender    string      `mapstructure:"gender"`
	Level     string      `mapstructure:"level"`
	Page      string      `mapstructure:"page"`
	Artist    string      `mapstructure:"artist"`
	Song      string      `mapstructure:"song"`
	SessionID int64       `mapstructure:"sessionId"`
	Location  string      `mapstructure:"location"`
	UserAgent string      `mapstructure:"userAgent"`
	TS        interface{} `mapstructure:"ts"`
}

func decode(data interface{}, result interface{}) error {
	if _, ok := data.(map[string]interface{}); !ok {
		return errors.Errorf("expected a JSON object, but got %T", data)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           result,
	})
	if err != nil {
		return errors.Wrap(err, "creating decoder")
	}
	return dec.Decode(data)
}

// ParseSong decodes a record from a song catalog Source.
func ParseSong(data interface{}) (SongRecord, error) {
	var raw rawSong
	if err := decode(data, &raw); err != nil {
		return SongRecord{}, errors.Wrap(err, "decoding song")
	}
	if raw.SongID == "" {
		return SongRecord{}, errors.New("song has no song_id")
	}
	s := SongRecord{
		SongID:          raw.SongID,
		Title:           raw.Title,
		ArtistID:        raw.ArtistID,
		Year:            raw.Year,
		Duration:        raw.Duration,
		ArtistName:      raw.ArtistName,
		ArtistLocation:  raw.ArtistLocation,
		ArtistLatitude:  raw.ArtistLatitude,
		ArtistLongitude: raw.ArtistLongitude,
	}
	if s.ArtistLocation == "" {
		s.ArtistLocation = raw.Location
	}
	if s.ArtistLatitude == nil {
		s.ArtistLatitude = raw.Lattitude
	}
	if s.ArtistLongitude == nil {
		s.ArtistLongitude = raw.Longitude
	}
	return s, nil
}

// ParseLogEvent decodes a record from an activity log Source. An unusable ts
// does not fail parsing; the event gets a negative TS instead, which the
// Calendar rejects.
func ParseLogEvent(data interface{}) (LogEvent, error) {
	var raw rawEvent
	if err := decode(data, &raw); err != nil {
		return LogEvent{}, errors.Wrap(err, "decoding event")
	}
	ts, err := ParseEpochMillis(raw.TS)
	if err != nil {
		ts = -1
	}
	return LogEvent{
		UserID:    raw.UserID,
		FirstName: raw.FirstName,
		LastName:  raw.LastName,
		Gender:    raw.Gender,
		Level:     raw.Level,
		Page:      raw.Page,
		Artist:    raw.Artist,
		Song:      raw.Song,
		SessionID: raw.SessionID,
		Location:  raw.Location,
		UserAgent: raw.UserAgent,
		TS:        ts,
	}, nil
}

// ParseEpochMillis interprets v as integral milliseconds since the epoch. JSON
// numbers, json.Number, integer types and numeric strings are accepted.
func ParseEpochMillis(v interface{}) (int64, error) {
	var ms int64
	switch vt := v.(type) {
	case float64:
		if vt != math.Trunc(vt) || math.IsInf(vt, 0) || math.Abs(vt) >= math.MaxInt64 {
			return 0, &InvalidTimestampError{Value: v}
		}
		ms = int64(vt)
	case int64:
		ms = vt
	case int:
		ms = int64(vt)
	case uint64:
		if vt > math.MaxInt64 {
			return 0, &InvalidTimestampError{Value: v}
		}
		ms = int64(vt)
	case json.Number:
		if i, err := vt.Int64(); err == nil {
			ms = i
			break
		}
		// exponent and fraction forms such as 1.541721820796e12
		f, err := vt.Float64()
		if err != nil {
			return 0, &InvalidTimestampError{Value: v}
		}
		if _, err := ParseEpochMillis(f); err != nil {
			return 0, &InvalidTimestampError{Value: v}
		}
		ms = int64(f)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(vt), 10, 64)
		if err != nil {
			return 0, &InvalidTimestampError{Value: v}
		}
		ms = i
	default:
		return 0, &InvalidTimestampError{Value: v}
	}
	if ms < 0 {
		return 0, &InvalidTimestampError{Value: v}
	}
	return ms, nil
}
