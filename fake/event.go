package fake

import (
	"time"

	"github.com/sparkify/lake/fake/gen"
)

// Event is one activity log line. Fields which are null in the log for
// events that are not song plays are pointers.
type Event struct {
	Artist        *string  `json:"artist"`
	Auth          string   `json:"auth"`
	FirstName     string   `json:"firstName"`
	Gender        string   `json:"gender"`
	ItemInSession int      `json:"itemInSession"`
	LastName      string   `json:"lastName"`
	Length        *float64 `json:"length"`
	Level         string   `json:"level"`
	Location      string   `json:"location"`
	Method        string   `json:"method"`
	Page          string   `json:"page"`
	Registration  float64  `json:"registration"`
	SessionID     int      `json:"sessionId"`
	Song          *string  `json:"song"`
	Status        int      `json:"status"`
	TS            int64    `json:"ts"`
	UserAgent     string   `json:"userAgent"`
	UserID        string   `json:"userId"`
}

// EventGenerator generates activity log events for a fixed set of users
// listening to songs from a catalog.
type EventGenerator struct {
	// PlayRate is the fraction of events that are song plays.
	PlayRate float64
	// UnknownRate is the fraction of song plays of songs outside the
	// catalog.
	UnknownRate float64
	// UpgradeRate is the chance, per event, that a free user becomes paid.
	UpgradeRate float64

	g        *gen.Generator
	users    []*User
	songs    []Song
	sessions map[string]int
	items    map[string]int
	session  int
}

// NewEventGenerator gets an EventGenerator for users playing songs.
func NewEventGenerator(seed int64, users []*User, songs []Song) *EventGenerator {
	return &EventGenerator{
		PlayRate:    0.8,
		UnknownRate: 0.1,
		UpgradeRate: 0.002,
		g:           gen.NewGenerator(seed),
		users:       users,
		songs:       songs,
		sessions:    make(map[string]int),
		items:       make(map[string]int),
	}
}

var otherPages = []string{"Home", "Logout", "Settings", "Thumbs Up", "Add to Playlist", "Help", "Downgrade", "About"}

// Event generates an event at time at by a zipfian random user.
func (e *EventGenerator) Event(at time.Time) *Event {
	u := e.users[e.g.Uint64(len(e.users))]
	if u.Level == "free" && e.g.Chance(e.UpgradeRate) {
		u.Level = "paid"
	}
	sess, ok := e.sessions[u.ID]
	if !ok || e.g.Chance(0.05) {
		e.session++
		sess = e.session
		e.sessions[u.ID] = sess
		e.items[u.ID] = 0
	}
	item := e.items[u.ID]
	e.items[u.ID]++

	ev := &Event{
		Auth:          "Logged In",
		FirstName:     u.FirstName,
		Gender:        u.Gender,
		ItemInSession: item,
		LastName:      u.LastName,
		Level:         u.Level,
		Location:      u.Location,
		Method:        "GET",
		Page:          e.g.Pick(otherPages),
		Registration:  float64(at.Add(-90*24*time.Hour).UnixMilli()),
		SessionID:     sess,
		Status:        200,
		TS:            at.UnixMilli(),
		UserAgent:     u.UserAgent,
		UserID:        u.ID,
	}
	if len(e.songs) > 0 && e.g.Chance(e.PlayRate) {
		ev.Page, ev.Method = "NextSong", "PUT"
		var artist, song string
		var length float64
		if e.g.Chance(e.UnknownRate) {
			artist = adjectives[e.g.Uniform(len(adjectives))] + " Unsigned " + nouns[e.g.Uniform(len(nouns))]
			song = nouns[e.g.Uniform(len(nouns))]
			length = e.g.Float64(60, 600)
		} else {
			s := e.songs[e.g.Uint64(len(e.songs))]
			artist, song, length = s.ArtistName, s.Title, s.Duration
		}
		ev.Artist, ev.Song, ev.Length = &artist, &song, &length
	}
	return ev
}
