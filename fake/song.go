// Package fake generates song catalogs and activity logs shaped like the real
// inputs, for demos and tests.
package fake

import (
	"fmt"
	"math"
	"strings"

	"github.com/sparkify/lake/fake/gen"
)

// Song is one song catalog document.
type Song struct {
	NumSongs        int      `json:"num_songs"`
	ArtistID        string   `json:"artist_id"`
	ArtistLatitude  *float64 `json:"artist_latitude"`
	ArtistLongitude *float64 `json:"artist_longitude"`
	ArtistLocation  string   `json:"artist_location"`
	ArtistName      string   `json:"artist_name"`
	SongID          string   `json:"song_id"`
	Title           string   `json:"title"`
	Duration        float64  `json:"duration"`
	Year            int      `json:"year"`

	// TrackID names the file the song is stored in.
	TrackID string `json:"-"`
}

// Artist is the artist part of a catalog document.
type Artist struct {
	ID        string
	Name      string
	Location  string
	Latitude  *float64
	Longitude *float64
}

// CatalogGenerator generates artists and their songs.
type CatalogGenerator struct {
	g       *gen.Generator
	artists []Artist
	n       uint64
}

// NewCatalogGenerator gets a CatalogGenerator drawing songs from the given
// number of artists.
func NewCatalogGenerator(seed int64, artists int) *CatalogGenerator {
	c := &CatalogGenerator{g: gen.NewGenerator(seed)}
	for i := 0; i < artists; i++ {
		c.artists = append(c.artists, c.artist(uint64(i)))
	}
	return c
}

// Artists returns every artist songs are drawn from.
func (c *CatalogGenerator) Artists() []Artist { return c.artists }

func round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}

func (c *CatalogGenerator) artist(i uint64) Artist {
	a := Artist{
		ID:   "AR" + c.g.Key(i<<1, 16),
		Name: c.name(i),
	}
	// plenty of catalog artists have no location at all
	if c.g.Chance(0.6) {
		city := cities[c.g.Uniform(len(cities))]
		a.Location = city.name
		if c.g.Chance(0.7) {
			lat, long := round(city.lat+c.g.Float64(-0.1, 0.1), 5), round(city.long+c.g.Float64(-0.1, 0.1), 5)
			a.Latitude, a.Longitude = &lat, &long
		}
	}
	return a
}

func (c *CatalogGenerator) name(i uint64) string {
	first := adjectives[c.g.Uniform(len(adjectives))]
	second := nouns[c.g.Uniform(len(nouns))]
	switch i % 3 {
	case 0:
		return fmt.Sprintf("The %s %ss", first, second)
	case 1:
		return first + " " + second
	}
	return fmt.Sprintf("%s %s", firstNames[c.g.Uniform(len(firstNames))], lastNames[c.g.Uniform(len(lastNames))])
}

// Song generates a new song by a zipfian random artist.
func (c *CatalogGenerator) Song() Song {
	a := c.artists[c.g.Uint64(len(c.artists))]
	n := c.n
	c.n++
	year := 0
	if c.g.Chance(0.5) {
		year = 1960 + c.g.Uniform(60)
	}
	words := make([]string, 1+c.g.Uniform(3))
	for i := range words {
		if i%2 == 0 {
			words[i] = adjectives[c.g.Uniform(len(adjectives))]
		} else {
			words[i] = nouns[c.g.Uniform(len(nouns))]
		}
	}
	return Song{
		NumSongs:        1,
		ArtistID:        a.ID,
		ArtistLatitude:  a.Latitude,
		ArtistLongitude: a.Longitude,
		ArtistLocation:  a.Location,
		ArtistName:      a.Name,
		SongID:          "SO" + c.g.Key(n<<1|1, 16),
		Title:           strings.Join(words, " "),
		Duration:        round(c.g.Float64(60, 600), 5),
		Year:            year,
		TrackID:         "TR" + c.g.Key(n<<2, 16),
	}
}

type city struct {
	name      string
	lat, long float64
}

var cities = []city{
	{"New York, NY", 40.71455, -74.00712},
	{"Los Angeles, CA", 34.05349, -118.24532},
	{"Chicago, IL", 41.88415, -87.63241},
	{"Houston, TX", 29.76045, -95.36978},
	{"Nashville, TN", 36.16778, -86.77836},
	{"Seattle, WA", 47.60356, -122.32944},
	{"London, England", 51.50632, -0.12714},
	{"Detroit, MI", 42.33168, -83.04792},
	{"Atlanta, GA", 33.74831, -84.39111},
	{"Kingston, Jamaica", 17.99702, -76.79358},
	{"Dublin, Ireland", 53.34376, -6.24953},
	{"Sao Paulo, Brazil", -23.56288, -46.65460},
}

var adjectives = []string{"Electric", "Silent", "Golden", "Broken", "Midnight", "Velvet", "Crimson", "Hollow", "Wild", "Lonely", "Burning", "Frozen", "Neon", "Restless", "Paper"}

var nouns = []string{"Owl", "River", "Heart", "Mirror", "Highway", "Garden", "Engine", "Ghost", "Harbor", "Satellite", "Lantern", "Canyon", "Parade", "Tide", "Echo"}
