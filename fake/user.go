package fake

import (
	"fmt"

	"github.com/sparkify/lake/fake/gen"
)

// User is a listener as the activity log describes them.
type User struct {
	ID        string
	FirstName string
	LastName  string
	Gender    string
	Level     string
	Location  string
	UserAgent string
}

// UserGenerator generates fake Users.
type UserGenerator struct {
	g *gen.Generator
	n int
}

// NewUserGenerator initializes a new UserGenerator.
func NewUserGenerator(seed int64) *UserGenerator {
	return &UserGenerator{g: gen.NewGenerator(seed)}
}

// User returns a new User with realistic-ish values. IDs count up from 1.
func (u *UserGenerator) User() *User {
	u.n++
	gender := "F"
	if u.g.Chance(0.5) {
		gender = "M"
	}
	level := "free"
	if u.g.Chance(0.2) {
		level = "paid"
	}
	city := cities[u.g.Uniform(len(cities))]
	return &User{
		ID:        fmt.Sprintf("%d", u.n),
		FirstName: firstNames[u.g.Uniform(len(firstNames))],
		LastName:  lastNames[u.g.Uniform(len(lastNames))],
		Gender:    gender,
		Level:     level,
		Location:  city.name,
		UserAgent: userAgents[u.g.Uint64(len(userAgents))],
	}
}

var firstNames = []string{"Sylvie", "Ryan", "Jacob", "Kate", "Chloe", "Tegan", "Aleena", "Lily", "Jayden", "Matthew", "Mohammad", "Kinsley", "Jordan", "Lucero", "Theodore", "Ava"}

var lastNames = []string{"Cruz", "Smith", "Klein", "Harrell", "Cuevas", "Levine", "Kirby", "Koch", "Graves", "Jones", "Rodriguez", "Young", "Hicks", "Reed", "Harris", "Robinson"}

var userAgents = []string{
	`"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_9_4) AppleWebKit/537.77.4 (KHTML, like Gecko) Version/7.0.5 Safari/537.77.4"`,
	`"Mozilla/5.0 (Windows NT 6.1; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/36.0.1985.143 Safari/537.36"`,
	`Mozilla/5.0 (Windows NT 6.1; WOW64; rv:31.0) Gecko/20100101 Firefox/31.0`,
	`"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Ubuntu Chromium/36.0.1985.125 Chrome/36.0.1985.125 Safari/537.36"`,
	`"Mozilla/5.0 (iPhone; CPU iPhone OS 7_1_2 like Mac OS X) AppleWebKit/537.51.2 (KHTML, like Gecko) Version/7.0 Mobile/11D257 Safari/9537.53"`,
}
