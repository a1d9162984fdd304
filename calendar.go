package lake

import (
	"strings"
	"time"
	// Embedded so that time zone decomposition never depends on the zoneinfo
	// files of the host.
	_ "time/tzdata"

	"github.com/pkg/errors"
)

// DefaultTimezone is the zone event timestamps are decomposed in when none is
// configured. The activity log was historically analyzed on US Eastern wall
// clock time, so e.g. 1541721820796 falls on 2018-11-08, not 2018-11-09.
const DefaultTimezone = "America/New_York"

// StartTimeLayout is the display form of a start time.
const StartTimeLayout = "2006-01-02 15:04:05.000"

// Calendar decomposes event timestamps into calendar attributes in a fixed
// time zone. The zero Calendar uses UTC.
type Calendar struct {
	Location *time.Location
}

// NewCalendar gets a Calendar for the named IANA time zone. An empty name
// means DefaultTimezone; "UTC" and "Local" are accepted as well, though Local
// makes output depend on the host and is best avoided.
func NewCalendar(tz string) (Calendar, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Calendar{}, errors.Wrapf(err, "loading time zone '%s'", tz)
	}
	return Calendar{Location: loc}, nil
}

// Decompose converts epochMs, milliseconds since the epoch, into a TimeRecord.
// It returns an *InvalidTimestampError for negative input.
func (c Calendar) Decompose(epochMs int64) (TimeRecord, error) {
	if epochMs < 0 {
		return TimeRecord{}, &InvalidTimestampError{Value: epochMs}
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	t := time.UnixMilli(epochMs).In(loc)
	_, week := t.ISOWeek()
	return TimeRecord{
		StartTime: t,
		Hour:      t.Hour(),
		Day:       t.Day(),
		Week:      week,
		Month:     int(t.Month()),
		Year:      t.Year(),
		Weekday:   int(t.Weekday()) + 1,
	}, nil
}
