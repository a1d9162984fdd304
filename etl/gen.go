package etl

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sparkify/lake/aws/s3"
	"github.com/sparkify/lake/fake"
)

// GenMain holds the config for generating fake input data.
type GenMain struct {
	Output          string  `help:"Where to write the input trees: a directory, or s3://bucket/prefix."`
	Seed            int64   `help:"Random seed. The same seed gives the same data."`
	Artists         int     `help:"Number of distinct artists in the catalog."`
	Songs           int     `help:"Number of songs in the catalog."`
	Users           int     `help:"Number of distinct users in the activity log."`
	Days            int     `help:"Days of activity, one log file per day."`
	Events          int     `help:"Events per day."`
	Start           string  `help:"First day of activity (YYYY-MM-DD, UTC)."`
	DuplicateRate   float64 `help:"Fraction of catalog files repeating an earlier song."`
	BadLineRate     float64 `help:"Fraction of log lines which are malformed."`
	Region          string  `help:"AWS region."`
	AccessKeyID     string  `help:"AWS access key ID. Empty uses the default credential chain."`
	SecretAccessKey string  `help:"AWS secret access key."`
	Endpoint        string  `help:"Endpoint of an S3-compatible service to use instead of AWS."`
}

// NewGenMain gets a GenMain with the default configuration.
func NewGenMain() *GenMain {
	c := fake.NewConfig()
	return &GenMain{
		Output:        "data",
		Seed:          c.Seed,
		Artists:       c.Artists,
		Songs:         c.Songs,
		Users:         c.Users,
		Days:          c.Days,
		Events:        c.Events,
		Start:         c.Start.Format("2006-01-02"),
		DuplicateRate: c.DuplicateRate,
		Region:        "us-west-2",
	}
}

// Run writes a song catalog and activity log under Output.
func (m *GenMain) Run(ctx context.Context) (fake.Summary, error) {
	start, err := time.Parse("2006-01-02", m.Start)
	if err != nil {
		return fake.Summary{}, errors.Wrap(err, "parsing start day")
	}
	if m.Artists < 1 || m.Songs < 1 || m.Users < 1 {
		return fake.Summary{}, errors.New("need at least one artist, song and user")
	}
	store, err := OpenStore(m.Output, s3.Config{
		Region:          m.Region,
		AccessKeyID:     m.AccessKeyID,
		SecretAccessKey: m.SecretAccessKey,
		Endpoint:        m.Endpoint,
	})
	if err != nil {
		return fake.Summary{}, errors.Wrap(err, "opening output")
	}
	return fake.Generate(ctx, store, fake.Config{
		Seed:          m.Seed,
		Artists:       m.Artists,
		Songs:         m.Songs,
		Users:         m.Users,
		Days:          m.Days,
		Events:        m.Events,
		Start:         start,
		DuplicateRate: m.DuplicateRate,
		BadLineRate:   m.BadLineRate,
	})
}
