// Package etl runs the song play ETL: it wires sources, builders, writer and
// stats together according to a Main configuration.
package etl

import (
	"context"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pkg/errors"
	"github.com/sparkify/lake"
	"github.com/sparkify/lake/avro"
	"github.com/sparkify/lake/aws/s3"
	"github.com/sparkify/lake/boltdb"
	"github.com/sparkify/lake/json"
	"github.com/sparkify/lake/prom"
	"github.com/sparkify/lake/termstat"
	"go.uber.org/zap"
)

// Main holds all config for a run.
type Main struct {
	Input           string `help:"Input root: a directory, or s3://bucket/prefix."`
	Output          string `help:"Output root for the tables: a directory, or s3://bucket/prefix."`
	SongPattern     string `help:"Path pattern, relative to the input root, of song catalog files."`
	LogPattern      string `help:"Path pattern, relative to the input root, of activity log files."`
	Region          string `help:"AWS region."`
	AccessKeyID     string `help:"AWS access key ID. Empty uses the default credential chain."`
	SecretAccessKey string `help:"AWS secret access key."`
	Endpoint        string `help:"Endpoint of an S3-compatible service to use instead of AWS."`
	Timezone        string `help:"IANA time zone event timestamps are decomposed in."`
	Concurrency     int    `help:"Number of tables to write at once."`
	DedupeStore     string `help:"Where records are grouped for deduplication: memory or leveldb."`
	DedupeDir       string `help:"Directory for leveldb dedupe scratch space. Empty means the system temp dir."`
	MaxRowsPerFile  int    `help:"Maximum number of rows in one output file."`
	Node            int64  `help:"Snowflake node number (0-1023) for songplay IDs. Concurrent runs need different nodes."`
	Ledger          string `help:"Bolt file to record run summaries in. Empty disables the ledger."`
	Pushgateway     string `help:"URL of a Prometheus Pushgateway to push run metrics to."`
	Progress        bool   `help:"Print running counts to stderr."`
	Verbose         bool   `help:"Enable verbose logging."`
	LogFormat       string `help:"Log format: console or json."`

	// Log, Stats and IDs replace the configured logger, stats and songplay
	// ID generator when set.
	Log   lake.Logger      `flag:"-"`
	Stats lake.Statter     `flag:"-"`
	IDs   lake.IDGenerator `flag:"-"`

	runID string
	node  *snowflake.Node
	cal   lake.Calendar
	stats lake.Statter
	zl    *zap.Logger
	prom  *prom.Statter
	term  *termstat.Collector
}

// NewMain gets a new Main with the default configuration.
func NewMain() *Main {
	return &Main{
		Input:          "data",
		Output:         "lake",
		SongPattern:    "song_data/*/*/*/*.json",
		LogPattern:     "log_data/*/*/*.json",
		Region:         "us-west-2",
		Timezone:       lake.DefaultTimezone,
		Concurrency:    2,
		DedupeStore:    DedupeMemory,
		MaxRowsPerFile: lake.DefaultMaxRowsPerFile,
		Node:           1,
		LogFormat:      "console",
	}
}

// RunID returns the ID of the current or last run.
func (m *Main) RunID() string { return m.runID }

func (m *Main) s3Config() s3.Config {
	return s3.Config{
		Region:          m.Region,
		AccessKeyID:     m.AccessKeyID,
		SecretAccessKey: m.SecretAccessKey,
		Endpoint:        m.Endpoint,
	}
}

func (m *Main) validate() error {
	if m.Input == "" {
		return errors.New("an input location is required")
	}
	if m.Output == "" {
		return errors.New("an output location is required")
	}
	if m.DedupeStore != DedupeMemory && m.DedupeStore != DedupeLevelDB {
		return errors.Errorf("dedupe store must be %s or %s, not '%s'", DedupeMemory, DedupeLevelDB, m.DedupeStore)
	}
	if m.Concurrency < 1 {
		return errors.New("concurrency must be at least 1")
	}
	return nil
}

func (m *Main) setup() (err error) {
	if err := m.validate(); err != nil {
		return errors.Wrap(err, "validating configuration")
	}
	if m.Log == nil {
		m.zl, err = NewLogger(m.LogFormat, m.Verbose)
		if err != nil {
			return err
		}
		m.Log = lake.NewZapLogger(m.zl)
	}
	m.cal, err = lake.NewCalendar(m.Timezone)
	if err != nil {
		return err
	}
	if m.IDs == nil {
		m.IDs, err = lake.NewSnowflakeIDs(m.Node)
		if err != nil {
			return err
		}
	}
	if m.node == nil {
		m.node, err = snowflake.NewNode(m.Node)
		if err != nil {
			return errors.Wrap(err, "creating run ID node")
		}
	}
	m.runID = time.Now().UTC().Format("20060102T150405Z") + "-" + m.node.Generate().Base36()

	stats := lake.MultiStatter{}
	if m.Stats != nil {
		stats = append(stats, m.Stats)
	}
	if m.Pushgateway != "" {
		m.prom = prom.NewStatter("lake", m.Log)
		stats = append(stats, m.prom)
	}
	if m.Progress {
		m.term = termstat.NewCollector(os.Stderr, 2*time.Second)
		stats = append(stats, m.term)
	}
	m.stats = stats
	return nil
}

// Run runs the ETL once. The summary is returned, and recorded in the
// ledger, whether or not the run succeeded.
func (m *Main) Run(ctx context.Context) (sum lake.RunSummary, err error) {
	started := time.Now().UTC()
	if err := m.setup(); err != nil {
		return sum, &StageError{Stage: StageSetup, Err: err}
	}
	defer m.teardown()
	m.Log.Printf("starting run %s: %s -> %s", m.runID, m.Input, m.Output)

	sum, err = m.run(ctx)
	sum.RunID = m.runID
	sum.Started = started
	sum.Finished = time.Now().UTC()
	sum.Input = m.Input
	sum.Output = m.Output
	sum.Timezone = m.cal.Location.String()
	if err != nil {
		sum.Error = err.Error()
		m.Log.Printf("run %s failed: %v", m.runID, err)
	}
	m.record(ctx, sum)
	m.logSummary(sum)
	return sum, err
}

func (m *Main) run(ctx context.Context) (lake.RunSummary, error) {
	songs, err := OpenRawSource(ctx, m.Input, m.SongPattern, m.s3Config())
	if err != nil {
		return lake.RunSummary{}, &StageError{Stage: StageReadSongs, Err: err}
	}
	events, err := OpenRawSource(ctx, m.Input, m.LogPattern, m.s3Config())
	if err != nil {
		return lake.RunSummary{}, &StageError{Stage: StageReadEvents, Err: err}
	}
	store, err := OpenStore(m.Output, m.s3Config())
	if err != nil {
		return lake.RunSummary{}, &StageError{Stage: StageSetup, Err: errors.Wrap(err, "opening output")}
	}
	w := lake.NewWriter(store, avro.NewCodec(), m.runID)
	w.MaxRowsPerFile = m.MaxRowsPerFile
	w.Log = m.Log
	w.Stats = m.stats
	defer func() {
		// per table staging is already gone; this removes the run's directory
		if err := store.RemoveAll(context.WithoutCancel(ctx), lake.StagingPath(m.runID, "")); err != nil {
			m.Log.Printf("removing staging for run %s: %v", m.runID, err)
		}
	}()

	p := &Pipeline{
		Songs:       json.NewSourceFromRawSource(songs),
		Events:      json.NewSourceFromRawSource(events),
		Writer:      w,
		Calendar:    m.cal,
		IDs:         m.IDs,
		Concurrency: m.Concurrency,
		DedupeStore: m.DedupeStore,
		DedupeDir:   m.DedupeDir,
		Log:         m.Log,
		Stats:       m.stats,
	}
	return p.Run(ctx)
}

func (m *Main) record(ctx context.Context, sum lake.RunSummary) {
	if m.Ledger != "" {
		l, err := boltdb.OpenLedger(m.Ledger)
		if err != nil {
			m.Log.Printf("opening ledger: %v", err)
		} else {
			if err := l.Record(sum); err != nil {
				m.Log.Printf("recording run: %v", err)
			}
			if err := l.Close(); err != nil {
				m.Log.Printf("closing ledger: %v", err)
			}
		}
	}
	if m.prom != nil {
		err := m.prom.Push(context.WithoutCancel(ctx), m.Pushgateway, "lake", map[string]string{"run_id": m.runID})
		if err != nil {
			m.Log.Printf("pushing metrics: %v", err)
		}
	}
}

func (m *Main) logSummary(sum lake.RunSummary) {
	m.Log.Printf("run %s read %d songs and %d events in %v; skipped %d unparseable records, %d invalid timestamps, %d non song plays; %d song plays matched no song",
		sum.RunID, sum.SongRecords, sum.EventRecords, sum.Finished.Sub(sum.Started).Round(time.Millisecond),
		sum.ParseErrors, sum.InvalidTimestamps, sum.EventsFiltered, sum.JoinMisses)
	for _, t := range sum.Tables {
		m.Log.Printf("  %s: %d rows in %d partitions, %d files", t.Name, t.Rows, t.Partitions, t.Files)
	}
}

func (m *Main) teardown() {
	if m.term != nil {
		m.term.Close()
		m.term = nil
	}
	if m.zl != nil {
		_ = m.zl.Sync()
	}
}
