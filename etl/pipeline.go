package etl

import (
	"context"
	"io"
	"os"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sparkify/lake"
	"github.com/sparkify/lake/leveldb"
	"golang.org/x/sync/errgroup"
)

// Names of the stages a run can fail in, besides write-<table>.
const (
	StageReadSongs  = "read-songs"
	StageReadEvents = "read-events"
	StageSetup      = "setup"
)

// StageError is a fatal error, labelled with the stage of the run it
// happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }

// Cause lets errors.Cause see through a StageError.
func (e *StageError) Cause() error { return e.Err }

func (e *StageError) Unwrap() error { return e.Err }

// Stage returns the stage a run failed in, or "" if err is not a
// *StageError.
func Stage(err error) string {
	se, ok := err.(*StageError)
	if !ok {
		return ""
	}
	return se.Stage
}

// Where a Pipeline groups records for deduplication.
const (
	DedupeMemory  = "memory"
	DedupeLevelDB = "leveldb"
)

// Pipeline turns a song catalog and an activity log into the five output
// tables.
type Pipeline struct {
	Songs    lake.Source
	Events   lake.Source
	Writer   *lake.Writer
	Calendar lake.Calendar
	IDs      lake.IDGenerator

	// Concurrency bounds the number of tables written at once.
	Concurrency int

	// DedupeStore is DedupeMemory or DedupeLevelDB. With DedupeLevelDB,
	// scratch databases are made under DedupeDir.
	DedupeStore string
	DedupeDir   string

	Log   lake.Logger
	Stats lake.Statter
}

// tally counts records as they are read, possibly from several goroutines.
type tally struct {
	songs, events, parseErrors, invalidTS, filtered, misses int64
}

func (t *tally) add(n *int64) { atomic.AddInt64(n, 1) }

// openStore gets an empty KeyStore of the Pipeline's configured kind.
func openStore[T any](p *Pipeline, name string) (lake.KeyStore[T], error) {
	switch p.DedupeStore {
	case "", DedupeMemory:
		return lake.NewMemoryKeyStore[T](), nil
	case DedupeLevelDB:
		dir := p.DedupeDir
		if dir == "" {
			dir = os.TempDir()
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, errors.Wrap(err, "making dedupe directory")
		}
		scratch, err := os.MkdirTemp(dir, "lake-"+name+"-")
		if err != nil {
			return nil, errors.Wrap(err, "making scratch directory")
		}
		return leveldb.NewKeyStore[T](scratch)
	}
	return nil, errors.Errorf("unknown dedupe store '%s'", p.DedupeStore)
}

type builders struct {
	songs   *lake.SongsBuilder
	artists *lake.ArtistsBuilder
	users   *lake.UsersBuilder
	time    *lake.TimeBuilder
	fact    *lake.FactBuilder

	closers []func() error
}

func (p *Pipeline) openBuilders() (b *builders, err error) {
	b = &builders{}
	defer func() {
		if err != nil {
			b.close(p.Log)
		}
	}()
	ss, err := openStore[lake.SongRecord](p, "songs")
	if err != nil {
		return b, err
	}
	b.songs = lake.NewSongsBuilder(ss)
	b.closers = append(b.closers, b.songs.Close)
	as, err := openStore[lake.ArtistRecord](p, "artists")
	if err != nil {
		return b, err
	}
	b.artists = lake.NewArtistsBuilder(as)
	b.closers = append(b.closers, b.artists.Close)
	us, err := openStore[lake.LogEvent](p, "users")
	if err != nil {
		return b, err
	}
	b.users = lake.NewUsersBuilder(us)
	b.closers = append(b.closers, b.users.Close)
	ts, err := openStore[lake.TimeRecord](p, "time")
	if err != nil {
		return b, err
	}
	b.time = lake.NewTimeBuilder(p.Calendar, ts)
	b.closers = append(b.closers, b.time.Close)
	return b, nil
}

func (b *builders) close(log lake.Logger) {
	for _, c := range b.closers {
		if err := c(); err != nil {
			log.Printf("closing dedupe store: %v", err)
		}
	}
	b.closers = nil
}

// Run reads both inputs, builds every table and writes them. The returned
// summary is filled in as far as the run got, even on error. Any error is a
// *StageError.
func (p *Pipeline) Run(ctx context.Context) (lake.RunSummary, error) {
	var sum lake.RunSummary
	if p.Log == nil {
		p.Log = lake.NopLogger{}
	}
	if p.Stats == nil {
		p.Stats = lake.NopStatter{}
	}
	b, err := p.openBuilders()
	if err != nil {
		return sum, &StageError{Stage: StageSetup, Err: err}
	}
	defer b.close(p.Log)

	var t tally
	err = p.read(ctx, b, &t)
	p.fillSummary(&sum, b, &t)
	if err != nil {
		return sum, err
	}
	p.Log.Printf("read %d songs and %d events: %d songs, %d artists, %d users, %d instants, %d song plays",
		sum.SongRecords, sum.EventRecords, b.songs.Len(), b.artists.Len(), b.users.Len(), b.time.Len(), b.fact.Len())

	tables := []struct {
		t    lake.Table
		rows lake.Rows
	}{
		{lake.SongsTable, b.songs.Rows()},
		{lake.ArtistsTable, b.artists.Rows()},
		{lake.UsersTable, b.users.Rows()},
		{lake.TimeTable, b.time.Rows()},
		{lake.SongplaysTable, b.fact.Rows()},
	}
	results := make([]lake.TableSummary, len(tables))
	eg, gctx := errgroup.WithContext(ctx)
	if p.Concurrency > 0 {
		eg.SetLimit(p.Concurrency)
	}
	for i, tbl := range tables {
		i, tbl := i, tbl
		eg.Go(func() error {
			res, err := p.Writer.Write(gctx, tbl.t, tbl.rows)
			if err != nil {
				return &StageError{Stage: "write-" + tbl.t.Name, Err: err}
			}
			results[i] = lake.TableSummary{Name: res.Table, Rows: res.Rows, Partitions: res.Partitions, Files: res.Files}
			return nil
		})
	}
	err = eg.Wait()
	for _, r := range results {
		if r.Name != "" {
			sum.Tables = append(sum.Tables, r)
		}
	}
	return sum, err
}

func (p *Pipeline) fillSummary(sum *lake.RunSummary, b *builders, t *tally) {
	sum.SongRecords = atomic.LoadInt64(&t.songs)
	sum.EventRecords = atomic.LoadInt64(&t.events)
	sum.ParseErrors = atomic.LoadInt64(&t.parseErrors)
	sum.InvalidTimestamps = atomic.LoadInt64(&t.invalidTS)
	sum.EventsFiltered = atomic.LoadInt64(&t.filtered)
	if b.fact != nil {
		sum.JoinMisses = b.fact.Misses()
	}
}

// read consumes both sources concurrently. Song plays are joined against the
// catalog as soon as it is complete; until then they are held back.
func (p *Pipeline) read(ctx context.Context, b *builders, t *tally) error {
	catalogReady := make(chan struct{})
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := p.readSongs(gctx, b, t); err != nil {
			return &StageError{Stage: StageReadSongs, Err: err}
		}
		catalog, err := b.songs.Catalog()
		if err != nil {
			return &StageError{Stage: StageReadSongs, Err: errors.Wrap(err, "indexing catalog")}
		}
		b.fact = lake.NewFactBuilder(p.Calendar, p.IDs, catalog)
		p.Stats.Count(lake.StatDuplicates, b.songs.Duplicates(), 1, "table:songs")
		p.Stats.Count(lake.StatDuplicates, b.artists.Duplicates(), 1, "table:artists")
		close(catalogReady)
		return nil
	})
	eg.Go(func() error {
		if err := p.readEvents(gctx, b, t, catalogReady); err != nil {
			return &StageError{Stage: StageReadEvents, Err: err}
		}
		p.Stats.Count(lake.StatDuplicates, b.users.Duplicates(), 1, "table:users")
		p.Stats.Count(lake.StatDuplicates, b.time.Duplicates(), 1, "table:time")
		return nil
	})
	return eg.Wait()
}

func (p *Pipeline) parseError(t *tally, input string, err error) {
	t.add(&t.parseErrors)
	p.Stats.Count(lake.StatParseErrors, 1, 1, "input:"+input)
	p.Log.Debugf("skipping %s record: %v", input, err)
}

// next gets the next record from src, absorbing per record errors.
func (p *Pipeline) next(ctx context.Context, src lake.Source, t *tally, input string) (interface{}, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := src.Record()
		if err == io.EOF {
			return nil, io.EOF
		} else if lake.IsRecordError(err) {
			p.parseError(t, input, err)
			continue
		} else if err != nil {
			return nil, err
		}
		p.Stats.Count(lake.StatRecordsRead, 1, 1, "input:"+input)
		return rec, nil
	}
}

func (p *Pipeline) readSongs(ctx context.Context, b *builders, t *tally) error {
	for {
		rec, err := p.next(ctx, p.Songs, t, "songs")
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		t.add(&t.songs)
		s, err := lake.ParseSong(rec)
		if err != nil {
			p.parseError(t, "songs", err)
			continue
		}
		if err := b.songs.Add(s); err != nil {
			return errors.Wrap(err, "adding song")
		}
		if err := b.artists.Add(s); err != nil {
			return errors.Wrap(err, "adding artist")
		}
	}
}

func (p *Pipeline) readEvents(ctx context.Context, b *builders, t *tally, catalogReady <-chan struct{}) error {
	var fact *lake.FactBuilder
	var pending []lake.LogEvent
	join := func(ev lake.LogEvent) error {
		// bad timestamps were counted when the time builder rejected them
		if _, err := fact.Add(ev); err != nil && !lake.IsRecordError(err) {
			return errors.Wrap(err, "joining song play")
		}
		return nil
	}
	flush := func() error {
		fact = b.fact
		for _, ev := range pending {
			if err := join(ev); err != nil {
				return err
			}
		}
		pending = nil
		return nil
	}

	for {
		rec, err := p.next(ctx, p.Events, t, "events")
		if err == io.EOF {
			break
		} else if err != nil {
			return err
		}
		t.add(&t.events)
		ev, err := lake.ParseLogEvent(rec)
		if err != nil {
			p.parseError(t, "events", err)
			continue
		}
		used, err := b.users.Add(ev)
		if err != nil {
			return errors.Wrap(err, "adding user")
		}
		if !used {
			t.add(&t.filtered)
			p.Stats.Count(lake.StatEventsFiltered, 1, 1)
			continue
		}
		if err := b.time.Add(ev); lake.IsRecordError(err) {
			t.add(&t.invalidTS)
			p.Stats.Count(lake.StatInvalidTimestamps, 1, 1)
			p.Log.Debugf("skipping song play of user %s: %v", ev.UserID, err)
			continue
		} else if err != nil {
			return errors.Wrap(err, "adding time")
		}
		if fact == nil {
			select {
			case <-catalogReady:
				if err := flush(); err != nil {
					return err
				}
			default:
				pending = append(pending, ev)
				continue
			}
		}
		if err := join(ev); err != nil {
			return err
		}
	}
	if fact == nil {
		select {
		case <-catalogReady:
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := flush(); err != nil {
			return err
		}
	}
	p.Stats.Count(lake.StatJoinMisses, fact.Misses(), 1)
	return nil
}
