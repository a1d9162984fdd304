package etl

import (
	"context"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sparkify/lake"
	"github.com/sparkify/lake/avro"
)

// PartitionReport describes one partition of a written table.
type PartitionReport struct {
	// Path is the partition directory relative to the table, "" for an
	// unpartitioned table.
	Path   string
	Values map[string]string
	Files  int
	Rows   int
}

// TableReport describes a written table as found in a Store.
type TableReport struct {
	Table string
	// Complete is true if the table has its success marker.
	Complete   bool
	Rows       int
	Partitions []PartitionReport
}

// Inspect reads back every data file of the named table and counts its rows
// per partition. It also checks that each row's partition column values
// match the partition it was found in.
func Inspect(ctx context.Context, store Store, table string) (TableReport, error) {
	rep := TableReport{Table: table}
	var t *lake.Table
	for i := range lake.Tables {
		if lake.Tables[i].Name == table {
			t = &lake.Tables[i]
		}
	}
	names, err := store.List(ctx, table)
	if err != nil {
		return rep, errors.Wrapf(err, "listing %s", table)
	}
	parts := make(map[string]*PartitionReport)
	for _, name := range names {
		rel := strings.TrimPrefix(name, table+"/")
		if rel == lake.SuccessMarker {
			rep.Complete = true
			continue
		}
		if !strings.HasSuffix(rel, ".avro") {
			continue
		}
		dir := path.Dir(rel)
		if dir == "." {
			dir = ""
		}
		pr, ok := parts[dir]
		if !ok {
			vals, err := lake.ParsePartitionPath(dir)
			if err != nil {
				return rep, errors.Wrapf(err, "in %s", name)
			}
			pr = &PartitionReport{Path: dir, Values: vals}
			parts[dir] = pr
		}
		n, err := countRows(ctx, store, name, t, pr.Values)
		if err != nil {
			return rep, err
		}
		pr.Files++
		pr.Rows += n
		rep.Rows += n
	}
	for _, pr := range parts {
		rep.Partitions = append(rep.Partitions, *pr)
	}
	sort.Slice(rep.Partitions, func(i, j int) bool { return rep.Partitions[i].Path < rep.Partitions[j].Path })
	return rep, nil
}

func countRows(ctx context.Context, store Store, name string, t *lake.Table, partition map[string]string) (int, error) {
	rc, err := store.Open(ctx, name)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	recs, err := avro.ReadAll(rc)
	if err != nil {
		return 0, errors.Wrapf(err, "reading %s", name)
	}
	if t == nil {
		return len(recs), nil
	}
	for i, rec := range recs {
		for col, want := range partition {
			if got := lake.PartitionValue(rec[col]); got != url.PathEscape(want) {
				return 0, errors.Errorf("row %d of %s has %s=%s, outside its partition", i, name, col, got)
			}
		}
	}
	return len(recs), nil
}
