package lake_test

import (
	"reflect"
	"testing"

	"github.com/sparkify/lake"
)

type kv struct {
	k string
	v int
}

func TestDedupe(t *testing.T) {
	in := []kv{{"b", 1}, {"a", 2}, {"b", 3}, {"c", 4}, {"a", 5}}
	got := lake.Dedupe(in, func(r kv) string { return r.k })
	exp := []kv{{"b", 1}, {"a", 2}, {"c", 4}}
	if !reflect.DeepEqual(got, exp) {
		t.Fatalf("exp %v, got %v", exp, got)
	}
	if got := lake.Dedupe(nil, func(r kv) string { return r.k }); len(got) != 0 {
		t.Fatalf("expected nothing from nothing, got %v", got)
	}
}

func TestDeduperPrefer(t *testing.T) {
	d := lake.NewDeduper[kv](lake.NewMemoryKeyStore[kv](), func(r kv) string { return r.k })
	d.Prefer = func(existing, candidate kv) bool { return candidate.v > existing.v }
	for _, r := range []kv{{"x", 2}, {"y", 1}, {"x", 9}, {"x", 3}, {"y", 1}} {
		if err := d.Add(r); err != nil {
			t.Fatalf("adding: %v", err)
		}
	}
	var got []kv
	if err := d.Each(func(r kv) error {
		got = append(got, r)
		return nil
	}); err != nil {
		t.Fatalf("iterating: %v", err)
	}
	exp := []kv{{"x", 9}, {"y", 1}}
	if !reflect.DeepEqual(got, exp) {
		t.Fatalf("exp %v, got %v", exp, got)
	}
	if d.Len() != 2 || d.Duplicates() != 3 {
		t.Fatalf("unexpected len %d, duplicates %d", d.Len(), d.Duplicates())
	}
	if err := d.Close(); err != nil {
		t.Fatalf("closing: %v", err)
	}
}
