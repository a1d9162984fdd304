package gen_test

import (
	"testing"
	"time"

	"github.com/sparkify/lake/fake/gen"
)

func TestTime(t *testing.T) {
	g := gen.NewGenerator(0)
	start := time.Date(2018, 11, 1, 0, 0, 0, 0, time.UTC)
	last := start
	for i := 0; i < 1000; i++ {
		tim := g.Time(start, time.Second)
		if tim.Before(last) {
			t.Fatalf("generated a time before the last time")
		}
		if tim.Sub(last) > time.Second {
			t.Fatalf("generated a time more than a second after the last one")
		}
		last = tim
	}
}

func TestUint64Range(t *testing.T) {
	g := gen.NewGenerator(1)
	counts := make(map[uint64]int)
	for i := 0; i < 10000; i++ {
		v := g.Uint64(50)
		if v >= 50 {
			t.Fatalf("value %d out of range", v)
		}
		counts[v]++
	}
	if counts[0] <= counts[49] {
		t.Fatalf("expected a skew towards small values: %d zeros, %d 49s", counts[0], counts[49])
	}
	if g.Uint64(1) != 0 {
		t.Fatal("cardinality 1 should always give 0")
	}
}

func TestKeyDeterministic(t *testing.T) {
	a, b := gen.NewGenerator(1), gen.NewGenerator(2)
	if a.Key(7, 16) != b.Key(7, 16) {
		t.Fatal("keys should not depend on the seed")
	}
	if a.Key(7, 16) == a.Key(8, 16) {
		t.Fatal("distinct inputs gave the same key")
	}
	if len(a.Key(7, 40)) != 32 {
		t.Fatal("keys are at most 32 characters")
	}
}
