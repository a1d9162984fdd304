package lake_test

import (
	"sync"
	"testing"

	"github.com/sparkify/lake"
)

func TestNexter(t *testing.T) {
	n := lake.NewNexter(lake.NexterStartFrom(19))
	if num := n.Next(); num != 19 {
		t.Fatalf("expected 19 for Next, but %d", num)
	}
	if num := n.Last(); num != 19 {
		t.Fatalf("expected 19 for Last, but %d", num)
	}
}

func TestSnowflakeIDsUnique(t *testing.T) {
	ids, err := lake.NewSnowflakeIDs(3)
	if err != nil {
		t.Fatalf("getting generator: %v", err)
	}
	var mu sync.Mutex
	seen := make(map[int64]struct{})
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				id := ids.Next()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != 4000 {
		t.Fatalf("expected 4000 distinct ids, got %d", len(seen))
	}
	if _, err := lake.NewSnowflakeIDs(1024); err == nil {
		t.Fatal("expected an error for an out of range node")
	}
}
