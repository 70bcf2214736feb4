package metrics

import (
	"sync"
	"testing"
)

func TestCountersAccumulate(t *testing.T) {
	Inc("test_counter_a")
	Add("test_counter_a", 4)
	if got := Value("test_counter_a"); got != 5 {
		t.Fatalf("Value = %d, want 5", got)
	}
	if got := Value("test_counter_missing"); got != 0 {
		t.Fatalf("Value of unknown counter = %d, want 0", got)
	}
}

func TestCountersConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				Inc("test_counter_b")
			}
		}()
	}
	wg.Wait()
	if got := Value("test_counter_b"); got != 8000 {
		t.Fatalf("Value = %d, want 8000", got)
	}
}

func TestSnapshotSorted(t *testing.T) {
	Inc("test_counter_z")
	Inc("test_counter_c")

	snap := Snapshot()
	if len(snap) < 2 {
		t.Fatalf("snapshot too small: %v", snap)
	}
	for i := 1; i < len(snap); i++ {
		if snap[i-1].Name >= snap[i].Name {
			t.Fatalf("snapshot not sorted: %v", snap)
		}
	}
}
