// Package metrics keeps process-wide counters for the recorder and
// transcoder and optionally publishes them to CloudWatch. Counters are
// cheap atomic increments; publishing happens on a background ticker.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Counter names used across the components.
const (
	UpdatesReceived   = "updates_received"
	SnapshotsWritten  = "snapshots_written"
	DeltasWritten     = "deltas_written"
	MessagesDropped   = "messages_dropped"
	ArchivesUploaded  = "archives_uploaded"
	ArchivesTranscode = "archives_transcoded"
)

var (
	mu       sync.RWMutex
	counters = make(map[string]*int64)
)

func counter(name string) *int64 {
	mu.RLock()
	c, ok := counters[name]
	mu.RUnlock()
	if ok {
		return c
	}
	mu.Lock()
	defer mu.Unlock()
	if c, ok = counters[name]; ok {
		return c
	}
	c = new(int64)
	counters[name] = c
	return c
}

// Inc adds one to the named counter.
func Inc(name string) {
	Add(name, 1)
}

// Add adds delta to the named counter.
func Add(name string, delta int64) {
	atomic.AddInt64(counter(name), delta)
}

// Value returns the current value of the named counter.
func Value(name string) int64 {
	return atomic.LoadInt64(counter(name))
}

// Snapshot returns all counters in name order.
func Snapshot() []NamedValue {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]NamedValue, 0, len(counters))
	for name, c := range counters {
		out = append(out, NamedValue{Name: name, Value: atomic.LoadInt64(c)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NamedValue is one counter reading.
type NamedValue struct {
	Name  string
	Value int64
}
