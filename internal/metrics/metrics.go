// Package metrics collects per-invocation stage timings and writes them
// as one header line per operator kind followed by one data line per
// call. The sink is an explicit process-scoped object shared by every
// operator instance; nothing in this package is a package-level static.
package metrics

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Record is the per-invocation timing breakdown of the execution
// pipeline, all durations in nanoseconds on the wire.
type Record struct {
	OpID uint64
	Rows int
	Cols int

	Exec    time.Duration // whole call
	Runs    int           // hardware launches this call
	RunTime time.Duration // time inside launches

	ACopy time.Duration
	ASync time.Duration
	BCopy time.Duration
	BSync time.Duration
	CCopy time.Duration
	CSync time.Duration
}

// header is the column layout shared by every operator kind.
const header = "id M N Execute_time(ns) num_runs run_time(ns) " +
	"A_copy_time(ns) A_sync_time(ns) " +
	"B_copy_time(ns) B_sync_time(ns) " +
	"C_copy_time(ns) C_sync_time(ns) " +
	"Avg_time_per_run(ns)"

// Sink serializes timing records to a writer. Safe for concurrent use.
type Sink struct {
	mu      sync.Mutex
	w       io.Writer
	emitted map[string]bool
}

// NewSink creates a sink writing to w. A nil writer falls back to stderr.
func NewSink(w io.Writer) *Sink {
	if w == nil {
		w = os.Stderr
	}
	return &Sink{w: w, emitted: make(map[string]bool)}
}

// Emit writes one data line for an invocation of the given operator
// kind, preceded by the header line the first time that kind is seen.
func (s *Sink) Emit(kind string, r Record) {
	avg := float64(0)
	if r.Runs > 0 {
		avg = float64(r.RunTime.Nanoseconds()) / float64(r.Runs)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.emitted[kind] {
		fmt.Fprintf(s.w, "%s_%s\n", kind, header)
		s.emitted[kind] = true
	}
	fmt.Fprintf(s.w, "%d %d %d %d %d %d %d %d %d %d %d %d %.1f\n",
		r.OpID, r.Rows, r.Cols,
		r.Exec.Nanoseconds(), r.Runs, r.RunTime.Nanoseconds(),
		r.ACopy.Nanoseconds(), r.ASync.Nanoseconds(),
		r.BCopy.Nanoseconds(), r.BSync.Nanoseconds(),
		r.CCopy.Nanoseconds(), r.CSync.Nanoseconds(),
		avg)
}
