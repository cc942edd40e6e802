package gls

import (
	"context"

	"go.uber.org/zap"

	"github.com/kolkov/glocal/internal/gls/api"
)

// Go runs fn on a new goroutine that inherits the caller's inheritable
// locals. The goroutine's locals are dropped when fn returns.
func Go(fn func()) {
	api.Go(fn)
}

// Bind snapshots the caller's inheritable locals and returns a function that
// runs fn with that snapshot installed on whichever goroutine calls it.
// Each call starts from its own copy of the snapshot, so the returned
// function may be run many times, concurrently too.
//
// Use it to hand work to goroutines you don't start yourself, such as worker
// pools:
//
//	jobs <- gls.Bind(func() { process(req) })
func Bind(fn func()) func() {
	return api.Bind(fn)
}

// Group is an errgroup.Group whose goroutines inherit the inheritable locals
// of the goroutine that calls Go.
type Group = api.Group

// NewGroup returns a new Group and a derived context that is canceled when a
// function passed to Go returns an error or when Wait returns.
func NewGroup(ctx context.Context) (*Group, context.Context) {
	return api.NewGroup(ctx)
}

// Release drops every local of the calling goroutine. Call it before a
// long-lived goroutine returns, or to reset a pooled goroutine between tasks.
func Release() {
	api.Release()
}

// Stats describes the calling goroutine's local maps.
type Stats struct {
	// Entries is the number of occupied slots in the ordinary map,
	// including entries for collected handles not yet reclaimed.
	Entries int
	// Capacity is the ordinary map's table length, 0 if not allocated.
	Capacity int
	// InheritableEntries and InheritableCapacity describe the inheritable map.
	InheritableEntries  int
	InheritableCapacity int
}

// CurrentStats returns statistics for the calling goroutine.
func CurrentStats() Stats {
	s := api.Stats()
	return Stats{
		Entries:             s.Entries,
		Capacity:            s.Capacity,
		InheritableEntries:  s.InheritableEntries,
		InheritableCapacity: s.InheritableCapacity,
	}
}

// Counters is a snapshot of process-wide runtime statistics.
type Counters = api.Counters

// GetCounters returns process-wide runtime statistics.
func GetCounters() Counters {
	return api.Snapshot()
}

// Sweep reclaims the locals of goroutines that exited without Release and
// returns how many goroutines were reclaimed. It runs automatically every
// SweepInterval allocations.
func Sweep() int {
	return api.Sweep()
}

// SetSweepInterval sets how many goroutine map allocations pass between
// automatic sweeps. Values below 1 restore the default of 1000. The
// GLOCAL_SWEEP_INTERVAL environment variable sets the initial value.
func SetSweepInterval(n int) {
	api.SetSweepInterval(n)
}

// SetLogger routes runtime debug logging to l. A nil l disables it.
func SetLogger(l *zap.Logger) {
	api.SetLogger(l)
}
