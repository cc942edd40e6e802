// Package api implements the runtime behind goroutine-local variables.
//
// Every goroutine that touches a local gets a goroutine.State, registered in
// a global concurrent map keyed by goroutine ID. The State is allocated lazily
// on first access and owned by that goroutine from then on: only the
// registry itself is shared.
//
// Lifecycle:
//   - Goroutines started through Go or Bind inherit the spawner's
//     inheritable locals and drop their State when the function returns
//   - Any goroutine may drop its State early with Release
//   - States of goroutines that exited without either are reclaimed by a
//     sweep every SweepInterval allocations, which compares the registry
//     against the live goroutine set
package api

import (
	"os"
	"strconv"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/kolkov/glocal/internal/gls/goid"
	"github.com/kolkov/glocal/internal/gls/goroutine"
	"github.com/kolkov/glocal/internal/gls/tlmap"
)

// DefaultSweepInterval is the number of State allocations between sweeps for
// dead goroutines.
const DefaultSweepInterval = 1000

// SweepIntervalEnv overrides DefaultSweepInterval at process start.
const SweepIntervalEnv = "GLOCAL_SWEEP_INTERVAL"

var (
	// states maps goroutine IDs to their State.
	// Key: int64 (goroutine ID)
	// Value: *goroutine.State.
	states = xsync.NewMapOf[int64, *goroutine.State]()

	// allocCounter counts State allocations to trigger periodic sweeps.
	allocCounter atomic.Uint64

	sweepInterval atomic.Int64

	allocated = xsync.NewCounter()
	released  = xsync.NewCounter()
	swept     = xsync.NewCounter()
	inherited = xsync.NewCounter()
)

func init() {
	sweepInterval.Store(DefaultSweepInterval)
	if s := os.Getenv(SweepIntervalEnv); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			sweepInterval.Store(int64(n))
		}
	}
}

// SetSweepInterval sets how many State allocations pass between sweeps.
// Values below 1 restore DefaultSweepInterval.
func SetSweepInterval(n int) {
	if n < 1 {
		n = DefaultSweepInterval
	}
	sweepInterval.Store(int64(n))
}

// SweepInterval returns the current sweep interval.
func SweepInterval() int {
	return int(sweepInterval.Load())
}

// Current returns the State of the calling goroutine, allocating it on first
// access.
func Current() *goroutine.State {
	id := goid.Get()
	if st, ok := states.Load(id); ok {
		return st
	}

	st := goroutine.Alloc(id)
	states.Store(id, st)
	allocated.Inc()
	log().Debug("allocated goroutine state", zap.Int64("goid", id))

	maybeSweep()
	return st
}

// lookup returns the calling goroutine's State without allocating one.
func lookup() (*goroutine.State, bool) {
	return states.Load(goid.Get())
}

// Get returns the calling goroutine's value for k. On a miss it calls
// initial, stores the result and returns it; a nil initial yields nil.
func Get(k *tlmap.Key, initial func() any) any {
	st := Current()
	if v, ok := st.Get(k); ok {
		return v
	}

	var v any
	if initial != nil {
		v = initial()
	}
	st.Set(k, v)
	return v
}

// Lookup returns the calling goroutine's value for k without running an
// initializer.
func Lookup(k *tlmap.Key) (any, bool) {
	st, ok := lookup()
	if !ok {
		return nil, false
	}
	return st.Get(k)
}

// Set stores v as the calling goroutine's value for k.
func Set(k *tlmap.Key, v any) {
	Current().Set(k, v)
}

// Remove deletes the calling goroutine's value for k.
func Remove(k *tlmap.Key) {
	if st, ok := lookup(); ok {
		st.Remove(k)
	}
}

// Release drops the calling goroutine's State and every value in it.
func Release() {
	id := goid.Get()
	if st, ok := states.LoadAndDelete(id); ok {
		st.Clear()
		released.Inc()
		log().Debug("released goroutine state", zap.Int64("goid", id))
	}
}

// Stats returns occupancy of the calling goroutine's maps. A goroutine that
// never stored a value reports zeros.
func Stats() goroutine.Stats {
	if st, ok := lookup(); ok {
		return st.Stats()
	}
	return goroutine.Stats{}
}

// maybeSweep triggers a background sweep every SweepInterval allocations.
func maybeSweep() {
	count := allocCounter.Add(1)
	if count%uint64(sweepInterval.Load()) == 0 {
		go Sweep()
	}
}

// Sweep removes the States of goroutines that have exited and returns how
// many were removed.
//
// Candidates are collected before the live set is taken. A goroutine that
// registers after the snapshot is therefore never a candidate, and a
// candidate missing from the later live set has certainly exited.
//
// Thread Safety: Safe for concurrent calls.
func Sweep() int {
	var candidates []int64
	states.Range(func(id int64, _ *goroutine.State) bool {
		candidates = append(candidates, id)
		return true
	})
	if len(candidates) == 0 {
		return 0
	}

	live := goid.Live()
	liveSet := make(map[int64]struct{}, len(live))
	for _, id := range live {
		liveSet[id] = struct{}{}
	}

	n := 0
	for _, id := range candidates {
		if _, ok := liveSet[id]; ok {
			continue
		}
		if _, ok := states.LoadAndDelete(id); ok {
			n++
		}
	}

	swept.Add(int64(n))
	log().Debug("swept dead goroutine states",
		zap.Int("candidates", len(candidates)),
		zap.Int("live", len(live)),
		zap.Int("removed", n))
	return n
}

// Reset drops every registered State and zeroes the counters.
//
// Thread Safety: NOT safe for concurrent access. Callers must ensure no other
// goroutine is using locals.
func Reset() {
	states.Clear()
	allocCounter.Store(0)
	allocated.Reset()
	released.Reset()
	swept.Reset()
	inherited.Reset()
}
