package api

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// SetLogger routes runtime diagnostics to l. A nil l disables logging.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l.Named("gls"))
}

func log() *zap.Logger {
	return logger.Load()
}

// Counters is a snapshot of runtime statistics.
type Counters struct {
	// Goroutines is the number of registered goroutine States.
	Goroutines int
	// Allocated counts States created, lazily or at spawn.
	Allocated int64
	// Released counts States dropped by Release or at the end of a spawned
	// function.
	Released int64
	// Swept counts States of exited goroutines removed by Sweep.
	Swept int64
	// Inherited counts spawns that copied a non-empty inheritable map.
	Inherited int64
}

// Snapshot returns the current runtime statistics.
func Snapshot() Counters {
	return Counters{
		Goroutines: states.Size(),
		Allocated:  allocated.Value(),
		Released:   released.Value(),
		Swept:      swept.Value(),
		Inherited:  inherited.Value(),
	}
}
