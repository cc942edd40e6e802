package api

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kolkov/glocal/internal/gls/goid"
	"github.com/kolkov/glocal/internal/gls/goroutine"
)

// Bind snapshots the calling goroutine's inheritable locals and returns a
// function that runs fn with that snapshot installed.
//
// The snapshot is taken now, on the caller, so later changes by the caller
// are not observed by fn. Every call of the returned function gets its own
// copy of the snapshot, so it may run any number of times on any goroutines,
// concurrently too. When fn returns, whatever State the running goroutine
// had before is restored; on a fresh goroutine that means its State is
// dropped.
func Bind(fn func()) func() {
	snapshot := spawnState()
	return func() {
		run(snapshot.Fork(), fn)
	}
}

// Go runs fn on a new goroutine that inherits the caller's inheritable
// locals.
func Go(fn func()) {
	child := spawnState()
	go run(child, fn)
}

// run installs st on the calling goroutine for the duration of fn. st must
// not be installed anywhere else.
func run(st *goroutine.State, fn func()) {
	id, prev, had := install(st)
	defer uninstall(id, prev, had)
	fn()
}

func spawnState() *goroutine.State {
	parent, _ := lookup()
	child := goroutine.Inherit(parent)
	if child.Inheritable != nil {
		inherited.Inc()
		log().Debug("inherited goroutine locals",
			zap.Int64("parent", parent.ID),
			zap.Int("entries", child.Inheritable.Len()))
	}
	return child
}

func install(st *goroutine.State) (id int64, prev *goroutine.State, had bool) {
	id = goid.Get()
	st.ID = id
	prev, had = states.Load(id)
	states.Store(id, st)
	allocated.Inc()
	return id, prev, had
}

func uninstall(id int64, prev *goroutine.State, had bool) {
	if had {
		states.Store(id, prev)
	} else {
		states.Delete(id)
	}
	released.Inc()
}

// Group is an errgroup.Group whose goroutines inherit the inheritable locals
// of the goroutine calling Go.
type Group struct {
	g *errgroup.Group
}

// NewGroup returns a Group and a context canceled when the first function
// returns an error or Wait returns.
func NewGroup(ctx context.Context) (*Group, context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	return &Group{g: g}, ctx
}

// SetLimit limits the number of active goroutines in the group.
func (g *Group) SetLimit(n int) {
	g.g.SetLimit(n)
}

// Go runs fn on a new goroutine carrying a snapshot of the caller's
// inheritable locals. Each call takes its own snapshot.
func (g *Group) Go(fn func() error) {
	child := spawnState()
	g.g.Go(func() error {
		id, prev, had := install(child)
		defer uninstall(id, prev, had)
		return fn()
	})
}

// Wait blocks until every function started with Go has returned and returns
// the first non-nil error, if any.
func (g *Group) Wait() error {
	return g.g.Wait()
}
