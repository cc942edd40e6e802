// Package goroutine holds the per-goroutine slots for goroutine-local maps.
package goroutine

import "github.com/kolkov/glocal/internal/gls/tlmap"

// State is the goroutine-local storage of a single goroutine.
//
// Layout:
//   - ID: goroutine ID that owns this state
//   - Locals: map for ordinary locals, nil until first stored value
//   - Inheritable: map for inheritable locals, nil until first stored value
//     or until inherited from the spawning goroutine
//
// Thread Safety: NOT safe for concurrent use. Only the owning goroutine
// touches a State after it is published.
type State struct {
	ID          int64
	Locals      *tlmap.Map
	Inheritable *tlmap.Map
}

// Alloc creates an empty State for goroutine id.
func Alloc(id int64) *State {
	return &State{ID: id}
}

// Inherit creates the State of a goroutine about to be spawned by parent.
//
// The parent's inheritable map is snapshotted now, on the parent goroutine,
// so the child starts with a private copy no matter what the parent does
// afterwards. The child's ID is filled in once it runs.
func Inherit(parent *State) *State {
	st := &State{}
	if parent != nil && parent.Inheritable != nil && parent.Inheritable.Len() > 0 {
		st.Inheritable = tlmap.NewInherited(parent.Inheritable)
	}
	return st
}

// Fork returns a State carrying a private copy of s's inheritable map.
// Ordinary locals are not copied. Child transforms have already been applied
// when s was built by Inherit, so Fork does not apply them again.
//
// Fork only reads s and is safe to call from several goroutines at once as
// long as nothing mutates s.
func (s *State) Fork() *State {
	st := &State{}
	if s.Inheritable != nil {
		st.Inheritable = s.Inheritable.Clone()
	}
	return st
}

// Slot returns the map a key of the given kind lives in. It may be nil.
func (s *State) Slot(inheritable bool) *tlmap.Map {
	if inheritable {
		return s.Inheritable
	}
	return s.Locals
}

// Get returns the value for k.
func (s *State) Get(k *tlmap.Key) (any, bool) {
	m := s.Slot(k.Inheritable())
	if m == nil {
		return nil, false
	}
	return m.Get(k)
}

// Set stores v for k, creating the slot's map on first use.
func (s *State) Set(k *tlmap.Key, v any) {
	if m := s.Slot(k.Inheritable()); m != nil {
		m.Set(k, v)
		return
	}
	m := tlmap.New(k, v)
	if k.Inheritable() {
		s.Inheritable = m
	} else {
		s.Locals = m
	}
}

// Remove deletes the value for k. A missing map is a no-op.
func (s *State) Remove(k *tlmap.Key) {
	if m := s.Slot(k.Inheritable()); m != nil {
		m.Remove(k)
	}
}

// Clear drops both maps, releasing every value they hold.
func (s *State) Clear() {
	s.Locals = nil
	s.Inheritable = nil
}

// Stats summarizes a State's maps.
type Stats struct {
	Entries             int
	Capacity            int
	InheritableEntries  int
	InheritableCapacity int
}

// Stats reports occupancy of both maps. Stale entries that have not been
// expunged yet are counted.
func (s *State) Stats() Stats {
	var st Stats
	if s.Locals != nil {
		st.Entries = s.Locals.Len()
		st.Capacity = s.Locals.Cap()
	}
	if s.Inheritable != nil {
		st.InheritableEntries = s.Inheritable.Len()
		st.InheritableCapacity = s.Inheritable.Cap()
	}
	return st
}
