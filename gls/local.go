package gls

import (
	"github.com/kolkov/glocal/internal/gls/api"
	"github.com/kolkov/glocal/internal/gls/tlmap"
)

// ErrChildValueUnsupported is returned by [Local.ChildValue] on handles that
// are not inheritable.
var ErrChildValueUnsupported = tlmap.ErrChildValueUnsupported

// Local is a goroutine-local variable of type T.
//
// Handles are compared by identity: two handles never share values, even if
// created with the same initializer. A Local is safe for concurrent use by
// any number of goroutines.
type Local[T any] struct {
	key     *tlmap.Key
	initial func() any
}

// New creates a Local whose initial value is the zero value of T.
func New[T any]() *Local[T] {
	return &Local[T]{key: tlmap.NewKey("")}
}

// NewWithInitial creates a Local whose initial value, per goroutine, is
// computed by initial on the first Get.
func NewWithInitial[T any](initial func() T) *Local[T] {
	l := New[T]()
	l.initial = boxInitial(initial)
	return l
}

func boxInitial[T any](initial func() T) func() any {
	if initial == nil {
		return nil
	}
	return func() any { return initial() }
}

func unbox[T any](v any) T {
	t, _ := v.(T)
	return t
}

// Get returns the calling goroutine's value.
//
// If the goroutine has no value, the initializer runs and its result is
// stored and returned. It does not run again on this goroutine until Remove
// is called.
func (l *Local[T]) Get() T {
	return unbox[T](api.Get(l.key, l.initial))
}

// Lookup returns the calling goroutine's value and whether one is set. The
// initializer is not run.
func (l *Local[T]) Lookup() (T, bool) {
	v, ok := api.Lookup(l.key)
	if !ok {
		var zero T
		return zero, false
	}
	return unbox[T](v), true
}

// Set sets the calling goroutine's value.
func (l *Local[T]) Set(v T) {
	api.Set(l.key, v)
}

// Remove deletes the calling goroutine's value. A later Get runs the
// initializer again.
func (l *Local[T]) Remove() {
	api.Remove(l.key)
}

// ChildValue returns the value a child goroutine would inherit from a parent
// holding parent. Plain locals are not inherited and fail with
// ErrChildValueUnsupported.
func (l *Local[T]) ChildValue(parent T) (T, error) {
	v, err := l.key.ChildValue(parent)
	if err != nil {
		var zero T
		return zero, err
	}
	return unbox[T](v), nil
}

func (l *Local[T]) String() string {
	return l.key.String()
}

// InheritableLocal is a Local whose values are copied into goroutines spawned
// with Go, Bind or Group.Go.
type InheritableLocal[T any] struct {
	Local[T]
}

// NewInheritable creates an inheritable Local. A child goroutine starts with
// childValue applied to the parent's value at spawn time; a nil childValue
// copies the value unchanged.
func NewInheritable[T any](childValue func(parent T) T) *InheritableLocal[T] {
	return &InheritableLocal[T]{Local[T]{key: tlmap.NewInheritableKey("", boxChild(childValue))}}
}

// NewInheritableWithInitial is NewInheritable with a per-goroutine
// initializer.
func NewInheritableWithInitial[T any](initial func() T, childValue func(parent T) T) *InheritableLocal[T] {
	l := NewInheritable(childValue)
	l.initial = boxInitial(initial)
	return l
}

func boxChild[T any](childValue func(T) T) tlmap.ChildFunc {
	if childValue == nil {
		return nil
	}
	return func(v any) any { return childValue(unbox[T](v)) }
}
