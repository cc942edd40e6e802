package tlmap

import (
	"fmt"
	"sync/atomic"

	"github.com/go-errors/errors"
)

// hashIncrement is the difference between successively generated key hashes.
//
// It is the 32-bit golden ratio constant: consecutive multiples of it,
// masked to any power-of-two table size, spread keys nearly evenly across
// the table, so linear probing rarely collides for densely allocated keys.
const hashIncrement = 0x61c88647

// nextHash is the hash handed to the next constructed Key.
var nextHash atomic.Uint32

// ErrChildValueUnsupported is returned when a child value is requested from a
// key that was not created as inheritable.
var ErrChildValueUnsupported error = errors.Errorf("tlmap: child value not supported by non-inheritable key")

// ChildFunc derives the value a child goroutine starts with from the value
// held by its parent at spawn time.
type ChildFunc func(parent any) any

// Key identifies a goroutine-local variable.
//
// Keys compare by pointer identity only. Maps reference keys weakly, so a Key
// that is no longer reachable from user code gets collected and its entries
// become stale.
type Key struct {
	hash  uint32
	name  string
	child ChildFunc
}

// NewKey creates a non-inheritable key.
func NewKey(name string) *Key {
	return &Key{hash: allocHash(), name: name}
}

// NewInheritableKey creates a key whose values are copied into children via
// child. A nil child copies the parent value unchanged.
func NewInheritableKey(name string, child ChildFunc) *Key {
	if child == nil {
		child = func(v any) any { return v }
	}
	return &Key{hash: allocHash(), name: name, child: child}
}

func allocHash() uint32 {
	return nextHash.Add(hashIncrement) - hashIncrement
}

// Hash returns the key's hash code.
func (k *Key) Hash() uint32 {
	return k.hash
}

// Name returns the diagnostic name given at construction.
func (k *Key) Name() string {
	return k.name
}

// Inheritable reports whether the key carries a child-value transform.
func (k *Key) Inheritable() bool {
	return k.child != nil
}

// ChildValue computes the value a child goroutine inherits for this key.
func (k *Key) ChildValue(parent any) (any, error) {
	if k.child == nil {
		return nil, errors.Errorf("%s: %w", k, ErrChildValueUnsupported)
	}
	return k.child(parent), nil
}

func (k *Key) String() string {
	if k.name == "" {
		return fmt.Sprintf("Key(%#08x)", k.hash)
	}
	return fmt.Sprintf("Key(%s, %#08x)", k.name, k.hash)
}
