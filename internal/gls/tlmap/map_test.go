package tlmap

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/go-errors/errors"
)

// keyWithHash builds a key with a chosen hash so tests control probe runs.
func keyWithHash(h uint32) *Key {
	return &Key{hash: h, name: fmt.Sprintf("h%d", h)}
}

// markStale simulates collection of k by clearing its weak pointer in place.
func markStale(t *testing.T, m *Map, k *Key) {
	t.Helper()
	for _, e := range m.table {
		if e != nil && e.refersTo(k) {
			e.clear()
			return
		}
	}
	t.Fatalf("markStale: %v not in table", k)
}

// slotOf returns the table index holding k, or -1.
func slotOf(m *Map, k *Key) int {
	for i, e := range m.table {
		if e != nil && e.refersTo(k) {
			return i
		}
	}
	return -1
}

// verifyValue checks that k maps to want.
func verifyValue(t *testing.T, m *Map, k *Key, want any) {
	t.Helper()
	got, ok := m.Get(k)
	if !ok {
		t.Fatalf("Get(%v) missing, want %v", k, want)
	}
	if got != want {
		t.Errorf("Get(%v) = %v, want %v", k, got, want)
	}
}

// verifyRunsContiguous checks that every live key is reachable from its
// canonical slot without crossing an empty slot.
func verifyRunsContiguous(t *testing.T, m *Map) {
	t.Helper()
	n := len(m.table)
	for i, e := range m.table {
		if e == nil {
			continue
		}
		k := e.key.Value()
		if k == nil {
			continue
		}
		for j := int(k.hash & uint32(n-1)); j != i; j = nextIndex(j, n) {
			if m.table[j] == nil {
				t.Errorf("%v at slot %d unreachable: empty slot %d in its run", k, i, j)
				break
			}
		}
	}
}

func TestNew(t *testing.T) {
	k := NewKey("first")
	m := New(k, "v")

	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
	if m.Cap() != InitialCapacity {
		t.Errorf("Cap() = %d, want %d", m.Cap(), InitialCapacity)
	}
	if m.Threshold() != InitialCapacity*2/3 {
		t.Errorf("Threshold() = %d, want %d", m.Threshold(), InitialCapacity*2/3)
	}
	verifyValue(t, m, k, "v")
}

func TestSetGetRemove(t *testing.T) {
	a := NewKey("a")
	b := NewKey("b")
	m := New(a, 1)

	if _, ok := m.Get(b); ok {
		t.Fatal("Get(b) found a value before Set")
	}

	m.Set(b, 2)
	verifyValue(t, m, a, 1)
	verifyValue(t, m, b, 2)

	m.Set(a, 10)
	verifyValue(t, m, a, 10)
	if m.Len() != 2 {
		t.Errorf("Len() after overwrite = %d, want 2", m.Len())
	}

	m.Remove(a)
	if _, ok := m.Get(a); ok {
		t.Error("Get(a) found a value after Remove")
	}
	verifyValue(t, m, b, 2)
	if m.Len() != 1 {
		t.Errorf("Len() after Remove = %d, want 1", m.Len())
	}

	// Removing an absent key is a no-op.
	m.Remove(a)
	if m.Len() != 1 {
		t.Errorf("Len() after second Remove = %d, want 1", m.Len())
	}
}

func TestIdentityKeying(t *testing.T) {
	a := NewKey("same")
	b := NewKey("same")
	m := New(a, "a-value")

	if _, ok := m.Get(b); ok {
		t.Error("distinct key with equal name observed another key's value")
	}
	m.Set(b, nil)
	verifyValue(t, m, a, "a-value")
	verifyValue(t, m, b, nil)
}

func TestGrowth(t *testing.T) {
	keys := make([]*Key, 20)
	for i := range keys {
		keys[i] = NewKey(fmt.Sprintf("k%d", i))
	}

	m := New(keys[0], 0)
	for i := 1; i < len(keys); i++ {
		m.Set(keys[i], i*100)
	}

	if m.Cap() != 2*InitialCapacity {
		t.Errorf("Cap() = %d, want %d", m.Cap(), 2*InitialCapacity)
	}
	if m.Threshold() != 2*InitialCapacity*2/3 {
		t.Errorf("Threshold() = %d, want %d", m.Threshold(), 2*InitialCapacity*2/3)
	}
	if m.Len() != len(keys) {
		t.Errorf("Len() = %d, want %d", m.Len(), len(keys))
	}
	for i, k := range keys {
		verifyValue(t, m, k, i*100)
	}
	verifyRunsContiguous(t, m)
}

func TestHashSpread(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"16 slots", 16},
		{"32 slots", 32},
		{"64 slots", 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := make(map[uint32]bool, tt.size)
			for i := 0; i < tt.size; i++ {
				h := NewKey("").Hash() & uint32(tt.size-1)
				if seen[h] {
					t.Fatalf("consecutive keys collided on slot %d", h)
				}
				seen[h] = true
			}
		})
	}
}

func TestCollisionRun(t *testing.T) {
	a, b, c := keyWithHash(0), keyWithHash(16), keyWithHash(32)
	m := New(a, "a")
	m.Set(b, "b")
	m.Set(c, "c")

	for want, k := range []*Key{a, b, c} {
		if got := slotOf(m, k); got != want {
			t.Errorf("slotOf(%v) = %d, want %d", k, got, want)
		}
	}

	m.Remove(a)
	verifyValue(t, m, b, "b")
	verifyValue(t, m, c, "c")
	if got := slotOf(m, b); got != 0 {
		t.Errorf("after Remove(a), b at slot %d, want 0", got)
	}
	verifyRunsContiguous(t, m)
}

func TestStaleEntryDoesNotHideLiveKey(t *testing.T) {
	a, b, c := keyWithHash(0), keyWithHash(16), keyWithHash(32)
	m := New(a, "a")
	m.Set(b, "b")
	m.Set(c, "c")

	markStale(t, m, b)

	verifyValue(t, m, c, "c")
	verifyValue(t, m, a, "a")
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2 after stale b was expunged by probe", m.Len())
	}
	if got := slotOf(m, c); got != 1 {
		t.Errorf("c at slot %d, want 1 after run repair", got)
	}
	verifyRunsContiguous(t, m)
}

func TestReplaceStaleEntry(t *testing.T) {
	t.Run("key later in run", func(t *testing.T) {
		a, b, c := keyWithHash(0), keyWithHash(16), keyWithHash(32)
		m := New(a, "a")
		m.Set(b, "b")
		m.Set(c, "c")
		markStale(t, m, a)

		m.Set(c, "c2")

		if got := slotOf(m, c); got != 0 {
			t.Errorf("c at slot %d, want 0 (swapped into stale slot)", got)
		}
		verifyValue(t, m, c, "c2")
		verifyValue(t, m, b, "b")
		if m.Len() != 2 {
			t.Errorf("Len() = %d, want 2", m.Len())
		}
		if m.table[2] != nil {
			t.Error("stale entry swapped to slot 2 was not expunged")
		}
		verifyRunsContiguous(t, m)
	})

	t.Run("new key reuses stale slot", func(t *testing.T) {
		a, b, d := keyWithHash(0), keyWithHash(16), keyWithHash(48)
		m := New(a, "a")
		m.Set(b, "b")
		markStale(t, m, a)

		m.Set(d, "d")

		if got := slotOf(m, d); got != 0 {
			t.Errorf("d at slot %d, want 0", got)
		}
		verifyValue(t, m, d, "d")
		verifyValue(t, m, b, "b")
		if m.Len() != 2 {
			t.Errorf("Len() = %d, want 2", m.Len())
		}
	})

	t.Run("earlier stale slot expunged", func(t *testing.T) {
		a, b, c, d := keyWithHash(0), keyWithHash(16), keyWithHash(32), keyWithHash(48)
		m := New(a, "a")
		m.Set(b, "b")
		m.Set(c, "c")
		markStale(t, m, a)
		markStale(t, m, b)

		// Probe for d hits stale a first; stale b lies later in the run.
		m.Set(d, "d")

		verifyValue(t, m, d, "d")
		verifyValue(t, m, c, "c")
		if m.Len() != 2 {
			t.Errorf("Len() = %d, want 2 (both stale slots expunged)", m.Len())
		}
		verifyRunsContiguous(t, m)
	})
}

func TestRehashExpungesBeforeGrowing(t *testing.T) {
	keys := make([]*Key, 10)
	for i := range keys {
		keys[i] = keyWithHash(uint32(i))
	}
	m := New(keys[0], 0)
	for i := 1; i < 9; i++ {
		m.Set(keys[i], i)
	}
	for i := 0; i < 5; i++ {
		markStale(t, m, keys[i])
	}

	// Reaches the threshold; the sweep frees enough room to skip growth.
	m.Set(keys[9], 9)

	if m.Cap() != InitialCapacity {
		t.Errorf("Cap() = %d, want %d", m.Cap(), InitialCapacity)
	}
	if m.Len() != 5 {
		t.Errorf("Len() = %d, want 5", m.Len())
	}
	for i := 5; i < 10; i++ {
		verifyValue(t, m, keys[i], i)
	}
}

func TestCleanSomeSlots(t *testing.T) {
	a, b := keyWithHash(1), keyWithHash(2)
	m := New(a, "a")
	m.Set(b, "b")
	markStale(t, m, b)

	if !m.cleanSomeSlots(0, m.Len()) {
		t.Fatal("cleanSomeSlots() = false, want true")
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
	if m.cleanSomeSlots(0, m.Len()) {
		t.Error("cleanSomeSlots() on clean table = true, want false")
	}
}

func TestExpungeStale(t *testing.T) {
	keys := make([]*Key, 6)
	for i := range keys {
		keys[i] = keyWithHash(uint32(i * 16))
	}
	m := New(keys[0], 0)
	for i := 1; i < len(keys); i++ {
		m.Set(keys[i], i)
	}
	markStale(t, m, keys[1])
	markStale(t, m, keys[3])

	if got := m.ExpungeStale(); got != 2 {
		t.Errorf("ExpungeStale() = %d, want 2", got)
	}
	for _, i := range []int{0, 2, 4, 5} {
		verifyValue(t, m, keys[i], i)
	}
	verifyRunsContiguous(t, m)
}

func TestRange(t *testing.T) {
	a, b, c := NewKey("a"), NewKey("b"), NewKey("c")
	m := New(a, 1)
	m.Set(b, 2)
	m.Set(c, 3)
	markStale(t, m, b)

	got := map[*Key]any{}
	m.Range(func(k *Key, v any) bool {
		got[k] = v
		return true
	})
	if len(got) != 2 || got[a] != 1 || got[c] != 3 {
		t.Errorf("Range() visited %v, want a=1 c=3", got)
	}

	calls := 0
	m.Range(func(*Key, any) bool {
		calls++
		return false
	})
	if calls != 1 {
		t.Errorf("Range() kept going after false: %d calls", calls)
	}
}

func TestNewInherited(t *testing.T) {
	plus := NewInheritableKey("plus", func(v any) any { return v.(int) + 1 })
	same := NewInheritableKey("same", nil)
	gone := NewInheritableKey("gone", nil)

	parent := New(plus, 5)
	parent.Set(same, "shared")
	parent.Set(gone, "x")
	markStale(t, parent, gone)

	child := NewInherited(parent)

	verifyValue(t, child, plus, 6)
	verifyValue(t, child, same, "shared")
	if _, ok := child.Get(gone); ok {
		t.Error("stale parent entry was inherited")
	}
	if child.Cap() != parent.Cap() {
		t.Errorf("child Cap() = %d, want parent's %d", child.Cap(), parent.Cap())
	}
	if child.Len() != 2 {
		t.Errorf("child Len() = %d, want 2", child.Len())
	}

	verifyValue(t, parent, plus, 5)
	child.Set(plus, 100)
	verifyValue(t, parent, plus, 5)
}

func TestClone(t *testing.T) {
	plus := NewInheritableKey("plus", func(v any) any { return v.(int) + 1 })
	a, b := keyWithHash(3), keyWithHash(3)
	gone := keyWithHash(4)

	m := New(plus, 5)
	m.Set(a, "a")
	m.Set(b, "b")
	m.Set(gone, "x")
	markStale(t, m, gone)

	c := m.Clone()
	if c.Len() != m.Len() || c.Cap() != m.Cap() || c.Threshold() != m.Threshold() {
		t.Errorf("Clone() Len/Cap/Threshold = %d/%d/%d, want %d/%d/%d",
			c.Len(), c.Cap(), c.Threshold(), m.Len(), m.Cap(), m.Threshold())
	}
	verifyValue(t, c, plus, 5)
	verifyValue(t, c, a, "a")
	verifyValue(t, c, b, "b")
	if slotOf(c, b) != slotOf(m, b) {
		t.Errorf("Clone() moved b from slot %d to %d", slotOf(m, b), slotOf(c, b))
	}

	c.Set(a, "changed")
	c.Remove(b)
	verifyValue(t, m, a, "a")
	verifyValue(t, m, b, "b")
}

func TestNewInheritedPanicsOnPlainKey(t *testing.T) {
	parent := New(NewKey("plain"), 1)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("NewInherited() did not panic for plain key")
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrChildValueUnsupported) {
			t.Errorf("panic value = %v, want ErrChildValueUnsupported", r)
		}
	}()
	NewInherited(parent)
}

func TestChildValue(t *testing.T) {
	if _, err := NewKey("plain").ChildValue(1); !errors.Is(err, ErrChildValueUnsupported) {
		t.Errorf("ChildValue() on plain key err = %v, want ErrChildValueUnsupported", err)
	}

	k := NewInheritableKey("double", func(v any) any { return v.(int) * 2 })
	v, err := k.ChildValue(21)
	if err != nil {
		t.Fatalf("ChildValue() err = %v", err)
	}
	if v != 42 {
		t.Errorf("ChildValue(21) = %v, want 42", v)
	}
}

// setCollectable stores a value under a key that is unreachable on return.
func setCollectable(m *Map) {
	k := &Key{hash: 0, name: "collectable"}
	m.Set(k, make([]byte, 64))
}

func TestCollectedKeyBecomesStale(t *testing.T) {
	live := keyWithHash(16)
	m := New(live, "live")
	setCollectable(m)

	runtime.GC()

	if m.Len() != 2 {
		t.Fatalf("Len() = %d before expunge, want 2", m.Len())
	}
	if got := m.ExpungeStale(); got != 1 {
		t.Errorf("ExpungeStale() = %d, want 1 after GC", got)
	}
	verifyValue(t, m, live, "live")
	runtime.KeepAlive(live)
}

func BenchmarkMap(b *testing.B) {
	keys := make([]*Key, 64)
	for i := range keys {
		keys[i] = NewKey("")
	}
	m := New(keys[0], 0)
	for i, k := range keys {
		m.Set(k, i)
	}

	b.Run("Get", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = m.Get(keys[i&63])
		}
	})

	b.Run("Set", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			m.Set(keys[i&63], i)
		}
	})

	b.Run("SetRemove", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			k := keys[i&63]
			m.Remove(k)
			m.Set(k, i)
		}
	})
}
