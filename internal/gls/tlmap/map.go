// Package tlmap implements the per-goroutine storage map behind goroutine-local
// variables.
//
// A Map is an open-addressed hash table with linear probing. Keys are held
// through weak pointers: once a *Key is unreachable from user code the garbage
// collector clears the pointer and the slot becomes stale. Stale slots are not
// reclaimed eagerly. They are expunged opportunistically while probing during
// Get, Set and Remove, by a logarithmic scan after each insert, and by a full
// sweep before the table grows.
//
// Design:
//   - Table length is always a power of two, starting at InitialCapacity
//   - A key's canonical slot is Hash() & (len-1)
//   - Collisions probe forward one slot at a time, wrapping at the end
//   - The table grows by doubling once size reaches 2/3 of its length
//
// Expunging a slot rehashes the rest of its probe run (Knuth, TAOCP vol. 3,
// Algorithm 6.4R), so a live key is never separated from its canonical slot by
// an empty slot.
//
// Thread Safety: NOT safe for concurrent use. A Map belongs to exactly one
// goroutine; the only cross-goroutine access is NewInherited, which must run
// on the owner while it is not mutating the parent.
package tlmap

import "weak"

// InitialCapacity is the table length of a new Map. MUST be a power of two.
const InitialCapacity = 16

// entry is a table slot. The key is weak; the value is strong until the
// slot is expunged.
type entry struct {
	key   weak.Pointer[Key]
	value any
}

func newEntry(k *Key, v any) *entry {
	return &entry{key: weak.Make(k), value: v}
}

// refersTo reports whether the entry's key currently resolves to k.
// refersTo(nil) is true for a stale entry.
func (e *entry) refersTo(k *Key) bool {
	return e.key.Value() == k
}

func (e *entry) clear() {
	e.key = weak.Pointer[Key]{}
}

// Map is a goroutine-local variable table.
type Map struct {
	table     []*entry
	size      int
	threshold int
}

// New creates a map holding a single entry. Maps are only created when
// there is at least one value to store.
func New(firstKey *Key, firstValue any) *Map {
	m := &Map{table: make([]*entry, InitialCapacity)}
	i := int(firstKey.hash & (InitialCapacity - 1))
	m.table[i] = newEntry(firstKey, firstValue)
	m.size = 1
	m.setThreshold(InitialCapacity)
	return m
}

// NewInherited builds a child goroutine's inheritable map from its parent's.
//
// Every live parent entry is copied in table order with its value passed
// through the key's child transform. The new table has the parent's length
// and starts with no stale slots, so entries are placed by plain linear
// probing.
//
// Panics with an error wrapping ErrChildValueUnsupported if a live key is
// not inheritable.
func NewInherited(parent *Map) *Map {
	parentTable := parent.table
	n := len(parentTable)
	m := &Map{table: make([]*entry, n)}
	m.setThreshold(n)

	for _, e := range parentTable {
		if e == nil {
			continue
		}
		k := e.key.Value()
		if k == nil {
			continue
		}
		v, err := k.ChildValue(e.value)
		if err != nil {
			panic(err)
		}
		h := int(k.hash & uint32(n-1))
		for m.table[h] != nil {
			h = nextIndex(h, n)
		}
		m.table[h] = newEntry(k, v)
		m.size++
	}
	return m
}

// Clone returns a copy of m with the same table layout, stale slots
// included. Values are shared; no child transform is applied.
func (m *Map) Clone() *Map {
	c := &Map{
		table:     make([]*entry, len(m.table)),
		size:      m.size,
		threshold: m.threshold,
	}
	for i, e := range m.table {
		if e != nil {
			c.table[i] = &entry{key: e.key, value: e.value}
		}
	}
	return c
}

func (m *Map) setThreshold(n int) {
	m.threshold = n * 2 / 3
}

func nextIndex(i, n int) int {
	if i+1 < n {
		return i + 1
	}
	return 0
}

func prevIndex(i, n int) int {
	if i-1 >= 0 {
		return i - 1
	}
	return n - 1
}

// Get returns the value stored for k and whether an entry exists.
func (m *Map) Get(k *Key) (any, bool) {
	i := int(k.hash & uint32(len(m.table)-1))
	e := m.table[i]
	if e != nil && e.refersTo(k) {
		return e.value, true
	}
	if e = m.getAfterMiss(k, i, e); e != nil {
		return e.value, true
	}
	return nil, false
}

// getAfterMiss continues the probe from slot i, expunging stale slots it
// passes over.
func (m *Map) getAfterMiss(k *Key, i int, e *entry) *entry {
	tab := m.table
	n := len(tab)

	for e != nil {
		if e.refersTo(k) {
			return e
		}
		if e.refersTo(nil) {
			m.expungeStaleEntry(i)
		} else {
			i = nextIndex(i, n)
		}
		e = tab[i]
	}
	return nil
}

// Set stores v for k.
func (m *Map) Set(k *Key, v any) {
	tab := m.table
	n := len(tab)
	i := int(k.hash & uint32(n-1))

	for e := tab[i]; e != nil; e = tab[i] {
		if e.refersTo(k) {
			e.value = v
			return
		}
		if e.refersTo(nil) {
			m.replaceStaleEntry(k, v, i)
			return
		}
		i = nextIndex(i, n)
	}

	tab[i] = newEntry(k, v)
	m.size++
	sz := m.size
	if !m.cleanSomeSlots(i, sz) && sz >= m.threshold {
		m.rehash()
	}
}

// Remove deletes the entry for k, if any.
func (m *Map) Remove(k *Key) {
	tab := m.table
	n := len(tab)
	i := int(k.hash & uint32(n-1))

	for e := tab[i]; e != nil; e = tab[i] {
		if e.refersTo(k) {
			e.clear()
			m.expungeStaleEntry(i)
			return
		}
		i = nextIndex(i, n)
	}
}

// replaceStaleEntry stores k/v during Set when the probe for k hit the stale
// slot staleSlot before finding k or an empty slot.
//
// Whether or not k already exists further along the run, its entry ends up in
// staleSlot. Any other stale entries in the run are expunged as a side effect.
func (m *Map) replaceStaleEntry(k *Key, v any, staleSlot int) {
	tab := m.table
	n := len(tab)

	// Find the earliest stale slot of the run so one expunge pass covers it.
	slotToExpunge := staleSlot
	for i := prevIndex(staleSlot, n); tab[i] != nil; i = prevIndex(i, n) {
		if tab[i].refersTo(nil) {
			slotToExpunge = i
		}
	}

	for i := nextIndex(staleSlot, n); tab[i] != nil; i = nextIndex(i, n) {
		e := tab[i]

		// k lives later in the run: swap it into the stale slot to keep the
		// run ordered, then expunge from the earliest stale slot.
		if e.refersTo(k) {
			e.value = v
			tab[i] = tab[staleSlot]
			tab[staleSlot] = e

			if slotToExpunge == staleSlot {
				slotToExpunge = i
			}
			m.cleanSomeSlots(m.expungeStaleEntry(slotToExpunge), n)
			return
		}

		if e.refersTo(nil) && slotToExpunge == staleSlot {
			slotToExpunge = i
		}
	}

	tab[staleSlot].value = nil
	tab[staleSlot] = newEntry(k, v)

	if slotToExpunge != staleSlot {
		m.cleanSomeSlots(m.expungeStaleEntry(slotToExpunge), n)
	}
}

// expungeStaleEntry clears staleSlot and rehashes every entry between it and
// the next empty slot, clearing further stale entries on the way.
//
// Returns the index of the empty slot that ended the run.
func (m *Map) expungeStaleEntry(staleSlot int) int {
	tab := m.table
	n := len(tab)

	tab[staleSlot].value = nil
	tab[staleSlot] = nil
	m.size--

	i := nextIndex(staleSlot, n)
	for ; tab[i] != nil; i = nextIndex(i, n) {
		e := tab[i]
		k := e.key.Value()
		if k == nil {
			e.value = nil
			tab[i] = nil
			m.size--
			continue
		}
		h := int(k.hash & uint32(n-1))
		if h != i {
			tab[i] = nil
			for tab[h] != nil {
				h = nextIndex(h, n)
			}
			tab[h] = e
		}
	}
	return i
}

// cleanSomeSlots scans log2(n) slots after i for stale entries. Every hit
// resets the budget to the table length, so clusters of garbage get swept in
// one go while a clean table costs only a few probes.
//
// i is known not to hold a stale entry. Returns true if anything was removed.
func (m *Map) cleanSomeSlots(i, n int) bool {
	removed := false
	tab := m.table
	length := len(tab)
	for {
		i = nextIndex(i, length)
		e := tab[i]
		if e != nil && e.refersTo(nil) {
			n = length
			removed = true
			i = m.expungeStaleEntry(i)
		}
		n >>= 1
		if n == 0 {
			return removed
		}
	}
}

// rehash expunges every stale entry, then doubles the table if the map is
// still at least three quarters of the way to its threshold.
func (m *Map) rehash() {
	m.expungeStaleEntries()

	if m.size >= m.threshold-m.threshold/4 {
		m.resize()
	}
}

// resize doubles the table. Entries that went stale since the last sweep are
// dropped.
func (m *Map) resize() {
	oldTab := m.table
	newLen := len(oldTab) * 2
	newTab := make([]*entry, newLen)
	count := 0

	for _, e := range oldTab {
		if e == nil {
			continue
		}
		k := e.key.Value()
		if k == nil {
			e.value = nil
			continue
		}
		h := int(k.hash & uint32(newLen-1))
		for newTab[h] != nil {
			h = nextIndex(h, newLen)
		}
		newTab[h] = e
		count++
	}

	m.setThreshold(newLen)
	m.size = count
	m.table = newTab
}

func (m *Map) expungeStaleEntries() {
	tab := m.table
	for j := range tab {
		e := tab[j]
		if e != nil && e.refersTo(nil) {
			m.expungeStaleEntry(j)
		}
	}
}

// ExpungeStale removes every stale entry immediately and returns how many
// slots were freed.
func (m *Map) ExpungeStale() int {
	before := m.size
	m.expungeStaleEntries()
	return before - m.size
}

// Len returns the number of occupied slots. Stale entries count until they
// are expunged.
func (m *Map) Len() int {
	return m.size
}

// Cap returns the current table length.
func (m *Map) Cap() int {
	return len(m.table)
}

// Threshold returns the size at which the next insert triggers a rehash.
func (m *Map) Threshold() int {
	return m.threshold
}

// Range calls f for every live entry in table order until f returns false.
// Stale entries are skipped, not expunged.
func (m *Map) Range(f func(k *Key, v any) bool) {
	for _, e := range m.table {
		if e == nil {
			continue
		}
		k := e.key.Value()
		if k == nil {
			continue
		}
		if !f(k, e.value) {
			return
		}
	}
}
