// Package gls provides goroutine-local variables.
//
// A [Local] is a handle whose value is private to each goroutine: Get, Set
// and Remove always act on the calling goroutine's own copy. Values live in a
// per-goroutine hash map created on first use and dropped when the goroutine
// ends.
//
// # Quick Start
//
//	var requestID = gls.New[string]()
//
//	func handle(id string) {
//		defer gls.Release()
//		requestID.Set(id)
//		work()
//	}
//
//	func work() {
//		log.Printf("request %s", requestID.Get())
//	}
//
// # API Overview
//
// The package provides:
//   - Goroutine-local handles: [New], [NewWithInitial]
//   - Inheritable handles: [NewInheritable], [NewInheritableWithInitial]
//   - Spawning with inheritance: [Go], [Bind], [NewGroup]
//   - Lifecycle: [Release], [Sweep], [SetSweepInterval]
//   - Diagnostics: [CurrentStats], [GetCounters], [SetLogger], [GetInfo]
//
// # Inheritance
//
// Values of an [InheritableLocal] are copied into goroutines started with
// [Go], [Bind] or [Group.Go]. The copy is taken synchronously when the
// goroutine is spawned and passed through the handle's child transform, so
// parent and child never share a map. Goroutines started with a plain go
// statement start empty.
//
// # Memory
//
// Each goroutine's map references handles weakly. A handle that is no longer
// reachable is collected by the garbage collector even while goroutines still
// hold values for it; those stale entries, and the values they pin, are
// reclaimed lazily as the goroutine keeps using its map. Goroutines started
// with [Go] drop their map on return. Others should call [Release] when done;
// if they don't, the map is reclaimed by a periodic sweep after the goroutine
// exits.
//
// # Performance Characteristics
//
//	Get/Set (map hit):  one goroutine ID lookup + O(1) probe
//	Goroutine ID:       ~1500ns (runtime.Stack header parse)
//	Sweep:              ~1ms per 1000 goroutines, every 1000 allocations
package gls
