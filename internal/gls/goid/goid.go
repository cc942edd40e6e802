// Copyright 2025 The glocal Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package goid extracts goroutine IDs.
//
// The Go runtime does not expose goroutine identity, so IDs are parsed from
// the header line of runtime.Stack output:
//
//	goroutine 123 [running]:
//
// IDs are positive and never reused within a process, which makes them safe
// registry keys: a dead goroutine's ID cannot be handed to a new goroutine
// that would then observe stale state.
//
// Performance: ~1500ns per Get (dominated by runtime.Stack).
package goid

import "runtime"

// liveBufSize is the initial buffer for a full goroutine dump. Live doubles
// it until the dump fits.
const liveBufSize = 64 << 10

// Get returns the ID of the calling goroutine, or 0 if it cannot be parsed.
func Get() int64 {
	// Only the first line is needed; 64 bytes always holds it.
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return Parse(buf[:n])
}

// Live returns the IDs of every goroutine in the process.
//
// This stops the world for the duration of the dump and is expensive
// (~1ms per 1000 goroutines). Callers amortize it.
func Live() []int64 {
	buf := make([]byte, liveBufSize)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return ParseAll(buf[:n])
		}
		buf = make([]byte, 2*len(buf))
	}
}

// Parse extracts the goroutine ID from a stack header.
//
// Returns 0 if buf does not start with "goroutine " followed by digits.
func Parse(buf []byte) int64 {
	const prefix = "goroutine "
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}

	var id int64
	for _, c := range buf[len(prefix):] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
	}
	return id
}

// ParseAll extracts every goroutine ID from a runtime.Stack(all=true) dump.
//
// Input format:
//
//	goroutine 1 [running]:
//	main.main()
//	    /path/to/main.go:10 +0x20
//
//	goroutine 5 [chan receive]:
//	...
func ParseAll(buf []byte) []int64 {
	var ids []int64
	for len(buf) > 0 {
		end := 0
		for end < len(buf) && buf[end] != '\n' {
			end++
		}
		if id := Parse(buf[:end]); id != 0 {
			ids = append(ids, id)
		}
		if end == len(buf) {
			break
		}
		buf = buf[end+1:]
	}
	return ids
}
