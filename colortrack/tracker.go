// Package colortrack maps small integer indices to unique 24-bit RGB
// colours so objects can be painted onto an invisible canvas and recovered
// from a single pixel read.
//
// The high csBits bits of every colour carry a checksum of the index. Pixels
// blended by anti-aliasing or interpolation almost never carry a valid
// checksum, so they decode to "nothing" instead of a wrong object.
package colortrack

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultChecksumBits leaves 2^18 usable slots.
const DefaultChecksumBits = 6

// entropy spreads sequential indices over the checksum space.
const entropy = 123

// Tracker is a colour registry for objects of type T. Slot 0 is reserved for
// the background and is never returned by a lookup.
type Tracker[T any] struct {
	registry []slot[T]
	csBits   uint
	size     int
	csMask   int
}

type slot[T any] struct {
	obj  T
	live bool
}

// New creates a tracker reserving csBits bits for the checksum. Values
// outside [0, 23] fall back to DefaultChecksumBits.
func New[T any](csBits int) *Tracker[T] {
	if csBits < 0 || csBits > 23 {
		csBits = DefaultChecksumBits
	}
	t := &Tracker[T]{
		csBits: uint(csBits),
		size:   1 << (24 - csBits),
		csMask: (1 << csBits) - 1,
	}
	t.Reset()
	return t
}

// Reset drops every registration. Colours handed out before the reset no
// longer resolve.
func (t *Tracker[T]) Reset() {
	t.registry = []slot[T]{{}}
}

// Len returns the number of occupied slots, including the reserved one.
func (t *Tracker[T]) Len() int {
	return len(t.registry)
}

// Cap returns the total number of slots.
func (t *Tracker[T]) Cap() int {
	return t.size
}

// Full reports whether Register would fail.
func (t *Tracker[T]) Full() bool {
	return len(t.registry) >= t.size
}

// Register allocates the next slot for obj and returns its colour as
// "#rrggbb". ok is false when the registry is full; obj then cannot be
// picked but nothing else is affected.
func (t *Tracker[T]) Register(obj T) (color string, ok bool) {
	if t.Full() {
		return "", false
	}
	idx := len(t.registry)
	t.registry = append(t.registry, slot[T]{obj: obj, live: true})
	return t.encode(idx), true
}

// Lookup returns the object registered under a "#rrggbb" (or "rrggbb")
// colour.
func (t *Tracker[T]) Lookup(color string) (T, bool) {
	n, ok := parseColor(color)
	if !ok {
		var zero T
		return zero, false
	}
	return t.lookupInt(n)
}

// LookupRGB returns the object registered under the colour (r, g, b).
func (t *Tracker[T]) LookupRGB(r, g, b uint8) (T, bool) {
	return t.lookupInt(int(r)<<16 | int(g)<<8 | int(b))
}

// Index returns the slot encoded in color if it passes the checksum and is
// within the allocated range.
func (t *Tracker[T]) Index(color string) (int, bool) {
	n, ok := parseColor(color)
	if !ok {
		return 0, false
	}
	return t.index(n)
}

// Remove frees the object behind color. The slot is not reused until Reset.
func (t *Tracker[T]) Remove(color string) {
	idx, ok := t.Index(color)
	if !ok {
		return
	}
	t.registry[idx] = slot[T]{}
}

func (t *Tracker[T]) lookupInt(n int) (T, bool) {
	idx, ok := t.index(n)
	if !ok || !t.registry[idx].live {
		var zero T
		return zero, false
	}
	return t.registry[idx].obj, true
}

func (t *Tracker[T]) index(n int) (int, bool) {
	if n <= 0 || n >= 1<<24 {
		return 0, false
	}
	idx := n & (t.size - 1)
	cs := (n >> (24 - t.csBits)) & t.csMask
	if idx == 0 || idx >= len(t.registry) || checksum(idx, t.csBits) != cs {
		return 0, false
	}
	return idx, true
}

func (t *Tracker[T]) encode(idx int) string {
	n := idx + checksum(idx, t.csBits)<<(24-t.csBits)
	return fmt.Sprintf("#%06x", n)
}

func checksum(n int, csBits uint) int {
	return (n * entropy) % (1 << csBits)
}

func parseColor(s string) (int, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, false
	}
	return int(n), true
}
