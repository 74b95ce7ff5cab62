// Package brk provides heap-growth primitives modelled on the program break. A Break
// owns one contiguous region of address space that starts at a fixed, aligned origin and
// only ever grows: Sbrk extends the region and reports where the new bytes begin.
//
// Memory handed out by a Break never moves, so addresses derived from Origin remain
// valid for the lifetime of the Break.
package brk

import (
	"unsafe"

	"github.com/pkg/errors"
)

const (
	// Alignment is the boundary every Break origin sits on
	Alignment = 16
	// DefaultLimit is the reservation used by consumers that do not pick one: 64Mb
	DefaultLimit = 64 * 1024 * 1024
)

var (
	// ErrOutOfMemory is returned from Sbrk when the region cannot be extended by the requested amount
	ErrOutOfMemory error = errors.New("heap break cannot be extended")
	// ErrShrink is returned from Sbrk when it is passed a negative delta
	ErrShrink error = errors.New("heap break cannot be lowered")
	// ErrUnsupported is returned when a Break implementation is not available on the current platform
	ErrUnsupported error = errors.New("heap break implementation is not supported on this platform")
)

// Break is a contiguous, monotonically growing region of memory.
type Break interface {
	// Origin returns the address of the first byte of the region. It is aligned to Alignment and
	// never changes.
	Origin() unsafe.Pointer
	// Current returns the current break as an offset from Origin. Bytes in [0, Current()) are
	// readable and writable.
	Current() int
	// Sbrk extends the region by exactly delta bytes and returns the previous break. If the region
	// cannot be extended, an error wrapping ErrOutOfMemory is returned and the break is unchanged.
	Sbrk(delta int) (int, error)
	// Close releases the region. No memory obtained from the Break may be used afterward.
	Close() error
}
