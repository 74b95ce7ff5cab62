// Package arrowheap adapts a heap.Shared to the Apache Arrow memory.Allocator interface, so
// Arrow builders and buffers can draw their memory from a heapkit heap.
package arrowheap

import (
	"sync/atomic"
	"unsafe"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/vkngwrapper/heapkit/heap"
)

// Allocator is a memory.Allocator backed by a heap.Shared. Like the other Arrow allocators it
// returns zero-initialized buffers and panics when memory cannot be obtained.
//
// Buffers are only valid until they are freed or the heap is destroyed. Unlike buffers from
// the Go allocator, they are not tracked by the garbage collector: every buffer must be
// passed to Free.
type Allocator struct {
	heap           *heap.Shared
	allocatedBytes int64
}

var _ memory.Allocator = (*Allocator)(nil)

func NewAllocator(shared *heap.Shared) *Allocator {
	return &Allocator{heap: shared}
}

func (a *Allocator) Allocate(size int) []byte {
	if size < 0 {
		panic("arrowheap: negative size")
	}

	p, err := a.heap.Allocate(uint(size))
	if err != nil {
		panic(err)
	}

	buf := a.heap.Bytes(p)[:size]
	memory.Set(buf, 0)

	atomic.AddInt64(&a.allocatedBytes, int64(size))
	return buf
}

func (a *Allocator) Reallocate(size int, b []byte) []byte {
	if size < 0 {
		panic("arrowheap: negative size")
	}

	p := a.ptrOf(b)
	if p == heap.Null {
		return a.Allocate(size)
	}

	if size == 0 {
		a.Free(b)
		return a.Allocate(0)
	}

	oldSize := len(b)
	newP, err := a.heap.Resize(p, uint(size))
	if err != nil {
		panic(err)
	}

	out := a.heap.Bytes(newP)[:size]
	if size > oldSize {
		// bytes past the old length may hold stale data from an earlier allocation
		memory.Set(out[oldSize:], 0)
	}

	atomic.AddInt64(&a.allocatedBytes, int64(size-oldSize))
	return out
}

// Free returns b to the heap. b must have been returned by this Allocator. Freeing a nil
// slice does nothing.
func (a *Allocator) Free(b []byte) {
	p := a.ptrOf(b)
	if p == heap.Null {
		return
	}

	a.heap.Release(p)
	atomic.AddInt64(&a.allocatedBytes, -int64(len(b)))
}

func (a *Allocator) ptrOf(b []byte) heap.Ptr {
	return a.heap.PtrOf(unsafe.Pointer(unsafe.SliceData(b)))
}

// AllocatedBytes returns the total length of all buffers that have not been freed
func (a *Allocator) AllocatedBytes() int64 {
	return atomic.LoadInt64(&a.allocatedBytes)
}

func (a *Allocator) AssertSize(t memory.TestingT, sz int) {
	cur := a.AllocatedBytes()
	if int64(sz) != cur {
		t.Helper()
		t.Errorf("invalid memory size exp=%d, got=%d", sz, cur)
	}
}
