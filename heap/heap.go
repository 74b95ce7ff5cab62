package heap

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapkit/brk"
	"github.com/vkngwrapper/heapkit/memutils"
	"golang.org/x/exp/slog"
)

// ErrOutOfMemory is wrapped by every error returned when the heap could not be extended to
// satisfy a request
var ErrOutOfMemory = brk.ErrOutOfMemory

// OperationCounters records how the heap has satisfied requests since it was created
type OperationCounters struct {
	GrowCalls        int // Allocations that extended the break
	GrowBytes        int // Total bytes the break was extended by
	ReuseCalls       int // Allocations satisfied from the free list
	FailedCalls      int // Allocations that could not be satisfied
	ReleaseCalls     int // Non-null releases
	SplitCount       int // Reused blocks that were split
	CoalesceForward  int // Merges with the following block
	CoalesceBackward int // Merges with the preceding block
}

// Heap is a first-fit, free-list allocator over a brk.Break. See the package documentation
// for the block layout.
type Heap struct {
	logger *slog.Logger
	brk    brk.Break
	mem    region
	flags  CreateFlags

	free       freeList
	allocCount int
	allocBytes int

	stats OperationCounters
}

// Allocate returns a Ptr to at least size bytes. The Ptr is aligned to Alignment, as is the
// address it maps to. If the heap cannot be extended, Null is returned along with an error
// wrapping ErrOutOfMemory.
func (h *Heap) Allocate(size uint) (Ptr, error) {
	if size > uint(maxRequest) {
		h.stats.FailedCalls++
		return Null, errors.Wrapf(ErrOutOfMemory, "requested %d bytes", size)
	}

	aligned := memutils.AlignUp(int(size), Alignment)

	block, prev := h.free.firstFit(aligned + HeaderSize)
	if block != noBlock {
		h.free.unlink(block, prev)
		h.stats.ReuseCalls++

		if h.flags&CreateSplitFreeBlocks != 0 {
			h.splitForAllocation(block, aligned)
		}

		h.allocCount++
		h.allocBytes += h.mem.blockSize(block)

		memutils.DebugValidate(h)
		return payloadOf(block), nil
	}

	block, err := h.grow(aligned + HeaderSize)
	if err != nil {
		h.stats.FailedCalls++
		return Null, err
	}

	h.mem.setBlockSize(block, aligned)
	h.mem.setNextFree(block, noBlock)
	h.allocCount++
	h.allocBytes += aligned

	memutils.DebugValidate(h)
	return payloadOf(block), nil
}

func (h *Heap) splitForAllocation(block int, size int) {
	remainder := h.split(block, size)
	if remainder == noBlock {
		return
	}

	// The block following the remainder cannot be free: it was already adjacent to block
	// while block sat on the free list, and adjacent free blocks are always merged.
	h.free.push(remainder)
	h.stats.SplitCount++

	h.logger.Debug("Heap::split",
		slog.Int("Offset", block),
		slog.Int("Size", size),
		slog.Int("RemainderOffset", remainder),
		slog.Int("RemainderSize", h.mem.blockSize(remainder)))
}

func (h *Heap) grow(footprint int) (int, error) {
	prev, err := h.brk.Sbrk(footprint)
	if err != nil {
		h.logger.Warn("Heap::grow failed",
			slog.Int("Delta", footprint),
			slog.Int("Break", h.brk.Current()),
			slog.Any("error", err))
		return noBlock, errors.Wrapf(errors.Mark(err, ErrOutOfMemory), "failed to extend the heap by %d bytes", footprint)
	}

	h.stats.GrowCalls++
	h.stats.GrowBytes += footprint

	h.logger.Debug("Heap::grow",
		slog.Int("Delta", footprint),
		slog.Int("Break", prev+footprint))

	return prev, nil
}

// ZeroAllocate allocates count*elemSize bytes and zeroes them. The product is not checked
// for overflow: a product that wraps allocates the wrapped size.
func (h *Heap) ZeroAllocate(count, elemSize uint) (Ptr, error) {
	total := count * elemSize

	p, err := h.Allocate(total)
	if err != nil {
		return Null, err
	}

	clear(h.mem.bytes(int(p), int(total)))
	return p, nil
}

// Resize returns a Ptr to at least newSize bytes holding the contents of p.
//
// A Null p behaves as Allocate(newSize). A newSize of 0 releases p and returns Null. If p's
// capacity already covers newSize, p is returned unchanged. Otherwise a new block is
// allocated, p's full capacity is copied into it, and p is released. If that allocation
// fails, p is left allocated and untouched, and Null is returned with the error.
func (h *Heap) Resize(p Ptr, newSize uint) (Ptr, error) {
	if p == Null {
		return h.Allocate(newSize)
	}

	if newSize == 0 {
		h.Release(p)
		return Null, nil
	}

	oldCapacity := h.mem.blockSize(blockOf(p))
	if uint(oldCapacity) >= newSize {
		return p, nil
	}

	newP, err := h.Allocate(newSize)
	if err != nil {
		return Null, err
	}

	copy(h.mem.bytes(int(newP), oldCapacity), h.mem.bytes(int(p), oldCapacity))
	h.Release(p)

	return newP, nil
}

// Release returns p's block to the heap and merges it with any free neighbours. Releasing
// Null does nothing. p must have come from this heap and must not already be released.
func (h *Heap) Release(p Ptr) {
	if p == Null {
		return
	}

	block := blockOf(p)
	h.allocCount--
	h.allocBytes -= h.mem.blockSize(block)
	h.stats.ReleaseCalls++

	h.free.push(block)
	h.coalesce(block)

	memutils.DebugValidate(h)
}

// Capacity returns the number of usable bytes at p, which may exceed the size requested
func (h *Heap) Capacity(p Ptr) int {
	if p == Null {
		return 0
	}
	return h.mem.blockSize(blockOf(p))
}

// Bytes returns p's full capacity as a byte slice. The slice aliases heap memory and is only
// valid until p is released.
func (h *Heap) Bytes(p Ptr) []byte {
	if p == Null {
		return nil
	}
	return h.mem.bytes(int(p), h.Capacity(p))
}

// Slice returns the first n bytes at p, with p's capacity as the slice's capacity. It panics
// if n exceeds the capacity.
func (h *Heap) Slice(p Ptr, n int) []byte {
	if p == Null {
		return nil
	}
	return h.Bytes(p)[:n]
}

// Pointer returns the address p refers to
func (h *Heap) Pointer(p Ptr) unsafe.Pointer {
	if p == Null {
		return nil
	}
	return unsafe.Add(h.mem.origin, int(p))
}

// Addr returns the numeric address p refers to
func (h *Heap) Addr(p Ptr) uintptr {
	return uintptr(h.Pointer(p))
}

// PtrOf converts an address inside the heap, such as one returned by Pointer, back into a Ptr
func (h *Heap) PtrOf(pointer unsafe.Pointer) Ptr {
	if pointer == nil {
		return Null
	}
	return Ptr(uintptr(pointer) - uintptr(h.mem.origin))
}

// Top returns the current break: the number of bytes the heap has obtained from its Break
func (h *Heap) Top() int {
	return h.brk.Current()
}

// Counters returns a copy of the heap's operation counters
func (h *Heap) Counters() OperationCounters {
	return h.stats
}

// AllocationCount returns the number of live allocations
func (h *Heap) AllocationCount() int {
	return h.allocCount
}

// FreeRegionsCount returns the number of blocks on the free list
func (h *Heap) FreeRegionsCount() int {
	return h.free.count
}

// SumFreeSize returns the payload capacity of every block on the free list
func (h *Heap) SumFreeSize() int {
	return h.free.bytes
}

// IsEmpty returns true if the heap has no live allocations
func (h *Heap) IsEmpty() bool {
	return h.allocCount == 0
}

// Destroy closes the heap's Break. If any allocations are still live, each is logged and an
// error is returned without closing the Break.
func (h *Heap) Destroy() error {
	if !h.IsEmpty() {
		err := h.VisitAllRegions(func(p Ptr, capacity int, free bool) error {
			if !free {
				h.logUnreleasedMemory(p, capacity)
			}
			return nil
		})
		if err != nil {
			h.logger.Error("[UNRELEASED MEMORY] error while iterating unreleased memory", slog.Any("error", err))
		}

		return errors.Errorf("%d allocations were not released before the heap was destroyed", h.allocCount)
	}

	return h.brk.Close()
}

func (h *Heap) logUnreleasedMemory(p Ptr, capacity int) {
	h.logger.Error("[UNRELEASED MEMORY] unreleased allocation",
		slog.Int("offset", int(p)),
		slog.Int("size", capacity),
	)
}

// DebugLogAllAllocations calls logFunc once for every live allocation, in address order
func (h *Heap) DebugLogAllAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, p Ptr, capacity int)) {
	_ = h.VisitAllRegions(func(p Ptr, capacity int, free bool) error {
		if !free {
			logFunc(logger, p, capacity)
		}
		return nil
	})
}
