package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/heapkit/memutils"
)

// VisitAllRegions calls visitor for every block in the heap, free or allocated, in address
// order. p is the block's payload address and capacity its payload size. If visitor returns
// an error, the walk stops and the error is returned.
func (h *Heap) VisitAllRegions(visitor func(p Ptr, capacity int, free bool) error) error {
	free := h.free.members()

	return h.walk(func(block int) error {
		return visitor(payloadOf(block), h.mem.blockSize(block), free.Has(block))
	})
}

// walk visits every physical block from the origin to the break
func (h *Heap) walk(visitor func(block int) error) error {
	top := h.Top()

	for block := 0; block < top; {
		end := h.mem.blockEnd(block)
		if end > top {
			return errors.Errorf("block at offset %d ends at %d, past the break at %d", block, end, top)
		}

		err := visitor(block)
		if err != nil {
			return err
		}

		block = end
	}

	return nil
}

// Validate performs internal consistency checks on the heap. These checks walk every block
// and the whole free list, so they are expensive. When the heap is used correctly it should
// not be possible for this method to return an error.
func (h *Heap) Validate() error {
	top := h.Top()
	if err := memutils.CheckAligned(top, Alignment, "break"); err != nil {
		return err
	}

	starts := swiss.NewMap[int, struct{}](42)
	var physicalCount int

	err := h.walk(func(block int) error {
		if err := memutils.CheckAligned(block, Alignment, "block offset"); err != nil {
			return err
		}
		if err := memutils.CheckAligned(h.mem.blockSize(block), Alignment, "block size"); err != nil {
			return errors.Wrapf(err, "block at offset %d", block)
		}

		starts.Put(block, struct{}{})
		physicalCount++
		return nil
	})
	if err != nil {
		return err
	}

	// Check integrity of the free list
	seen := swiss.NewMap[int, struct{}](42)
	var freeCount, freeBytes int
	var listErr error

	h.free.visit(physicalCount+1, func(block int) bool {
		if !starts.Has(block) {
			listErr = errors.Errorf("free list entry at offset %d is not the start of a block", block)
			return false
		}
		if seen.Has(block) {
			listErr = errors.Errorf("free list visits the block at offset %d more than once", block)
			return false
		}

		seen.Put(block, struct{}{})
		freeCount++
		freeBytes += h.mem.blockSize(block)
		return true
	})
	if listErr != nil {
		return listErr
	}

	if freeCount > physicalCount {
		return errors.New("free list does not terminate")
	}

	if freeCount != h.free.count {
		return errors.Errorf("the free block count of the heap is %d, but the free list holds %d blocks", h.free.count, freeCount)
	}

	if freeBytes != h.free.bytes {
		return errors.Errorf("the free size of the heap is %d, but the free blocks only added up to %d", h.free.bytes, freeBytes)
	}

	if h.free.indexed() {
		if h.free.byStart.Count() != freeCount || h.free.byEnd.Count() != freeCount {
			return errors.Errorf("the neighbor index holds %d starts and %d ends, but the free list holds %d blocks", h.free.byStart.Count(), h.free.byEnd.Count(), freeCount)
		}
	}

	var allocCount, allocBytes int
	prevFree := false
	err = h.walk(func(block int) error {
		free := seen.Has(block)
		if free && prevFree {
			return errors.Errorf("free block at offset %d follows another free block", block)
		}
		prevFree = free

		if free {
			if h.free.indexed() {
				if owner, ok := h.free.byEnd.Get(h.mem.blockEnd(block)); !ok || owner != block {
					return errors.Errorf("free block at offset %d is missing from the neighbor index", block)
				}
			}
			return nil
		}

		allocCount++
		allocBytes += h.mem.blockSize(block)
		return nil
	})
	if err != nil {
		return err
	}

	if allocCount != h.allocCount {
		return errors.Errorf("the allocation count of the heap is %d, but the allocated blocks only added up to %d", h.allocCount, allocCount)
	}

	if allocBytes != h.allocBytes {
		return errors.Errorf("the allocated size of the heap is %d, but the allocated blocks only added up to %d", h.allocBytes, allocBytes)
	}

	return nil
}
