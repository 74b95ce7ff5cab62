package heap

import "golang.org/x/exp/slog"

// coalesce merges block, which must be on the free list, with the free blocks physically
// adjacent to it. It returns the block that now holds block's bytes: either block itself or
// the free block that preceded it.
func (h *Heap) coalesce(block int) int {
	prev := h.findPrev(block)
	next := h.findNext(block)

	if prev != noBlock && h.mem.blockEnd(prev) == block {
		absorbed := h.mem.blockSize(block)
		h.free.remove(block)
		h.free.extend(prev, absorbed+HeaderSize)
		block = prev

		h.stats.CoalesceBackward++
	}

	if next != noBlock && h.mem.blockEnd(block) == next {
		absorbed := h.mem.blockSize(next)
		h.free.remove(next)
		h.free.extend(block, absorbed+HeaderSize)

		h.stats.CoalesceForward++
	}

	if prev != noBlock || next != noBlock {
		h.logger.Debug("Heap::coalesce",
			slog.Int("Offset", block),
			slog.Int("Size", h.mem.blockSize(block)))
	}

	return block
}
