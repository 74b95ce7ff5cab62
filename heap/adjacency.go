package heap

// findPrev returns the free block that ends exactly where block begins, or noBlock
func (h *Heap) findPrev(block int) int {
	if h.free.indexed() {
		prev, ok := h.free.byEnd.Get(block)
		if !ok {
			return noBlock
		}
		return prev
	}

	for curr := h.free.head; curr != noBlock; curr = h.mem.nextFree(curr) {
		if h.mem.blockEnd(curr) == block {
			return curr
		}
	}

	return noBlock
}

// findNext returns the free block that begins exactly where block ends, or noBlock
func (h *Heap) findNext(block int) int {
	end := h.mem.blockEnd(block)

	if h.free.indexed() {
		if h.free.byStart.Has(end) {
			return end
		}
		return noBlock
	}

	for curr := h.free.head; curr != noBlock; curr = h.mem.nextFree(curr) {
		if curr == end {
			return curr
		}
	}

	return noBlock
}
