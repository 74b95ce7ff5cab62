package heap

// split shortens block, which must not be on the free list, to size bytes of payload and
// turns the bytes after it into a new block. The new block is returned but not placed on the
// free list. If block cannot hold size bytes plus another header, it is left alone and
// noBlock is returned.
func (h *Heap) split(block int, size int) int {
	capacity := h.mem.blockSize(block)
	if capacity < size+HeaderSize {
		return noBlock
	}

	remainder := block + HeaderSize + size
	h.mem.setBlockSize(remainder, capacity-size-HeaderSize)
	h.mem.setNextFree(remainder, noBlock)
	h.mem.setBlockSize(block, size)

	return remainder
}
