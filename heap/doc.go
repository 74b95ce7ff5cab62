// Package heap implements a first-fit, free-list allocator over a single contiguous region
// obtained from a brk.Break.
//
// # Layout
//
// Every block is a 16-byte header followed by its payload:
//
//	offset+0   size  uint64  payload capacity in bytes, a multiple of 16
//	offset+8   next  uint64  offset of the next free block (meaningful only while free)
//	offset+16  payload...
//
// Blocks tile the region with no gaps: a block's offset plus HeaderSize plus its size is the
// offset of the block after it, and the last block ends at the current break. Addresses
// handed to callers are Ptr values, byte offsets of the payload from the region's origin.
// The first block begins at offset 0, so no payload lives at offset 0 and Null is never a
// valid allocation.
//
// # Allocation
//
// Allocate rounds the request up to Alignment and walks the free list from its head, taking
// the first block whose footprint covers the request plus one header. The whole block is
// handed over; oversized blocks are only split when the heap was created with
// CreateSplitFreeBlocks. When nothing on the free list fits, the region is extended by
// exactly one header plus the rounded request.
//
// # Release
//
// Release pushes the block onto the head of the free list and then merges it with the free
// blocks physically before and after it, if any. The free list is kept in release order,
// not address order, so neighbours are found by comparing addresses across the whole list
// (or through an index, with CreateIndexedNeighbors).
//
// # Thread Safety
//
// Heap is not safe for concurrent use. Wrap it in a Shared to guard every operation with
// a single lock.
package heap
