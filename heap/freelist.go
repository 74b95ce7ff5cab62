package heap

import (
	"github.com/dolthub/swiss"
)

// freeList is a singly linked list of free blocks threaded through their headers. It is
// ordered by release, most recent first. When indexed, it also mirrors its members into
// maps keyed by start and end offset so neighbours can be found without a scan.
type freeList struct {
	mem   region
	head  int
	count int
	bytes int

	byStart *swiss.Map[int, struct{}]
	byEnd   *swiss.Map[int, int]
}

func newFreeList(mem region, indexed bool) freeList {
	l := freeList{
		mem:  mem,
		head: noBlock,
	}

	if indexed {
		l.byStart = swiss.NewMap[int, struct{}](42)
		l.byEnd = swiss.NewMap[int, int](42)
	}

	return l
}

func (l *freeList) indexed() bool {
	return l.byStart != nil
}

func (l *freeList) push(block int) {
	l.mem.setNextFree(block, l.head)
	l.head = block
	l.count++
	l.bytes += l.mem.blockSize(block)

	if l.indexed() {
		l.byStart.Put(block, struct{}{})
		l.byEnd.Put(l.mem.blockEnd(block), block)
	}
}

// firstFit returns the first block in list order whose footprint is at least footprint
// bytes, along with its predecessor in the list. Comparing footprints means a block fits
// when its capacity covers the request, with no room required for a further header; this
// is what lets a released block be handed straight back to a request of the same size.
func (l *freeList) firstFit(footprint int) (block int, prev int) {
	prev = noBlock
	for block = l.head; block != noBlock; block = l.mem.nextFree(block) {
		if HeaderSize+l.mem.blockSize(block) >= footprint {
			return block, prev
		}
		prev = block
	}

	return noBlock, noBlock
}

// unlink removes block from the list. prev must be block's predecessor, or noBlock if block
// is the head.
func (l *freeList) unlink(block int, prev int) {
	next := l.mem.nextFree(block)
	if prev == noBlock {
		l.head = next
	} else {
		l.mem.setNextFree(prev, next)
	}
	l.mem.setNextFree(block, noBlock)

	l.count--
	l.bytes -= l.mem.blockSize(block)

	if l.indexed() {
		l.byStart.Delete(block)
		l.byEnd.Delete(l.mem.blockEnd(block))
	}
}

// predecessor returns the block linking to block, or noBlock if block is the head or is
// not on the list at all
func (l *freeList) predecessor(block int) int {
	if l.head == block {
		return noBlock
	}

	for curr := l.head; curr != noBlock; curr = l.mem.nextFree(curr) {
		if l.mem.nextFree(curr) == block {
			return curr
		}
	}

	return noBlock
}

func (l *freeList) remove(block int) {
	l.unlink(block, l.predecessor(block))
}

// extend adds delta bytes to the capacity of block, which must be on the list
func (l *freeList) extend(block int, delta int) {
	if l.indexed() {
		l.byEnd.Delete(l.mem.blockEnd(block))
	}

	l.mem.setBlockSize(block, l.mem.blockSize(block)+delta)
	l.bytes += delta

	if l.indexed() {
		l.byEnd.Put(l.mem.blockEnd(block), block)
	}
}

// visit calls visitor for each block in list order until visitor returns false. At most
// limit blocks are visited so that a damaged list cannot loop forever.
func (l *freeList) visit(limit int, visitor func(block int) bool) {
	for block := l.head; block != noBlock && limit > 0; block = l.mem.nextFree(block) {
		if !visitor(block) {
			return
		}
		limit--
	}
}

func (l *freeList) members() *swiss.Map[int, struct{}] {
	if l.indexed() {
		return l.byStart
	}

	set := swiss.NewMap[int, struct{}](42)
	l.visit(l.count, func(block int) bool {
		set.Put(block, struct{}{})
		return true
	})
	return set
}
