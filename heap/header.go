package heap

import (
	"math"
	"unsafe"
)

const (
	// Alignment is the boundary every payload size is rounded up to
	Alignment = 16
	// HeaderSize is the number of bytes of metadata preceding every payload
	HeaderSize = int(unsafe.Sizeof(blockHeader{}))

	// maxRequest is the largest payload size whose footprint still fits in an int
	maxRequest = math.MaxInt - HeaderSize - Alignment
)

const (
	noBlock            = -1
	noBlockLink uint64 = math.MaxUint64
)

// Ptr is the address of an allocation's payload, expressed as a byte offset from the heap origin
type Ptr uintptr

// Null is the Ptr returned when no allocation was made
const Null Ptr = 0

type blockHeader struct {
	size uint64
	next uint64
}

func blockOf(p Ptr) int       { return int(p) - HeaderSize }
func payloadOf(block int) Ptr { return Ptr(block + HeaderSize) }

// region provides access to block headers embedded in the heap's memory
type region struct {
	origin unsafe.Pointer
}

func (r region) header(block int) *blockHeader {
	return (*blockHeader)(unsafe.Add(r.origin, block))
}

func (r region) blockSize(block int) int {
	return int(r.header(block).size)
}

func (r region) setBlockSize(block int, size int) {
	r.header(block).size = uint64(size)
}

func (r region) blockEnd(block int) int {
	return block + HeaderSize + r.blockSize(block)
}

func (r region) nextFree(block int) int {
	next := r.header(block).next
	if next == noBlockLink {
		return noBlock
	}
	return int(next)
}

func (r region) setNextFree(block int, next int) {
	if next == noBlock {
		r.header(block).next = noBlockLink
		return
	}
	r.header(block).next = uint64(next)
}

func (r region) bytes(offset int, length int) []byte {
	return unsafe.Slice((*byte)(unsafe.Add(r.origin, offset)), length)
}
