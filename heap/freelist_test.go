package heap

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heapkit/brk"
)

func newInternalHeap(t *testing.T, flags CreateFlags) *Heap {
	arena, err := brk.NewArena(1 << 16)
	require.NoError(t, err)

	h, err := New(nil, arena, CreateOptions{Flags: flags})
	require.NoError(t, err)
	return h
}

func listOrder(l *freeList) []int {
	var order []int
	l.visit(l.count+1, func(block int) bool {
		order = append(order, block)
		return true
	})
	return order
}

func TestFreeListPushAndUnlink(t *testing.T) {
	for _, flags := range []CreateFlags{0, CreateIndexedNeighbors} {
		t.Run(flags.String(), func(t *testing.T) {
			h := newInternalHeap(t, flags)

			var blocks []int
			for _, size := range []uint{16, 32, 48} {
				p, err := h.Allocate(size)
				require.NoError(t, err)
				blocks = append(blocks, blockOf(p))
			}

			h.free.push(blocks[0])
			h.free.push(blocks[2])
			require.Equal(t, []int{blocks[2], blocks[0]}, listOrder(&h.free))
			require.Equal(t, 2, h.free.count)
			require.Equal(t, 64, h.free.bytes)

			block, prev := h.free.firstFit(32 + HeaderSize)
			require.Equal(t, blocks[2], block)
			require.Equal(t, noBlock, prev)

			block, prev = h.free.firstFit(16 + HeaderSize)
			require.Equal(t, blocks[2], block)
			require.Equal(t, noBlock, prev)

			block, _ = h.free.firstFit(64 + HeaderSize)
			require.Equal(t, noBlock, block)

			require.Equal(t, blocks[2], h.free.predecessor(blocks[0]))
			require.Equal(t, noBlock, h.free.predecessor(blocks[1]))

			h.free.remove(blocks[0])
			require.Equal(t, []int{blocks[2]}, listOrder(&h.free))
			require.Equal(t, 48, h.free.bytes)

			h.free.remove(blocks[2])
			require.Empty(t, listOrder(&h.free))
			require.Equal(t, noBlock, h.free.head)
			require.Equal(t, 0, h.free.bytes)
		})
	}
}

func TestFindNeighbors(t *testing.T) {
	for _, flags := range []CreateFlags{0, CreateIndexedNeighbors} {
		t.Run(flags.String(), func(t *testing.T) {
			h := newInternalHeap(t, flags)

			var blocks []int
			for i := 0; i < 3; i++ {
				p, err := h.Allocate(32)
				require.NoError(t, err)
				blocks = append(blocks, blockOf(p))
			}

			require.Equal(t, noBlock, h.findPrev(blocks[1]))
			require.Equal(t, noBlock, h.findNext(blocks[1]))

			h.free.push(blocks[0])
			h.free.push(blocks[2])

			require.Equal(t, blocks[0], h.findPrev(blocks[1]))
			require.Equal(t, blocks[2], h.findNext(blocks[1]))
			require.Equal(t, noBlock, h.findPrev(blocks[0]))
			require.Equal(t, noBlock, h.findNext(blocks[2]))
		})
	}
}

func TestSplitBlock(t *testing.T) {
	h := newInternalHeap(t, 0)

	p, err := h.Allocate(128)
	require.NoError(t, err)
	block := blockOf(p)

	require.Equal(t, noBlock, h.split(block, 128))

	remainder := h.split(block, 64)
	require.Equal(t, block+HeaderSize+64, remainder)
	require.Equal(t, 64, h.mem.blockSize(block))
	require.Equal(t, 128-64-HeaderSize, h.mem.blockSize(remainder))
	require.Equal(t, noBlock, h.mem.nextFree(remainder))
	require.Equal(t, h.mem.blockEnd(remainder), block+HeaderSize+128)
}

func TestCoalesceAbsorbsBothNeighbors(t *testing.T) {
	for _, flags := range []CreateFlags{0, CreateIndexedNeighbors} {
		t.Run(flags.String(), func(t *testing.T) {
			h := newInternalHeap(t, flags)

			var blocks []int
			for i := 0; i < 4; i++ {
				p, err := h.Allocate(32)
				require.NoError(t, err)
				blocks = append(blocks, blockOf(p))
			}

			h.free.push(blocks[0])
			h.free.push(blocks[2])
			h.free.push(blocks[1])

			merged := h.coalesce(blocks[1])
			require.Equal(t, blocks[0], merged)
			require.Equal(t, 3*32+2*HeaderSize, h.mem.blockSize(merged))
			require.Equal(t, []int{blocks[0]}, listOrder(&h.free))
			require.Equal(t, blocks[3], h.mem.blockEnd(merged))
		})
	}
}
