package heap_test

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heapkit/heap"
	"github.com/vkngwrapper/heapkit/memutils"
	"golang.org/x/exp/slices"
)

type visitedRegion struct {
	P        heap.Ptr
	Capacity int
	Free     bool
}

func collectRegions(t *testing.T, h *heap.Heap) []visitedRegion {
	var regions []visitedRegion
	require.NoError(t, h.VisitAllRegions(func(p heap.Ptr, capacity int, free bool) error {
		regions = append(regions, visitedRegion{P: p, Capacity: capacity, Free: free})
		return nil
	}))
	return regions
}

func TestVisitAllRegions(t *testing.T) {
	h := newTestHeap(t, 1<<16, 0)

	a, err := h.Allocate(32)
	require.NoError(t, err)
	b, err := h.Allocate(64)
	require.NoError(t, err)
	c, err := h.Allocate(16)
	require.NoError(t, err)

	h.Release(b)

	require.Equal(t, []visitedRegion{
		{P: a, Capacity: 32},
		{P: b, Capacity: 64, Free: true},
		{P: c, Capacity: 16},
	}, collectRegions(t, h))
}

func TestStatistics(t *testing.T) {
	h := newTestHeap(t, 1<<16, 0)

	a, err := h.Allocate(32)
	require.NoError(t, err)
	_, err = h.Allocate(64)
	require.NoError(t, err)
	c, err := h.Allocate(16)
	require.NoError(t, err)
	_, err = h.Allocate(48)
	require.NoError(t, err)

	h.Release(a)
	h.Release(c)

	var stats memutils.Statistics
	h.AddStatistics(&stats)
	require.Equal(t, memutils.Statistics{
		RegionCount:     1,
		RegionBytes:     h.Top(),
		AllocationCount: 2,
		AllocationBytes: 112,
		HeaderBytes:     4 * heap.HeaderSize,
	}, stats)
	require.Equal(t, 48, stats.FreeBytes())

	var detailed memutils.DetailedStatistics
	detailed.Clear()
	h.AddDetailedStatistics(&detailed)
	require.Equal(t, stats, detailed.Statistics)
	require.Equal(t, 2, detailed.UnusedRangeCount)
	require.Equal(t, 16, detailed.UnusedRangeSizeMin)
	require.Equal(t, 32, detailed.UnusedRangeSizeMax)
	require.Equal(t, 48, detailed.AllocationSizeMin)
	require.Equal(t, 64, detailed.AllocationSizeMax)
}

func TestPrintDetailedMap(t *testing.T) {
	h := newTestHeap(t, 1<<16, 0)

	a, err := h.Allocate(32)
	require.NoError(t, err)
	_, err = h.Allocate(32)
	require.NoError(t, err)
	h.Release(a)

	writer := jwriter.NewWriter()
	h.PrintDetailedMap(&writer)
	require.NoError(t, writer.Error())
	require.True(t, json.Valid(writer.Bytes()), string(writer.Bytes()))

	require.JSONEq(t, `{
		"TotalBytes": 96,
		"UnusedBytes": 32,
		"Allocations": 1,
		"UnusedRanges": 1,
		"Regions": [
			{"Offset": 16, "Type": "FREE", "Size": 32},
			{"Offset": 64, "Type": "ALLOCATED", "Size": 32}
		]
	}`, string(writer.Bytes()))
}

func TestBuildStatsString(t *testing.T) {
	h := newTestHeap(t, 1<<16, 0)

	a, err := h.Allocate(32)
	require.NoError(t, err)
	_, err = h.Allocate(32)
	require.NoError(t, err)
	h.Release(a)

	var doc struct {
		Total       map[string]int
		Counters    heap.OperationCounters
		DetailedMap *json.RawMessage
	}

	require.NoError(t, json.Unmarshal([]byte(h.BuildStatsString(false)), &doc))
	require.Equal(t, 96, doc.Total["RegionBytes"])
	require.Equal(t, 1, doc.Total["AllocationCount"])
	require.Equal(t, 1, doc.Total["UnusedRangeCount"])
	require.Equal(t, 2, doc.Counters.GrowCalls)
	require.Equal(t, 1, doc.Counters.ReleaseCalls)
	require.Nil(t, doc.DetailedMap)

	detailed := h.BuildStatsString(true)
	require.True(t, json.Valid([]byte(detailed)), detailed)
	require.NoError(t, json.Unmarshal([]byte(detailed), &doc))
	require.NotNil(t, doc.DetailedMap)
	require.JSONEq(t, `{
		"TotalBytes": 96,
		"UnusedBytes": 32,
		"Allocations": 1,
		"UnusedRanges": 1,
		"Regions": [
			{"Offset": 16, "Type": "FREE", "Size": 32},
			{"Offset": 64, "Type": "ALLOCATED", "Size": 32}
		]
	}`, string(*doc.DetailedMap))
}

func TestDetailedMapIsValidJSON(t *testing.T) {
	for _, flags := range []heap.CreateFlags{0, heap.CreateSplitFreeBlocks | heap.CreateIndexedNeighbors} {
		t.Run(flags.String(), func(t *testing.T) {
			h := newTestHeap(t, 1<<16, flags)

			writer := jwriter.NewWriter()
			h.PrintDetailedMap(&writer)
			require.True(t, json.Valid(writer.Bytes()), "empty heap: %s", writer.Bytes())

			var live []heap.Ptr
			for _, size := range []uint{32, 0, 100, 16, 64} {
				p, err := h.Allocate(size)
				require.NoError(t, err)
				live = append(live, p)
			}
			h.Release(live[1])
			h.Release(live[3])

			writer = jwriter.NewWriter()
			h.PrintDetailedMap(&writer)
			require.True(t, json.Valid(writer.Bytes()), "%s", writer.Bytes())

			stats := h.BuildStatsString(true)
			require.True(t, json.Valid([]byte(stats)), stats)
		})
	}
}

func TestSplitFreeBlocks(t *testing.T) {
	h := newTestHeap(t, 1<<16, heap.CreateSplitFreeBlocks)

	a, err := h.Allocate(128)
	require.NoError(t, err)
	_, err = h.Allocate(16)
	require.NoError(t, err)
	top := h.Top()

	h.Release(a)

	p, err := h.Allocate(32)
	require.NoError(t, err)
	require.Equal(t, a, p)
	require.Equal(t, 32, h.Capacity(p))
	require.Equal(t, 1, h.FreeRegionsCount())
	require.Equal(t, 128-32-heap.HeaderSize, h.SumFreeSize())
	require.Equal(t, 1, h.Counters().SplitCount)
	require.Equal(t, top, h.Top())
	require.NoError(t, h.Validate())

	// Releasing p merges it back with the remainder
	h.Release(p)
	require.Equal(t, 1, h.FreeRegionsCount())
	require.Equal(t, 128, h.SumFreeSize())
	require.NoError(t, h.Validate())
}

func TestSplitLeavesEmptyRemainder(t *testing.T) {
	h := newTestHeap(t, 1<<16, heap.CreateSplitFreeBlocks)

	a, err := h.Allocate(32)
	require.NoError(t, err)
	_, err = h.Allocate(16)
	require.NoError(t, err)
	h.Release(a)

	p, err := h.Allocate(16)
	require.NoError(t, err)
	require.Equal(t, a, p)
	require.Equal(t, 16, h.Capacity(p))
	require.Equal(t, 1, h.FreeRegionsCount())
	require.Equal(t, 0, h.SumFreeSize())
	require.NoError(t, h.Validate())
}

func TestSplitSkippedWhenNoRoomForHeader(t *testing.T) {
	h := newTestHeap(t, 1<<16, heap.CreateSplitFreeBlocks)

	a, err := h.Allocate(32)
	require.NoError(t, err)
	_, err = h.Allocate(16)
	require.NoError(t, err)
	h.Release(a)

	p, err := h.Allocate(32)
	require.NoError(t, err)
	require.Equal(t, a, p)
	require.Equal(t, 32, h.Capacity(p))
	require.Equal(t, 0, h.FreeRegionsCount())
	require.Equal(t, 0, h.Counters().SplitCount)
}

type workload struct {
	heaps []*heap.Heap
	live  []heap.Ptr
}

func (w *workload) step(t *testing.T, rng *rand.Rand) {
	op := rng.Intn(10)

	switch {
	case op < 5 || len(w.live) == 0:
		size := uint(rng.Intn(300))
		var results []heap.Ptr
		for _, h := range w.heaps {
			p, err := h.Allocate(size)
			require.NoError(t, err)
			fill(h, p, byte(size))
			results = append(results, p)
		}
		requireSame(t, results)
		w.live = append(w.live, results[0])
	case op < 8:
		index := rng.Intn(len(w.live))
		for _, h := range w.heaps {
			h.Release(w.live[index])
		}
		w.live = slices.Delete(w.live, index, index+1)
	default:
		index := rng.Intn(len(w.live))
		size := uint(rng.Intn(400))
		var results []heap.Ptr
		for _, h := range w.heaps {
			p, err := h.Resize(w.live[index], size)
			require.NoError(t, err)
			results = append(results, p)
		}
		requireSame(t, results)
		if results[0] == heap.Null {
			w.live = slices.Delete(w.live, index, index+1)
		} else {
			w.live[index] = results[0]
		}
	}

	for _, h := range w.heaps {
		require.NoError(t, h.Validate())
		require.Equal(t, len(w.live), h.AllocationCount())
	}
}

func requireSame(t *testing.T, results []heap.Ptr) {
	for _, p := range results[1:] {
		require.Equal(t, results[0], p)
	}
}

func TestIndexedNeighborsMatchLinearScan(t *testing.T) {
	for _, flags := range []heap.CreateFlags{0, heap.CreateSplitFreeBlocks} {
		t.Run(flags.String(), func(t *testing.T) {
			w := workload{
				heaps: []*heap.Heap{
					newTestHeap(t, 1<<20, flags),
					newTestHeap(t, 1<<20, flags|heap.CreateIndexedNeighbors),
				},
			}

			rng := rand.New(rand.NewSource(42))
			for i := 0; i < 2000; i++ {
				w.step(t, rng)
			}

			require.Equal(t, w.heaps[0].Top(), w.heaps[1].Top())
			require.Equal(t, w.heaps[0].FreeRegionsCount(), w.heaps[1].FreeRegionsCount())
			require.Equal(t, w.heaps[0].Counters(), w.heaps[1].Counters())
		})
	}
}

func TestReleaseEverythingLeavesOneFreeBlock(t *testing.T) {
	h := newTestHeap(t, 1<<20, heap.CreateIndexedNeighbors)
	rng := rand.New(rand.NewSource(7))

	var live []heap.Ptr
	for i := 0; i < 200; i++ {
		p, err := h.Allocate(uint(rng.Intn(200)))
		require.NoError(t, err)
		live = append(live, p)
	}

	rng.Shuffle(len(live), func(i, j int) {
		live[i], live[j] = live[j], live[i]
	})
	for _, p := range live {
		h.Release(p)
	}

	require.True(t, h.IsEmpty())
	require.Equal(t, 1, h.FreeRegionsCount())
	require.Equal(t, h.Top()-heap.HeaderSize, h.SumFreeSize())
	require.NoError(t, h.Validate())
}
