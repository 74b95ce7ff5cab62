package heap

import (
	"github.com/vkngwrapper/heapkit/memutils"
)

// AddStatistics sums this heap's statistics into the statistics currently present in the
// provided memutils.Statistics object
func (h *Heap) AddStatistics(stats *memutils.Statistics) {
	stats.RegionCount++
	stats.RegionBytes += h.Top()
	stats.AllocationCount += h.allocCount
	stats.AllocationBytes += h.allocBytes
	stats.HeaderBytes += (h.allocCount + h.free.count) * HeaderSize
}

// AddDetailedStatistics sums this heap's statistics into the statistics currently present in
// the provided memutils.DetailedStatistics object. It walks every block in the heap.
func (h *Heap) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.RegionCount++
	stats.RegionBytes += h.Top()

	_ = h.VisitAllRegions(func(p Ptr, capacity int, free bool) error {
		stats.HeaderBytes += HeaderSize

		if free {
			stats.AddUnusedRange(capacity)
		} else {
			stats.AddAllocation(capacity)
		}
		return nil
	})
}
