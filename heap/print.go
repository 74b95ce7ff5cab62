package heap

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/heapkit/memutils"
)

const (
	regionTypeFree      = "FREE"
	regionTypeAllocated = "ALLOCATED"
)

// PrintDetailedMap writes a JSON object describing the heap and every block in it, in
// address order
func (h *Heap) PrintDetailedMap(writer *jwriter.Writer) {
	var stats memutils.DetailedStatistics
	stats.Clear()
	h.AddDetailedStatistics(&stats)

	objState := writer.Object()
	defer objState.End()

	h.printDetailedMapHeader(&objState, stats)

	arrayState := objState.Name("Regions").Array()
	defer arrayState.End()

	_ = h.VisitAllRegions(func(p Ptr, capacity int, free bool) error {
		obj := arrayState.Object()
		defer obj.End()

		obj.Name("Offset").Int(int(p))
		if free {
			obj.Name("Type").String(regionTypeFree)
		} else {
			obj.Name("Type").String(regionTypeAllocated)
		}
		obj.Name("Size").Int(capacity)

		return nil
	})
}

func (h *Heap) printDetailedMapHeader(json *jwriter.ObjectState, stats memutils.DetailedStatistics) {
	json.Name("TotalBytes").Int(stats.RegionBytes)
	json.Name("UnusedBytes").Int(stats.FreeBytes())
	json.Name("Allocations").Int(stats.AllocationCount)
	json.Name("UnusedRanges").Int(stats.UnusedRangeCount)
}

func printStatistics(json *jwriter.ObjectState, stats memutils.DetailedStatistics) {
	json.Name("RegionCount").Int(stats.RegionCount)
	json.Name("RegionBytes").Int(stats.RegionBytes)
	json.Name("AllocationCount").Int(stats.AllocationCount)
	json.Name("AllocationBytes").Int(stats.AllocationBytes)
	json.Name("HeaderBytes").Int(stats.HeaderBytes)
	json.Name("UnusedRangeCount").Int(stats.UnusedRangeCount)

	if stats.AllocationCount > 0 {
		json.Name("AllocationSizeMin").Int(stats.AllocationSizeMin)
		json.Name("AllocationSizeMax").Int(stats.AllocationSizeMax)
	}
	if stats.UnusedRangeCount > 0 {
		json.Name("UnusedRangeSizeMin").Int(stats.UnusedRangeSizeMin)
		json.Name("UnusedRangeSizeMax").Int(stats.UnusedRangeSizeMax)
	}
}

// BuildStatsString returns a JSON document holding the heap's statistics and, if
// detailedMap is true, the output of PrintDetailedMap under "DetailedMap"
func (h *Heap) BuildStatsString(detailedMap bool) string {
	var stats memutils.DetailedStatistics
	stats.Clear()
	h.AddDetailedStatistics(&stats)

	writer := jwriter.NewWriter()
	objState := writer.Object()

	totalObj := objState.Name("Total").Object()
	printStatistics(&totalObj, stats)
	totalObj.End()

	countersObj := objState.Name("Counters").Object()
	counters := h.Counters()
	countersObj.Name("GrowCalls").Int(counters.GrowCalls)
	countersObj.Name("GrowBytes").Int(counters.GrowBytes)
	countersObj.Name("ReuseCalls").Int(counters.ReuseCalls)
	countersObj.Name("FailedCalls").Int(counters.FailedCalls)
	countersObj.Name("ReleaseCalls").Int(counters.ReleaseCalls)
	countersObj.Name("SplitCount").Int(counters.SplitCount)
	countersObj.Name("CoalesceForward").Int(counters.CoalesceForward)
	countersObj.Name("CoalesceBackward").Int(counters.CoalesceBackward)
	countersObj.End()

	if detailedMap {
		h.PrintDetailedMap(objState.Name("DetailedMap"))
	}

	objState.End()
	return string(writer.Bytes())
}
