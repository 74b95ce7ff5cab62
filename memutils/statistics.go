package memutils

import "math"

// Statistics summarizes the state of one or more heap regions. RegionBytes always equals
// AllocationBytes + HeaderBytes + the payload bytes sitting in free blocks.
type Statistics struct {
	// RegionCount is the number of heap regions that were summed into this object
	RegionCount int
	// RegionBytes is the number of bytes between each region's origin and its current break
	RegionBytes int
	// AllocationCount is the number of live allocations
	AllocationCount int
	// AllocationBytes is the payload capacity held by live allocations
	AllocationBytes int
	// HeaderBytes is the number of bytes spent on block headers, free or allocated
	HeaderBytes int
}

func (s *Statistics) Clear() {
	s.RegionCount = 0
	s.RegionBytes = 0
	s.AllocationCount = 0
	s.AllocationBytes = 0
	s.HeaderBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.RegionCount += other.RegionCount
	s.RegionBytes += other.RegionBytes
	s.AllocationCount += other.AllocationCount
	s.AllocationBytes += other.AllocationBytes
	s.HeaderBytes += other.HeaderBytes
}

// FreeBytes returns the payload bytes that are not held by any live allocation
func (s *Statistics) FreeBytes() int {
	return s.RegionBytes - s.AllocationBytes - s.HeaderBytes
}

type DetailedStatistics struct {
	Statistics
	UnusedRangeCount   int
	AllocationSizeMin  int
	AllocationSizeMax  int
	UnusedRangeSizeMin int
	UnusedRangeSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.UnusedRangeCount = 0
	s.AllocationSizeMin = math.MaxInt
	s.AllocationSizeMax = 0
	s.UnusedRangeSizeMin = math.MaxInt
	s.UnusedRangeSizeMax = 0
}

func (s *DetailedStatistics) AddUnusedRange(size int) {
	s.UnusedRangeCount++

	if size < s.UnusedRangeSizeMin {
		s.UnusedRangeSizeMin = size
	}

	if size > s.UnusedRangeSizeMax {
		s.UnusedRangeSizeMax = size
	}
}

func (s *DetailedStatistics) AddAllocation(size int) {
	s.AllocationCount++
	s.AllocationBytes += size

	if size < s.AllocationSizeMin {
		s.AllocationSizeMin = size
	}

	if size > s.AllocationSizeMax {
		s.AllocationSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.UnusedRangeCount += other.UnusedRangeCount

	if other.UnusedRangeSizeMin < s.UnusedRangeSizeMin {
		s.UnusedRangeSizeMin = other.UnusedRangeSizeMin
	}

	if other.UnusedRangeSizeMax > s.UnusedRangeSizeMax {
		s.UnusedRangeSizeMax = other.UnusedRangeSizeMax
	}

	if other.AllocationSizeMin < s.AllocationSizeMin {
		s.AllocationSizeMin = other.AllocationSizeMin
	}

	if other.AllocationSizeMax > s.AllocationSizeMax {
		s.AllocationSizeMax = other.AllocationSizeMax
	}
}
