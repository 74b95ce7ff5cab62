package heap

import (
	"unsafe"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/heapkit/internal/utils"
	"github.com/vkngwrapper/heapkit/memutils"
)

// SharedFlags indicate specific behaviors of a Shared heap
type SharedFlags uint32

const (
	// SharedExternallySynchronized ensures that the Shared heap will not be synchronized
	// internally. The consumer must guarantee it is used from only one goroutine at a time or is
	// synchronized by some other mechanism.
	SharedExternallySynchronized SharedFlags = 1 << iota
)

// Shared guards every operation of a Heap with one mutex so the heap can be used from
// multiple goroutines. The wrapped Heap must not be used directly while it is shared.
type Shared struct {
	mutex utils.OptionalMutex
	heap  *Heap
}

// NewShared wraps heap for use from multiple goroutines
func NewShared(heap *Heap, flags SharedFlags) *Shared {
	return &Shared{
		mutex: utils.OptionalMutex{UseMutex: flags&SharedExternallySynchronized == 0},
		heap:  heap,
	}
}

// Allocate reserves size bytes under the lock. See Heap.Allocate.
func (s *Shared) Allocate(size uint) (Ptr, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.heap.Allocate(size)
}

// ZeroAllocate reserves count*elemSize zeroed bytes under the lock
func (s *Shared) ZeroAllocate(count, elemSize uint) (Ptr, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.heap.ZeroAllocate(count, elemSize)
}

// Resize moves or grows p under the lock. See Heap.Resize.
func (s *Shared) Resize(p Ptr, newSize uint) (Ptr, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.heap.Resize(p, newSize)
}

// Release returns p to the free list under the lock
func (s *Shared) Release(p Ptr) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.heap.Release(p)
}

// Capacity returns the usable size of the block p refers to
func (s *Shared) Capacity(p Ptr) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.heap.Capacity(p)
}

// Bytes returns p's full capacity as a byte slice. Only the goroutine that owns p may use it.
func (s *Shared) Bytes(p Ptr) []byte {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.heap.Bytes(p)
}

// PtrOf converts an address inside the heap back into a Ptr. The heap origin never
// changes, so no lock is taken.
func (s *Shared) PtrOf(pointer unsafe.Pointer) Ptr {
	return s.heap.PtrOf(pointer)
}

// Pointer returns the address p refers to. No lock is taken.
func (s *Shared) Pointer(p Ptr) unsafe.Pointer {
	return s.heap.Pointer(p)
}

// Validate checks the heap invariants while holding the lock
func (s *Shared) Validate() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.heap.Validate()
}

// AddStatistics adds the heap's basic statistics to stats
func (s *Shared) AddStatistics(stats *memutils.Statistics) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.heap.AddStatistics(stats)
}

// AddDetailedStatistics adds the heap's detailed statistics to stats
func (s *Shared) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.heap.AddDetailedStatistics(stats)
}

// PrintDetailedMap writes a JSON object describing every block in address order
func (s *Shared) PrintDetailedMap(writer *jwriter.Writer) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.heap.PrintDetailedMap(writer)
}

// BuildStatsString returns the heap statistics as a JSON document, optionally with the detailed map
func (s *Shared) BuildStatsString(detailedMap bool) string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.heap.BuildStatsString(detailedMap)
}

// Destroy closes the underlying Break. It fails, logging each leak, if any allocation is still live.
func (s *Shared) Destroy() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.heap.Destroy()
}
