package heap

import (
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapkit/brk"
	"github.com/vkngwrapper/heapkit/memutils"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific heap behaviors to activate or deactivate
type CreateFlags uint32

const (
	// CreateSplitFreeBlocks causes Allocate to split a reused free block that is large enough to
	// hold the request plus another header, returning the leftover bytes to the free list. Without
	// it, a reused free block is always handed over whole.
	CreateSplitFreeBlocks CreateFlags = 1 << iota
	// CreateIndexedNeighbors maintains maps of free blocks by start and end offset, so Release
	// finds physical neighbours without scanning the free list. Allocation results are identical
	// with or without it.
	CreateIndexedNeighbors
)

var createFlagsMapping = map[CreateFlags]string{
	CreateSplitFreeBlocks:  "CreateSplitFreeBlocks",
	CreateIndexedNeighbors: "CreateIndexedNeighbors",
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	for bit := CreateFlags(1); bit != 0 && bit <= f; bit <<= 1 {
		if f&bit == 0 {
			continue
		}

		name, ok := createFlagsMapping[bit]
		if !ok {
			name = "Unknown"
		}
		names = append(names, name)
	}

	return strings.Join(names, "|")
}

// CreateOptions contains optional settings when creating a heap
type CreateOptions struct {
	// Flags indicates specific heap behaviors to activate or deactivate
	Flags CreateFlags
}

// New creates a new Heap that grows through the provided Break. The Heap takes ownership of
// the Break: it must not be extended by anyone else, and it is closed by Destroy.
//
// logger - Receives debug records for heap growth and merges. May be nil.
//
// heapBreak - The Break to carve blocks from. Its current break must be 0.
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, heapBreak brk.Break, options CreateOptions) (*Heap, error) {
	if heapBreak == nil {
		return nil, errors.New("heap.New requires a Break")
	}
	if heapBreak.Current() != 0 {
		return nil, errors.Errorf("heap.New requires an empty Break, but the break is at %d", heapBreak.Current())
	}

	origin := heapBreak.Origin()
	if err := memutils.CheckAligned(uintptr(origin), Alignment, "break origin"); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	mem := region{origin: origin}

	return &Heap{
		logger: logger,
		brk:    heapBreak,
		mem:    mem,
		flags:  options.Flags,
		free:   newFreeList(mem, options.Flags&CreateIndexedNeighbors != 0),
	}, nil
}
