package brk

import (
	"math"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapkit/memutils"
)

// Arena is a Break backed by a single Go byte slice reserved up front. The slice is never
// reallocated, so the region behaves like a program break with a hard ceiling of limit bytes.
type Arena struct {
	buf    []byte
	origin unsafe.Pointer
	limit  int
	brk    int
}

var _ Break = &Arena{}

// NewArena reserves limit bytes of Go memory and returns a Break over them
func NewArena(limit int) (*Arena, error) {
	if limit <= 0 {
		return nil, errors.Errorf("arena limit must be positive, but was %d", limit)
	}
	if limit > math.MaxInt-Alignment {
		return nil, errors.Errorf("arena limit %d leaves no room for alignment", limit)
	}

	buf := make([]byte, limit+Alignment)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	shift := int(memutils.AlignUp(addr, Alignment) - addr)

	return &Arena{
		buf:    buf,
		origin: unsafe.Pointer(&buf[shift]),
		limit:  limit,
	}, nil
}

func (a *Arena) Origin() unsafe.Pointer { return a.origin }
func (a *Arena) Current() int           { return a.brk }

// Limit returns the number of bytes the arena may grow to
func (a *Arena) Limit() int { return a.limit }

func (a *Arena) Sbrk(delta int) (int, error) {
	if delta < 0 {
		return a.brk, errors.Wrapf(ErrShrink, "delta was %d", delta)
	}
	if a.buf == nil {
		return a.brk, errors.Wrap(ErrOutOfMemory, "arena is closed")
	}
	if delta > a.limit-a.brk {
		return a.brk, errors.Wrapf(ErrOutOfMemory, "requested %d bytes with %d of %d bytes remaining", delta, a.limit-a.brk, a.limit)
	}

	prev := a.brk
	a.brk += delta
	return prev, nil
}

// Close drops the arena's reference to its backing memory
func (a *Arena) Close() error {
	a.buf = nil
	a.origin = nil
	a.limit = 0
	a.brk = 0
	return nil
}
