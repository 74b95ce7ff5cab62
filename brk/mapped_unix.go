//go:build !plan9 && !windows && !js && !wasip1

package brk

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/heapkit/memutils"
	"golang.org/x/sys/unix"
)

// Mapped is a Break backed by an anonymous memory mapping. The full limit is reserved with
// no access rights when the Break is created, and pages are committed read/write as the break
// passes them, so the region stays contiguous without touching memory it has not handed out.
type Mapped struct {
	mem       []byte
	limit     int
	brk       int
	committed int
	pageSize  int
}

var _ Break = &Mapped{}

// NewMapped reserves limit bytes of address space, rounded up to the page size
func NewMapped(limit int) (*Mapped, error) {
	if limit <= 0 {
		return nil, errors.Errorf("mapped limit must be positive, but was %d", limit)
	}

	pageSize := unix.Getpagesize()
	if err := memutils.CheckPow2(pageSize, "page size"); err != nil {
		return nil, err
	}

	reserved := memutils.AlignUp(limit, pageSize)

	mem, err := unix.Mmap(-1, 0, reserved, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to reserve %d bytes", reserved)
	}

	return &Mapped{
		mem:      mem,
		limit:    reserved,
		pageSize: pageSize,
	}, nil
}

func (m *Mapped) Origin() unsafe.Pointer {
	if m.mem == nil {
		return nil
	}
	return unsafe.Pointer(&m.mem[0])
}

func (m *Mapped) Current() int { return m.brk }

// Limit returns the number of bytes the mapping may grow to
func (m *Mapped) Limit() int { return m.limit }

func (m *Mapped) Sbrk(delta int) (int, error) {
	if delta < 0 {
		return m.brk, errors.Wrapf(ErrShrink, "delta was %d", delta)
	}
	if m.mem == nil {
		return m.brk, errors.Wrap(ErrOutOfMemory, "mapping is closed")
	}
	if delta > m.limit-m.brk {
		return m.brk, errors.Wrapf(ErrOutOfMemory, "requested %d bytes with %d of %d bytes remaining", delta, m.limit-m.brk, m.limit)
	}

	newBrk := m.brk + delta
	if newBrk > m.committed {
		commit := memutils.AlignUp(newBrk, m.pageSize)
		err := unix.Mprotect(m.mem[m.committed:commit], unix.PROT_READ|unix.PROT_WRITE)
		if err != nil {
			return m.brk, errors.Wrapf(errors.Mark(err, ErrOutOfMemory), "failed to commit %d bytes", commit-m.committed)
		}
		m.committed = commit
	}

	prev := m.brk
	m.brk = newBrk
	return prev, nil
}

// Close unmaps the region
func (m *Mapped) Close() error {
	if m.mem == nil {
		return nil
	}

	err := unix.Munmap(m.mem)
	m.mem = nil
	m.brk = 0
	m.committed = 0
	if err != nil {
		return errors.Wrap(err, "failed to unmap heap region")
	}
	return nil
}
