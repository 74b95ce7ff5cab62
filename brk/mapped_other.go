//go:build plan9 || windows || js || wasip1

package brk

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Mapped is not available on this platform; NewMapped always fails
type Mapped struct{}

var _ Break = &Mapped{}

func NewMapped(limit int) (*Mapped, error) {
	return nil, errors.Wrap(ErrUnsupported, "anonymous mappings are not available")
}

func (m *Mapped) Origin() unsafe.Pointer { return nil }
func (m *Mapped) Current() int           { return 0 }
func (m *Mapped) Limit() int             { return 0 }
func (m *Mapped) Close() error           { return nil }

func (m *Mapped) Sbrk(delta int) (int, error) {
	return 0, errors.Wrap(ErrUnsupported, "anonymous mappings are not available")
}
