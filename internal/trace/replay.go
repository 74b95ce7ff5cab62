package trace

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/heapkit/heap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

type handle struct {
	p    heap.Ptr
	size uint
}

// ReplayOptions contains optional settings for a Replayer
type ReplayOptions struct {
	// Validate runs heap.Validate after every directive and stops the replay at the first
	// inconsistency
	Validate bool
}

// Replayer applies trace directives to a heap, keeping track of the live allocation behind
// each handle. Allocation failures are reported and counted but do not stop the replay.
type Replayer struct {
	logger  *slog.Logger
	heap    *heap.Heap
	out     io.Writer
	options ReplayOptions

	handles  map[string]handle
	failures int
}

func NewReplayer(logger *slog.Logger, h *heap.Heap, out io.Writer, options ReplayOptions) *Replayer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Replayer{
		logger:  logger,
		heap:    h,
		out:     out,
		options: options,
		handles: make(map[string]handle),
	}
}

// Replay applies directives in order. It stops at the first directive that misuses a handle,
// fails a check, or leaves the heap inconsistent.
func (r *Replayer) Replay(directives []Directive) error {
	for _, directive := range directives {
		err := r.apply(directive)
		if err != nil {
			return errors.Wrapf(err, "line %d: %s %s", directive.Line, directive.Op, directive.Handle)
		}

		if r.options.Validate {
			err = r.heap.Validate()
			if err != nil {
				return errors.Wrapf(err, "line %d: heap is inconsistent", directive.Line)
			}
		}
	}

	return nil
}

func (r *Replayer) apply(directive Directive) error {
	switch directive.Op {
	case OpAlloc:
		return r.allocate(directive.Handle, directive.Args[0], func() (heap.Ptr, error) {
			return r.heap.Allocate(directive.Args[0])
		})
	case OpZeroAlloc:
		count, elemSize := directive.Args[0], directive.Args[1]
		return r.allocate(directive.Handle, count*elemSize, func() (heap.Ptr, error) {
			return r.heap.ZeroAllocate(count, elemSize)
		})
	case OpRealloc:
		return r.resize(directive.Handle, directive.Args[0])
	case OpFree:
		return r.release(directive.Handle)
	case OpWrite:
		return r.write(directive.Handle, byte(directive.Args[0]))
	case OpCheck:
		return r.check(directive)
	case OpStats:
		_, err := fmt.Fprintln(r.out, r.heap.BuildStatsString(false))
		return err
	case OpDump:
		writer := jwriter.NewWriter()
		r.heap.PrintDetailedMap(&writer)
		_, err := fmt.Fprintln(r.out, string(writer.Bytes()))
		return err
	}

	return errors.Errorf("unknown directive %d", directive.Op)
}

func (r *Replayer) lookup(name string) (handle, error) {
	h, ok := r.handles[name]
	if !ok {
		return handle{}, errors.Errorf("handle %q is not live", name)
	}
	return h, nil
}

func (r *Replayer) allocate(name string, size uint, allocate func() (heap.Ptr, error)) error {
	if _, ok := r.handles[name]; ok {
		return errors.Errorf("handle %q is already live", name)
	}

	p, err := allocate()
	if errors.Is(err, heap.ErrOutOfMemory) {
		return r.reportFailure(name, size, err)
	} else if err != nil {
		return err
	}

	r.handles[name] = handle{p: p, size: size}
	_, err = fmt.Fprintf(r.out, "%s = %#x capacity %d\n", name, uintptr(p), r.heap.Capacity(p))
	return err
}

func (r *Replayer) resize(name string, size uint) error {
	// resizing an unknown handle allocates it, the same as resizing Null
	current := r.handles[name]

	p, err := r.heap.Resize(current.p, size)
	if errors.Is(err, heap.ErrOutOfMemory) {
		return r.reportFailure(name, size, err)
	} else if err != nil {
		return err
	}

	if p == heap.Null {
		delete(r.handles, name)
		_, err = fmt.Fprintf(r.out, "%s released\n", name)
		return err
	}

	r.handles[name] = handle{p: p, size: size}
	_, err = fmt.Fprintf(r.out, "%s = %#x capacity %d\n", name, uintptr(p), r.heap.Capacity(p))
	return err
}

func (r *Replayer) release(name string) error {
	h, err := r.lookup(name)
	if err != nil {
		return err
	}

	r.heap.Release(h.p)
	delete(r.handles, name)
	return nil
}

func (r *Replayer) write(name string, value byte) error {
	h, err := r.lookup(name)
	if err != nil {
		return err
	}

	buf := r.heap.Slice(h.p, int(h.size))
	for i := range buf {
		buf[i] = value
	}
	return nil
}

func (r *Replayer) check(directive Directive) error {
	h, err := r.lookup(directive.Handle)
	if err != nil {
		return err
	}

	value := byte(directive.Args[0])
	count := h.size
	if len(directive.Args) > 1 {
		count = directive.Args[1]
	}
	if count > uint(r.heap.Capacity(h.p)) {
		return errors.Errorf("cannot check %d bytes of a %d byte allocation", count, r.heap.Capacity(h.p))
	}

	for index, c := range r.heap.Slice(h.p, int(count)) {
		if c != value {
			return errors.Errorf("byte %d is %#x, expected %#x", index, c, value)
		}
	}

	return nil
}

func (r *Replayer) reportFailure(name string, size uint, err error) error {
	r.failures++
	r.logger.Warn("allocation failed",
		slog.String("Handle", name),
		slog.Uint64("Size", uint64(size)),
		slog.Any("error", err))

	_, err = fmt.Fprintf(r.out, "%s failed: out of memory for %d bytes\n", name, size)
	return err
}

// Failures returns the number of allocations that could not be satisfied
func (r *Replayer) Failures() int {
	return r.failures
}

// Live returns the names of all live handles, sorted
func (r *Replayer) Live() []string {
	names := maps.Keys(r.handles)
	slices.Sort(names)
	return names
}

// ReleaseAll releases every live handle in name order
func (r *Replayer) ReleaseAll() {
	for _, name := range r.Live() {
		r.heap.Release(r.handles[name].p)
		delete(r.handles, name)
	}
}
