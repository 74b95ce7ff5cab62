package heap_test

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heapkit/heap"
)

func TestSharedConcurrentUse(t *testing.T) {
	shared := heap.NewShared(newTestHeap(t, 1<<22, heap.CreateSplitFreeBlocks|heap.CreateIndexedNeighbors), 0)

	const workers = 8
	errs := make(chan error, workers)

	var wg sync.WaitGroup
	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			rng := rand.New(rand.NewSource(int64(worker)))
			var live []heap.Ptr

			for i := 0; i < 500; i++ {
				if len(live) > 0 && rng.Intn(3) == 0 {
					index := rng.Intn(len(live))
					p := live[index]

					for _, b := range shared.Bytes(p) {
						if b != byte(worker) {
							errs <- errors.Newf("worker %d found foreign byte %d at %d", worker, b, p)
							return
						}
					}

					shared.Release(p)
					live = append(live[:index], live[index+1:]...)
					continue
				}

				p, err := shared.Allocate(uint(rng.Intn(256)))
				if err != nil {
					errs <- err
					return
				}

				buf := shared.Bytes(p)
				for j := range buf {
					buf[j] = byte(worker)
				}
				live = append(live, p)
			}

			for _, p := range live {
				shared.Release(p)
			}
		}(worker)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	require.NoError(t, shared.Validate())
	require.NoError(t, shared.Destroy())
}

func TestSharedExternallySynchronized(t *testing.T) {
	shared := heap.NewShared(newTestHeap(t, 1024, 0), heap.SharedExternallySynchronized)

	p, err := shared.ZeroAllocate(4, 8)
	require.NoError(t, err)
	require.Equal(t, 32, shared.Capacity(p))
	require.Equal(t, p, shared.PtrOf(shared.Pointer(p)))

	q, err := shared.Resize(p, 64)
	require.NoError(t, err)
	require.NotEqual(t, p, q)

	shared.Release(q)
	require.NoError(t, shared.Validate())
	require.Contains(t, shared.BuildStatsString(true), "DetailedMap")
}
