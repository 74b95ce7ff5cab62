package utils

import (
	"sync"
)

// OptionalMutex is a sync.Mutex that can be switched off when the consumer guarantees
// exclusive access by some other means.
type OptionalMutex struct {
	Mutex    sync.Mutex
	UseMutex bool
}

func (m *OptionalMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
}

func (m *OptionalMutex) Unlock() {
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}

// TryLock reports whether the lock was acquired. It always succeeds when the mutex is disabled.
func (m *OptionalMutex) TryLock() bool {
	if !m.UseMutex {
		return true
	}
	return m.Mutex.TryLock()
}
