package region

import (
	"sync/atomic"
	"time"
)

// ChainMutex is the chain-structure lock described in spec.md §4.6/§5: held
// for the whole duration of any structural mutation, never acquired by
// readers. Acquisition is context-aware: the audio thread tries a handful
// of CAS spins and gives up instantly; the editor (or worker) thread spins
// with short yields and eventually declares KERNEL_PANIC.
type ChainMutex struct {
	locked atomic.Uint32 // 0 = free, 1 = held
}

const (
	audioMaxSpins    = 3
	editorMaxSpins   = 200
	editorYieldSleep = time.Millisecond
)

// TryAcquireAudio attempts to acquire the mutex with at most audioMaxSpins
// CAS attempts and no yielding. Returns false immediately on contention —
// the audio thread must never block (spec.md §5).
func (m *ChainMutex) TryAcquireAudio() bool {
	for i := 0; i < audioMaxSpins; i++ {
		if m.locked.CompareAndSwap(0, 1) {
			return true
		}
	}
	return false
}

// AcquireEditor spins with 1ms yields for up to ~editorMaxSpins iterations.
// Returns false if the mutex could not be acquired in that window, which
// the caller must treat as KERNEL_PANIC (spec.md §4.6, §7 tier 3).
func (m *ChainMutex) AcquireEditor() bool {
	for i := 0; i < editorMaxSpins; i++ {
		if m.locked.CompareAndSwap(0, 1) {
			return true
		}
		time.Sleep(editorYieldSleep)
	}
	return false
}

// Unlock releases the mutex. Callers must only unlock a mutex they hold.
func (m *ChainMutex) Unlock() {
	m.locked.Store(0)
}
