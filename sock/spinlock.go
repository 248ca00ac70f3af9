package sock

import (
	"runtime"
	"sync/atomic"
)

// spinLock is a busy-wait mutual exclusion flag for buffers shared
// between stack callbacks and readers. Acquire/release ordering comes
// from the atomic operations. Critical sections must be copy-only:
// never call back into the stack, format, log or allocate while held.
type spinLock struct{ f atomic.Uint32 }

func (l *spinLock) lock() {
	for !l.f.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

func (l *spinLock) unlock() { l.f.Store(0) }
