package shm

import (
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/minermesh/minermesh/internal/config"
)

// Sem is a counting semaphore living inside a shared-memory region:
// cross-process visible, Wait/Post/TryWait, implemented directly on the
// mapped bytes since there is no cgo-free named-semaphore binding
// available. A single int32 slot is mutated with sync/atomic
// compare-and-swap; waiters back off with a short bounded sleep between
// attempts rather than blocking in the kernel.
type Sem struct {
	slot *int32
}

// SemAt constructs a Sem bound to the 4 bytes at offset within data. The
// caller is responsible for reserving non-overlapping offsets across the
// region's fields.
func SemAt(data []byte, offset int) *Sem {
	return &Sem{slot: (*int32)(unsafe.Pointer(&data[offset]))}
}

// Init sets the semaphore's initial value. Only the initializer of the
// owning region should call this, once, before any peer can observe it.
func (s *Sem) Init(value int32) {
	atomic.StoreInt32(s.slot, value)
}

var pollInterval = time.Duration(config.PollIntervalMillis) * time.Millisecond

// Wait blocks until the semaphore is non-zero and then decrements it,
// returning true. It returns false without decrementing if cancel fires
// first, letting a blocked waiter unwind cleanly on shutdown instead of
// hanging forever.
func (s *Sem) Wait(cancel <-chan struct{}) bool {
	for {
		if s.TryWait() {
			return true
		}
		select {
		case <-cancel:
			return false
		case <-time.After(pollInterval):
		}
	}
}

// TryWait performs a single non-blocking attempt to acquire the
// semaphore, used by the winner-election race: the first peer to find a
// solution claims the role by winning this compare-and-swap.
func (s *Sem) TryWait() bool {
	for {
		v := atomic.LoadInt32(s.slot)
		if v <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(s.slot, v, v-1) {
			return true
		}
	}
}

// Post releases the semaphore once.
func (s *Sem) Post() {
	atomic.AddInt32(s.slot, 1)
}

// PostN releases the semaphore n times, used to open the admission gate
// for exactly the peers that queued up waiting for it.
func (s *Sem) PostN(n int) {
	for i := 0; i < n; i++ {
		s.Post()
	}
}

// Value reads the current count. Only used for diagnostics/tests; the
// protocol itself never branches on a raw read.
func (s *Sem) Value() int32 {
	return atomic.LoadInt32(s.slot)
}
