package transport

import "fmt"

// Semaphore bounds how many virtual circuits the server will service
// concurrently — the "worker pool for per-circuit I/O" the concurrency
// model calls for. It must be created with NewSemaphore before use.
type Semaphore struct {
	c      chan struct{}
	closed chan struct{}
}

// NewSemaphore creates a semaphore allowing up to size concurrent holders.
func NewSemaphore(size int) *Semaphore {
	return &Semaphore{
		c:      make(chan struct{}, size),
		closed: make(chan struct{}),
	}
}

// Close releases every blocked P and causes subsequent P calls to fail. V
// keeps working after Close, so current holders can still release their
// slots.
func (s *Semaphore) Close() {
	close(s.closed)
}

// P acquires one slot, blocking until one is free or the semaphore closes.
func (s *Semaphore) P() error {
	select {
	case <-s.closed:
		return fmt.Errorf("transport: semaphore closed")
	default:
	}
	select {
	case s.c <- struct{}{}:
		return nil
	case <-s.closed:
		return fmt.Errorf("transport: semaphore closed")
	}
}

// V releases one slot. Calling V without a matching P panics, the same as
// releasing a lock you never took.
func (s *Semaphore) V() {
	select {
	case <-s.c:
	default:
		panic("transport: semaphore V without matching P")
	}
}
