package position

import "sync"

// Slots bounds the number of concurrently open positions. The default
// capacity is one: a single concentrated position at a time.
type Slots struct {
	mu       sync.Mutex
	capacity int
	inUse    int
}

// NewSlots creates a slot pool. Capacity below one is clamped to one.
func NewSlots(capacity int) *Slots {
	if capacity < 1 {
		capacity = 1
	}
	return &Slots{capacity: capacity}
}

// TryAcquire claims a slot, reporting false when all are taken.
func (s *Slots) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inUse >= s.capacity {
		return false
	}
	s.inUse++
	return true
}

// Release frees a slot. Releasing beyond zero is a no-op.
func (s *Slots) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inUse > 0 {
		s.inUse--
	}
}

// InUse returns the number of held slots.
func (s *Slots) InUse() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inUse
}

// Capacity returns the pool size.
func (s *Slots) Capacity() int {
	return s.capacity
}
