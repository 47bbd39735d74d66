package session

import "time"

// SetClock swaps the store's clock in tests.
func SetClock(s *MemoryStore, now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}
