package ratelimit

import (
	"sync"
	"time"
)

// WindowStore counts hits per key inside one fixed window shared by all keys.
// A background goroutine clears every count each time the window elapses.
// Entries are never evicted otherwise, so the map grows with the number of
// distinct keys seen within a window.
type WindowStore struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	counts  map[string]uint64
	started time.Time
	done    chan struct{}
	closed  bool
}

// NewWindowStore creates a store and starts its reset ticker. Close must be
// called to stop the ticker.
func NewWindowStore(window time.Duration) *WindowStore {
	s := newWindowStore(window, time.Now)
	go s.run()
	return s
}

// newWindowStore builds a store without starting the ticker.
func newWindowStore(window time.Duration, now func() time.Time) *WindowStore {
	return &WindowStore{
		window:  window,
		now:     now,
		counts:  make(map[string]uint64),
		started: now(),
		done:    make(chan struct{}),
	}
}

// Increment adds one hit for key and returns the new count.
func (s *WindowStore) Increment(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	return s.counts[key]
}

// Count returns the hits recorded for key in the current window.
func (s *WindowStore) Count(key string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.counts[key]
	return n, ok
}

// Len returns the number of keys tracked in the current window.
func (s *WindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counts)
}

// RemainingTime returns how long until the window restarts. The value goes
// negative when the ticker fires late; it is not clamped.
func (s *WindowStore) RemainingTime() time.Duration {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	return s.window - s.now().Sub(started)
}

// ResetAll clears every count and restarts the window.
func (s *WindowStore) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[string]uint64)
	s.started = s.now()
}

// ResetKey removes key. The window start is restarted for every key as well;
// the ticker schedule is left untouched.
func (s *WindowStore) ResetKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, key)
	s.started = s.now()
}

// Close stops the reset ticker. Counts stay readable after Close.
func (s *WindowStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

// run clears the store every window until Close is called.
func (s *WindowStore) run() {
	ticker := time.NewTicker(s.window)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.ResetAll()
		}
	}
}
