package listener

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store keeps the most recent scans in a fixed-size ring.
type Store struct {
	mu    sync.RWMutex
	ring  []Scan
	next  int // ring index the next scan is written to
	size  int // scans currently held
	total int // scans ever recorded
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 1
	}
	return &Store{ring: make([]Scan, capacity)}
}

// Record stores value and returns the stored scan.
func (s *Store) Record(value, remote string) Scan {
	sc := Scan{
		ID:         uuid.NewString(),
		Value:      value,
		Remote:     remote,
		ReceivedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring[s.next] = sc
	s.next = (s.next + 1) % len(s.ring)
	if s.size < len(s.ring) {
		s.size++
	}
	s.total++
	return sc
}

// Recent returns up to limit scans, newest first. limit <= 0 returns all
// held scans.
func (s *Store) Recent(limit int) []Scan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := s.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Scan, 0, n)
	for i := 1; i <= n; i++ {
		idx := (s.next - i + len(s.ring)) % len(s.ring)
		out = append(out, s.ring[idx])
	}
	return out
}

// Total returns how many scans were recorded since start.
func (s *Store) Total() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}
