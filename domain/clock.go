package domain

import (
	"sync"
	"time"
)

// Stamper hands out capture times in milliseconds that never decrease, even if the wall clock does.
type Stamper struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewStamper() *Stamper {
	return &Stamper{now: time.Now}
}

func (s *Stamper) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UnixMilli()
	if ts < s.last {
		ts = s.last
	}
	s.last = ts
	return ts
}
