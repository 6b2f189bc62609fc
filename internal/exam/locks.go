package exam

import "sync"

// candidateLocks serializes flag check-and-set sequences per candidate.
// Candidates are independent, so there is one mutex per candidate id;
// the outer mutex only guards the map itself. Entries are never removed:
// the set of candidates is small and records are retained forever anyway.
type candidateLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// lock acquires the mutex for a candidate and returns its unlock func.
func (c *candidateLocks) lock(id int64) func() {
	c.mu.Lock()
	if c.locks == nil {
		c.locks = make(map[int64]*sync.Mutex)
	}
	m, ok := c.locks[id]
	if !ok {
		m = &sync.Mutex{}
		c.locks[id] = m
	}
	c.mu.Unlock()

	m.Lock()
	return m.Unlock
}
