// Package bufpool recycles plane buffers between frames.
//
// A Pool keeps at most Capacity free buffers. Allocate prefers the most
// recently retained buffer that is large enough and falls back to a fresh
// allocation; Retain keeps a buffer only while the pool is below capacity.
package bufpool

import "sync"

// DefaultCapacity is the number of free buffers kept when New is given a
// non-positive capacity.
const DefaultCapacity = 4

// Stats is a snapshot of pool counters.
type Stats struct {
	Free      int
	Allocated uint64 // fresh allocations
	Reused    uint64 // allocations served from the free list
	Dropped   uint64 // buffers refused by Retain
}

// Pool is a bounded free list of byte buffers. Safe for concurrent use.
type Pool struct {
	mu       sync.Mutex
	free     [][]byte // oldest first
	capacity int

	allocated uint64
	reused    uint64
	dropped   uint64
}

// New returns a pool holding up to capacity free buffers.
func New(capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pool{
		free:     make([][]byte, 0, capacity),
		capacity: capacity,
	}
}

// Allocate returns a buffer with len == minCapacity. Contents of a reused
// buffer are not cleared.
func (p *Pool) Allocate(minCapacity int) []byte {
	if minCapacity < 0 {
		minCapacity = 0
	}

	p.mu.Lock()
	for i := len(p.free) - 1; i >= 0; i-- {
		buf := p.free[i]
		if cap(buf) < minCapacity {
			continue
		}
		copy(p.free[i:], p.free[i+1:])
		p.free[len(p.free)-1] = nil
		p.free = p.free[:len(p.free)-1]
		p.reused++
		p.mu.Unlock()
		return buf[:minCapacity]
	}
	p.allocated++
	p.mu.Unlock()

	return make([]byte, minCapacity)
}

// Retain returns buf to the pool. It reports false, dropping the buffer,
// when the pool is full or buf has no capacity.
func (p *Pool) Retain(buf []byte) bool {
	if cap(buf) == 0 {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) >= p.capacity {
		p.dropped++
		return false
	}
	p.free = append(p.free, buf[:cap(buf)])
	return true
}

// Len returns the number of free buffers.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Capacity returns the maximum number of free buffers.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Free:      len(p.free),
		Allocated: p.allocated,
		Reused:    p.reused,
		Dropped:   p.dropped,
	}
}
