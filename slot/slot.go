// Package slot implements the single-frame mailbox between a capture
// producer and the render loop.
//
// Push never blocks and always replaces the pending frame, so the renderer
// is at most one frame behind the camera. Take never blocks either: it
// returns the pending frame once, then reports nothing new until the next
// Push. Frames that are overwritten or rejected are released immediately.
package slot

import (
	"sync"

	"github.com/gogpu/yuvview/frame"
)

// Stats is a snapshot of slot counters.
type Stats struct {
	Pushed   uint64 // frames accepted by Push
	Taken    uint64 // frames handed out by Take
	Dropped  uint64 // pending frames overwritten before Take
	Rejected uint64 // frames pushed after Close
	Pending  bool
	Closed   bool
}

// Slot holds at most one pending frame. It is safe for one producer and one
// consumer goroutine (and for more, though only the newest frame survives).
type Slot struct {
	mu      sync.Mutex
	pending *frame.PlanarImage
	closed  bool

	pushed   uint64
	taken    uint64
	dropped  uint64
	rejected uint64
}

// New returns an empty, open slot.
func New() *Slot {
	return &Slot{}
}

// Push stores img as the pending frame. A frame that was still pending is
// released. After Close, img is released and discarded.
func (s *Slot) Push(img *frame.PlanarImage) {
	if img == nil {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.rejected++
		s.mu.Unlock()
		img.Release()
		return
	}
	prev := s.pending
	s.pending = img
	s.pushed++
	if prev != nil {
		s.dropped++
	}
	s.mu.Unlock()

	// Release outside the lock: driver hooks may requeue buffers.
	prev.Release()
}

// Take removes and returns the pending frame. ok is false when nothing new
// has been pushed since the previous Take. The caller owns the returned
// frame and must Release it.
func (s *Slot) Take() (img *frame.PlanarImage, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return nil, false
	}
	img, s.pending = s.pending, nil
	s.taken++
	return img, true
}

// Clear releases the pending frame, if any. The slot stays open.
func (s *Slot) Clear() {
	s.mu.Lock()
	prev := s.pending
	s.pending = nil
	s.mu.Unlock()

	prev.Release()
}

// Close clears the slot and turns later pushes into no-ops. Close is
// idempotent.
func (s *Slot) Close() {
	s.mu.Lock()
	s.closed = true
	prev := s.pending
	s.pending = nil
	s.mu.Unlock()

	prev.Release()
}

// Closed reports whether Close has been called.
func (s *Slot) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Stats returns the current counters.
func (s *Slot) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Pushed:   s.pushed,
		Taken:    s.taken,
		Dropped:  s.dropped,
		Rejected: s.rejected,
		Pending:  s.pending != nil,
		Closed:   s.closed,
	}
}
