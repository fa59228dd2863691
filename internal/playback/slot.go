package playback

import (
	"context"
	"sync"
)

// Slot holds the single current video. Once closed it holds nothing and
// releases whatever is handed to it.
type Slot struct {
	mu      sync.Mutex
	current *Handle
	closed  bool
}

// NewSlot returns an empty slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Replace installs h as the current handle and releases the previous one.
// A nil h simply clears the slot.
func (s *Slot) Replace(ctx context.Context, h *Handle) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if h != nil {
			h.Release(ctx)
		}
		return
	}
	prev := s.current
	s.current = h
	s.mu.Unlock()

	if prev != nil && prev != h {
		prev.Release(ctx)
	}
}

// Current returns the handle in the slot, or nil.
func (s *Slot) Current() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Close releases the current handle and empties the slot for good.
func (s *Slot) Close(ctx context.Context) {
	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.closed = true
	s.mu.Unlock()

	if prev != nil {
		prev.Release(ctx)
	}
}
