package feed

import (
	"sync"
)

// subscriber holds at most one pending frame. A slow client skips frames
// instead of queueing them: the newest frame replaces an undelivered one.
// Frames never go backwards; an offer older than the last one is ignored.
type subscriber struct {
	mu     sync.Mutex
	seq    uint64
	frames chan Frame
}

func newSubscriber() *subscriber {
	return &subscriber{frames: make(chan Frame, 1)}
}

func (s *subscriber) offer(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Seq <= s.seq {
		return
	}
	s.seq = f.Seq

	for {
		select {
		case s.frames <- f:
			return
		default:
		}
		select {
		case <-s.frames:
		default:
		}
	}
}

// hub fans frames out to stream subscribers.
type hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*subscriber]struct{})}
}

func (h *hub) subscribe() *subscriber {
	s := newSubscriber()
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

func (h *hub) broadcast(f Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		s.offer(f)
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
