package lifecycle

import "sync"

// Inbox hands load results from worker goroutines to the tick loop. Any
// number of goroutines may Post; only the tick loop takes.
type Inbox struct {
	mu      sync.Mutex
	results []Result
	ready   chan struct{}
}

// NewInbox returns an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{ready: make(chan struct{}, 1)}
}

// Post appends a result. It never blocks.
func (b *Inbox) Post(r Result) {
	b.mu.Lock()
	b.results = append(b.results, r)
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// Take returns every result posted since the last Take, in arrival order.
func (b *Inbox) Take() []Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.results) == 0 {
		return nil
	}
	taken := b.results
	b.results = nil
	return taken
}

// Len returns the number of results waiting.
func (b *Inbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.results)
}

// Ready is signalled after a Post. A receive does not guarantee results are
// still waiting.
func (b *Inbox) Ready() <-chan struct{} {
	return b.ready
}
