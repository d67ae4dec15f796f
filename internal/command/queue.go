package command

// Queue is the ordered event buffer of one instance. It is owned by the tick
// loop and is not safe for concurrent use: guest code only runs inside
// Setup/Update calls made from that loop.
type Queue struct {
	events []Event
}

// Push appends an event. There is no bound; a guest may record any number of
// commands within one tick.
func (q *Queue) Push(e Event) {
	q.events = append(q.events, e)
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	return len(q.events)
}

// Drain moves all pending events out in push order and leaves the queue empty.
func (q *Queue) Drain() []Event {
	if len(q.events) == 0 {
		return nil
	}
	drained := q.events
	q.events = nil
	return drained
}
