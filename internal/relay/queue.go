package relay

// pendingQueue is the FIFO of messages waiting for a peer to attach a
// channel. It is only touched under the Manager mutex.
type pendingQueue struct {
	// max bounds the queue length; <= 0 means unbounded.
	max  int
	msgs []Message
}

// push appends msg. It reports whether the oldest message was evicted to make
// room.
func (q *pendingQueue) push(msg Message) bool {
	evicted := false
	if q.max > 0 && len(q.msgs) >= q.max {
		q.msgs[0] = Message{}
		q.msgs = q.msgs[1:]
		evicted = true
	}
	q.msgs = append(q.msgs, msg)
	return evicted
}

// drain removes and returns every queued message in insertion order.
func (q *pendingQueue) drain() []Message {
	msgs := q.msgs
	q.msgs = nil
	return msgs
}

// restore puts msgs back in front of anything queued since they were drained.
// If that exceeds the bound, the oldest messages are evicted and their count
// is returned.
func (q *pendingQueue) restore(msgs []Message) int {
	if len(msgs) == 0 {
		return 0
	}
	q.msgs = append(append(make([]Message, 0, len(msgs)+len(q.msgs)), msgs...), q.msgs...)
	if q.max <= 0 || len(q.msgs) <= q.max {
		return 0
	}
	evicted := len(q.msgs) - q.max
	clear(q.msgs[:evicted])
	q.msgs = q.msgs[evicted:]
	return evicted
}

func (q *pendingQueue) len() int { return len(q.msgs) }
