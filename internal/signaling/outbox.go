package signaling

import (
	"encoding/json"
	"sync"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/relay"
)

// outboxItem is one encoded event. msg is nil for keepalives and for replies
// generated by the transport itself, which are never handed back to the relay.
type outboxItem struct {
	frame []byte
	msg   *relay.Message

	// replayed items sit outside the byte budget.
	replayed bool
}

// outbox is a byte-bounded FIFO of encoded events for one push connection.
//
// Producers never block; a single writer goroutine drains it. An empty frame
// asks the writer for a keepalive and does not count against the budget.
type outbox struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	closed   bool

	maxBytes int
	curBytes int
	items    []outboxItem
}

func newOutbox(maxBytes int) *outbox {
	q := &outbox{maxBytes: maxBytes}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends item if it fits within the byte budget.
func (q *outbox) Enqueue(item outboxItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if len(item.frame) > 0 && q.curBytes+len(item.frame) > q.maxBytes {
		return false
	}
	q.pushLocked(item)
	return true
}

// EnqueueAll appends a replayed backlog. It is not charged to the byte budget,
// so a large backlog neither fails nor crowds out the events that follow it.
func (q *outbox) EnqueueAll(items []outboxItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	for _, item := range items {
		item.replayed = true
		q.pushLocked(item)
	}
	return true
}

func (q *outbox) pushLocked(item outboxItem) {
	q.items = append(q.items, item)
	if !item.replayed {
		q.curBytes += len(item.frame)
	}
	q.notEmpty.Signal()
}

// Dequeue blocks until a frame is available or the outbox is closed. Once
// closed it reports false even if frames remain; those are left for Take.
func (q *outbox) Dequeue() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.closed {
		return nil, false
	}
	item := q.items[0]
	q.items[0] = outboxItem{}
	q.items = q.items[1:]
	if !item.replayed {
		q.curBytes -= len(item.frame)
	}
	return item.frame, true
}

// Close stops the outbox and wakes the writer. Buffered items stay put.
func (q *outbox) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}

// Take closes the outbox and removes every item the writer never dequeued.
func (q *outbox) Take() []outboxItem {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.curBytes = 0
	q.closed = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
	return items
}

func (q *outbox) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// pushChannel adapts an outbox to relay.Channel.
type pushChannel struct {
	out *outbox
}

var _ relay.Channel = (*pushChannel)(nil)

func newPushChannel(maxBytes int) *pushChannel {
	return &pushChannel{out: newOutbox(maxBytes)}
}

func encodeItem(msg relay.Message) (outboxItem, error) {
	frame, err := json.Marshal(msg)
	if err != nil {
		return outboxItem{}, err
	}
	return outboxItem{frame: frame, msg: &msg}, nil
}

func (c *pushChannel) Send(msg relay.Message) bool {
	item, err := encodeItem(msg)
	if err != nil {
		return false
	}
	return c.out.Enqueue(item)
}

func (c *pushChannel) Replay(msgs []relay.Message) bool {
	items := make([]outboxItem, 0, len(msgs))
	for _, msg := range msgs {
		// Relay messages hold only strings and already-valid JSON.
		item, err := encodeItem(msg)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return c.out.EnqueueAll(items)
}

// Close is called by the relay. It returns the messages never written.
func (c *pushChannel) Close() []relay.Message {
	items := c.out.Take()
	var unsent []relay.Message
	for _, item := range items {
		if item.msg != nil {
			unsent = append(unsent, *item.msg)
		}
	}
	return unsent
}

// stop ends the writer from the transport side. Unwritten messages stay
// buffered until the relay's Detach collects them.
func (c *pushChannel) stop() { c.out.Close() }

// reply queues an event for this connection only.
func (c *pushChannel) reply(msg relay.Message) bool {
	frame, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	return c.out.Enqueue(outboxItem{frame: frame})
}

func (c *pushChannel) keepalive() bool { return c.out.Enqueue(outboxItem{}) }
