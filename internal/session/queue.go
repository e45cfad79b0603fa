package session

import "sync"

// intakeQueue is the ordered, unbounded audio queue for one session. The
// transport side only pushes; the session worker is the sole consumer. An
// internal end marker plays the sentinel role: once enqueued it is
// guaranteed to be the last thing the consumer observes, and late payloads
// from a racing producer are dropped rather than queued behind it.
type intakeQueue struct {
	mu     sync.Mutex
	items  [][]byte
	ended  bool
	signal chan struct{}
}

func newIntakeQueue() *intakeQueue {
	return &intakeQueue{signal: make(chan struct{}, 1)}
}

// Push enqueues one audio payload. It never blocks. Returns false when the
// payload was dropped because the end marker is already enqueued.
func (q *intakeQueue) Push(payload []byte) bool {
	q.mu.Lock()
	if q.ended {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, payload)
	q.mu.Unlock()
	q.notify()
	return true
}

// PushEnd enqueues the end marker. Idempotent and never blocking.
func (q *intakeQueue) PushEnd() {
	q.mu.Lock()
	q.ended = true
	q.mu.Unlock()
	q.notify()
}

func (q *intakeQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Pop returns the next payload in FIFO order, blocking until one is
// available. ok is false when the end marker is reached (after all queued
// payloads have been drained) or when stop closes first.
func (q *intakeQueue) Pop(stop <-chan struct{}) (payload []byte, ok bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			payload = q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return payload, true
		}
		ended := q.ended
		q.mu.Unlock()

		if ended {
			return nil, false
		}

		select {
		case <-q.signal:
		case <-stop:
			return nil, false
		}
	}
}

// Ended reports whether the end marker has been enqueued.
func (q *intakeQueue) Ended() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ended
}

// Len returns the number of queued payloads.
func (q *intakeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
