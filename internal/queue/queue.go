package queue

import (
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Enqueue once CloseForNewWork has been called.
var ErrQueueClosed = errors.New("queue closed for new work")

// Queue is an unbounded FIFO of job ids. It is safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []int64
	closed bool
}

// New creates an empty queue accepting new work.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends id to the tail and wakes one blocked consumer.
func (q *Queue) Enqueue(id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, id)
	q.cond.Signal()
	return nil
}

// Dequeue removes and returns the head of the queue, blocking while the queue
// is empty. It returns ok=false only when the queue is closed and empty.
func (q *Queue) Dequeue() (id int64, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		if q.closed {
			return 0, false
		}
		q.cond.Wait()
	}

	id = q.items[0]
	q.items[0] = 0
	q.items = q.items[1:]
	if len(q.items) == 0 {
		// Drop the drained backing array.
		q.items = nil
	}
	return id, true
}

// CloseForNewWork stops the queue from accepting new items. Items already
// queued are kept and still drain. It is idempotent.
func (q *Queue) CloseForNewWork() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	// Wake every consumer so idle ones observe closed-and-empty.
	q.cond.Broadcast()
}

// Closed reports whether CloseForNewWork has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of items waiting to be dequeued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
