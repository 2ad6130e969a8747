package engine

import (
	"sync"
	"time"

	"github.com/seantiz/healthstat/internal/model"
)

// A job emits at most three transitions, so a full buffer means the
// subscriber has stopped reading.
const subscriberBufferSize = 4

// StatusEvent is one job status transition.
type StatusEvent struct {
	JobID  int64     `json:"job_id"`
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

// Subscription is a view of one job's status feed. Last is the job's status
// when the subscription was taken; C carries only later transitions, each
// with a status different from the one before it. When Final is set Last is
// terminal and C is already closed.
type Subscription struct {
	Last  StatusEvent
	Final bool
	C     <-chan StatusEvent

	cancel func()
}

// Cancel stops delivery to C. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.cancel()
}

// StatusBroker keeps the latest status of every job and fans transitions
// out to subscribers. A terminal event ends the job's feed: its subscribers
// are closed and later subscribers get the terminal event as Last.
type StatusBroker struct {
	mu    sync.Mutex
	feeds map[int64]*jobFeed
	seq   int
}

type jobFeed struct {
	last  StatusEvent
	final bool
	subs  map[int]chan StatusEvent
}

// NewStatusBroker creates an empty broker.
func NewStatusBroker() *StatusBroker {
	return &StatusBroker{feeds: make(map[int64]*jobFeed)}
}

// Publish records ev as the job's latest status and delivers it to current
// subscribers. Repeats of the latest status and events after a terminal one
// are ignored.
func (b *StatusBroker) Publish(ev StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.feeds[ev.JobID]
	if !ok {
		f = &jobFeed{subs: make(map[int]chan StatusEvent)}
		b.feeds[ev.JobID] = f
	} else if f.final || f.last.Status == ev.Status {
		return
	}

	f.last = ev
	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}

	if model.IsTerminal(ev.Status) {
		f.final = true
		for id, ch := range f.subs {
			close(ch)
			delete(f.subs, id)
		}
	}
}

// Last returns the latest event published for jobID.
func (b *StatusBroker) Last(jobID int64) (StatusEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.feeds[jobID]
	if !ok {
		return StatusEvent{}, false
	}
	return f.last, true
}

// Subscribe attaches to jobID's feed. It reports false for jobs the broker
// has never seen.
func (b *StatusBroker) Subscribe(jobID int64) (*Subscription, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.feeds[jobID]
	if !ok {
		return nil, false
	}

	ch := make(chan StatusEvent, subscriberBufferSize)
	if f.final {
		close(ch)
		return &Subscription{Last: f.last, Final: true, C: ch, cancel: func() {}}, true
	}

	id := b.seq
	b.seq++
	f.subs[id] = ch

	var once sync.Once
	return &Subscription{
		Last: f.last,
		C:    ch,
		cancel: func() {
			once.Do(func() {
				b.mu.Lock()
				defer b.mu.Unlock()
				delete(f.subs, id)
			})
		},
	}, true
}

// Forget drops jobID's feed. Used when a job is withdrawn before it was
// queued.
func (b *StatusBroker) Forget(jobID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, ok := b.feeds[jobID]
	if !ok {
		return
	}
	for id, ch := range f.subs {
		close(ch)
		delete(f.subs, id)
	}
	delete(b.feeds, jobID)
}
