package queue

import (
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestFIFOOrder(t *testing.T) {
	q := New()
	for i := int64(1); i <= 5; i++ {
		if err := q.Enqueue(i); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}
	if q.Len() != 5 {
		t.Errorf("Len() = %d, want 5", q.Len())
	}

	for want := int64(1); want <= 5; want++ {
		got, ok := q.Dequeue()
		if !ok {
			t.Fatalf("Dequeue returned closed, want %d", want)
		}
		if got != want {
			t.Errorf("Dequeue() = %d, want %d", got, want)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	q := New()
	q.CloseForNewWork()

	if err := q.Enqueue(1); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue after close = %v, want ErrQueueClosed", err)
	}
	if !q.Closed() {
		t.Error("Closed() = false after CloseForNewWork")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	q := New()
	q.CloseForNewWork()
	q.CloseForNewWork()

	if _, ok := q.Dequeue(); ok {
		t.Error("Dequeue on closed empty queue returned ok")
	}
}

func TestCloseDrainsQueuedItems(t *testing.T) {
	q := New()
	for i := int64(1); i <= 3; i++ {
		if err := q.Enqueue(i); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}
	q.CloseForNewWork()

	for want := int64(1); want <= 3; want++ {
		got, ok := q.Dequeue()
		if !ok || got != want {
			t.Fatalf("Dequeue() = (%d, %v), want (%d, true)", got, ok, want)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Error("Dequeue after drain returned ok")
	}
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q := New()
	got := make(chan int64, 1)

	go func() {
		id, ok := q.Dequeue()
		if ok {
			got <- id
		}
		close(got)
	}()

	select {
	case <-got:
		t.Fatal("Dequeue returned before anything was enqueued")
	case <-time.After(50 * time.Millisecond):
	}

	if err := q.Enqueue(42); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case id := <-got:
		if id != 42 {
			t.Errorf("Dequeue() = %d, want 42", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Dequeue did not wake up after Enqueue")
	}
}

func TestCloseWakesBlockedConsumers(t *testing.T) {
	q := New()
	const consumers = 4

	var wg sync.WaitGroup
	for range consumers {
		wg.Go(func() {
			if _, ok := q.Dequeue(); ok {
				t.Error("Dequeue returned ok on closed empty queue")
			}
		})
	}

	time.Sleep(20 * time.Millisecond)
	q.CloseForNewWork()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumers still blocked after CloseForNewWork")
	}
}

func TestConcurrentProducersConsumers(t *testing.T) {
	q := New()
	const (
		producers   = 8
		perProducer = 250
		consumers   = 4
	)

	var (
		mu   sync.Mutex
		seen []int64
	)

	var cwg sync.WaitGroup
	for range consumers {
		cwg.Go(func() {
			for {
				id, ok := q.Dequeue()
				if !ok {
					return
				}
				mu.Lock()
				seen = append(seen, id)
				mu.Unlock()
			}
		})
	}

	var pwg sync.WaitGroup
	for p := range producers {
		pwg.Go(func() {
			for i := range perProducer {
				if err := q.Enqueue(int64(p*perProducer + i)); err != nil {
					t.Errorf("Enqueue: %v", err)
				}
			}
		})
	}
	pwg.Wait()
	q.CloseForNewWork()
	cwg.Wait()

	if len(seen) != producers*perProducer {
		t.Fatalf("consumed %d items, want %d", len(seen), producers*perProducer)
	}
	sort.Slice(seen, func(i, j int) bool { return seen[i] < seen[j] })
	for i, id := range seen {
		if id != int64(i) {
			t.Fatalf("item %d = %d: lost or duplicated item", i, id)
		}
	}
}
