package internal

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// The ingest fan-out queues one closure per accepted record; up to N of them
// run concurrently, never more.
func TestWorkerPoolConcurrency(t *testing.T) {
	wp := NewWorkerPool(4)
	wp.Start()
	defer wp.Stop()

	var inflight, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		wp.Queue(func() {
			defer wg.Done()
			n := atomic.AddInt32(&inflight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inflight, -1)
		})
	}
	wg.Wait()
	if got := atomic.LoadInt32(&peak); got > 4 {
		t.Fatalf("more than N jobs ran at once: %d", got)
	}
	if got := atomic.LoadInt32(&peak); got < 2 {
		t.Fatalf("jobs never overlapped, peak=%d", got)
	}
}

// Work queued before Start is held, not lost: it must all run once the
// workers come up.
func TestWorkerPoolHoldsWorkUntilStart(t *testing.T) {
	wp := NewWorkerPool(2)
	done := make(chan string, 2)
	wp.Queue(func() { done <- "record_1" })
	wp.Queue(func() { done <- "record_2" })

	time.Sleep(50 * time.Millisecond)
	if len(done) != 0 {
		t.Fatalf("queued work ran before Start")
	}

	wp.Start()
	defer wp.Stop()
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-done:
			seen[id] = true
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for queued work")
		}
	}
	if !seen["record_1"] || !seen["record_2"] {
		t.Fatalf("queued work lost: %v", seen)
	}
}

// With every worker busy and the buffer full, Queue blocks the producer. This
// is what bounds memory when records arrive faster than the database can
// absorb the fan-out.
func TestWorkerPoolBackpressure(t *testing.T) {
	wp := NewWorkerPool(1)
	wp.Start()
	defer wp.Stop()

	release := make(chan struct{})
	block := func() { <-release }
	wp.Queue(block) // picked up by the single worker
	wp.Queue(block) // sits in the size-1 buffer

	queued := make(chan struct{})
	go func() {
		wp.Queue(block) // no room: must block until the worker drains one
		close(queued)
	}()

	select {
	case <-queued:
		t.Fatalf("Queue did not apply backpressure with a full buffer")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case <-queued:
	case <-time.After(time.Second):
		t.Fatalf("Queue never unblocked after a worker freed up")
	}
}
