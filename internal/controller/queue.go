package controller

import (
	"sync"
	"time"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
)

// WorkQueue hands out resource keys to a worker, one at a time per key.
//
// A key is in at most one of three states: queued, processing, or both
// processing and dirty (changed again mid-reconcile). Done puts a dirty key
// back at the end of the queue, so no change is lost and no key is
// reconciled concurrently with itself.
type WorkQueue struct {
	mu         sync.Mutex
	cond       *sync.Cond
	queue      []string
	dirty      map[string]struct{}
	processing map[string]struct{}
	failures   map[string]int
	closed     bool
}

func NewWorkQueue() *WorkQueue {
	q := &WorkQueue{
		dirty:      make(map[string]struct{}),
		processing: make(map[string]struct{}),
		failures:   make(map[string]int),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add enqueues key unless it is already waiting.
func (q *WorkQueue) Add(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	if _, ok := q.dirty[key]; ok {
		return
	}
	q.dirty[key] = struct{}{}
	if _, ok := q.processing[key]; ok {
		return
	}
	q.queue = append(q.queue, key)
	q.cond.Signal()
}

// Get blocks until a key is available. It returns false once the queue is
// closed and drained.
func (q *WorkQueue) Get() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.queue) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.queue) == 0 {
		return "", false
	}

	key := q.queue[0]
	q.queue = q.queue[1:]
	q.processing[key] = struct{}{}
	delete(q.dirty, key)
	return key, true
}

// Done releases key after a reconcile.
func (q *WorkQueue) Done(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.processing, key)
	if _, ok := q.dirty[key]; ok && !q.closed {
		q.queue = append(q.queue, key)
		q.cond.Signal()
	}
}

// AddAfterFailure schedules key again after an exponential backoff of 1s,
// 2s, 4s and so on, capped at 60s.
func (q *WorkQueue) AddAfterFailure(key string) {
	q.mu.Lock()
	n := q.failures[key]
	q.failures[key] = n + 1
	q.mu.Unlock()

	time.AfterFunc(backoff(n), func() { q.Add(key) })
}

// Forget clears the failure history of key.
func (q *WorkQueue) Forget(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.failures, key)
}

// Len returns the number of keys waiting to be handed out.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Close makes Get return false once the remaining keys are drained.
func (q *WorkQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func backoff(failures int) time.Duration {
	d := initialBackoff
	for i := 0; i < failures && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
