package poller

import (
	"context"
	"sync"

	"github.com/eapache/queue"

	"github.com/wippyai/wasm-zmq/resource"
)

// Callback receives a poll result on the host's execution context.
// message is 0 unless ready is true.
type Callback func(ctx context.Context, ready bool, message resource.Handle)

// Completion is the result of one poll, handed from a poller goroutine to
// the host through a CompletionQueue.
type Completion struct {
	Poller   *Poller
	Callback Callback
	Message  resource.Handle
	Owner    resource.Identity
	Ready    bool
}

// CompletionQueue is an unbounded FIFO of completions. Push never blocks;
// the host drains it on its own schedule.
type CompletionQueue struct {
	items  *queue.Queue
	ready  chan struct{}
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// NewCompletionQueue creates an empty queue.
func NewCompletionQueue() *CompletionQueue {
	return &CompletionQueue{
		items: queue.New(),
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Push appends c. It reports false once the queue is closed.
func (q *CompletionQueue) Push(c Completion) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items.Add(c)
	if q.items.Length() == 1 {
		close(q.ready)
	}
	return true
}

// Pop removes the oldest completion without blocking.
func (q *CompletionQueue) Pop() (Completion, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Length() == 0 {
		return Completion{}, false
	}
	c := q.items.Remove().(Completion)
	if q.items.Length() == 0 && !q.closed {
		q.ready = make(chan struct{})
	}
	return c, true
}

// Drain pops every queued completion in order and passes it to fn. Items
// pushed while draining are included. It returns the number handled.
func (q *CompletionQueue) Drain(fn func(Completion)) int {
	n := 0
	for {
		c, ok := q.Pop()
		if !ok {
			return n
		}
		fn(c)
		n++
	}
}

// Ready returns a channel closed while the queue is non-empty or closed.
func (q *CompletionQueue) Ready() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready
}

// Done returns a channel closed by Close.
func (q *CompletionQueue) Done() <-chan struct{} {
	return q.done
}

// Len returns the number of queued completions.
func (q *CompletionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Close stops accepting completions and returns the ones never delivered,
// so their message handles can be destroyed. Later calls return nil.
func (q *CompletionQueue) Close() []Completion {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	left := make([]Completion, 0, q.items.Length())
	for q.items.Length() > 0 {
		left = append(left, q.items.Remove().(Completion))
	}
	if len(left) == 0 {
		close(q.ready)
	}
	close(q.done)
	return left
}
