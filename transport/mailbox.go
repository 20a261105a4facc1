package transport

import (
	"sync"

	"github.com/eapache/queue"
)

// Frame is one received message part.
type Frame struct {
	Data []byte
	More bool
}

// Mailbox is the receive side of an endpoint: an unbounded FIFO of frames
// with a readiness channel suitable for select.
type Mailbox struct {
	frames *queue.Queue
	ready  chan struct{}
	done   chan struct{}
	mu     sync.Mutex
	closed bool
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		frames: queue.New(),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Put appends a frame. It reports false once the mailbox is closed.
func (m *Mailbox) Put(f Frame) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	m.frames.Add(f)
	if m.frames.Length() == 1 {
		close(m.ready)
	}
	return true
}

// PutMessage appends every part of a multipart message atomically.
func (m *Mailbox) PutMessage(parts [][]byte) bool {
	if len(parts) == 0 {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	wasEmpty := m.frames.Length() == 0
	for i, p := range parts {
		m.frames.Add(Frame{Data: p, More: i < len(parts)-1})
	}
	if wasEmpty {
		close(m.ready)
	}
	return true
}

// Take removes the oldest frame without blocking.
func (m *Mailbox) Take() (Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frames.Length() == 0 {
		return Frame{}, false
	}
	f := m.frames.Remove().(Frame)
	if m.frames.Length() == 0 && !m.closed {
		m.ready = make(chan struct{})
	}
	return f, true
}

// Ready returns a channel closed while a frame is queued or after Close.
func (m *Mailbox) Ready() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// Done returns a channel closed by Close.
func (m *Mailbox) Done() <-chan struct{} {
	return m.done
}

// Len returns the number of queued frames.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames.Length()
}

// Close discards queued frames and wakes every waiter. Idempotent.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	if m.frames.Length() == 0 {
		close(m.ready)
	}
	m.frames = queue.New()
	close(m.done)
}

// Wait blocks until a frame is available or the mailbox is closed.
func (m *Mailbox) Wait() (Frame, bool) {
	for {
		if f, ok := m.Take(); ok {
			return f, true
		}
		select {
		case <-m.done:
			return Frame{}, false
		default:
		}
		select {
		case <-m.Ready():
		case <-m.done:
			return Frame{}, false
		}
	}
}
