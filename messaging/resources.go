package messaging

import (
	"sync"

	"github.com/wippyai/wasm-zmq/transport"
)

// Socket is the value behind a ZMQSocket handle.
type Socket struct {
	ep        transport.Endpoint
	closeErr  error
	closeOnce sync.Once
}

func newSocket(ep transport.Endpoint) *Socket {
	return &Socket{ep: ep}
}

// Endpoint returns the transport endpoint.
func (s *Socket) Endpoint() transport.Endpoint { return s.ep }

// Domain returns the socket type.
func (s *Socket) Domain() transport.Domain { return s.ep.Domain() }

func (s *Socket) close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.ep.Close()
	})
	return s.closeErr
}

// Message is the value behind a ZMQMessage handle: an immutable byte buffer.
type Message struct {
	data []byte
	mu   sync.RWMutex
}

func newMessage(data []byte) *Message {
	return &Message{data: data}
}

// Size returns the message length in bytes.
func (m *Message) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// CopyTo copies the first n bytes into dst and reports whether the buffer
// was still held.
func (m *Message) CopyTo(dst []byte, n int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil && n > 0 {
		return false
	}
	copy(dst[:n], m.data[:n])
	return true
}

// Bytes returns a copy of the message data.
func (m *Message) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// view returns the buffer for read-only use by a send.
func (m *Message) view() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data
}

// Drop releases the buffer.
func (m *Message) Drop() {
	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
}
