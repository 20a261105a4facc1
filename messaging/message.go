package messaging

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-zmq/errors"
	"github.com/wippyai/wasm-zmq/resource"
)

// CreateMessage copies exactly n bytes of data into a new message.
func (s *Service) CreateMessage(caller resource.Identity, data []byte, n int) (resource.Handle, error) {
	if n < 0 || n > len(data) {
		return 0, errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Op("create_message").
			Detail("length %d exceeds buffer of %d bytes", n, len(data)).
			Build()
	}

	buf := make([]byte, n)
	copy(buf, data[:n])
	return s.AdoptMessage(caller, buf)
}

// AdoptMessage registers data as a message owned by caller without copying.
// If registration fails the buffer is released before the error returns.
func (s *Service) AdoptMessage(caller resource.Identity, data []byte) (resource.Handle, error) {
	m := newMessage(data)
	h, err := s.messages.Create(m, caller, s.owner)
	if err != nil {
		m.Drop()
		return 0, err
	}
	s.log.Debug("create_message", zap.Stringer("message", h), zap.Int("size", len(data)))
	return h, nil
}

// Message resolves a message handle.
func (s *Service) Message(caller resource.Identity, h resource.Handle) (*Message, error) {
	return s.messages.Read(h, caller)
}

// MessageSize returns the length of a message.
func (s *Service) MessageSize(caller resource.Identity, h resource.Handle) (int, error) {
	m, err := s.messages.Read(h, caller)
	if err != nil {
		return 0, err
	}
	return m.Size(), nil
}

// MessageCopyOut copies the first n bytes of a message into dst. Asking for
// more than the message size or more than dst can hold is an error; nothing
// is truncated or padded.
func (s *Service) MessageCopyOut(caller resource.Identity, h resource.Handle, dst []byte, n int) error {
	m, err := s.messages.Read(h, caller)
	if err != nil {
		return err
	}
	if n < 0 {
		return errors.InvalidInput(errors.PhaseHost, "negative length")
	}
	if size := m.Size(); n > size {
		return errors.OutOfBounds(errors.PhaseHost, n, size)
	}
	if n > len(dst) {
		return errors.OutOfBounds(errors.PhaseHost, n, len(dst))
	}
	if !m.CopyTo(dst, n) {
		return errors.InvalidHandle(MessageTypeName, uint32(h), "message released")
	}
	return nil
}

// MessageBytes returns a copy of a message's data.
func (s *Service) MessageBytes(caller resource.Identity, h resource.Handle) ([]byte, error) {
	m, err := s.messages.Read(h, caller)
	if err != nil {
		return nil, err
	}
	return m.Bytes(), nil
}

// DestroyMessage destroys a message handle, releasing its buffer.
func (s *Service) DestroyMessage(caller resource.Identity, h resource.Handle) error {
	s.log.Debug("message_close", zap.Stringer("message", h))
	return s.messages.Destroy(h, caller)
}
