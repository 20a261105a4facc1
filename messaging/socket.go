package messaging

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-zmq/errors"
	"github.com/wippyai/wasm-zmq/resource"
	"github.com/wippyai/wasm-zmq/transport"
)

// CreateSocket creates an endpoint of the given domain with linger 0 and
// registers it for caller.
func (s *Service) CreateSocket(caller resource.Identity, domain transport.Domain) (resource.Handle, error) {
	ep, err := s.tctx.NewEndpoint(domain)
	if err != nil {
		return 0, transportErr("create_socket", err)
	}

	// pending messages are discarded on close so teardown never waits on peers
	if err := ep.SetOption(transport.OptLinger, transport.EncodeCell(0)); err != nil {
		_ = ep.Close()
		return 0, transportErr("create_socket", err)
	}

	h, err := s.sockets.Create(newSocket(ep), caller, s.owner)
	if err != nil {
		_ = ep.Close()
		return 0, err
	}

	s.log.Debug("create_socket", zap.Stringer("socket", h), zap.Stringer("domain", domain))
	return h, nil
}

// Socket resolves a socket handle.
func (s *Service) Socket(caller resource.Identity, h resource.Handle) (*Socket, error) {
	return s.sockets.Read(h, caller)
}

// Connect connects the socket to endpoint.
func (s *Service) Connect(caller resource.Identity, h resource.Handle, endpoint string) error {
	sock, err := s.sockets.Read(h, caller)
	if err != nil {
		return err
	}
	s.log.Debug("socket_connect", zap.Stringer("socket", h), zap.String("endpoint", endpoint))

	if err := sock.ep.Connect(endpoint); err != nil {
		return transportErr("socket_connect", err)
	}
	return nil
}

// Bind binds the socket to endpoint.
func (s *Service) Bind(caller resource.Identity, h resource.Handle, endpoint string) error {
	sock, err := s.sockets.Read(h, caller)
	if err != nil {
		return err
	}
	s.log.Debug("socket_bind", zap.Stringer("socket", h), zap.String("endpoint", endpoint))

	if err := sock.ep.Bind(endpoint); err != nil {
		return transportErr("socket_bind", err)
	}
	return nil
}

// Subscribe adds a subscription filter. An empty filter matches everything.
func (s *Service) Subscribe(caller resource.Identity, h resource.Handle, filter []byte) error {
	return s.setOption("socket_subscribe", caller, h, transport.OptSubscribe, filter)
}

// Unsubscribe removes a subscription filter.
func (s *Service) Unsubscribe(caller resource.Identity, h resource.Handle, filter []byte) error {
	return s.setOption("socket_unsubscribe", caller, h, transport.OptUnsubscribe, filter)
}

// SetOption passes an option through to the transport. Fixed-size options
// take the first transport.CellSize bytes of value.
func (s *Service) SetOption(caller resource.Identity, h resource.Handle, opt transport.Option, value []byte) error {
	return s.setOption("socket_setopt", caller, h, opt, value)
}

func (s *Service) setOption(op string, caller resource.Identity, h resource.Handle, opt transport.Option, value []byte) error {
	sock, err := s.sockets.Read(h, caller)
	if err != nil {
		return err
	}
	if n := transport.OptionLen(opt, len(value)); n < len(value) {
		value = value[:n]
	}
	s.log.Debug(op, zap.Stringer("socket", h), zap.Int32("option", int32(opt)), zap.Int("len", len(value)))

	if err := sock.ep.SetOption(opt, value); err != nil {
		return transportErr(op, err)
	}
	return nil
}

// GetOption reads an option. size bounds variable-length values; fixed-size
// values are always transport.CellSize bytes.
func (s *Service) GetOption(caller resource.Identity, h resource.Handle, opt transport.Option, size int) ([]byte, error) {
	sock, err := s.sockets.Read(h, caller)
	if err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, errors.InvalidInput(errors.PhaseHost, "negative option size")
	}
	s.log.Debug("socket_getopt", zap.Stringer("socket", h), zap.Int32("option", int32(opt)))

	v, err := sock.ep.GetOption(opt, transport.OptionLen(opt, size))
	if err != nil {
		return nil, transportErr("socket_getopt", err)
	}
	return v, nil
}

// Send sends the bytes of a message. The message handle is left untouched
// and remains independently destroyable.
func (s *Service) Send(caller resource.Identity, h, msg resource.Handle, flags transport.Flag) error {
	sock, err := s.sockets.Read(h, caller)
	if err != nil {
		return err
	}
	m, err := s.messages.Read(msg, caller)
	if err != nil {
		return err
	}
	s.log.Debug("socket_send", zap.Stringer("socket", h), zap.Stringer("message", msg), zap.Int32("flags", int32(flags)))

	if err := sock.ep.Send(m.view(), flags); err != nil {
		return transportErr("socket_send", err)
	}
	return nil
}

// SendBytes sends data without creating a message handle.
func (s *Service) SendBytes(caller resource.Identity, h resource.Handle, data []byte, flags transport.Flag) error {
	sock, err := s.sockets.Read(h, caller)
	if err != nil {
		return err
	}
	if err := sock.ep.Send(data, flags); err != nil {
		return transportErr("socket_send", err)
	}
	return nil
}

// Recv receives one frame into a new message owned by caller.
func (s *Service) Recv(caller resource.Identity, h resource.Handle, flags transport.Flag) (resource.Handle, error) {
	sock, err := s.sockets.Read(h, caller)
	if err != nil {
		return 0, err
	}
	s.log.Debug("socket_recv", zap.Stringer("socket", h), zap.Int32("flags", int32(flags)))

	data, err := sock.ep.Recv(flags)
	if err != nil {
		return 0, transportErr("socket_recv", err)
	}
	return s.AdoptMessage(caller, data)
}

// CloseSocket destroys a socket handle, closing its endpoint.
func (s *Service) CloseSocket(caller resource.Identity, h resource.Handle) error {
	s.log.Debug("socket_close", zap.Stringer("socket", h))
	return s.sockets.Destroy(h, caller)
}
