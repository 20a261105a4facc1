package messaging

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-zmq/errors"
	"github.com/wippyai/wasm-zmq/resource"
	"github.com/wippyai/wasm-zmq/transport"
)

// Resource type names registered by New.
const (
	SocketTypeName  = "ZMQSocket"
	MessageTypeName = "ZMQMessage"
)

// Service implements the socket and message operations exposed to host
// contexts. Every operation takes the calling context's identity and
// resolves its handles through the registry first.
type Service struct {
	reg      *resource.Registry
	tctx     transport.Context
	log      *zap.Logger
	sockets  resource.Typed[*Socket]
	messages resource.Typed[*Message]
	owner    resource.Identity
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// New registers the ZMQSocket and ZMQMessage types on reg, owned by owner,
// and returns a service creating endpoints from tctx.
func New(reg *resource.Registry, tctx transport.Context, owner resource.Identity, opts ...Option) (*Service, error) {
	if reg == nil {
		return nil, errors.NotInitialized(errors.PhaseLifecycle, "registry")
	}
	if tctx == nil {
		return nil, errors.NotInitialized(errors.PhaseLifecycle, "transport context")
	}

	s := &Service{
		reg:   reg,
		tctx:  tctx,
		owner: owner,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	socketType, err := reg.CreateType(SocketTypeName, s.destroySocket, owner)
	if err != nil {
		return nil, err
	}
	// messages have no destructor of their own; Message.Drop releases them
	messageType, err := reg.CreateType(MessageTypeName, nil, owner)
	if err != nil {
		return nil, multierr.Append(err, reg.RemoveType(socketType, owner))
	}

	s.sockets = resource.NewTyped[*Socket](reg, socketType)
	s.messages = resource.NewTyped[*Message](reg, messageType)
	return s, nil
}

func (s *Service) destroySocket(v any) {
	sock, ok := v.(*Socket)
	if !ok {
		return
	}
	if err := sock.close(); err != nil {
		s.log.Debug("socket close failed", zap.Error(err))
	}
}

// SocketType returns the ZMQSocket type tag.
func (s *Service) SocketType() resource.TypeTag { return s.sockets.Tag() }

// MessageType returns the ZMQMessage type tag.
func (s *Service) MessageType() resource.TypeTag { return s.messages.Tag() }

// Sockets returns the number of live socket handles.
func (s *Service) Sockets() int { return s.sockets.Len() }

// Messages returns the number of live message handles.
func (s *Service) Messages() int { return s.messages.Len() }

// RemoveTypes destroys every message handle, then every socket handle, and
// retires both types.
func (s *Service) RemoveTypes() error {
	return multierr.Append(
		s.reg.RemoveType(s.messages.Tag(), s.owner),
		s.reg.RemoveType(s.sockets.Tag(), s.owner),
	)
}

func transportErr(op string, err error) error {
	return errors.Transport(op, transport.Wrap(op, err))
}
