package zeromq

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-zmq/transport"
)

// DefaultDialRetry is the delay between connection attempts.
const DefaultDialRetry = 100 * time.Millisecond

// Context is a transport.Context backed by pure-Go ZeroMQ sockets.
type Context struct {
	ctx       context.Context
	cancel    context.CancelFunc
	log       *zap.Logger
	stdlog    *log.Logger
	endpoints map[*Endpoint]struct{}
	dialRetry time.Duration
	mu        sync.Mutex
	closed    bool
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the context's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Context) {
		if l != nil {
			c.log = l
		}
	}
}

// WithDialRetry sets the delay between connection attempts.
func WithDialRetry(d time.Duration) Option {
	return func(c *Context) {
		if d > 0 {
			c.dialRetry = d
		}
	}
}

// New creates a transport context.
func New(opts ...Option) *Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Context{
		ctx:       ctx,
		cancel:    cancel,
		log:       Logger(),
		endpoints: make(map[*Endpoint]struct{}),
		dialRetry: DefaultDialRetry,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stdlog = zap.NewStdLog(c.log.Named("zmq4"))
	return c
}

// NewEndpoint creates a socket of the given domain. The underlying zmq4
// socket is built on the first Connect, Bind or Send so that IDENTITY set
// beforehand takes effect.
func (c *Context) NewEndpoint(domain transport.Domain) (transport.Endpoint, error) {
	if !domain.Valid() {
		return nil, transport.Errnof("socket", einval, "invalid socket type %d", int32(domain))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, transport.Wrap("socket", transport.ErrTerminated)
	}

	ep := newEndpoint(c, domain)
	c.endpoints[ep] = struct{}{}
	c.log.Debug("endpoint created", zap.Stringer("domain", domain))
	return ep, nil
}

func (c *Context) forget(ep *Endpoint) {
	c.mu.Lock()
	delete(c.endpoints, ep)
	c.mu.Unlock()
}

// Term closes every endpoint still open. Idempotent.
func (c *Context) Term() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	open := make([]*Endpoint, 0, len(c.endpoints))
	for ep := range c.endpoints {
		open = append(open, ep)
	}
	c.mu.Unlock()

	var err error
	for _, ep := range open {
		err = multierr.Append(err, ep.Close())
	}
	c.cancel()

	if len(open) > 0 {
		c.log.Debug("context terminated", zap.Int("closed_endpoints", len(open)))
	}
	return err
}

func (c *Context) socket(domain transport.Domain, opts ...zmq4.Option) zmq4.Socket {
	opts = append(opts, zmq4.WithLogger(c.stdlog), zmq4.WithDialerRetry(c.dialRetry))

	switch domain {
	case transport.Pair:
		return zmq4.NewPair(c.ctx, opts...)
	case transport.Pub:
		return zmq4.NewPub(c.ctx, opts...)
	case transport.Sub:
		return zmq4.NewSub(c.ctx, opts...)
	case transport.Req:
		return zmq4.NewReq(c.ctx, opts...)
	case transport.Rep:
		return zmq4.NewRep(c.ctx, opts...)
	case transport.Dealer:
		return zmq4.NewDealer(c.ctx, opts...)
	case transport.Router:
		return zmq4.NewRouter(c.ctx, opts...)
	case transport.Pull:
		return zmq4.NewPull(c.ctx, opts...)
	case transport.Push:
		return zmq4.NewPush(c.ctx, opts...)
	case transport.XPub:
		return zmq4.NewXPub(c.ctx, opts...)
	case transport.XSub:
		return zmq4.NewXSub(c.ctx, opts...)
	}
	return nil
}
