// Package transporttest provides a deterministic in-memory transport for
// tests. Endpoints connected through one Context exchange frames directly;
// PUB sockets fan out to matching SUB peers, every other domain delivers to
// its peers round-robin.
package transporttest

import (
	"bytes"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/wippyai/wasm-zmq/transport"
)

// Context is an in-memory transport.Context.
type Context struct {
	bound     map[string]*Endpoint
	endpoints map[*Endpoint]struct{}
	faults    map[string]error
	mu        sync.Mutex
	closed    bool
	created   int
}

// New creates an empty context.
func New() *Context {
	return &Context{
		bound:     make(map[string]*Endpoint),
		endpoints: make(map[*Endpoint]struct{}),
		faults:    make(map[string]error),
	}
}

// FailNext makes the next call of op ("socket", "connect", "bind", "send",
// "recv", "setsockopt", "getsockopt", "close") on any endpoint, or the next
// "term", fail with err.
func (c *Context) FailNext(op string, err error) {
	c.mu.Lock()
	c.faults[op] = err
	c.mu.Unlock()
}

func (c *Context) fault(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.faults[op]; ok {
		delete(c.faults, op)
		return err
	}
	return nil
}

// Open returns the number of endpoints not yet closed.
func (c *Context) Open() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.endpoints)
}

// Created returns the number of endpoints ever created.
func (c *Context) Created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created
}

// Terminated reports whether Term was called.
func (c *Context) Terminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// NewEndpoint implements transport.Context.
func (c *Context) NewEndpoint(domain transport.Domain) (transport.Endpoint, error) {
	if err := c.fault("socket"); err != nil {
		return nil, err
	}
	if !domain.Valid() {
		return nil, transport.Errnof("socket", unix.EINVAL, "invalid socket type %d", int32(domain))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, transport.Wrap("socket", transport.ErrTerminated)
	}

	ep := &Endpoint{
		ctx:     c,
		domain:  domain,
		mailbox: transport.NewMailbox(),
		linger:  -1,
		hwm:     1000,
	}
	c.endpoints[ep] = struct{}{}
	c.created++
	return ep, nil
}

// Term closes every open endpoint.
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

	for _, ep := range open {
		_ = ep.Close()
	}
	return c.fault("term")
}

// Endpoint is an in-memory transport.Endpoint.
type Endpoint struct {
	ctx      *Context
	mailbox  *transport.Mailbox
	peers    []*Endpoint
	addrs    []string
	subs     [][]byte
	pending  [][]byte
	identity []byte
	domain   transport.Domain
	next     int
	linger   int32
	hwm      int32
	mu       sync.Mutex
	rcvMore  bool
	closed   bool
}

// Domain implements transport.Endpoint.
func (e *Endpoint) Domain() transport.Domain { return e.domain }

// Inject queues a message as if a peer had sent it.
func (e *Endpoint) Inject(parts ...[]byte) bool {
	return e.mailbox.PutMessage(parts)
}

// Queued returns the number of frames waiting to be received.
func (e *Endpoint) Queued() int {
	return e.mailbox.Len()
}

// Closed reports whether Close was called.
func (e *Endpoint) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Endpoint) check(op string) error {
	if err := e.ctx.fault(op); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return transport.Wrap(op, transport.ErrClosedEndpoint)
	}
	return nil
}

func validAddr(addr string) bool {
	scheme, rest, ok := strings.Cut(addr, "://")
	if !ok || rest == "" {
		return false
	}
	switch scheme {
	case "inproc", "tcp", "ipc":
		return true
	}
	return false
}

// Bind implements transport.Endpoint.
func (e *Endpoint) Bind(addr string) error {
	if err := e.check("bind"); err != nil {
		return err
	}
	if !validAddr(addr) {
		return transport.Errnof("bind", unix.EINVAL, "invalid endpoint %q", addr)
	}

	e.ctx.mu.Lock()
	defer e.ctx.mu.Unlock()
	if _, ok := e.ctx.bound[addr]; ok {
		return transport.Errno("bind", unix.EADDRINUSE)
	}
	e.ctx.bound[addr] = e

	e.mu.Lock()
	e.addrs = append(e.addrs, addr)
	e.mu.Unlock()
	return nil
}

// Connect implements transport.Endpoint.
func (e *Endpoint) Connect(addr string) error {
	if err := e.check("connect"); err != nil {
		return err
	}
	if !validAddr(addr) {
		return transport.Errnof("connect", unix.EINVAL, "invalid endpoint %q", addr)
	}

	e.ctx.mu.Lock()
	peer, ok := e.ctx.bound[addr]
	e.ctx.mu.Unlock()
	if !ok {
		return transport.Errno("connect", unix.ECONNREFUSED)
	}

	e.mu.Lock()
	e.peers = append(e.peers, peer)
	e.mu.Unlock()

	peer.mu.Lock()
	peer.peers = append(peer.peers, e)
	peer.mu.Unlock()
	return nil
}

// SetOption implements transport.Endpoint.
func (e *Endpoint) SetOption(opt transport.Option, value []byte) error {
	const op = "setsockopt"
	if err := e.check(op); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch opt {
	case transport.OptIdentity:
		e.identity = bytes.Clone(value)
	case transport.OptSubscribe:
		if e.domain != transport.Sub && e.domain != transport.XSub {
			return transport.InvalidOption(op, opt)
		}
		e.subs = append(e.subs, bytes.Clone(value))
	case transport.OptUnsubscribe:
		if e.domain != transport.Sub && e.domain != transport.XSub {
			return transport.InvalidOption(op, opt)
		}
		for i, s := range e.subs {
			if bytes.Equal(s, value) {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				break
			}
		}
	case transport.OptLinger, transport.OptSndHWM, transport.OptRcvHWM:
		v, ok := transport.DecodeCell(value)
		if !ok {
			return transport.Errnof(op, unix.EINVAL, "option needs %d bytes", transport.CellSize)
		}
		if opt == transport.OptLinger {
			e.linger = v
		} else {
			e.hwm = v
		}
	default:
		return transport.InvalidOption(op, opt)
	}
	return nil
}

// GetOption implements transport.Endpoint.
func (e *Endpoint) GetOption(opt transport.Option, size int) ([]byte, error) {
	const op = "getsockopt"
	if err := e.check(op); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var v int32
	switch opt {
	case transport.OptIdentity:
		if size < len(e.identity) {
			return nil, transport.Errnof(op, unix.EINVAL, "identity needs %d bytes", len(e.identity))
		}
		return bytes.Clone(e.identity), nil
	case transport.OptRcvMore:
		if e.rcvMore {
			v = 1
		}
	case transport.OptLinger:
		v = e.linger
	case transport.OptSndHWM, transport.OptRcvHWM:
		v = e.hwm
	default:
		return nil, transport.InvalidOption(op, opt)
	}
	if size < transport.CellSize {
		return nil, transport.Errnof(op, unix.EINVAL, "option needs %d bytes", transport.CellSize)
	}
	return transport.EncodeCell(v), nil
}

func (e *Endpoint) accepts(topic []byte) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}
	if e.domain != transport.Sub && e.domain != transport.XSub {
		return true
	}
	for _, s := range e.subs {
		if bytes.HasPrefix(topic, s) {
			return true
		}
	}
	return false
}

// Send implements transport.Endpoint.
func (e *Endpoint) Send(frame []byte, flags transport.Flag) error {
	if !e.domain.CanSend() {
		return transport.Unsupported("send", e.domain)
	}
	if err := e.check("send"); err != nil {
		return err
	}

	e.mu.Lock()
	if flags&transport.SndMore != 0 {
		e.pending = append(e.pending, bytes.Clone(frame))
		e.mu.Unlock()
		return nil
	}
	parts := append(e.pending, bytes.Clone(frame))
	e.pending = nil
	peers := append([]*Endpoint(nil), e.peers...)
	start := e.next
	e.next++
	e.mu.Unlock()

	if e.domain == transport.Pub || e.domain == transport.XPub {
		for _, p := range peers {
			if p.accepts(parts[0]) {
				p.mailbox.PutMessage(parts)
			}
		}
		return nil
	}

	for i := range peers {
		p := peers[(start+i)%len(peers)]
		if p.accepts(parts[0]) && p.mailbox.PutMessage(parts) {
			return nil
		}
	}
	return transport.Errnof("send", unix.EAGAIN, "no peer connected")
}

// Recv implements transport.Endpoint.
func (e *Endpoint) Recv(flags transport.Flag) ([]byte, error) {
	if !e.domain.CanRecv() {
		return nil, transport.Unsupported("recv", e.domain)
	}
	if err := e.check("recv"); err != nil {
		return nil, err
	}

	var (
		f  transport.Frame
		ok bool
	)
	if flags&transport.DontWait != 0 {
		if f, ok = e.mailbox.Take(); !ok {
			return nil, transport.ErrAgain
		}
	} else if f, ok = e.mailbox.Wait(); !ok {
		return nil, transport.Wrap("recv", transport.ErrClosedEndpoint)
	}

	e.mu.Lock()
	e.rcvMore = f.More
	e.mu.Unlock()
	return f.Data, nil
}

// Ready implements transport.Endpoint.
func (e *Endpoint) Ready() <-chan struct{} {
	return e.mailbox.Ready()
}

// Close implements transport.Endpoint. Idempotent.
func (e *Endpoint) Close() error {
	if err := e.ctx.fault("close"); err != nil {
		return err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	addrs := e.addrs
	peers := e.peers
	e.peers = nil
	e.mu.Unlock()

	e.mailbox.Close()

	for _, p := range peers {
		p.mu.Lock()
		for i, q := range p.peers {
			if q == e {
				p.peers = append(p.peers[:i], p.peers[i+1:]...)
				break
			}
		}
		p.mu.Unlock()
	}

	e.ctx.mu.Lock()
	for _, a := range addrs {
		if e.ctx.bound[a] == e {
			delete(e.ctx.bound, a)
		}
	}
	delete(e.ctx.endpoints, e)
	e.ctx.mu.Unlock()
	return nil
}

var (
	_ transport.Context  = (*Context)(nil)
	_ transport.Endpoint = (*Endpoint)(nil)
)
