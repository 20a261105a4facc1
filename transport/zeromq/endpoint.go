package zeromq

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/wippyai/wasm-zmq/transport"
)

const (
	einval = unix.EINVAL

	defaultHWM     = 1000
	maxIdentityLen = 255
)

// Endpoint is a transport.Endpoint over one zmq4 socket. Incoming messages
// are pumped into a Mailbox by a goroutine so that readiness can be selected
// on; sends are serialized.
type Endpoint struct {
	ctx     *Context
	sock    zmq4.Socket
	log     *zap.Logger
	mailbox *transport.Mailbox
	reqGate chan struct{}

	identity []byte
	subs     [][]byte
	pending  [][]byte

	domain  transport.Domain
	linger  int32
	hwm     int32
	rcvMore atomic.Bool
	closed  atomic.Bool

	mu        sync.Mutex
	sendMu    sync.Mutex
	closeOnce sync.Once
}

func newEndpoint(c *Context, domain transport.Domain) *Endpoint {
	return &Endpoint{
		ctx:     c,
		domain:  domain,
		log:     c.log.With(zap.Stringer("domain", domain)),
		mailbox: transport.NewMailbox(),
		reqGate: make(chan struct{}, 1),
		linger:  -1,
		hwm:     defaultHWM,
	}
}

// Domain returns the socket type.
func (e *Endpoint) Domain() transport.Domain { return e.domain }

// ensure returns the zmq4 socket, building it on first use.
func (e *Endpoint) ensure(op string) (zmq4.Socket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return nil, transport.Wrap(op, transport.ErrClosedEndpoint)
	}
	if e.sock != nil {
		return e.sock, nil
	}

	var opts []zmq4.Option
	if len(e.identity) > 0 {
		opts = append(opts, zmq4.WithID(zmq4.SocketIdentity(e.identity)))
	}
	sock := e.ctx.socket(e.domain, opts...)
	if sock == nil {
		return nil, transport.Errnof(op, einval, "invalid socket type %d", int32(e.domain))
	}

	for _, sub := range e.subs {
		if err := sock.SetOption(zmq4.OptionSubscribe, string(sub)); err != nil {
			_ = sock.Close()
			return nil, transport.Wrap(op, err)
		}
	}
	if e.hwm != defaultHWM {
		if err := sock.SetOption(zmq4.OptionHWM, int(e.hwm)); err != nil {
			e.log.Debug("high water mark not applied", zap.Error(err))
		}
	}

	e.sock = sock
	if e.domain.CanRecv() {
		go e.pump(sock)
	}
	return sock, nil
}

// pump moves received messages into the mailbox until the endpoint closes.
// A REQ socket only reads after a request has been sent.
func (e *Endpoint) pump(sock zmq4.Socket) {
	done := e.mailbox.Done()
	for {
		if e.domain == transport.Req {
			select {
			case <-e.reqGate:
			case <-done:
				return
			}
		}

		msg, err := sock.Recv()
		if err != nil {
			if e.closed.Load() || e.ctx.ctx.Err() != nil {
				return
			}
			e.log.Debug("receive failed", zap.Error(err))
			select {
			case <-done:
				return
			case <-e.ctx.ctx.Done():
				return
			case <-time.After(e.ctx.dialRetry):
			}
			continue
		}

		if !e.mailbox.PutMessage(msg.Frames) {
			return
		}
	}
}

// Connect connects the socket to a remote endpoint.
func (e *Endpoint) Connect(addr string) error {
	sock, err := e.ensure("connect")
	if err != nil {
		return err
	}
	if err := sock.Dial(addr); err != nil {
		return transport.Wrap("connect", err)
	}
	e.log.Debug("connected", zap.String("addr", addr))
	return nil
}

// Bind listens on a local endpoint.
func (e *Endpoint) Bind(addr string) error {
	sock, err := e.ensure("bind")
	if err != nil {
		return err
	}
	if err := sock.Listen(addr); err != nil {
		return transport.Wrap("bind", err)
	}
	e.log.Debug("bound", zap.String("addr", addr))
	return nil
}

// SetOption sets a socket option.
func (e *Endpoint) SetOption(opt transport.Option, value []byte) error {
	const op = "setsockopt"
	if e.closed.Load() {
		return transport.Wrap(op, transport.ErrClosedEndpoint)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch opt {
	case transport.OptIdentity:
		if len(value) > maxIdentityLen {
			return transport.Errnof(op, einval, "identity longer than %d bytes", maxIdentityLen)
		}
		if e.sock != nil {
			return transport.Errnof(op, einval, "identity must be set before the first connect, bind or send")
		}
		e.identity = bytes.Clone(value)
		return nil

	case transport.OptSubscribe, transport.OptUnsubscribe:
		if e.domain != transport.Sub && e.domain != transport.XSub {
			return transport.InvalidOption(op, opt)
		}
		name := zmq4.OptionSubscribe
		if opt == transport.OptSubscribe {
			e.subs = append(e.subs, bytes.Clone(value))
		} else {
			name = zmq4.OptionUnsubscribe
			e.subs = removeFirst(e.subs, value)
		}
		if e.sock != nil {
			if err := e.sock.SetOption(name, string(value)); err != nil {
				return transport.Wrap(op, err)
			}
		}
		return nil

	case transport.OptLinger:
		v, ok := transport.DecodeCell(value)
		if !ok {
			return transport.Errnof(op, einval, "linger needs %d bytes", transport.CellSize)
		}
		e.linger = v
		return nil

	case transport.OptSndHWM, transport.OptRcvHWM:
		v, ok := transport.DecodeCell(value)
		if !ok || v < 0 {
			return transport.Errnof(op, einval, "invalid high water mark")
		}
		e.hwm = v
		if e.sock != nil {
			if err := e.sock.SetOption(zmq4.OptionHWM, int(v)); err != nil {
				return transport.Wrap(op, err)
			}
		}
		return nil
	}
	return transport.InvalidOption(op, opt)
}

// GetOption reads a socket option into at most size bytes.
func (e *Endpoint) GetOption(opt transport.Option, size int) ([]byte, error) {
	const op = "getsockopt"
	if e.closed.Load() {
		return nil, transport.Wrap(op, transport.ErrClosedEndpoint)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var v int32
	switch opt {
	case transport.OptIdentity:
		if size < len(e.identity) {
			return nil, transport.Errnof(op, einval, "identity needs %d bytes", len(e.identity))
		}
		return bytes.Clone(e.identity), nil
	case transport.OptRcvMore:
		if e.rcvMore.Load() {
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
		return nil, transport.Errnof(op, einval, "option needs %d bytes", transport.CellSize)
	}
	return transport.EncodeCell(v), nil
}

// Send sends one frame. With SndMore the frame is held until the final
// frame of the message is sent. If sending the final frame fails the held
// frames are kept, so retrying the final frame sends the whole message.
func (e *Endpoint) Send(frame []byte, flags transport.Flag) error {
	if !e.domain.CanSend() {
		return transport.Unsupported("send", e.domain)
	}

	e.sendMu.Lock()
	defer e.sendMu.Unlock()

	if e.closed.Load() {
		return transport.Wrap("send", transport.ErrClosedEndpoint)
	}
	if flags&transport.SndMore != 0 {
		e.pending = append(e.pending, bytes.Clone(frame))
		return nil
	}

	frames := make([][]byte, 0, len(e.pending)+1)
	frames = append(frames, e.pending...)
	frames = append(frames, bytes.Clone(frame))

	sock, err := e.ensure("send")
	if err != nil {
		return err
	}

	msg := zmq4.NewMsgFrom(frames...)
	if len(frames) == 1 {
		err = sock.Send(msg)
	} else {
		err = sock.SendMulti(msg)
	}
	if err != nil {
		serr := *transport.Wrap("send", err)
		if len(e.pending) > 0 {
			serr.Reason += fmt.Sprintf(" (%d queued frames kept for retry)", len(e.pending))
		}
		return &serr
	}
	e.pending = nil

	if e.domain == transport.Req {
		select {
		case e.reqGate <- struct{}{}:
		default:
		}
	}
	return nil
}

// Recv receives one frame. With DontWait it fails with EAGAIN when nothing
// is queued; otherwise it blocks until a frame arrives or the endpoint closes.
func (e *Endpoint) Recv(flags transport.Flag) ([]byte, error) {
	if !e.domain.CanRecv() {
		return nil, transport.Unsupported("recv", e.domain)
	}

	var (
		f  transport.Frame
		ok bool
	)
	if flags&transport.DontWait != 0 {
		f, ok = e.mailbox.Take()
		if !ok {
			if e.closed.Load() {
				return nil, transport.Wrap("recv", transport.ErrClosedEndpoint)
			}
			return nil, transport.ErrAgain
		}
	} else {
		f, ok = e.mailbox.Wait()
		if !ok {
			return nil, transport.Wrap("recv", transport.ErrClosedEndpoint)
		}
	}

	e.rcvMore.Store(f.More)
	return f.Data, nil
}

// Ready returns the receive readiness channel.
func (e *Endpoint) Ready() <-chan struct{} {
	return e.mailbox.Ready()
}

// Close closes the socket, discarding anything unsent or unread.
func (e *Endpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.mailbox.Close()

		e.mu.Lock()
		sock := e.sock
		e.mu.Unlock()

		if sock != nil {
			if cerr := sock.Close(); cerr != nil {
				err = transport.Wrap("close", cerr)
			}
		}
		e.ctx.forget(e)
	})
	return err
}

func removeFirst(list [][]byte, v []byte) [][]byte {
	for i, s := range list {
		if bytes.Equal(s, v) {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
