package wasmhost

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-zmq/errors"
	"github.com/wippyai/wasm-zmq/messaging"
	"github.com/wippyai/wasm-zmq/resource"
	"github.com/wippyai/wasm-zmq/transport"
)

const (
	ok     int32 = 1
	failed int32 = -1
)

// Guest is one guest module instance acting as a host context. Its
// methods implement the natives; each records the error of a failed call
// for LastError.
type Guest struct {
	host     *Host
	mod      api.Module
	log      *zap.Logger
	lastErr  string
	id       resource.Identity
	mu       sync.Mutex
	released atomic.Bool
}

// Identity returns the guest's context identity.
func (g *Guest) Identity() resource.Identity { return g.id }

// Module returns the guest module instance.
func (g *Guest) Module() api.Module { return g.mod }

// LastError returns the text of the most recent failure.
func (g *Guest) LastError() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastErr
}

func (g *Guest) fail(op string, err error) int32 {
	g.mu.Lock()
	g.lastErr = err.Error()
	g.mu.Unlock()
	g.host.ext.Metrics().ObserveNativeError(op)
	g.log.Debug(op+" failed", zap.Error(err))
	return failed
}

func (g *Guest) svc() *messaging.Service { return g.host.ext.Messaging() }

func (g *Guest) memory() memory { return memory{mem: g.mod.Memory()} }

// CreateSocket implements create_socket. It returns 0 on failure.
func (g *Guest) CreateSocket(domain int32) uint32 {
	h, err := g.svc().CreateSocket(g.id, transport.Domain(domain))
	if err != nil {
		g.fail("create_socket", err)
		return 0
	}
	return uint32(h)
}

func (g *Guest) withString(op string, ptr, n uint32, fn func(string) error) int32 {
	s, err := g.memory().readString(op, ptr, n)
	if err != nil {
		return g.fail(op, err)
	}
	if err := fn(s); err != nil {
		return g.fail(op, err)
	}
	return ok
}

// Connect implements socket_connect.
func (g *Guest) Connect(socket, ptr, n uint32) int32 {
	return g.withString("socket_connect", ptr, n, func(endpoint string) error {
		return g.svc().Connect(g.id, resource.Handle(socket), endpoint)
	})
}

// Bind implements socket_bind.
func (g *Guest) Bind(socket, ptr, n uint32) int32 {
	return g.withString("socket_bind", ptr, n, func(endpoint string) error {
		return g.svc().Bind(g.id, resource.Handle(socket), endpoint)
	})
}

// Subscribe implements socket_subscribe.
func (g *Guest) Subscribe(socket, ptr, n uint32) int32 {
	return g.withString("socket_subscribe", ptr, n, func(filter string) error {
		return g.svc().Subscribe(g.id, resource.Handle(socket), []byte(filter))
	})
}

// Unsubscribe implements socket_unsubscribe.
func (g *Guest) Unsubscribe(socket, ptr, n uint32) int32 {
	return g.withString("socket_unsubscribe", ptr, n, func(filter string) error {
		return g.svc().Unsubscribe(g.id, resource.Handle(socket), []byte(filter))
	})
}

// SetOption implements socket_setopt. Fixed-size options read one cell
// regardless of n.
func (g *Guest) SetOption(socket uint32, opt int32, ptr, n uint32) int32 {
	const op = "socket_setopt"
	o := transport.Option(opt)
	value, err := g.memory().read(op, ptr, uint32(transport.OptionLen(o, int(n))))
	if err != nil {
		return g.fail(op, err)
	}
	if err := g.svc().SetOption(g.id, resource.Handle(socket), o, value); err != nil {
		return g.fail(op, err)
	}
	return ok
}

// GetOption implements socket_getopt and returns the number of bytes
// written.
func (g *Guest) GetOption(socket uint32, opt int32, ptr, capacity uint32) int32 {
	const op = "socket_getopt"
	value, err := g.svc().GetOption(g.id, resource.Handle(socket), transport.Option(opt), int(capacity))
	if err != nil {
		return g.fail(op, err)
	}
	if err := g.memory().write(op, ptr, value); err != nil {
		return g.fail(op, err)
	}
	return int32(len(value))
}

// Send implements socket_send.
func (g *Guest) Send(socket, message uint32, flags int32) int32 {
	err := g.svc().Send(g.id, resource.Handle(socket), resource.Handle(message), transport.Flag(flags))
	if err != nil {
		return g.fail("socket_send", err)
	}
	return ok
}

// Recv implements socket_recv. It returns 0 on failure.
func (g *Guest) Recv(socket uint32, flags int32) uint32 {
	h, err := g.svc().Recv(g.id, resource.Handle(socket), transport.Flag(flags))
	if err != nil {
		g.fail("socket_recv", err)
		return 0
	}
	return uint32(h)
}

// Poll implements socket_poll. A negative timeout waits until data
// arrives or the extension unloads.
func (g *Guest) Poll(socket, callback uint32, timeoutMs int32) int32 {
	const op = "socket_poll"
	if g.mod.ExportedFunction(PollExport) == nil {
		return g.fail(op, errors.New(errors.PhaseHost, errors.KindNotInitialized).
			Op(op).
			Detail("guest does not export %s", PollExport).
			Build())
	}

	timeout := time.Duration(-1)
	if timeoutMs >= 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	cb := func(ctx context.Context, ready bool, message resource.Handle) {
		g.onPoll(ctx, callback, ready, message)
	}
	if err := g.host.ext.Poll(g.id, resource.Handle(socket), cb, timeout); err != nil {
		return g.fail(op, err)
	}
	return ok
}

// onPoll hands a completion to the guest. It runs on the dispatching
// goroutine. Messages the guest can no longer receive are destroyed.
func (g *Guest) onPoll(ctx context.Context, callback uint32, ready bool, message resource.Handle) {
	fn := g.mod.ExportedFunction(PollExport)
	if g.released.Load() || g.mod.IsClosed() || fn == nil {
		if ready {
			_ = g.svc().DestroyMessage(g.host.ext.Identity(), message)
		}
		g.log.Debug("poll completion dropped", zap.Uint32("callback", callback))
		return
	}

	var flag uint32
	if ready {
		flag = 1
	}
	if _, err := fn.Call(ctx, api.EncodeU32(callback), api.EncodeU32(flag), api.EncodeU32(uint32(message))); err != nil {
		g.log.Warn("poll callback failed", zap.Uint32("callback", callback), zap.Error(err))
	}
}

// Close implements socket_close.
func (g *Guest) Close(socket uint32) int32 {
	if err := g.svc().CloseSocket(g.id, resource.Handle(socket)); err != nil {
		return g.fail("socket_close", err)
	}
	return ok
}

// CreateMessage implements create_message. It returns 0 on failure.
func (g *Guest) CreateMessage(ptr, n uint32) uint32 {
	const op = "create_message"
	data, err := g.memory().read(op, ptr, n)
	if err != nil {
		g.fail(op, err)
		return 0
	}
	h, err := g.svc().AdoptMessage(g.id, data)
	if err != nil {
		g.fail(op, err)
		return 0
	}
	return uint32(h)
}

// MessageSize implements message_size.
func (g *Guest) MessageSize(message uint32) int32 {
	n, err := g.svc().MessageSize(g.id, resource.Handle(message))
	if err != nil {
		return g.fail("message_size", err)
	}
	return int32(n)
}

// MessageData implements message_data, copying the first n bytes of the
// message to ptr.
func (g *Guest) MessageData(message, ptr uint32, n int32) int32 {
	const op = "message_data"
	if n < 0 {
		return g.fail(op, errors.InvalidInput(errors.PhaseHost, "negative length"))
	}
	size, err := g.svc().MessageSize(g.id, resource.Handle(message))
	if err != nil {
		return g.fail(op, err)
	}
	if int(n) > size {
		return g.fail(op, errors.OutOfBounds(errors.PhaseHost, int(n), size))
	}
	buf := make([]byte, n)
	if err := g.svc().MessageCopyOut(g.id, resource.Handle(message), buf, int(n)); err != nil {
		return g.fail(op, err)
	}
	if err := g.memory().write(op, ptr, buf); err != nil {
		return g.fail(op, err)
	}
	return ok
}

// MessageClose implements message_close.
func (g *Guest) MessageClose(message uint32) int32 {
	if err := g.svc().DestroyMessage(g.id, resource.Handle(message)); err != nil {
		return g.fail("message_close", err)
	}
	return ok
}

// CopyLastError implements last_error. It writes at most capacity bytes of
// the error text to ptr and returns the full length.
func (g *Guest) CopyLastError(ptr, capacity uint32) int32 {
	msg := g.LastError()
	n := uint32(len(msg))
	if n > capacity {
		n = capacity
	}
	if n > 0 {
		if err := g.memory().write("last_error", ptr, []byte(msg[:n])); err != nil {
			g.log.Debug("last_error failed", zap.Error(err))
			return failed
		}
	}
	return int32(len(msg))
}
