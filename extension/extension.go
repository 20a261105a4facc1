package extension

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-zmq/errors"
	"github.com/wippyai/wasm-zmq/messaging"
	"github.com/wippyai/wasm-zmq/metrics"
	"github.com/wippyai/wasm-zmq/poller"
	"github.com/wippyai/wasm-zmq/resource"
	"github.com/wippyai/wasm-zmq/transport"
	"github.com/wippyai/wasm-zmq/transport/zeromq"
)

// Name identifies the extension in logs and as the owner of its types.
const Name = "smzmq"

// Extension is a loaded messaging extension. All methods are safe for
// concurrent use except Dispatch and Run, which must only be called from
// the host execution context that should receive callbacks.
type Extension struct {
	reg      *resource.Registry
	tctx     transport.Context
	svc      *messaging.Service
	queue    *poller.CompletionQueue
	sup      *poller.Supervisor
	log      *zap.Logger
	metrics  *metrics.Metrics
	promReg  prometheus.Registerer
	contexts map[resource.Identity]string
	id       resource.Identity
	nextID   atomic.Uint32
	mu       sync.RWMutex
	unloaded bool
}

// Load opens a transport context, registers the socket and message types
// and starts the completion machinery.
func Load(opts ...Option) (*Extension, error) {
	cfg := config{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.transport == nil {
		cfg.transport = zeromq.New(zeromq.WithLogger(cfg.log))
	}

	e := &Extension{
		reg:      resource.NewRegistry(resource.WithLimit(cfg.handleLimit)),
		tctx:     cfg.transport,
		queue:    poller.NewCompletionQueue(),
		log:      cfg.log.Named(Name),
		contexts: make(map[resource.Identity]string),
	}
	e.id = e.newIdentity(Name)

	svc, err := messaging.New(e.reg, e.tctx, e.id, messaging.WithLogger(e.log))
	if err != nil {
		return nil, multierr.Combine(
			errors.Wrap(errors.PhaseLifecycle, errors.KindNotInitialized, err, "register resource types"),
			e.reg.Close(),
			e.tctx.Term(),
		)
	}
	e.svc = svc
	e.sup = poller.NewSupervisor(e.queue,
		poller.WithMaxPollers(cfg.maxPollers),
		poller.WithExclusive(cfg.exclusivePoll),
		poller.WithLogger(e.log),
		poller.WithDropHandler(e.dropCompletion),
	)

	if cfg.metrics != nil {
		if err := e.registerMetrics(cfg.metrics); err != nil {
			return nil, multierr.Combine(err, svc.RemoveTypes(), e.reg.Close(), e.tctx.Term())
		}
	}

	e.log.Debug("extension loaded",
		zap.Uint32("socket_type", uint32(svc.SocketType())),
		zap.Uint32("message_type", uint32(svc.MessageType())),
	)
	return e, nil
}

func (e *Extension) registerMetrics(reg prometheus.Registerer) error {
	m := metrics.New()
	m.Gauge("poll", "active", "Pollers currently waiting or delivering", nil,
		func() float64 { return float64(e.sup.Len()) })
	m.Gauge("poll", "queued", "Completions waiting for dispatch", nil,
		func() float64 { return float64(e.queue.Len()) })
	m.Gauge("handles", "live", "Live handles by resource type",
		prometheus.Labels{"type": messaging.SocketTypeName},
		func() float64 { return float64(e.svc.Sockets()) })
	m.Gauge("handles", "live", "Live handles by resource type",
		prometheus.Labels{"type": messaging.MessageTypeName},
		func() float64 { return float64(e.svc.Messages()) })

	if err := m.Register(reg); err != nil {
		return errors.Wrap(errors.PhaseLifecycle, errors.KindNotInitialized, err, "register metrics")
	}
	e.metrics, e.promReg = m, reg
	return nil
}

func (e *Extension) newIdentity(name string) resource.Identity {
	id := resource.Identity(e.nextID.Add(1))
	e.mu.Lock()
	e.contexts[id] = name
	e.mu.Unlock()
	return id
}

// NewContext returns a fresh identity for a host execution context. Handles
// created under it are only visible to it and to the extension.
func (e *Extension) NewContext(name string) resource.Identity {
	id := e.newIdentity(name)
	e.log.Debug("context created", zap.String("name", name), zap.Uint32("id", uint32(id)))
	return id
}

// ContextName returns the name a context was created with.
func (e *Extension) ContextName(id resource.Identity) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	name, ok := e.contexts[id]
	return name, ok
}

// Identity returns the extension's own identity, which owns both types.
func (e *Extension) Identity() resource.Identity { return e.id }

// Messaging returns the socket and message operations.
func (e *Extension) Messaging() *messaging.Service { return e.svc }

// Registry returns the handle registry.
func (e *Extension) Registry() *resource.Registry { return e.reg }

// Supervisor returns the poller supervisor.
func (e *Extension) Supervisor() *poller.Supervisor { return e.sup }

// Queue returns the completion queue drained by Dispatch.
func (e *Extension) Queue() *poller.CompletionQueue { return e.queue }

// Metrics returns the collectors, or nil when Load ran without WithMetrics.
func (e *Extension) Metrics() *metrics.Metrics { return e.metrics }

// Unloaded reports whether Unload has run.
func (e *Extension) Unloaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.unloaded
}

// Poll starts a background wait on socket. When a message arrives, the
// timeout expires or the extension unloads, callback is queued for the
// next Dispatch on the caller's execution context. A negative timeout
// waits indefinitely; zero checks once.
func (e *Extension) Poll(caller resource.Identity, socket resource.Handle, callback poller.Callback, timeout time.Duration) error {
	if e.Unloaded() {
		return errors.Closed(errors.PhasePoll, "extension")
	}
	if callback == nil {
		return errors.InvalidInput(errors.PhasePoll, "nil poll callback")
	}

	sock, err := e.svc.Socket(caller, socket)
	if err != nil {
		return err
	}
	if !sock.Domain().CanRecv() {
		return errors.New(errors.PhasePoll, errors.KindInvalidInput).
			Op("socket_poll").
			Handle(messaging.SocketTypeName, uint32(socket)).
			Detail("%s sockets cannot receive", sock.Domain()).
			Build()
	}

	p, err := poller.New(poller.Config{
		Endpoint: sock.Endpoint(),
		Callback: callback,
		Deliver: func(data []byte) (resource.Handle, error) {
			return e.svc.AdoptMessage(caller, data)
		},
		Logger:  e.log,
		Timeout: timeout,
		Owner:   caller,
	})
	if err != nil {
		return err
	}
	if err := e.sup.Spawn(p); err != nil {
		return err
	}

	e.log.Debug("socket_poll",
		zap.Stringer("socket", socket),
		zap.Uint64("poller", p.ID()),
		zap.Duration("timeout", timeout),
	)
	return nil
}

// Dispatch invokes the callbacks of every queued completion, in completion
// order, on the calling goroutine. It returns the number dispatched.
func (e *Extension) Dispatch(ctx context.Context) int {
	return e.queue.Drain(func(c poller.Completion) {
		e.metrics.ObservePoll(c.Ready)
		c.Callback(ctx, c.Ready, c.Message)
	})
}

// Run dispatches completions as they arrive until ctx ends or the
// extension unloads. It returns ctx.Err() in the first case, nil in the
// second.
func (e *Extension) Run(ctx context.Context) error {
	for {
		select {
		case <-e.queue.Ready():
			e.Dispatch(ctx)
		case <-e.queue.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Unload cancels all pollers and waits for them, destroys undelivered
// messages, retires both resource types, closes the registry and
// terminates the transport context. Later calls return nil.
func (e *Extension) Unload(ctx context.Context) error {
	e.mu.Lock()
	if e.unloaded {
		e.mu.Unlock()
		return nil
	}
	e.unloaded = true
	e.mu.Unlock()

	err := e.sup.ShutdownAll(ctx)

	left := e.queue.Close()
	for _, c := range left {
		e.dropCompletion(c)
	}

	err = multierr.Combine(err,
		e.svc.RemoveTypes(),
		e.reg.Close(),
		e.tctx.Term(),
	)
	if e.promReg != nil {
		e.metrics.Unregister(e.promReg)
	}

	e.log.Debug("extension unloaded", zap.Int("undelivered", len(left)), zap.Error(err))
	return err
}

// dropCompletion releases the message of a completion that will never
// reach its callback.
func (e *Extension) dropCompletion(c poller.Completion) {
	e.metrics.ObserveDrop()
	if !c.Ready {
		return
	}
	if err := e.svc.DestroyMessage(e.id, c.Message); err != nil {
		e.log.Debug("undelivered message not destroyed", zap.Stringer("message", c.Message), zap.Error(err))
	}
}
