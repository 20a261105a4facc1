package wasmhost

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-zmq/extension"
	"github.com/wippyai/wasm-zmq/resource"
)

const (
	// ModuleName is the import module guests link against.
	ModuleName = "smzmq"
	// PollExport is the guest function receiving poll completions.
	PollExport = "smzmq_on_poll"
)

// Host binds guest module instances to extension contexts. Each guest gets
// its own identity the first time it calls a native.
type Host struct {
	ext    *extension.Extension
	log    *zap.Logger
	guests map[api.Module]*Guest
	mu     sync.Mutex
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.log = l
		}
	}
}

// New creates a host serving ext.
func New(ext *extension.Extension, opts ...Option) *Host {
	h := &Host{
		ext:    ext,
		log:    zap.NewNop(),
		guests: make(map[api.Module]*Guest),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Extension returns the extension behind the host.
func (h *Host) Extension() *extension.Extension { return h.ext }

// Instantiate defines the smzmq host module in rt. It must run before any
// guest importing it is instantiated.
func (h *Host) Instantiate(ctx context.Context, rt wazero.Runtime) (api.Module, error) {
	b := rt.NewHostModuleBuilder(ModuleName)
	for _, n := range natives {
		b.NewFunctionBuilder().
			WithGoModuleFunction(h.bind(n.call), n.params, n.results).
			WithName(n.name).
			Export(n.name)
	}
	return b.Instantiate(ctx)
}

func (h *Host) bind(call func(*Guest, context.Context, []uint64)) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		call(h.Guest(mod), ctx, stack)
	}
}

// Guest returns the binding for mod, creating it on first use.
func (h *Host) Guest(mod api.Module) *Guest {
	h.mu.Lock()
	defer h.mu.Unlock()

	if g, ok := h.guests[mod]; ok {
		return g
	}
	name := mod.Name()
	if name == "" {
		// anonymous instances still need distinguishable contexts in logs
		name = "guest-" + uuid.NewString()
	}
	g := &Guest{
		host: h,
		mod:  mod,
		id:   h.ext.NewContext(name),
	}
	g.log = h.log.With(zap.String("guest", name), zap.Uint32("context", uint32(g.id)))
	h.guests[mod] = g
	return g
}

// Guests returns the number of bound guests.
func (h *Host) Guests() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.guests)
}

// Release forgets mod and destroys every handle its context created.
// Pollers on its sockets finish with ready=0 and are not delivered.
func (h *Host) Release(mod api.Module) error {
	h.mu.Lock()
	g, ok := h.guests[mod]
	delete(h.guests, mod)
	h.mu.Unlock()
	if !ok {
		return nil
	}
	g.released.Store(true)

	reg := h.ext.Registry()
	var handles []resource.Handle
	reg.Each(func(hd resource.Handle, e resource.Entry) bool {
		if e.Creator == g.id {
			handles = append(handles, hd)
		}
		return true
	})

	var err error
	for _, hd := range handles {
		err = multierr.Append(err, reg.DestroyHandle(hd, h.ext.Identity()))
	}
	g.log.Debug("guest released", zap.Int("handles", len(handles)))
	return err
}
