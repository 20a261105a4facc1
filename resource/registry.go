package resource

import (
	"sync"

	"github.com/wippyai/wasm-zmq/errors"
)

type typeInfo struct {
	destructor Destructor
	name       string
	owner      Identity
	removed    bool
}

// Registry maps handles to typed native resources. Every type carries a
// destructor that runs exactly once per handle, synchronously, before the
// handle's slot can be reused. Safe for concurrent use.
type Registry struct {
	backend   *LocalBackend
	names     map[string]TypeTag
	observers map[uint64]Observer
	types     []typeInfo
	typeMu    sync.RWMutex
	obsMu     sync.RWMutex
	nextObs   uint64
	closeMu   sync.Mutex
	closed    bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithLimit caps the number of live handles.
func WithLimit(n int) Option {
	return func(r *Registry) {
		r.backend = NewLocalBackend(n)
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		names:     make(map[string]TypeTag),
		observers: make(map[uint64]Observer),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.backend == nil {
		r.backend = NewLocalBackend(0)
	}
	return r
}

// CreateType registers a resource type. The destructor may be nil, in which
// case values implementing Dropper are dropped and others are discarded.
func (r *Registry) CreateType(name string, destructor Destructor, owner Identity) (TypeTag, error) {
	if name == "" {
		return 0, errors.InvalidInput(errors.PhaseHandle, "empty type name")
	}

	r.typeMu.Lock()
	defer r.typeMu.Unlock()

	if tag, ok := r.names[name]; ok && !r.types[tag-1].removed {
		return 0, errors.InvalidInput(errors.PhaseHandle, "type "+name+" already registered")
	}

	r.types = append(r.types, typeInfo{
		name:       name,
		destructor: destructor,
		owner:      owner,
	})
	tag := TypeTag(len(r.types))
	r.names[name] = tag
	return tag, nil
}

// TypeName returns the registered name of a type, or "" if unknown.
func (r *Registry) TypeName(tag TypeTag) string {
	info, ok := r.typeInfo(tag)
	if !ok {
		return ""
	}
	return info.name
}

// LookupType returns the tag registered under name.
func (r *Registry) LookupType(name string) (TypeTag, bool) {
	r.typeMu.RLock()
	defer r.typeMu.RUnlock()

	tag, ok := r.names[name]
	if !ok || r.types[tag-1].removed {
		return 0, false
	}
	return tag, true
}

func (r *Registry) typeInfo(tag TypeTag) (typeInfo, bool) {
	r.typeMu.RLock()
	defer r.typeMu.RUnlock()
	return r.typeInfoLocked(tag)
}

func (r *Registry) typeInfoLocked(tag TypeTag) (typeInfo, bool) {
	if tag == 0 || int(tag) > len(r.types) {
		return typeInfo{}, false
	}
	return r.types[tag-1], true
}

// CreateHandle registers value under a live type and returns its handle.
// creator is the context the handle is issued to; owner is the privileged
// identity (normally the extension) that may always access it.
func (r *Registry) CreateHandle(tag TypeTag, value any, creator, owner Identity) (Handle, error) {
	// RemoveType marks the type under the write lock, so holding the read
	// lock across the insert keeps it from missing this handle.
	r.typeMu.RLock()
	info, ok := r.typeInfoLocked(tag)
	if !ok || info.removed {
		r.typeMu.RUnlock()
		return 0, errors.New(errors.PhaseHandle, errors.KindInvalidHandle).
			Op("create_handle").
			Detail("unknown resource type %d", tag).
			Build()
	}
	h, err := r.backend.Create(tag, value, creator, owner)
	r.typeMu.RUnlock()

	switch err {
	case nil:
	case ErrClosed:
		return 0, errors.Closed(errors.PhaseHandle, "registry")
	case ErrExhausted:
		return 0, errors.New(errors.PhaseHandle, errors.KindExhausted).
			Op("create_handle").
			Cause(err).
			Build()
	default:
		return 0, errors.Wrap(errors.PhaseHandle, errors.KindInvalidInput, err, "create handle")
	}

	r.notify(Event{
		Type:     EventCreated,
		Handle:   h,
		TypeTag:  tag,
		TypeName: info.name,
		Creator:  creator,
		Value:    value,
	})
	return h, nil
}

func canAccess(e Entry, caller Identity) bool {
	return caller == e.Creator || caller == e.Owner
}

// ReadHandle resolves h to its value. It fails with an InvalidHandle error
// when h is unknown, stale, of another type, or caller is neither the
// creator nor the owner of the handle.
func (r *Registry) ReadHandle(h Handle, expected TypeTag, caller Identity) (any, error) {
	name := r.TypeName(expected)

	e, res := r.backend.Get(h)
	switch res {
	case lookupUnknown:
		return nil, errors.InvalidHandle(name, uint32(h), "unknown handle")
	case lookupDestroyed:
		return nil, errors.InvalidHandle(name, uint32(h), "stale handle")
	}
	if e.Type != expected {
		return nil, errors.InvalidHandle(name, uint32(h), "handle is a "+r.TypeName(e.Type))
	}
	if !canAccess(e, caller) {
		return nil, errors.InvalidHandle(name, uint32(h), "access denied")
	}
	return e.Value, nil
}

// DestroyHandle destroys h on behalf of caller, running the type's destructor.
// Destroying a handle twice fails with a DoubleDestroy error.
func (r *Registry) DestroyHandle(h Handle, caller Identity) error {
	return r.destroy(h, func(e Entry) error {
		if !canAccess(e, caller) {
			return errors.InvalidHandle(r.TypeName(e.Type), uint32(h), "access denied")
		}
		return nil
	})
}

// DestroyTyped is DestroyHandle restricted to handles of one type.
func (r *Registry) DestroyTyped(h Handle, expected TypeTag, caller Identity) error {
	return r.destroy(h, func(e Entry) error {
		if e.Type != expected {
			return errors.InvalidHandle(r.TypeName(expected), uint32(h), "handle is a "+r.TypeName(e.Type))
		}
		if !canAccess(e, caller) {
			return errors.InvalidHandle(r.TypeName(e.Type), uint32(h), "access denied")
		}
		return nil
	})
}

func (r *Registry) destroy(h Handle, check func(Entry) error) error {
	e, res, err := r.backend.Detach(h, check)
	if err != nil {
		return err
	}
	switch res {
	case lookupUnknown:
		return errors.InvalidHandle("", uint32(h), "unknown handle")
	case lookupDestroyed:
		info, _ := r.typeInfo(e.Type)
		return errors.DoubleDestroy(info.name, uint32(h))
	}

	info, _ := r.typeInfo(e.Type)
	switch {
	case info.destructor != nil:
		info.destructor(e.Value)
	default:
		if d, ok := e.Value.(Dropper); ok {
			d.Drop()
		}
	}
	r.backend.Release(h)

	r.notify(Event{
		Type:     EventDestroyed,
		Handle:   h,
		TypeTag:  e.Type,
		TypeName: info.name,
		Creator:  e.Creator,
		Value:    e.Value,
	})
	return nil
}

// RemoveType destroys every live handle of tag and retires the type.
// Only the identity that created the type may remove it.
func (r *Registry) RemoveType(tag TypeTag, caller Identity) error {
	info, ok := r.typeInfo(tag)
	if !ok || info.removed {
		return errors.New(errors.PhaseHandle, errors.KindInvalidHandle).
			Op("remove_type").
			Detail("unknown resource type %d", tag).
			Build()
	}
	if info.owner != caller {
		return errors.New(errors.PhaseHandle, errors.KindInvalidHandle).
			Op("remove_type").
			Detail("type %s: access denied", info.name).
			Build()
	}

	r.typeMu.Lock()
	r.types[tag-1].removed = true
	r.typeMu.Unlock()

	r.destroyMatching(func(e Entry) bool { return e.Type == tag })
	return nil
}

func (r *Registry) destroyMatching(match func(Entry) bool) {
	var handles []Handle
	r.backend.Each(func(h Handle, e Entry) bool {
		if match(e) {
			handles = append(handles, h)
		}
		return true
	})
	for _, h := range handles {
		// a concurrent DestroyHandle may win; that is fine here
		_ = r.destroy(h, nil)
	}
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	return r.backend.Len()
}

// Count returns the number of live handles of one type.
func (r *Registry) Count(tag TypeTag) int {
	n := 0
	r.backend.Each(func(_ Handle, e Entry) bool {
		if e.Type == tag {
			n++
		}
		return true
	})
	return n
}

// Each iterates over a snapshot of live handles.
func (r *Registry) Each(fn func(Handle, Entry) bool) {
	r.backend.Each(fn)
}

// Subscribe adds an observer for lifecycle events and returns a function
// that removes it. Observers are called synchronously, outside the table lock.
func (r *Registry) Subscribe(o Observer) (unsubscribe func()) {
	r.obsMu.Lock()
	r.nextObs++
	id := r.nextObs
	r.observers[id] = o
	r.obsMu.Unlock()

	return func() {
		r.obsMu.Lock()
		delete(r.observers, id)
		r.obsMu.Unlock()
	}
}

// Close destroys every live handle and stops accepting new ones.
// Calling Close more than once is a no-op.
func (r *Registry) Close() error {
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return nil
	}
	r.closed = true
	r.closeMu.Unlock()

	r.backend.Close()
	r.destroyMatching(func(Entry) bool { return true })
	return nil
}

func (r *Registry) notify(e Event) {
	r.obsMu.RLock()
	observers := make([]Observer, 0, len(r.observers))
	for _, o := range r.observers {
		observers = append(observers, o)
	}
	r.obsMu.RUnlock()

	for _, o := range observers {
		o.OnResourceEvent(e)
	}
}
