package resource

import "fmt"

// Handle is an opaque reference to a resource in a registry.
// The low 16 bits select a slot and the high 16 bits carry the slot serial,
// so a handle to a destroyed resource never aliases a later one.
// Handle 0 is reserved and always invalid.
type Handle uint32

const (
	handleIndexBits = 16
	handleIndexMask = 1<<handleIndexBits - 1

	// MaxHandles is the number of slots a registry can hold at once.
	MaxHandles = 1 << handleIndexBits
)

func makeHandle(index uint32, serial uint16) Handle {
	return Handle(uint32(serial)<<handleIndexBits | index&handleIndexMask)
}

func (h Handle) index() uint32  { return uint32(h) & handleIndexMask }
func (h Handle) serial() uint16 { return uint16(uint32(h) >> handleIndexBits) }

func (h Handle) String() string { return fmt.Sprintf("0x%08x", uint32(h)) }

// TypeTag identifies a resource type registered with CreateType.
// Tag 0 is never issued.
type TypeTag uint32

// Identity names a party that creates or owns handles: the extension itself
// or one host context (a guest instance, the console).
type Identity uint32

// NoIdentity is the zero identity.
const NoIdentity Identity = 0

// Destructor releases the native resource behind a handle.
// It is called exactly once per handle, outside the registry lock.
type Destructor func(value any)

// Event types for resource lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDestroyed
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Event represents a resource lifecycle event.
type Event struct {
	Value    any
	TypeName string
	Handle   Handle
	TypeTag  TypeTag
	Creator  Identity
	Type     EventType
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Dropper is optionally implemented by resource values that need cleanup.
// It is used when a type is created without a Destructor.
type Dropper interface {
	Drop()
}
