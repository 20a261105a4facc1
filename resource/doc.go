// Package resource provides the handle registry behind every socket and
// message exposed to host contexts.
//
// Resources are native values (transport endpoints, message buffers) that
// callers only ever see as opaque integer handles. The Registry maps handles
// to typed values, checks who may use them, and runs each type's destructor
// exactly once when a handle is destroyed.
//
// # Types
//
// Each resource type is registered once with its destructor:
//
//	reg := resource.NewRegistry()
//	socketType, _ := reg.CreateType("ZMQSocket", func(v any) {
//	    v.(*Socket).Close()
//	}, extensionID)
//
// RemoveType destroys every live handle of the type before retiring it.
//
// # Handles
//
//	h, err := reg.CreateHandle(socketType, sock, callerID, extensionID)
//	v, err := reg.ReadHandle(h, socketType, callerID)
//	err = reg.DestroyHandle(h, callerID)
//
// A handle packs a slot index with the slot's serial number, so a handle to a
// destroyed resource stays invalid even after its slot is reused. Destroying
// the same handle twice reports a DoubleDestroy error instead of running the
// destructor again.
//
// # Identities
//
// Every handle records the identity it was issued to (the creator) and a
// privileged owner identity. ReadHandle and DestroyHandle only succeed for
// callers presenting one of the two.
//
// # Type Safety
//
// Typed binds a type tag to its Go value type:
//
//	sockets := resource.NewTyped[*Socket](reg, socketType)
//	sock, err := sockets.Read(h, callerID)
//
// # Observers
//
// Register observers to track resource lifecycle events:
//
//	unsubscribe := reg.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    log.Printf("%s %d %s", e.TypeName, e.Handle, e.Type)
//	}))
//	defer unsubscribe()
//
// # Concurrency
//
// All Registry methods are safe for concurrent use. Destructors and observers
// run outside the table lock, so they may call back into the registry.
package resource
