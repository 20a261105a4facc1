// Package wasmzmq exposes ZeroMQ-style messaging sockets to sandboxed
// WebAssembly guests through opaque resource handles.
//
// Guests never see transport objects. Every socket and message lives in a
// handle registry, and each handle is visible only to the context that
// created it and to the extension that owns the resource types. Receiving
// without blocking the guest is done by background pollers whose results
// are queued and dispatched back on the guest's own goroutine.
//
// # Architecture Overview
//
//	wasmzmq/
//	├── errors/               Structured error types shared by every layer
//	├── resource/             Typed handle registry with ownership checks
//	├── transport/            Messaging transport abstraction
//	│   ├── zeromq/           go-zeromq/zmq4 backed transport
//	│   └── transporttest/    In-memory transport for tests
//	├── messaging/            Socket and message operations over handles
//	├── poller/               Background pollers and the completion queue
//	├── extension/            Load, Poll, Dispatch and Unload lifecycle
//	├── metrics/              Prometheus collectors
//	├── wasmhost/             wazero host module exporting the natives
//	└── cmd/smzmq/            Guest runner and interactive console
//
// # Quick Start
//
//	ext, err := extension.Load(extension.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer ext.Unload(context.Background())
//
//	host := wasmhost.New(ext)
//	if _, err := host.Instantiate(ctx, rt); err != nil {
//	    return err
//	}
//	mod, err := rt.InstantiateWithConfig(ctx, guestWasm, wazero.NewModuleConfig())
//	if err != nil {
//	    return err
//	}
//	defer host.Release(mod)
//
//	// deliver poll callbacks until ctx ends
//	return ext.Run(ctx)
//
// # Thread Safety
//
// Registry, messaging and extension operations are safe for concurrent use.
// Poll callbacks run only inside Dispatch or Run, on the calling goroutine.
package wasmzmq
