// Package errors provides structured error types for the wasm-zmq module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the failing operation, the offending handle and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseHandle, errors.KindInvalidHandle).
//		Op("socket_connect").
//		Handle("ZMQSocket", 0x10001).
//		Detail("wrong type").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidHandle("ZMQMessage", h, "stale handle")
//	err := errors.Transport("bind", cause)
//
// All errors implement the standard error interface and support errors.Is/As.
// The Err* sentinels match any phase:
//
//	if errors.Is(err, errors.ErrInvalidHandle) { ... }
package errors
