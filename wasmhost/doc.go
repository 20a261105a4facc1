// Package wasmhost exposes the messaging extension to WebAssembly guests
// as a wazero host module named "smzmq".
//
// Every native takes and returns i32 values. Handles are opaque i32s;
// strings and buffers are (pointer, length) pairs into the guest's
// exported memory. A native that fails returns -1, or 0 when it would
// have returned a handle, and records the error text for last_error:
//
//	create_socket(type) -> socket
//	socket_connect(socket, ptr, len) -> 1 | -1
//	socket_bind(socket, ptr, len) -> 1 | -1
//	socket_subscribe(socket, ptr, len) -> 1 | -1
//	socket_unsubscribe(socket, ptr, len) -> 1 | -1
//	socket_setopt(socket, option, ptr, len) -> 1 | -1
//	socket_getopt(socket, option, ptr, cap) -> len | -1
//	socket_send(socket, message, flags) -> 1 | -1
//	socket_recv(socket, flags) -> message
//	socket_poll(socket, callback, timeout_ms) -> 1 | -1
//	socket_close(socket) -> 1 | -1
//	create_message(ptr, len) -> message
//	message_size(message) -> size | -1
//	message_data(message, ptr, len) -> 1 | -1
//	message_close(message) -> 1 | -1
//	last_error(ptr, cap) -> len
//
// A guest that polls must export
//
//	smzmq_on_poll(callback, ready, message)
//
// which is called from the host's dispatch loop, never from a poller
// goroutine. The callback number is whatever the guest passed to
// socket_poll.
package wasmhost
