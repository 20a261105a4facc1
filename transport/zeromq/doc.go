// Package zeromq implements the transport boundary with
// github.com/go-zeromq/zmq4, a pure-Go ZeroMQ implementation.
//
// Each Endpoint wraps one zmq4 socket. The socket is created lazily so that
// IDENTITY can be applied at construction, and a receive pump goroutine
// copies incoming multipart messages into a transport.Mailbox, which gives
// pollers a channel to select on. Closing an endpoint discards queued and
// pending frames (linger 0 semantics).
//
//	ctx := zeromq.New(zeromq.WithLogger(log))
//	defer ctx.Term()
//
//	rep, _ := ctx.NewEndpoint(transport.Rep)
//	_ = rep.Bind("tcp://127.0.0.1:5555")
package zeromq
